package ws

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/hscale/adx-gateway/pkg/auth"
	gwerrors "github.com/hscale/adx-gateway/pkg/errors"
)

const (
	readLimit     = 1 << 20 // 1MB
	writeDeadline = 10 * time.Second
)

// Handler upgrades authenticated HTTP requests to registry connections.
// The token is verified before the upgrade completes: a failed handshake
// never registers a partial connection.
type Handler struct {
	registry  *Registry
	validator *auth.Validator
	upgrader  websocket.Upgrader
	log       *zap.Logger
}

// NewHandler creates the handshake handler. allowedOrigins lists origin
// hosts permitted to connect; "*" allows all, "*.example.com" allows
// subdomains. Non-browser clients (no Origin header) are always allowed.
func NewHandler(registry *Registry, validator *auth.Validator, allowedOrigins []string, log *zap.Logger) *Handler {
	h := &Handler{
		registry:  registry,
		validator: validator,
		log:       log.With(zap.String("module", "ws-handler")),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     originChecker(allowedOrigins, h.log),
	}
	return h
}

func originChecker(allowed []string, log *zap.Logger) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true // Allow non-browser clients
		}

		originHost := origin
		if strings.Contains(origin, "://") {
			parts := strings.SplitN(origin, "://", 2)
			originHost = parts[1]
		}
		if i := strings.IndexByte(originHost, ':'); i >= 0 {
			originHost = originHost[:i]
		}

		for _, a := range allowed {
			if a == "*" || a == originHost {
				return true
			}
			if strings.HasPrefix(a, "*.") && strings.HasSuffix(originHost, a[1:]) {
				return true
			}
		}

		log.Warn("rejected connection origin",
			zap.String("origin", origin),
			zap.Strings("allowed_origins", allowed),
		)
		return false
	}
}

// ServeHTTP performs the connection handshake: verify the token, upgrade,
// register, start the pumps, and push the connected frame.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token = auth.ExtractBearer(r.Header.Get("Authorization"))
	}

	identity, err := h.validator.Validate(r.Context(), token)
	if err != nil {
		h.log.Warn("handshake rejected", zap.Error(err))
		http.Error(w, string(gwerrors.CodeConnectionAuthFailed), http.StatusUnauthorized)
		return
	}

	wsConn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("upgrade failed", zap.Error(err))
		return
	}

	c := NewConnection(uuid.NewString(), identity, wsConn)
	h.registry.Register(c)

	go h.writePump(c)
	go h.readPump(c)

	h.registry.Send(c.ID, Connected(c.ID, identity.Subject, identity.TenantID))
}

// readPump pumps client frames into the registry until the transport errors
// or closes, then removes the connection from all indexes.
func (h *Handler) readPump(c *Connection) {
	defer h.registry.Close(c.ID, "read loop ended")

	deadline := 2 * h.registry.PingInterval()
	c.conn.SetReadLimit(readLimit)
	if err := c.conn.SetReadDeadline(time.Now().Add(deadline)); err != nil {
		return
	}
	c.conn.SetPongHandler(func(string) error {
		h.registry.Touch(c.ID)
		return c.conn.SetReadDeadline(time.Now().Add(deadline))
	})

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Warn("read error", zap.String("connection_id", c.ID), zap.Error(err))
			}
			return
		}

		msg, err := ParseEnvelope(frame)
		if err != nil {
			h.log.Warn("malformed client frame", zap.String("connection_id", c.ID), zap.Error(err))
			continue
		}

		switch msg.Type {
		case TypePing:
			h.registry.Touch(c.ID)
			h.registry.Send(c.ID, Pong())
		case TypeSubscribe:
			if h.registry.Subscribe(c.ID, msg.Channels) {
				h.registry.Send(c.ID, Subscribed(msg.Channels))
			}
		case TypeUnsubscribe:
			if h.registry.Unsubscribe(c.ID, msg.Channels) {
				h.registry.Send(c.ID, Unsubscribed(msg.Channels))
			}
		default:
			h.log.Debug("ignoring client frame",
				zap.String("connection_id", c.ID),
				zap.String("type", msg.Type),
			)
		}
	}
}

// writePump pumps frames from the send channel to the transport and pings
// on the heartbeat interval.
func (h *Handler) writePump(c *Connection) {
	ticker := time.NewTicker(h.registry.PingInterval())
	defer func() {
		ticker.Stop()
		c.shutdown()
	}()

	for {
		select {
		case frame := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeDeadline)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				h.log.Warn("write error", zap.String("connection_id", c.ID), zap.Error(err))
				return
			}
		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeDeadline)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.closed:
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}
