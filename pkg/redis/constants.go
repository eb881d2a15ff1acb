package redis

import "time"

// Namespaces define the top-level key prefixes for different types of data.
const (
	NamespaceCache   = "cache"   // For general caching
	NamespaceSession = "session" // For session state
	NamespaceRate    = "rate"    // For rate limiting counters
)

// Contexts define the second-level key prefixes for specific domains.
const (
	ContextAuth         = "auth"         // Authentication related data
	ContextTenant       = "tenant"       // Tenant related data
	ContextNotification = "notification" // Notification related data
)

// TTL constants define the time-to-live durations for different types of data.
const (
	TTLTenantContext = 5 * time.Minute  // Tenant context cache TTL
	TTLSession       = 24 * time.Hour   // Session TTL
	TTLRevocation    = 24 * time.Hour   // Revocation marker TTL (matches max token life)
	TTLRateLimit     = 1 * time.Minute  // Default rate limit window TTL
)
