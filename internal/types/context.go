package types

// ContextKey namespaces values stored on a context.Context so they don't
// collide with keys other packages might set.
type ContextKey string

func (k ContextKey) String() string { return string(k) }

const (
	// TenantIDContextKey carries the resolved uint64 tenant identifier
	// (database.WithTenantID, middleware.Auth).
	TenantIDContextKey ContextKey = "tenant_id"
	// TenantInfoContextKey carries the resolved *Tenant record.
	TenantInfoContextKey ContextKey = "tenant_info"
	// RequestIDContextKey carries the per-request correlation ID
	// (middleware.RequestID).
	RequestIDContextKey ContextKey = "request_id"
	// LoggerContextKey carries a *logrus.Entry pre-populated with
	// request-scoped fields.
	LoggerContextKey ContextKey = "logger"
)
