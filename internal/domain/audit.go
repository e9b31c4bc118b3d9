package domain

import "context"

// SystemActor attributes writes performed by background workers.
const SystemActor = "system"

type auditKey struct{}

// AuditContext identifies who is performing a mutation. It travels on the
// request context and lands in the created_by / updated_by columns.
type AuditContext struct {
	Actor string
}

// WithAudit attaches an audit context.
func WithAudit(ctx context.Context, ac AuditContext) context.Context {
	return context.WithValue(ctx, auditKey{}, ac)
}

// AuditFrom extracts the audit context, defaulting to the system actor.
func AuditFrom(ctx context.Context) AuditContext {
	if ac, ok := ctx.Value(auditKey{}).(AuditContext); ok && ac.Actor != "" {
		return ac
	}
	return AuditContext{Actor: SystemActor}
}
