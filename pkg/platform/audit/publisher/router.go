package publisher

import (
	"context"

	audit "chaperone/pkg/platform/audit"
)

// Router sends compliance events to a fail-closed emitter and everything else to the
// best-effort one, so callers depend on a single audit.Emitter.
type Router struct {
	compliance audit.Emitter
	rest       audit.Emitter
}

func NewRouter(compliance, rest audit.Emitter) *Router {
	return &Router{compliance: compliance, rest: rest}
}

func (r *Router) Emit(ctx context.Context, event audit.Event) error {
	category := event.Category
	if category == "" {
		category = audit.AuditEvent(event.Action).Category()
	}
	if category == audit.CategoryCompliance {
		return r.compliance.Emit(ctx, event)
	}
	return r.rest.Emit(ctx, event)
}
