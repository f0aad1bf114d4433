package identity

import "context"

// CallerIdentity is the typed, request-scoped identity carried in context —
// never smuggled through request DTOs or mutated request objects.
type CallerIdentity struct {
	CustomerID   string
	Email        string
	JTI          string
	CSRF         string
	IsSuperAdmin bool
	IsService    bool // true for service-to-service calls with no JWT
	Token        string // raw bearer token string; "" for service calls
}

type identityContextKey struct{}

// NewContext returns a context carrying identity.
func NewContext(ctx context.Context, id *CallerIdentity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, id)
}

// FromContext returns the CallerIdentity stored by NewContext, or nil.
func FromContext(ctx context.Context) *CallerIdentity {
	id, _ := ctx.Value(identityContextKey{}).(*CallerIdentity)
	return id
}
