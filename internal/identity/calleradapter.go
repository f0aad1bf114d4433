package identity

import (
	"context"

	"github.com/strixun/edgecore/pkg/cipher"
)

// callerAdapter satisfies pkg/cipher.Caller so the cipher response-
// encryption middleware only needs a token and a service-call flag, not
// the full CallerIdentity shape — the IdentityPort break described in
// spec.md §9 (the cyclic dependency between identity and customer stores
// is broken by an interface consumed by pkg/cipher, with the concrete
// identity service injected at the composition root).
type callerAdapter struct{ id *CallerIdentity }

func (c callerAdapter) Token() string   { return c.id.Token }
func (c callerAdapter) IsService() bool { return c.id.IsService }

// CipherCallerFromContext adapts FromContext to pkg/cipher.CallerFromContext,
// for wiring cipher.EncryptMiddleware at the composition root.
func CipherCallerFromContext(ctx context.Context) cipher.Caller {
	id := FromContext(ctx)
	if id == nil {
		return nil
	}
	return callerAdapter{id: id}
}
