package entity

import "github.com/strixun/edgecore/internal/apperr"

// Visibility is the disclosure level of an owned entity.
type Visibility string

const (
	VisibilityPrivate  Visibility = "private"
	VisibilityPublic   Visibility = "public"
	VisibilityUnlisted Visibility = "unlisted"
)

// Ownable is implemented by any entity participating in access checks.
type Ownable interface {
	OwnerCustomerID() string
	VisibilityLevel() Visibility
}

// AccessContext is the caller identity used to evaluate access predicates.
type AccessContext struct {
	CustomerID string
	IsAdmin    bool
}

// CanAccessOwned reports whether ctx may access e as its owner (or as admin).
func CanAccessOwned(e Ownable, ctx AccessContext) bool {
	return ctx.IsAdmin || (ctx.CustomerID != "" && e.OwnerCustomerID() == ctx.CustomerID)
}

// CanAccessVisible reports whether ctx may read e, accounting for
// public/unlisted visibility in addition to ownership.
func CanAccessVisible(e Ownable, ctx AccessContext) bool {
	if e.VisibilityLevel() == VisibilityPublic || e.VisibilityLevel() == VisibilityUnlisted {
		return true
	}
	return CanAccessOwned(e, ctx)
}

// CanModify reports whether ctx may mutate e. Mutation requires ownership
// and a concrete caller identity (an anonymous admin-less context can never
// modify, even if somehow flagged owner of an entity with an empty owner).
func CanModify(e Ownable, ctx AccessContext) bool {
	return CanAccessOwned(e, ctx) && (ctx.CustomerID != "" || ctx.IsAdmin)
}

// CanDelete has identical semantics to CanModify.
func CanDelete(e Ownable, ctx AccessContext) bool {
	return CanModify(e, ctx)
}

// Action names an access check, used only for the resulting error's detail.
type Action string

const (
	ActionRead   Action = "read"
	ActionModify Action = "modify"
	ActionDelete Action = "delete"
)

// AssertAccess returns apperr.KindForbidden if ctx is not permitted to
// perform action on e, nil otherwise.
func AssertAccess(e Ownable, ctx AccessContext, action Action) error {
	var allowed bool
	switch action {
	case ActionRead:
		allowed = CanAccessVisible(e, ctx)
	case ActionModify:
		allowed = CanModify(e, ctx)
	case ActionDelete:
		allowed = CanDelete(e, ctx)
	}
	if allowed {
		return nil
	}
	return apperr.New(apperr.KindForbidden, "access denied").WithDetail(string(action))
}

// FilterAccessible returns the subset of es that ctx may perform action on,
// preserving input order.
func FilterAccessible[T Ownable](es []T, ctx AccessContext, action Action) []T {
	out := make([]T, 0, len(es))
	for _, e := range es {
		if AssertAccess(e, ctx, action) == nil {
			out = append(out, e)
		}
	}
	return out
}
