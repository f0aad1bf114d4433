package identity

import "context"

// Email is the message handed to the configured email vendor.
type Email struct {
	To      string
	Subject string
	HTML    string
}

// EmailSender is the abstract outbound email collaborator. The concrete
// vendor integration lives outside this module's scope; callers wire in
// whichever HTTP-based vendor client implements this interface.
type EmailSender interface {
	Send(ctx context.Context, msg Email) error
}
