package mail

import (
	"context"
	"errors"
)

// DeliveryFailedErr indicates the provider rejected or could not deliver the
// message. Issued codes stay valid; callers may retry the request later.
var DeliveryFailedErr = errors.New("mail delivery failed")

// Sender delivers one-time verification codes to account holders.
type Sender interface {
	SendOTP(ctx context.Context, recipientEmail, handle, code string) error
}
