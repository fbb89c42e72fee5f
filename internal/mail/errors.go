package mail

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/textproto"
)

// Kind classifies why a delivery failed. The HTTP layer reports the kind, never
// the underlying SMTP text.
type Kind string

const (
	KindAuth               Kind = "auth"
	KindNetwork            Kind = "network"
	KindAttachmentTooLarge Kind = "attachment_too_large"
	KindRecipientRejected  Kind = "recipient_rejected"
	KindUnknown            Kind = "unknown"
)

// Description is the short phrase used in status messages.
func (k Kind) Description() string {
	switch k {
	case KindAuth:
		return "authentication failed"
	case KindNetwork:
		return "mail server unreachable"
	case KindAttachmentTooLarge:
		return "attachment too large"
	case KindRecipientRejected:
		return "recipient rejected"
	default:
		return "unexpected mail error"
	}
}

var (
	// ErrCredentialsMissing is returned when EMAIL_USER or EMAIL_PASS is unset.
	ErrCredentialsMissing = errors.New("smtp credentials not configured")

	// ErrAttachmentTooLarge is returned before dialing when the artifact exceeds the limit.
	ErrAttachmentTooLarge = errors.New("attachment exceeds size limit")
)

// DeliveryError is a failed send, tagged with the SMTP stage that failed.
type DeliveryError struct {
	Kind Kind
	Op   string // dial, greeting, auth, mail, rcpt, data, address, compose, attach
	Err  error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("mail %s failed (%s): %v", e.Op, e.Kind, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// KindOf extracts the delivery kind from err. Nil yields "", errors that are not
// a *DeliveryError yield KindUnknown.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var de *DeliveryError
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindUnknown
}

func fail(op string, err error) *DeliveryError {
	return &DeliveryError{Kind: classify(op, err), Op: op, Err: err}
}

// classify maps an SMTP-stage error to a Kind. Reply codes take precedence over
// the stage; transport failures are network regardless of stage.
func classify(op string, err error) Kind {
	var tpErr *textproto.Error
	if errors.As(err, &tpErr) {
		switch tpErr.Code {
		case 530, 534, 535, 538:
			return KindAuth
		case 552, 523:
			return KindAttachmentTooLarge
		case 550, 551, 553, 450, 452:
			if op == "rcpt" {
				return KindRecipientRejected
			}
		case 454:
			if op == "auth" {
				return KindAuth
			}
		}
		switch op {
		case "auth":
			return KindAuth
		case "rcpt":
			return KindRecipientRejected
		}
		return KindUnknown
	}

	var netErr net.Error
	var recErr tls.RecordHeaderError
	switch {
	case op == "dial" || op == "greeting":
		return KindNetwork
	case errors.As(err, &netErr), errors.As(err, &recErr):
		return KindNetwork
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, context.DeadlineExceeded):
		return KindNetwork
	case op == "auth":
		return KindAuth
	case op == "address":
		return KindRecipientRejected
	}
	return KindUnknown
}
