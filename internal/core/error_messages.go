package core

// error_messages.go maps errors to user-facing messages with codes for
// support reference. Users can quote the code; operators find the technical
// error in the logs under the same code.
//
// # Validation Errors (VAL001-VAL099)
//
// VAL001 to VAL004 are matched on the Rule of a *ValidationError, since its
// message embeds user-supplied column names:
//
//	VAL001 - Too few columns: the file needs a label and two criteria
//	VAL002 - Count mismatch: weights, impacts and criteria disagree
//	VAL003 - Bad impact: an impact token is not "+" or "-"
//	VAL004 - Non-numeric column: a criteria column holds text
//
//	VAL005 - Bad weight: a weight is not a non-negative number
//	         Patterns: "weights must be"
//
// # File Errors (FILE001-FILE099)
//
//	FILE001 - File too large: upload exceeds the size limit
//	          Patterns: "request body too large", "file too large"
//
//	FILE002 - Unreadable CSV: the parser rejected the file
//	          Patterns: "could not read csv", "invalid csv", "empty file"
//
//	FILE003 - No file: the form had no upload
//	          Patterns: "no file uploaded"
//
//	FILE004 - Missing field: weights, impacts or email absent
//	          Patterns: "missing required field"
//
// # Delivery Errors (MAIL001-MAIL099)
//
// Matched on the mail.Kind of a *mail.DeliveryError rather than text:
//
//	MAIL001 - auth                  MAIL004 - recipient_rejected
//	MAIL002 - network               MAIL005 - unknown
//	MAIL003 - attachment_too_large
//
// # Capacity Errors (CALC001-CALC099)
//
//	CALC001 - Busy: every calculation slot is taken
//	          Patterns: "too many calculations"
//
//	CALC002 - Interrupted: the request was cancelled or timed out
//	          Patterns: "context canceled", "context deadline exceeded"
//
// # Rate Limiting (RATE001)
//
//	RATE001 - Rate limited: too many requests from one client
//	          Patterns: "rate limit"
//
// # Default Error (ERR000)
//
// Fallback when nothing matches. Check the logs for the technical error.

import (
	"errors"
	"strings"

	"github.com/JonMunkholm/topsis/internal/mail"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns maps error text (case-insensitive) to user messages.
// The first matching pattern wins, so specific patterns come first.
var errorPatterns = []errorPattern{
	// Weights
	{
		pattern: "weights must be",
		msg: UserMessage{
			Message: "Weights must be non-negative numbers",
			Action:  "Use values such as 1,1,2 or 0.25,0.25,0.5",
			Code:    "VAL005",
		},
	},

	// File
	{
		pattern: "request body too large",
		msg: UserMessage{
			Message: "File exceeds maximum size limit",
			Action:  "Upload a smaller file",
			Code:    "FILE001",
		},
	},
	{
		pattern: "file too large",
		msg: UserMessage{
			Message: "File exceeds maximum size limit",
			Action:  "Upload a smaller file",
			Code:    "FILE001",
		},
	},
	{
		pattern: "could not read csv",
		msg: UserMessage{
			Message: "File is not a valid CSV",
			Action:  "Ensure file is comma-separated with a header and consistent columns",
			Code:    "FILE002",
		},
	},
	{
		pattern: "invalid csv",
		msg: UserMessage{
			Message: "File is not a valid CSV",
			Action:  "Ensure file is comma-separated with a header and consistent columns",
			Code:    "FILE002",
		},
	},
	{
		pattern: "empty file",
		msg: UserMessage{
			Message: "The uploaded file is empty",
			Action:  "Upload a CSV file with a header and data rows",
			Code:    "FILE002",
		},
	},
	{
		pattern: "no file uploaded",
		msg: UserMessage{
			Message: "No file was selected",
			Action:  "Please select a CSV file to upload",
			Code:    "FILE003",
		},
	},
	{
		pattern: "missing required field",
		msg: UserMessage{
			Message: "A required form field is missing",
			Action:  "Fill in weights, impacts and email",
			Code:    "FILE004",
		},
	},

	// Capacity
	{
		pattern: "too many calculations",
		msg: UserMessage{
			Message: "System is busy processing other calculations",
			Action:  "Please wait a moment and try again",
			Code:    "CALC001",
		},
	},
	{
		pattern: "context canceled",
		msg: UserMessage{
			Message: "Request was cancelled",
			Action:  "Please try again",
			Code:    "CALC002",
		},
	},
	{
		pattern: "context deadline exceeded",
		msg: UserMessage{
			Message: "Request timed out",
			Action:  "Try a smaller file or check your connection",
			Code:    "CALC002",
		},
	},

	// Rate limiting
	{
		pattern: "rate limit",
		msg: UserMessage{
			Message: "Too many requests",
			Action:  "Please wait a moment before trying again",
			Code:    "RATE001",
		},
	},
}

// ruleMessages maps each validation rule to its user message.
var ruleMessages = map[Rule]UserMessage{
	RuleColumnCount: {
		Message: "Input file must contain at least three columns",
		Action:  "Provide a label column followed by two or more criteria columns",
		Code:    "VAL001",
	},
	RuleCountMismatch: {
		Message: "Weights, impacts and criteria columns do not line up",
		Action:  "Give exactly one weight and one impact per criteria column",
		Code:    "VAL002",
	},
	RuleImpactSymbol: {
		Message: "Impacts must be either '+' or '-'",
		Action:  "Use '+' for criteria to maximise and '-' for criteria to minimise",
		Code:    "VAL003",
	},
	RuleNonNumeric: {
		Message: "A criteria column contains non-numeric values",
		Action:  "Remove text, currency symbols and empty cells from criteria columns",
		Code:    "VAL004",
	},
}

// deliveryMessages maps each delivery kind to its user message.
var deliveryMessages = map[mail.Kind]UserMessage{
	mail.KindAuth: {
		Message: "Email could not be sent: authentication failed",
		Action:  "Check EMAIL_USER and EMAIL_PASS (use an app password)",
		Code:    "MAIL001",
	},
	mail.KindNetwork: {
		Message: "Email could not be sent: mail server unreachable",
		Action:  "Check SMTP_HOST, SMTP_PORT and outbound network access",
		Code:    "MAIL002",
	},
	mail.KindAttachmentTooLarge: {
		Message: "Email could not be sent: attachment too large",
		Action:  "Rank a smaller dataset or raise MAIL_MAX_ATTACHMENT_BYTES",
		Code:    "MAIL003",
	},
	mail.KindRecipientRejected: {
		Message: "Email could not be sent: recipient rejected",
		Action:  "Check the email address",
		Code:    "MAIL004",
	},
	mail.KindUnknown: {
		Message: "Email could not be sent",
		Action:  "Check the server logs for the SMTP error",
		Code:    "MAIL005",
	},
}

// defaultMessage is returned when no pattern matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts an error to a user-friendly message. Validation errors
// are matched by rule and delivery errors by kind; everything else by the
// first matching text pattern.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	var ve *ValidationError
	if errors.As(err, &ve) {
		if msg, ok := ruleMessages[ve.Rule]; ok {
			return msg
		}
	}

	var de *mail.DeliveryError
	if errors.As(err, &de) {
		if msg, ok := deliveryMessages[de.Kind]; ok {
			return msg
		}
		return deliveryMessages[mail.KindUnknown]
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// DeliveryMessage returns the user message for a delivery kind.
func DeliveryMessage(kind mail.Kind) UserMessage {
	if msg, ok := deliveryMessages[kind]; ok {
		return msg
	}
	return deliveryMessages[mail.KindUnknown]
}
