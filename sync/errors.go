package sync

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMalformedRequest is returned for bad methods and undecodable or incomplete callback payloads.
	ErrMalformedRequest = errors.New("malformatted or missing data")
	// ErrRemoteTransport matches any RemoteError raised before a response was received.
	ErrRemoteTransport = errors.New("mailjet transport error")
	// ErrRemoteApplication matches any RemoteError carrying a Mailjet error response.
	ErrRemoteApplication = errors.New("mailjet application error")
	// ErrPreconditionFailed is returned when the connector self test does not pass.
	ErrPreconditionFailed = errors.New("connector self test failed")

	ErrContactNotInList = errors.New("contact is not in the configured list")
	ErrMissingField     = errors.New("missing required field")
	ErrReadOnlyField    = errors.New("field is read only")
	ErrUnknownField     = errors.New("unknown field")
	ErrLocked           = errors.New("lock is held by another caller")
)

type RemoteErrorKind int

const (
	RemoteTransportError RemoteErrorKind = iota
	RemoteApplicationError
)

func (k RemoteErrorKind) String() string {
	switch k {
	case RemoteTransportError:
		return "transport"
	case RemoteApplicationError:
		return "application"
	default:
		return "unknown"
	}
}

// MailjetError is the error envelope returned by the Mailjet API.
type MailjetError struct {
	ErrorIdentifier string
	ErrorCode       string
	ErrorMessage    string
	ErrorInfo       string
	StatusCode      int
	Errors          []MailjetErrorDetail
}

type MailjetErrorDetail struct {
	ErrorIdentifier string
	ErrorCode       string
	ErrorMessage    string
}

// Messages returns every non empty message found in the envelope.
func (e MailjetError) Messages() []string {
	var result []string
	if e.ErrorMessage != "" {
		result = append(result, e.ErrorMessage)
	}
	if e.ErrorInfo != "" {
		result = append(result, e.ErrorInfo)
	}
	for _, d := range e.Errors {
		if d.ErrorMessage != "" {
			result = append(result, d.ErrorMessage)
		}
	}
	return result
}

// RemoteError describes a failed call to the Mailjet API.
type RemoteError struct {
	Kind     RemoteErrorKind
	Method   string
	Path     string
	Status   int
	Envelope MailjetError
	Err      error
}

func (e *RemoteError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "mailjet %s error: %s %s", e.Kind, e.Method, e.Path)
	if e.Status != 0 {
		fmt.Fprintf(&b, " (status %d)", e.Status)
	}
	if msgs := e.Envelope.Messages(); len(msgs) > 0 {
		fmt.Fprintf(&b, ": %s", strings.Join(msgs, "; "))
	} else if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

func (e *RemoteError) Is(target error) bool {
	switch target {
	case ErrRemoteTransport:
		return e.Kind == RemoteTransportError
	case ErrRemoteApplication:
		return e.Kind == RemoteApplicationError
	}
	return false
}

// IsRemoteError reports whether err is an expected Mailjet failure,
// as opposed to a programming or configuration error.
func IsRemoteError(err error) bool {
	return errors.Is(err, ErrRemoteTransport) || errors.Is(err, ErrRemoteApplication)
}
