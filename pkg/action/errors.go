package action

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	pkgerrors "github.com/pkg/errors"
)

// Kind classifies an action failure.
type Kind string

// Error kinds.
const (
	// KindConfiguration: the base URL or the descriptor is malformed.
	KindConfiguration Kind = "configuration"
	// KindTransform: a request/response transform or interceptor failed, or
	// the request payload could not be serialised.
	KindTransform Kind = "transform"
	// KindHTTP: the round trip completed with a non-2xx status.
	KindHTTP Kind = "http"
	// KindNetwork: the transport failed before producing a response.
	KindNetwork Kind = "network"
	// KindParse: the response body could not be decoded.
	KindParse Kind = "parse"
)

// Sentinels matched by errors.Is against an *Error of the same kind.
var (
	ErrConfiguration = errors.New("configuration error")
	ErrTransform     = errors.New("transform error")
	ErrHTTP          = errors.New("http error")
	ErrNetwork       = errors.New("network error")
	ErrParse         = errors.New("parse error")
)

// Static errors for err113 compliance.
var (
	ErrFactoryRequired = errors.New("factory is required")
	ErrConfigRequired  = errors.New("config is required")
	ErrEndpointNotPath = errors.New("endpoint must be a path, not an absolute URL")
	ErrTransformPanic  = errors.New("transform panicked")
	ErrFormClosed      = errors.New("form already encoded")
)

func (k Kind) sentinel() error {
	switch k {
	case KindConfiguration:
		return ErrConfiguration
	case KindTransform:
		return ErrTransform
	case KindHTTP:
		return ErrHTTP
	case KindNetwork:
		return ErrNetwork
	case KindParse:
		return ErrParse
	default:
		return nil
	}
}

// HTTPError is the cause of a KindHTTP failure.
type HTTPError struct {
	StatusCode int
	Status     string
	// Body is the raw, unparsed response body, kept for diagnostics.
	Body []byte
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	status := e.Status
	if status == "" {
		status = fmt.Sprintf("%d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}

	return "unexpected status " + status
}

// Error is the single error type returned by actions. The original cause is
// available through errors.Unwrap/errors.As; printing with %+v includes the
// stack captured where the failure was normalised.
type Error struct {
	Kind       Kind
	Action     string
	Method     Method
	URL        string
	StatusCode int
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("action %q: %s error: %s", e.Action, e.Kind, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for e's kind.
func (e *Error) Is(target error) bool {
	sentinel := e.Kind.sentinel()

	return sentinel != nil && target == sentinel
}

// Format supports %+v to print the captured stack.
func (e *Error) Format(state fmt.State, verb rune) {
	switch verb {
	case 'v':
		if state.Flag('+') {
			_, _ = io.WriteString(state, e.Error())
			if e.Err != nil {
				_, _ = fmt.Fprintf(state, "\n%+v", e.Err)
			}

			return
		}

		fallthrough
	case 's':
		_, _ = io.WriteString(state, e.Error())
	case 'q':
		_, _ = fmt.Fprintf(state, "%q", e.Error())
	}
}

// newError builds a normalised error. cause must not be nil.
func newError(kind Kind, meta callMeta, message string, cause error) *Error {
	err := &Error{
		Kind:    kind,
		Action:  meta.name,
		Method:  meta.method,
		URL:     meta.url,
		Message: message + ": " + cause.Error(),
		Err:     pkgerrors.WithStack(cause),
	}

	httpErr := &HTTPError{}
	if errors.As(cause, &httpErr) {
		err.StatusCode = httpErr.StatusCode
	}

	return err
}

// callMeta identifies the call an error belongs to.
type callMeta struct {
	name   string
	method Method
	url    string
}

// KindOf returns the kind of an action error, or "" for other errors.
func KindOf(err error) Kind {
	actionErr := &Error{}
	if errors.As(err, &actionErr) {
		return actionErr.Kind
	}

	return ""
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	httpErr := &HTTPError{}
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode
	}

	return 0
}

// IsNotFound checks if the error is a 404 response.
func IsNotFound(err error) bool {
	return StatusCode(err) == http.StatusNotFound
}

// IsUnauthorized checks if the error is a 401 response.
func IsUnauthorized(err error) bool {
	return StatusCode(err) == http.StatusUnauthorized
}

// IsForbidden checks if the error is a 403 response.
func IsForbidden(err error) bool {
	return StatusCode(err) == http.StatusForbidden
}
