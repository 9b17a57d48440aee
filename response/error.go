package response

import "fmt"

// Kind is a stable, machine-readable classification of a failure.
// Clients switch on Kind; Message/Messages are for humans only.
type Kind string

const (
	KindValidation       Kind = "validation"
	KindNotAuthorized    Kind = "not_authorized"
	KindQuotaExhausted   Kind = "quota_exhausted"
	KindNoActiveInstance Kind = "no_active_instance"
	KindAlreadyActive    Kind = "already_active"
	KindProvider         Kind = "provider"
	KindRemoteAgent      Kind = "remote_agent"
	KindNotFound         Kind = "not_found"
	KindInternal         Kind = "internal"
)

type Error struct {
	StatusCode int
	Kind       Kind
	Message    string
	Messages   []string
	Result     interface{}
}

func (e *Error) Error() string {
	return fmt.Sprintf("HTTP %d (%s): %s", e.StatusCode, e.Kind, e.Message)
}

func (e *Error) WithMessage(msg string) *Error {
	e.Message = msg
	return e
}

func (e *Error) AddMessages(msgs ...string) *Error {
	e.Messages = append(e.Messages, msgs...)
	return e
}

func (e *Error) WithResult(result interface{}) *Error {
	e.Result = result
	return e
}

func makeError(status int, kind Kind) *Error {
	return &Error{
		StatusCode: status,
		Kind:       kind,
		Messages:   make([]string, 0),
		Result:     []string{},
	}
}

// -----------------------------------------------

func ErrUnexpected() *Error {
	return makeError(500, KindInternal).
		WithMessage("An unexpected error has occured")
}

func ErrBadRequest() *Error {
	return makeError(400, KindValidation).
		WithMessage("Bad request")
}

func ErrUnauthorized() *Error {
	return makeError(401, KindNotAuthorized).
		WithMessage("Unauthorized")
}

func ErrForbidden() *Error {
	return makeError(403, KindNotAuthorized).
		WithMessage("Forbidden")
}

func ErrNotFound() *Error {
	return makeError(404, KindNotFound).
		WithMessage("Requested resources not found")
}

func ErrConflict() *Error {
	return makeError(409, KindAlreadyActive).
		WithMessage("Conflict")
}

func ErrQuotaExhausted() *Error {
	return makeError(402, KindQuotaExhausted).
		WithMessage("Usage quota exhausted")
}

func ErrNoActiveInstance() *Error {
	return makeError(404, KindNoActiveInstance).
		WithMessage("No active instance for this user")
}

func ErrProvider() *Error {
	return makeError(502, KindProvider).
		WithMessage("Compute provider returned an error")
}

func ErrRemoteAgent(statusCode int) *Error {
	return makeError(502, KindRemoteAgent).
		WithMessage(fmt.Sprintf("Remote agent returned HTTP %d", statusCode))
}

func ErrInvalidJson() *Error {
	return ErrBadRequest().AddMessages("Invalid JSON body")
}

func ErrNoBearer() *Error {
	return ErrUnauthorized().AddMessages("No valid Bearer token found in header")
}
