package domain

// Code is the stable, user-visible failure reason. Codes surface verbatim
// in API error envelopes and never change meaning between versions.
type Code string

const (
	CodeInvalidAmount      Code = "INVALID_AMOUNT"
	CodeAmountOverflow     Code = "AMOUNT_OVERFLOW"
	CodeInvalidFee         Code = "INVALID_FEE"
	CodeNoRecipients       Code = "NO_RECIPIENTS"
	CodeDuplicateRecipient Code = "DUPLICATE_RECIPIENT"
	CodeNoCreators         Code = "NO_CREATORS"
	CodeRequestNotFound    Code = "REQUEST_NOT_FOUND"
	CodeAlreadyFinalized   Code = "ALREADY_FINALIZED"
	CodeAlreadyCancelled   Code = "ALREADY_CANCELLED"
	CodeNotOwner           Code = "NOT_OWNER"
	CodeNotAuthorized      Code = "NOT_AUTHORIZED"
	CodeStillLocked        Code = "STILL_LOCKED"
	CodeNoSuchArtifact     Code = "NO_SUCH_ARTIFACT"
	CodeNotOwnerOrApproved Code = "NOT_OWNER_OR_APPROVED"
	CodeTransferFailed     Code = "TRANSFER_FAILED"
	CodeInvalidRef         Code = "INVALID_REF"
	CodeCelebrityNotFound  Code = "CELEBRITY_NOT_FOUND"
	CodeCelebrityExists    Code = "CELEBRITY_EXISTS"
)

// Error is a coded domain failure. Two Errors match under errors.Is when
// their codes are equal, so callers compare against the sentinels below.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return string(e.Code) + ": " + e.Message + ": " + e.cause.Error()
	}
	return string(e.Code) + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.cause }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// WithCause returns a copy of e carrying err as the underlying cause.
func (e *Error) WithCause(err error) *Error {
	return &Error{Code: e.Code, Message: e.Message, cause: err}
}

var (
	ErrInvalidAmount      = &Error{Code: CodeInvalidAmount, Message: "sent amount must be greater than 0"}
	ErrAmountOverflow     = &Error{Code: CodeAmountOverflow, Message: "amount arithmetic overflows"}
	ErrInvalidFee         = &Error{Code: CodeInvalidFee, Message: "fee percent must be between 0 and 100"}
	ErrNoRecipients       = &Error{Code: CodeNoRecipients, Message: "request needs at least one recipient"}
	ErrDuplicateRecipient = &Error{Code: CodeDuplicateRecipient, Message: "recipients must be distinct"}
	ErrNoCreators         = &Error{Code: CodeNoCreators, Message: "artifact needs at least one creator"}
	ErrRequestNotFound    = &Error{Code: CodeRequestNotFound, Message: "no request with that id"}
	ErrAlreadyFinalized   = &Error{Code: CodeAlreadyFinalized, Message: "request is already finalized"}
	ErrAlreadyCancelled   = &Error{Code: CodeAlreadyCancelled, Message: "request is already cancelled"}
	ErrNotOwner           = &Error{Code: CodeNotOwner, Message: "you are not the owner of the request"}
	ErrNotAuthorized      = &Error{Code: CodeNotAuthorized, Message: "you are not a recipient of the request"}
	ErrStillLocked        = &Error{Code: CodeStillLocked, Message: "you must wait the response time to cancel this request"}
	ErrNoSuchArtifact     = &Error{Code: CodeNoSuchArtifact, Message: "no artifact with that id"}
	ErrNotOwnerOrApproved = &Error{Code: CodeNotOwnerOrApproved, Message: "caller is neither owner nor approved"}
	ErrTransferFailed     = &Error{Code: CodeTransferFailed, Message: "payout transfer could not be delivered"}
	ErrInvalidRef         = &Error{Code: CodeInvalidRef, Message: "content reference is not a valid CID or URI"}
	ErrCelebrityNotFound  = &Error{Code: CodeCelebrityNotFound, Message: "no celebrity registered for that account"}
	ErrCelebrityExists    = &Error{Code: CodeCelebrityExists, Message: "celebrity already registered for that account"}
)

// CodeOf extracts the domain code from err, or "" for non-domain errors.
func CodeOf(err error) Code {
	for err != nil {
		if de, ok := err.(*Error); ok {
			return de.Code
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return ""
		}
		err = u.Unwrap()
	}
	return ""
}
