package auth

import "licensing-controlplane/pkg/errutil"

// Wire codes are part of the public contract: clients branch on them, so
// they never change even when the message wording does.
const (
	CodeTokenFormatInvalid = "TOKEN_FORMAT_INVALID"
	CodeTokenInvalid       = "TOKEN_INVALID"
	CodeTokenExpired       = "TOKEN_EXPIRED"
	CodeLicenseInvalid     = "LICENSE_INVALID"
	CodeLicenseSuspended   = "LICENSE_SUSPENDED"
	CodeLicenseExpired     = "LICENSE_EXPIRED"
)

// Error is an authentication failure with a stable wire code.
type Error struct {
	Code    string
	Message string
	status  errutil.CoreStatus
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) ErrorCode() string {
	return e.Code
}

func (e *Error) Status() errutil.CoreStatus {
	return e.status
}

var (
	ErrTokenFormatInvalid = &Error{
		Code:    CodeTokenFormatInvalid,
		Message: "authorization header is malformed",
		status:  errutil.StatusUnauthorized,
	}
	ErrTokenInvalid = &Error{
		Code:    CodeTokenInvalid,
		Message: "token is invalid",
		status:  errutil.StatusUnauthorized,
	}
	ErrTokenExpired = &Error{
		Code:    CodeTokenExpired,
		Message: "token is expired",
		status:  errutil.StatusUnauthorized,
	}
	ErrLicenseInvalid = &Error{
		Code:    CodeLicenseInvalid,
		Message: "license key is invalid",
		status:  errutil.StatusUnauthorized,
	}
	ErrLicenseSuspended = &Error{
		Code:    CodeLicenseSuspended,
		Message: "license is suspended",
		status:  errutil.StatusForbidden,
	}
	// Suspension is the only forbidden class: the credential is real and
	// current but the license was administratively pulled. Expiry stays in
	// the unauthorized class like every other dead credential.
	ErrLicenseExpired = &Error{
		Code:    CodeLicenseExpired,
		Message: "license is expired",
		status:  errutil.StatusUnauthorized,
	}
)
