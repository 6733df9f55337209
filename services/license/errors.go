package license

import (
	"fmt"

	"licensing-controlplane/pkg/errutil"
)

// IssueFailure is the stable reason code attached to an issuance error.
type IssueFailure string

const (
	FailurePoolEmpty         IssueFailure = "KEY_POOL_EMPTY"
	FailureByteSizeExceeded  IssueFailure = "KEY_BYTE_SIZE_EXCEEDED"
	FailureClaimsInvalid     IssueFailure = "KEY_CLAIMS_INVALID"
	FailureSchemeUnsupported IssueFailure = "KEY_SCHEME_UNSUPPORTED"
	FailureKeyAbsent         IssueFailure = "KEY_ABSENT"
)

// IssueError aborts the surrounding license-creation transaction. Issuance
// errors are never retried automatically.
type IssueError struct {
	Failure IssueFailure
	Stage   string
	Message string
	Err     error
}

func (e *IssueError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("issuance failed at %s: %s: %v", e.Stage, e.Message, e.Err)
	}
	return fmt.Sprintf("issuance failed at %s: %s", e.Stage, e.Message)
}

func (e *IssueError) Unwrap() error {
	return e.Err
}

func (e *IssueError) Status() errutil.CoreStatus {
	return errutil.StatusUnprocessableEntity
}

func (e *IssueError) ErrorCode() string {
	return string(e.Failure)
}

func issueFailure(failure IssueFailure, stage, message string) *IssueError {
	return &IssueError{Failure: failure, Stage: stage, Message: message}
}
