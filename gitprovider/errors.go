package gitprovider

import (
	"errors"
	"fmt"
)

// Code is a normalized error kind shared by every provider adapter.
type Code string

const (
	CodeRepoNotFound             Code = "REPO_NOT_FOUND"
	CodeRepoAlreadyExist         Code = "REPO_ALREADY_EXIST"
	CodeBranchNotFound           Code = "BRANCH_NOT_FOUND"
	CodeBranchAlreadyExist       Code = "BRANCH_ALREADY_EXIST"
	CodeBranchPermissionViolated Code = "BRANCH_PERMISSION_VIOLATED"
	CodeContentNotFound          Code = "CONTENT_NOT_FOUND"
	CodeConfigNotFound           Code = "CONFIG_NOT_FOUND"
	CodeCredentialInvalid        Code = "CREDENTIAL_INVALID"
	CodeUnclassified             Code = "UNCLASSIFIED"
)

// Sentinels for errors.Is. Any *Error with the same Code matches.
var (
	ErrRepoNotFound             = &Error{Code: CodeRepoNotFound}
	ErrRepoAlreadyExist         = &Error{Code: CodeRepoAlreadyExist}
	ErrBranchNotFound           = &Error{Code: CodeBranchNotFound}
	ErrBranchAlreadyExist       = &Error{Code: CodeBranchAlreadyExist}
	ErrBranchPermissionViolated = &Error{Code: CodeBranchPermissionViolated}
	ErrContentNotFound          = &Error{Code: CodeContentNotFound}
	ErrConfigNotFound           = &Error{Code: CodeConfigNotFound}
	ErrCredentialInvalid        = &Error{Code: CodeCredentialInvalid}
)

// Error is the error type returned across the provider boundary.
// Op names the contract operation that failed ("getBranch", ...).
// Err is the backend error, if any.
type Error struct {
	Code Code
	Op   string
	Err  error
}

func (e *Error) Error() string {
	msg := string(e.Code)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error carrying the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Errorf builds a classified error for op wrapping a formatted cause.
func Errorf(code Code, op, format string, args ...any) error {
	return &Error{Code: code, Op: op, Err: fmt.Errorf(format, args...)}
}

// Wrap classifies err under code. A nil err stays nil.
func Wrap(code Code, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Op: op, Err: err}
}

// Unclassified tags a backend error that matched no known case. Errors that
// already carry a code are returned as is.
func Unclassified(op string, err error) error {
	if err == nil {
		return nil
	}
	var pe *Error
	if errors.As(err, &pe) {
		return err
	}
	return &Error{Code: CodeUnclassified, Op: op, Err: err}
}

// CodeOf returns the normalized code of err, or CodeUnclassified.
func CodeOf(err error) Code {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Code
	}
	return CodeUnclassified
}

// IsRecoverable reports whether the caller should offer a remediation flow
// (create config, pick another branch) instead of aborting the session.
func IsRecoverable(err error) bool {
	switch CodeOf(err) {
	case CodeConfigNotFound, CodeBranchNotFound:
		return true
	}
	return false
}
