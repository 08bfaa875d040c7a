package model

import "fmt"

// Category groups expected, user-facing failures.
type Category int

const (
	CategoryValidation Category = iota + 1
	CategoryUnavailable
	CategorySession
	CategoryAccess
	CategoryCode
)

// Error is an expected failure with a stable reason code. Two errors match
// under errors.Is when their reasons are equal, so a sentinel can be
// compared against an instance that carries extra detail.
type Error struct {
	Category Category
	Reason   string
	Detail   string
	Data     map[string]any
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return e.Reason + ": " + e.Detail
	}
	return e.Reason
}

// Is reports whether target is an *Error with the same reason.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Reason == e.Reason
}

// With returns a copy of e carrying detail text and template data.
func (e *Error) With(data map[string]any, format string, args ...any) *Error {
	cp := *e
	cp.Detail = fmt.Sprintf(format, args...)
	cp.Data = data
	return &cp
}

var (
	ErrUnknownFormat      = &Error{Category: CategoryValidation, Reason: "unknown_exam_format"}
	ErrNoSubjects         = &Error{Category: CategoryValidation, Reason: "no_subjects"}
	ErrSubjectCount       = &Error{Category: CategoryValidation, Reason: "invalid_subject_count"}
	ErrMandatorySubject   = &Error{Category: CategoryValidation, Reason: "missing_mandatory_subject"}
	ErrDuplicateSubject   = &Error{Category: CategoryValidation, Reason: "duplicate_subject"}
	ErrInvalidSubmission  = &Error{Category: CategoryValidation, Reason: "invalid_submission"}
	ErrInvalidCredentials = &Error{Category: CategoryValidation, Reason: "invalid_credentials"}
	ErrMissingFields      = &Error{Category: CategoryValidation, Reason: "missing_fields"}
	ErrEmailTaken         = &Error{Category: CategoryValidation, Reason: "email_taken"}

	ErrNoQuestions = &Error{Category: CategoryUnavailable, Reason: "no_questions"}

	ErrSessionNotFound        = &Error{Category: CategorySession, Reason: "session_not_found"}
	ErrSessionExpired         = &Error{Category: CategorySession, Reason: "session_expired"}
	ErrSessionAlreadyConsumed = &Error{Category: CategorySession, Reason: "session_already_consumed"}
	ErrResultNotFound         = &Error{Category: CategorySession, Reason: "result_not_found"}

	ErrTrialExpired    = &Error{Category: CategoryAccess, Reason: "trial_expired"}
	ErrAccountNotFound = &Error{Category: CategoryAccess, Reason: "account_not_found"}

	ErrCodeInvalidFormat = &Error{Category: CategoryCode, Reason: "code_invalid_format"}
	ErrCodeNotFound      = &Error{Category: CategoryCode, Reason: "code_not_found"}
	ErrCodeAlreadyUsed   = &Error{Category: CategoryCode, Reason: "code_already_used"}
	ErrCodeExpired       = &Error{Category: CategoryCode, Reason: "code_expired"}
	ErrAlreadyActivated  = &Error{Category: CategoryCode, Reason: "already_activated"}
)
