package session

import "errors"

const MinPasswordLength = 6

var (
	ErrEmptyFields          = errors.New("please fill in all fields")
	ErrPasswordMismatch     = errors.New("passwords do not match")
	ErrPasswordTooShort     = errors.New("password must be at least 6 characters long")
	ErrInvalidCredentials   = errors.New("invalid username or password")
	ErrNotLoggedIn          = errors.New("not logged in")
	ErrEmptyMessage         = errors.New("message is empty")
	ErrConversationNotFound = errors.New("conversation not found")
)

// CompletionError reports a failed call to the completion service. The
// user's message stays in the transcript.
type CompletionError struct {
	Err error
}

func (e *CompletionError) Error() string {
	return "error getting response: " + e.Err.Error()
}

func (e *CompletionError) Unwrap() error {
	return e.Err
}
