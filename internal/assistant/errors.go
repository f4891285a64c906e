package assistant

import "errors"

// ErrPersonaNotFound is returned by GetPersona when the backend no
// longer knows the persona id, which makes the cached binding stale.
var ErrPersonaNotFound = errors.New("assistant: persona not found")
