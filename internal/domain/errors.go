package domain

import "errors"

// ErrNotFound is returned by store and sync functions when the requested
// resource does not exist. Handlers should map this to HTTP 404.
var ErrNotFound = errors.New("not found")

// ErrValidation is returned when input fails an entry-time business rule
// (e.g. missing trip name, end date before start date).
// Handlers should map this to HTTP 422 Unprocessable Entity.
var ErrValidation = errors.New("validation error")

// ErrUnauthenticated is returned when an operation that requires a signed-in
// user is invoked with no user bound. Nothing is written in that case.
var ErrUnauthenticated = errors.New("not signed in")

// ErrPermissionDenied is returned by the reminder scheduler when the user has
// no notification channel (no push subscription). It is a soft failure: prior
// scheduling state is preserved rather than cleared.
var ErrPermissionDenied = errors.New("notification permission denied")
