package calendar

import "errors"

var (
	// ErrInvalidURI is returned for malformed or unsupported calendar URIs.
	ErrInvalidURI = errors.New("invalid calendar uri")
	// ErrAuthentication is returned when the calendar server rejects the credentials.
	ErrAuthentication = errors.New("authentication failed")
	// ErrConnection is returned when the calendar server cannot be reached or answers with a failure.
	ErrConnection = errors.New("calendar connection failed")
)
