package auth

import (
	"errors"
	"fmt"
)

var (
	// ErrAuthentication is returned when the token exchange fails or cannot
	// be attempted.
	ErrAuthentication = errors.New("authentication failed")

	// ErrNoCredentials is returned when no username/password is configured
	// and no interactive prompt is available. It wraps ErrAuthentication.
	ErrNoCredentials = fmt.Errorf("%w: no credentials: set API_USER and API_PASSWORD or run in a terminal", ErrAuthentication)
)
