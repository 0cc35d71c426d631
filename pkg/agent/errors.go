package agent

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyResponse is returned when a provider answers with no text.
	ErrEmptyResponse = errors.New("empty response from reasoning service")
	// ErrNoProfiles is returned when no usable auth profile is configured.
	ErrNoProfiles = errors.New("no auth profiles configured")
)

// ServiceError is a failed reasoning call. StatusCode is zero when the
// failure happened before an HTTP status was received.
type ServiceError struct {
	Provider   string
	StatusCode int
	Message    string
	Err        error
}

func (e *ServiceError) Error() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: status %d: %s", e.Provider, e.StatusCode, e.Message)
	case e.Provider != "":
		return fmt.Sprintf("%s: %s", e.Provider, e.Message)
	default:
		return e.Message
	}
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// wrapServiceError normalizes a provider failure. Errors that already are a
// *ServiceError pass through unchanged.
func wrapServiceError(provider string, status int, err error) error {
	if err == nil {
		return nil
	}
	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		return err
	}
	return &ServiceError{
		Provider:   provider,
		StatusCode: status,
		Message:    err.Error(),
		Err:        err,
	}
}
