package tutum

import (
	"fmt"

	"dockup-scheduler/internal/apperrors"
)

// HTTPError represents a non-2xx API response.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

// Unwrap classifies the status so errors.Is matches apperrors sentinels
// (404 as ErrNotFound, 409 as ErrConflict).
func (e *HTTPError) Unwrap() error {
	return apperrors.FromStatus(e.StatusCode)
}
