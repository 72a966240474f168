package httpadapter

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/retouchlab/eraser/internal/core/domain"
)

// mapErrorToHTTPStatus resolves sentinel kinds first, then the pipeline
// fault taxonomy. Not-found must win over fault classification so a
// missing job never reads as a pipeline failure.
func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case domain.IsKind(err, domain.ErrJobNotFound):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrTemporary):
		return http.StatusServiceUnavailable
	}

	var fault *domain.Fault
	if !errors.As(err, &fault) {
		return http.StatusInternalServerError
	}
	switch fault.Kind {
	case domain.FaultValidation:
		return http.StatusBadRequest
	case domain.FaultAuthentication:
		return http.StatusUnauthorized
	case domain.FaultPermission:
		return http.StatusForbidden
	case domain.FaultQuota:
		return http.StatusTooManyRequests
	case domain.FaultNetwork:
		return http.StatusServiceUnavailable
	case domain.FaultModelNotFound:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders the JSON error body. Faults expose their sanitized
// message and, when retryable, a Retry-After hint from the backoff rule.
func writeError(w http.ResponseWriter, err error) {
	status := mapErrorToHTTPStatus(err)
	message := err.Error()

	var fault *domain.Fault
	if errors.As(err, &fault) {
		message = fault.Message
		if fault.Retryable() {
			seconds := int(domain.RetryDelay(fault, 0) / time.Second)
			if seconds < 1 {
				seconds = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(seconds))
		}
	}

	writeJSON(w, status, map[string]string{"error": message})
}
