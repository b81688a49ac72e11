package httpadapter

import (
	"net/http"

	"github.com/kirillkom/workspace-search/internal/core/domain"
)

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case domain.IsKind(err, domain.ErrTemporary):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// publicErrorMessage hides internal error text for 5xx responses.
func publicErrorMessage(status int, err error) string {
	switch status {
	case http.StatusServiceUnavailable:
		return "search temporarily unavailable"
	case http.StatusInternalServerError:
		return "internal error"
	default:
		return err.Error()
	}
}
