package httpadapter

import (
	"net/http"

	"github.com/kirillkom/sentiment-retrainer/internal/core/domain"
)

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput),
		domain.IsKind(err, domain.ErrMissingLabelColumn),
		domain.IsKind(err, domain.ErrMissingTextColumn):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrModelNotFound),
		domain.IsKind(err, domain.ErrJobNotFound),
		domain.IsKind(err, domain.ErrDatasetNotFound):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrTemporary),
		domain.IsKind(err, domain.ErrBackendUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
