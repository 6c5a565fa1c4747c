package api

import (
	"errors"
	"net/http"

	"CoinCast/internal/domain/models"
	xhttp "CoinCast/pkg/http"
)

// mapError converts a use-case error into an AppError with the matching status.
// Server-side failures keep their cause out of the response body.
func mapError(err error) *xhttp.AppError {
	var appErr *xhttp.AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	switch {
	case errors.Is(err, models.ErrUnsupportedPeriod):
		return xhttp.NewAppError("ERR_UNSUPPORTED_PERIOD", "period", err.Error(), http.StatusBadRequest).
			WithParam("options", models.SupportedPeriods).WithError(err)
	case errors.Is(err, models.ErrInvalidDate):
		return xhttp.NewAppError("ERR_INVALID_DATE", "", err.Error(), http.StatusBadRequest).WithError(err)
	case errors.Is(err, models.ErrInvalidRange):
		return xhttp.NewAppError("ERR_INVALID_RANGE", "", err.Error(), http.StatusBadRequest).WithError(err)
	case errors.Is(err, models.ErrInsufficientData):
		return xhttp.NewAppError("ERR_INSUFFICIENT_DATA", "", err.Error(), http.StatusNotFound).WithError(err)
	case errors.Is(err, models.ErrUpstreamData):
		return xhttp.BadGatewayError("price data unavailable from upstream provider").WithError(err)
	case errors.Is(err, models.ErrUpstreamTimeout):
		return xhttp.GatewayTimeoutError("upstream provider or training timed out").WithError(err)
	case errors.Is(err, models.ErrModelFit):
		return xhttp.NewAppError("ERR_MODEL_FIT", "", "model could not be fitted", http.StatusInternalServerError).WithError(err)
	default:
		return xhttp.InternalError("something went wrong").WithError(err)
	}
}
