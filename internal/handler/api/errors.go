package api

import (
	"context"
	"errors"
	"net/http"

	"FinCast/internal/domain/models"
	xhttp "FinCast/pkg/http"
)

// toAppError maps pipeline and provider errors onto HTTP errors.
func toAppError(err error) *xhttp.AppError {
	var (
		appErr   *xhttp.AppError
		invalid  *models.InvalidInputError
		unknown  *models.UnknownSymbolError
		short    *models.InsufficientDataError
		training *models.TrainingFailure
	)
	switch {
	case errors.As(err, &appErr):
		return appErr
	case errors.As(err, &invalid):
		return xhttp.NewAppError("ERR_INVALID_INPUT", invalid.Field, invalid.Error(), http.StatusBadRequest).WithError(err)
	case errors.As(err, &unknown):
		return xhttp.NewAppError("ERR_UNKNOWN_SYMBOL", "ticker", unknown.Error(), http.StatusNotFound).
			WithParam("ticker", unknown.Symbol).WithError(err)
	case errors.As(err, &short):
		return xhttp.NewAppError("ERR_INSUFFICIENT_DATA", "", short.Error(), http.StatusUnprocessableEntity).
			WithParams(map[string]interface{}{"need": short.Need, "have": short.Have}).WithError(err)
	case errors.As(err, &training):
		return xhttp.NewAppError("ERR_TRAINING", "", "forecast failed: "+training.Reason, http.StatusInternalServerError).
			WithParam("epoch", training.Epoch).WithError(err)
	case errors.Is(err, context.DeadlineExceeded):
		return xhttp.NewAppError("ERR_TIMEOUT", "", "analysis timed out", http.StatusGatewayTimeout).WithError(err)
	default:
		return xhttp.InternalError("Something went wrong").WithError(err)
	}
}
