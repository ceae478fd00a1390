package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/upb/coffee-shop/services"
	"github.com/upb/coffee-shop/utils"
)

// HandleServiceError maps domain errors to the error envelope. Messages use
// the default wording for the status; domain details ride along in "details".
func HandleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if err == nil {
		return
	}

	details := services.GetErrorDetails(err)
	if len(details) == 0 {
		details = nil
	}

	var status int
	switch {
	case services.IsNotFoundError(err):
		status = http.StatusNotFound
	case services.IsValidationError(err):
		status = http.StatusUnprocessableEntity
	case services.IsConflictError(err):
		status = http.StatusConflict
	case services.IsInternalError(err):
		logger.Error("internal server error", zap.Error(err))
		status = http.StatusInternalServerError
		details = nil
	default:
		logger.Error("unhandled error type",
			zap.Error(err),
			zap.String("error_type", string(services.GetErrorType(err))))
		status = http.StatusInternalServerError
		details = nil
	}

	if err := utils.WriteError(w, status, "", details); err != nil {
		logger.Error("failed to write error response", zap.Int("status", status), zap.Error(err))
	}
}

// HandleValidationError handles validation errors from request parsing
func HandleValidationError(w http.ResponseWriter, err error, logger *zap.Logger) {
	var details map[string]interface{}
	if utils.IsValidationError(err) {
		fields := utils.GetValidationFields(err)
		details = make(map[string]interface{}, len(fields))
		for k, v := range fields {
			details[k] = v
		}
	}

	if err := utils.WriteBadRequest(w, "", details); err != nil {
		logger.Error("failed to write validation error response", zap.Error(err))
	}
}
