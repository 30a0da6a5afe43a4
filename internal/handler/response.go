package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"go-auth-service/internal/logger"
	"go-auth-service/internal/model"
	"go-auth-service/pkg/apierror"
	"go-auth-service/pkg/errutil"
)

func writeSuccess(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(model.APIResponse{
		Success: true,
		Data:    data,
	})
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeSuccess(w, status, model.MessageResponse{Message: message})
}

// writeError renders err in the response envelope. Only APIErrors reach the client
// verbatim; anything else becomes INTERNAL_ERROR and is logged with its oops context.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	body := &model.APIError{
		Code:    apierror.CodeInternal,
		Message: "Unexpected server error",
	}

	var apiErr *apierror.APIError
	if errors.As(err, &apiErr) {
		status = apiErr.HTTPStatus
		body.Code = apiErr.Code
		body.Message = apiErr.Message
		body.Details = apiErr.Details
		body.Fields = apiErr.Fields
	}

	if status >= http.StatusInternalServerError {
		errutil.LogError(slog.Default(), "request failed", err, "method", r.Method, "path", logger.RequestPath(r))
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(model.APIResponse{
		Success: false,
		Error:   body,
	})
}
