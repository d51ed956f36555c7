package errors

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/render"
)

// ErrorResponse is the JSON body written for failed report-server requests.
type ErrorResponse struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Status  int    `json:"status"`
}

// Render implements the render.Renderer interface for chi/render.
func (e *ErrorResponse) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, e.Status)
	return nil
}

// ErrorHandler converts pipeline errors into JSON responses for the report
// server, logging each one with its structured context.
type ErrorHandler struct {
	logger *slog.Logger
}

// NewErrorHandler creates a new error handler.
func NewErrorHandler(logger *slog.Logger) *ErrorHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ErrorHandler{logger: logger.With(slog.String("component", "error_handler"))}
}

// HandleError writes err as an ErrorResponse and logs it.
func (h *ErrorHandler) HandleError(w http.ResponseWriter, r *http.Request, err error) {
	if err == nil {
		return
	}

	resp := &ErrorResponse{
		Type:    "INTERNAL",
		Message: err.Error(),
		Status:  http.StatusInternalServerError,
	}

	var pe *PipelineError
	if errors.As(err, &pe) {
		resp.Type = string(pe.Type)
		resp.Status = statusFor(pe.Type)
	}

	attrs := []any{
		slog.String("type", resp.Type),
		slog.Int("status", resp.Status),
		slog.String("path", r.URL.Path),
	}
	if pe != nil {
		for k, v := range pe.Context {
			attrs = append(attrs, slog.Any(k, v))
		}
	}
	h.logger.ErrorContext(r.Context(), err.Error(), attrs...)

	if renderErr := render.Render(w, r, resp); renderErr != nil {
		http.Error(w, err.Error(), resp.Status)
	}
}

// statusFor maps pipeline error types onto HTTP statuses. Fatal core defects
// stay 500; bad inputs surface as 422.
func statusFor(t ErrorType) int {
	switch t {
	case ErrTypeDataIntegrity, ErrTypeParsing, ErrTypeConfig:
		return http.StatusUnprocessableEntity
	case ErrTypeFitFailure:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
