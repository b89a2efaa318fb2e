package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/a-h/templ"

	"github.com/dmitrymomot/prokit/pkg/logger"
	"github.com/dmitrymomot/prokit/pkg/requestid"
	"github.com/dmitrymomot/prokit/pkg/validator"
)

type ErrorPageParams struct {
	Error      string
	StatusCode int
	RequestID  string
}

type ErrorToastParams struct {
	Message   string
	Type      string // "error" or "warning"
	RequestID string
}

type ErrorHandlerConfig struct {
	ErrorPage   func(ErrorPageParams) templ.Component
	ErrorToast  func(ErrorToastParams) templ.Component
	ToastTarget string
}

type errorInfo struct {
	StatusCode int
	Code       string
	Message    string
	Details    map[string]string
}

func classifyError(err error) errorInfo {
	info := errorInfo{
		StatusCode: http.StatusInternalServerError,
		Code:       ErrInternalServerError.Key,
		Message:    "An error occurred processing your request",
	}

	var httpErr HTTPError
	if errors.As(err, &httpErr) {
		info.StatusCode = httpErr.Code
		info.Code = httpErr.Key
		info.Message = http.StatusText(httpErr.Code)
	}
	if ve := validator.ExtractValidationErrors(err); len(ve) > 0 {
		info.StatusCode = http.StatusUnprocessableEntity
		info.Code = "validation_error"
		info.Message = "Validation failed"
		info.Details = ve.Map()
	}
	return info
}

// NewErrorHandler classifies err and answers with JSON for API requests, a
// toast patch for Datastar requests and an error page otherwise.
func NewErrorHandler(log *slog.Logger, cfg ErrorHandlerConfig) ErrorHandler[Context] {
	if log == nil {
		log = slog.Default()
	}
	if cfg.ToastTarget == "" {
		cfg.ToastTarget = "#toast-container"
	}

	return func(ctx Context, err error) {
		r := ctx.Request()
		w := ctx.ResponseWriter()
		info := classifyError(err)
		reqID := requestid.FromContext(r.Context())

		level := slog.LevelError
		if info.StatusCode < http.StatusInternalServerError {
			level = slog.LevelWarn
		}
		log.LogAttrs(r.Context(), level, "request error",
			logger.Error(err),
			slog.Int("status_code", info.StatusCode),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			logger.Component("error_handler"),
		)

		switch {
		case WantsJSON(r):
			_ = jsonResponse{status: info.StatusCode, body: ErrorBody{
				Error: info.Message, Code: info.Code, Details: info.Details,
			}}.Render(w, r)
		case IsDataStar(r) && cfg.ErrorToast != nil:
			kind := "error"
			if level == slog.LevelWarn {
				kind = "warning"
			}
			toast := cfg.ErrorToast(ErrorToastParams{Message: info.Message, Type: kind, RequestID: reqID})
			resp := Templ(toast, WithTarget(cfg.ToastTarget), WithPatchMode(PatchPrepend))
			if rerr := resp.Render(w, r); rerr != nil {
				log.ErrorContext(r.Context(), "failed to render error toast", logger.Error(rerr))
			}
		case cfg.ErrorPage != nil:
			page := cfg.ErrorPage(ErrorPageParams{Error: info.Message, StatusCode: info.StatusCode, RequestID: reqID})
			if rerr := TemplWithStatus(info.StatusCode, page).Render(w, r); rerr != nil {
				log.ErrorContext(r.Context(), "failed to render error page", logger.Error(rerr))
			}
		default:
			http.Error(w, info.Message, info.StatusCode)
		}
	}
}
