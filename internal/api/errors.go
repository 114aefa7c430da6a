package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel/trace"

	"projectflow/backend/internal/logging"
	"projectflow/backend/internal/services"
	"projectflow/backend/pkg/models"
)

const problemTypePrefix = "https://projectflow.dev/problems/"

var codeStatus = map[string]int{
	services.CodeNotFound:     http.StatusNotFound,
	services.CodeInvalidStage: http.StatusUnprocessableEntity,
	services.CodeConflict:     http.StatusConflict,
	services.CodeStaleState:   http.StatusConflict,
	services.CodeValidation:   http.StatusBadRequest,
}

// ErrorHandler renders every handler error as an RFC 7807 problem. Service
// errors keep their code in the problem type; anything unrecognised is a
// 500 whose cause is logged but not exposed.
func ErrorHandler(logger *logging.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		ctx := c.Request().Context()
		problem := toProblem(err)
		problem.Instance = c.Request().URL.Path
		if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
			problem.TraceID = sc.TraceID().String()
		}

		if problem.Status >= http.StatusInternalServerError {
			logger.ErrorContext(ctx, "request failed",
				"method", c.Request().Method,
				"path", c.Path(),
				"error", err,
			)
		}

		c.Response().Header().Set(echo.HeaderContentType, "application/problem+json")
		if c.Request().Method == http.MethodHead {
			err = c.NoContent(problem.Status)
		} else {
			err = c.JSON(problem.Status, problem)
		}
		if err != nil {
			logger.ErrorContext(ctx, "failed to write error response", "error", err)
		}
	}
}

func toProblem(err error) models.ProblemDetails {
	var serr *services.Error
	if errors.As(err, &serr) {
		status, ok := codeStatus[serr.Code]
		if !ok {
			status = http.StatusInternalServerError
		}
		return models.ProblemDetails{
			Type:    problemTypePrefix + strings.ToLower(strings.ReplaceAll(serr.Code, "_", "-")),
			Title:   http.StatusText(status),
			Status:  status,
			Detail:  serr.Message,
			Details: serr.Details,
		}
	}

	var herr *echo.HTTPError
	if errors.As(err, &herr) {
		detail := http.StatusText(herr.Code)
		if msg, ok := herr.Message.(string); ok {
			detail = msg
		}
		return models.ProblemDetails{
			Type:   "about:blank",
			Title:  http.StatusText(herr.Code),
			Status: herr.Code,
			Detail: detail,
		}
	}

	return models.ProblemDetails{
		Type:   "about:blank",
		Title:  http.StatusText(http.StatusInternalServerError),
		Status: http.StatusInternalServerError,
		Detail: "internal server error",
	}
}

// RequestContext copies the request id assigned by the RequestID
// middleware onto the request context for correlated logging.
func RequestContext() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id := c.Response().Header().Get(echo.HeaderXRequestID)
			if id == "" {
				id = c.Request().Header.Get(echo.HeaderXRequestID)
			}
			if id != "" {
				req := c.Request()
				c.SetRequest(req.WithContext(logging.WithRequestID(req.Context(), id)))
			}
			return next(c)
		}
	}
}
