// Package api contains the HTTP handlers for the projectflow REST API.
package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"projectflow/backend/internal/auth"
	"projectflow/backend/internal/logging"
	"projectflow/backend/internal/services"
	"projectflow/backend/pkg/models"
)

// Version is reported by the health endpoint.
var Version = "dev"

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server holds the dependencies of the HTTP handlers.
type Server struct {
	Workflows  *services.WorkflowService
	Instances  *services.InstanceService
	Rules      *services.RuleService
	Statistics *services.StatisticsService
	Store      Pinger
	Logger     *logging.Logger
}

// RegisterHandlers mounts the API routes on g, normally the /api/v1 group.
func RegisterHandlers(g *echo.Group, s *Server) {
	g.GET("/workflows", s.ListWorkflows)
	g.POST("/workflows", s.CreateWorkflow)
	g.GET("/workflows/:id", s.GetWorkflow)
	g.PUT("/workflows/:id", s.UpdateWorkflow)
	g.DELETE("/workflows/:id", s.DeleteWorkflow)

	g.GET("/workflow-instances", s.ListInstances)
	g.POST("/workflow-instances", s.CreateInstance)
	g.GET("/workflow-instances/:id", s.GetInstance)
	g.POST("/workflow-instances/:id/transition", s.TransitionInstance)
	g.POST("/workflow-instances/:id/complete", s.CompleteInstance)

	g.GET("/rules", s.ListRules)
	g.POST("/rules", s.CreateRule)
	g.POST("/rules/evaluate", s.EvaluateRules)
	g.GET("/rules/:id", s.GetRule)
	g.PUT("/rules/:id", s.UpdateRule)
	g.DELETE("/rules/:id", s.DeleteRule)

	g.GET("/statistics", s.GetStatistics)
}

// HandleHealth reports service health. It returns 503 when the store is
// unreachable.
// (GET /health)
func (s *Server) HandleHealth(c echo.Context) error {
	status := models.HealthStatus{
		Status:    "ok",
		Service:   "projectflow",
		Version:   Version,
		Timestamp: time.Now().UTC(),
		Checks:    map[string]string{},
	}
	code := http.StatusOK

	if s.Store != nil {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()
		if err := s.Store.Ping(ctx); err != nil {
			status.Status = "degraded"
			status.Checks["store"] = err.Error()
			code = http.StatusServiceUnavailable
		} else {
			status.Checks["store"] = "ok"
		}
	}
	return c.JSON(code, status)
}

// bindBody decodes the JSON request body into v.
func bindBody(c echo.Context, v interface{}) error {
	if err := (&echo.DefaultBinder{}).BindBody(c, v); err != nil {
		return &services.Error{Code: services.CodeValidation, Message: "invalid request body", Cause: err}
	}
	return nil
}

// writeList writes a page as a JSON array with the paging metadata in
// headers.
func writeList[T any](c echo.Context, page *models.ListResponse[T]) error {
	h := c.Response().Header()
	h.Set("X-Total-Count", strconv.Itoa(page.Total))
	h.Set("X-Limit", strconv.Itoa(page.Limit))
	h.Set("X-Offset", strconv.Itoa(page.Offset))
	return c.JSON(http.StatusOK, page.Items)
}

func currentUser(c echo.Context) string {
	return auth.UserID(c.Request().Context())
}
