package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"projectflow/backend/pkg/models"
)

// ListWorkflows returns workflows filtered by type and is_active.
// (GET /api/v1/workflows)
func (s *Server) ListWorkflows(c echo.Context) error {
	filter, err := workflowFilter(c)
	if err != nil {
		return err
	}
	page, err := s.Workflows.ListWorkflows(c.Request().Context(), filter)
	if err != nil {
		return err
	}
	return writeList(c, page)
}

// CreateWorkflow creates a workflow template.
// (POST /api/v1/workflows)
func (s *Server) CreateWorkflow(c echo.Context) error {
	var spec models.WorkflowSpec
	if err := bindBody(c, &spec); err != nil {
		return err
	}
	wf, err := s.Workflows.CreateWorkflow(c.Request().Context(), &spec)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, wf)
}

// GetWorkflow returns one workflow.
// (GET /api/v1/workflows/:id)
func (s *Server) GetWorkflow(c echo.Context) error {
	wf, err := s.Workflows.GetWorkflow(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, wf)
}

// UpdateWorkflow applies a partial update to a workflow.
// (PUT /api/v1/workflows/:id)
func (s *Server) UpdateWorkflow(c echo.Context) error {
	var update models.WorkflowUpdate
	if err := bindBody(c, &update); err != nil {
		return err
	}
	wf, err := s.Workflows.UpdateWorkflow(c.Request().Context(), c.Param("id"), &update)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, wf)
}

// DeleteWorkflow removes a workflow that has no instances.
// (DELETE /api/v1/workflows/:id)
func (s *Server) DeleteWorkflow(c echo.Context) error {
	if err := s.Workflows.DeleteWorkflow(c.Request().Context(), c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
