package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"projectflow/backend/pkg/models"
)

// ListInstances returns instances filtered by project, workflow and stage.
// (GET /api/v1/workflow-instances)
func (s *Server) ListInstances(c echo.Context) error {
	filter, err := instanceFilter(c)
	if err != nil {
		return err
	}
	page, err := s.Instances.ListInstances(c.Request().Context(), filter)
	if err != nil {
		return err
	}
	return writeList(c, page)
}

// CreateInstance starts a workflow instance for a project.
// (POST /api/v1/workflow-instances)
func (s *Server) CreateInstance(c echo.Context) error {
	var req models.CreateInstanceRequest
	if err := bindBody(c, &req); err != nil {
		return err
	}
	inst, err := s.Instances.CreateInstance(c.Request().Context(), &req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, inst)
}

// GetInstance returns one instance with its full history.
// (GET /api/v1/workflow-instances/:id)
func (s *Server) GetInstance(c echo.Context) error {
	inst, err := s.Instances.GetInstance(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, inst)
}

// TransitionInstance moves an instance to another stage on behalf of the
// authenticated user.
// (POST /api/v1/workflow-instances/:id/transition)
func (s *Server) TransitionInstance(c echo.Context) error {
	var req models.TransitionRequest
	if err := bindBody(c, &req); err != nil {
		return err
	}
	req.TriggeredBy = currentUser(c)

	inst, err := s.Instances.Transition(c.Request().Context(), c.Param("id"), &req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, inst)
}

// CompleteInstance marks an instance completed.
// (POST /api/v1/workflow-instances/:id/complete)
func (s *Server) CompleteInstance(c echo.Context) error {
	inst, err := s.Instances.CompleteInstance(c.Request().Context(), c.Param("id"), currentUser(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, inst)
}
