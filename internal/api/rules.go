package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"projectflow/backend/pkg/models"
)

// ListRules returns rules filtered by rule_type and is_active.
// (GET /api/v1/rules)
func (s *Server) ListRules(c echo.Context) error {
	filter, err := ruleFilter(c)
	if err != nil {
		return err
	}
	page, err := s.Rules.ListRules(c.Request().Context(), filter)
	if err != nil {
		return err
	}
	return writeList(c, page)
}

// CreateRule creates a business rule.
// (POST /api/v1/rules)
func (s *Server) CreateRule(c echo.Context) error {
	var spec models.RuleSpec
	if err := bindBody(c, &spec); err != nil {
		return err
	}
	rule, err := s.Rules.CreateRule(c.Request().Context(), &spec)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, rule)
}

// GetRule returns one rule.
// (GET /api/v1/rules/:id)
func (s *Server) GetRule(c echo.Context) error {
	rule, err := s.Rules.GetRule(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rule)
}

// UpdateRule replaces a rule.
// (PUT /api/v1/rules/:id)
func (s *Server) UpdateRule(c echo.Context) error {
	var spec models.RuleSpec
	if err := bindBody(c, &spec); err != nil {
		return err
	}
	rule, err := s.Rules.UpdateRule(c.Request().Context(), c.Param("id"), &spec)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rule)
}

// DeleteRule removes a rule.
// (DELETE /api/v1/rules/:id)
func (s *Server) DeleteRule(c echo.Context) error {
	if err := s.Rules.DeleteRule(c.Request().Context(), c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// EvaluateRules evaluates the request body, a JSON object, against every
// active rule. rule_type narrows the rules considered.
// (POST /api/v1/rules/evaluate)
func (s *Server) EvaluateRules(c echo.Context) error {
	evalCtx := map[string]interface{}{}
	if err := bindBody(c, &evalCtx); err != nil {
		return err
	}
	result, err := s.Rules.Evaluate(c.Request().Context(), evalCtx, c.QueryParam("rule_type"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

// GetStatistics returns aggregate workflow, instance and rule counts.
// (GET /api/v1/statistics)
func (s *Server) GetStatistics(c echo.Context) error {
	stats, err := s.Statistics.Statistics(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, stats)
}
