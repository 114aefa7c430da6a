package api

import (
	"github.com/labstack/echo/v4"

	"projectflow/backend/internal/services"
	"projectflow/backend/pkg/models"
)

func queryError(err error) error {
	return &services.Error{Code: services.CodeValidation, Message: "invalid query parameter", Cause: err}
}

func bindPage(b *echo.ValueBinder, p *models.Page) *echo.ValueBinder {
	return b.Int("limit", &p.Limit).Int("offset", &p.Offset)
}

// bindActive sets *dst when is_active (or isActive) is present.
func bindActive(c echo.Context, b *echo.ValueBinder, dst **bool) *echo.ValueBinder {
	for _, name := range []string{"is_active", "isActive"} {
		if c.QueryParam(name) == "" {
			continue
		}
		var v bool
		b = b.Bool(name, &v)
		*dst = &v
		break
	}
	return b
}

func workflowFilter(c echo.Context) (models.WorkflowFilter, error) {
	var f models.WorkflowFilter
	b := echo.QueryParamsBinder(c).String("type", &f.Type)
	b = bindActive(c, b, &f.IsActive)
	if err := bindPage(b, &f.Page).BindError(); err != nil {
		return f, queryError(err)
	}
	return f, nil
}

func instanceFilter(c echo.Context) (models.InstanceFilter, error) {
	var f models.InstanceFilter
	b := echo.QueryParamsBinder(c).
		String("project_id", &f.ProjectID).
		String("workflow_id", &f.WorkflowID).
		String("stage", &f.Stage)
	if err := bindPage(b, &f.Page).BindError(); err != nil {
		return f, queryError(err)
	}
	return f, nil
}

func ruleFilter(c echo.Context) (models.RuleFilter, error) {
	var f models.RuleFilter
	b := echo.QueryParamsBinder(c).String("rule_type", &f.RuleType)
	b = bindActive(c, b, &f.IsActive)
	if err := bindPage(b, &f.Page).BindError(); err != nil {
		return f, queryError(err)
	}
	return f, nil
}
