package api

import (
	"allocation-service/internal/entity"
	"context"
	"github.com/labstack/echo/v4"
	"strconv"
)

type RuleService interface {
	CreateRule(ctx context.Context, rule *entity.AllocationRule) (*entity.AllocationRule, error)
	UpdateRule(ctx context.Context, rule *entity.AllocationRule) (*entity.AllocationRule, error)
	DeleteRule(ctx context.Context, id int) error
	GetRule(ctx context.Context, id int) (*entity.AllocationRule, error)
	ListRules(ctx context.Context, companyID int) ([]*entity.AllocationRule, error)
}

type SettingsService interface {
	GetSettings(ctx context.Context) (entity.Settings, error)
	UpdateSettings(ctx context.Context, settings entity.Settings) (entity.Settings, error)
}

type RuleHandler struct {
	ruleService     RuleService
	settingsService SettingsService
}

func NewRuleHandler(ruleService RuleService, settingsService SettingsService) *RuleHandler {
	return &RuleHandler{ruleService: ruleService, settingsService: settingsService}
}

// ListRules --> GET /rules?company_id=
func (h *RuleHandler) ListRules(c echo.Context) error {
	companyID := 0
	if v := c.QueryParam("company_id"); v != "" {
		id, err := strconv.Atoi(v)
		if err != nil {
			return c.JSON(400, map[string]string{"error": "Invalid company_id"})
		}
		companyID = id
	}

	rules, err := h.ruleService.ListRules(c.Request().Context(), companyID)
	if err != nil {
		return errorResponse(c, err)
	}
	if rules == nil {
		rules = []*entity.AllocationRule{}
	}
	return c.JSON(200, rules)
}

// GetRule --> GET /rules/:id
func (h *RuleHandler) GetRule(c echo.Context) error {
	id, ok := paramID(c)
	if !ok {
		return c.JSON(400, map[string]string{"error": "Invalid ID"})
	}

	rule, err := h.ruleService.GetRule(c.Request().Context(), id)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(200, rule)
}

// CreateRule --> POST /rules
func (h *RuleHandler) CreateRule(c echo.Context) error {
	rule := entity.AllocationRule{}
	if err := c.Bind(&rule); err != nil {
		return c.JSON(400, map[string]string{"error": "Invalid request payload"})
	}
	rule.ID = 0

	created, err := h.ruleService.CreateRule(c.Request().Context(), &rule)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(201, created)
}

// UpdateRule --> PUT /rules/:id
func (h *RuleHandler) UpdateRule(c echo.Context) error {
	id, ok := paramID(c)
	if !ok {
		return c.JSON(400, map[string]string{"error": "Invalid ID"})
	}

	rule := entity.AllocationRule{}
	if err := c.Bind(&rule); err != nil {
		return c.JSON(400, map[string]string{"error": "Invalid request payload"})
	}
	rule.ID = id

	updated, err := h.ruleService.UpdateRule(c.Request().Context(), &rule)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(200, updated)
}

// DeleteRule --> DELETE /rules/:id
func (h *RuleHandler) DeleteRule(c echo.Context) error {
	id, ok := paramID(c)
	if !ok {
		return c.JSON(400, map[string]string{"error": "Invalid ID"})
	}

	if err := h.ruleService.DeleteRule(c.Request().Context(), id); err != nil {
		return errorResponse(c, err)
	}
	return c.NoContent(204)
}

// GetSettings --> GET /settings
func (h *RuleHandler) GetSettings(c echo.Context) error {
	settings, err := h.settingsService.GetSettings(c.Request().Context())
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(200, settings)
}

// UpdateSettings --> PUT /settings
func (h *RuleHandler) UpdateSettings(c echo.Context) error {
	settings := entity.Settings{}
	if err := c.Bind(&settings); err != nil {
		return c.JSON(400, map[string]string{"error": "Invalid request payload"})
	}

	saved, err := h.settingsService.UpdateSettings(c.Request().Context(), settings)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(200, saved)
}
