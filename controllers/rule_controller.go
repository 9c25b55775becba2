package controllers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/vm-ec/vm-appetite-check/middleware"
	"github.com/vm-ec/vm-appetite-check/models"
	"github.com/vm-ec/vm-appetite-check/services"
)

// RuleController handles single-rule CRUD endpoints.
type RuleController struct {
	ruleService services.RuleService
	cache       *CacheManager
	validator   *RequestValidator
	timeout     time.Duration
}

func NewRuleController(rs services.RuleService, cache *CacheManager, validator *RequestValidator) *RuleController {
	return &RuleController{
		ruleService: rs,
		cache:       cache,
		validator:   validator,
		timeout:     DefaultContextTimeout,
	}
}

// ListRules returns a page of rules as {data, page, pageSize, total}.
func (rc *RuleController) ListRules(c *gin.Context) {
	page, pageSize, err := rc.validator.ParsePagination(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sortBy := strings.TrimSpace(c.Query("sortBy"))

	ctx, cancel := context.WithTimeout(c.Request.Context(), rc.timeout)
	defer cancel()

	if cached, ok := rc.cache.GetRuleList(ctx, page, pageSize, sortBy); ok {
		c.JSON(http.StatusOK, cached)
		return
	}

	rules, total, serr := rc.ruleService.ListRules(ctx, page, pageSize, sortBy)
	if serr != nil {
		c.JSON(serr.StatusCode, gin.H{"error": serr.Message})
		return
	}

	response := map[string]interface{}{
		"data":     rules,
		"page":     page,
		"pageSize": pageSize,
		"total":    total,
	}
	rc.cache.SetRuleListAsync(page, pageSize, sortBy, response)

	c.JSON(http.StatusOK, response)
}

// GetRule returns one rule by ID.
func (rc *RuleController) GetRule(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Rule ID required"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), rc.timeout)
	defer cancel()

	if cached, ok := rc.cache.GetRule(ctx, id); ok {
		c.JSON(http.StatusOK, cached)
		return
	}

	rule, serr := rc.ruleService.GetRule(ctx, id)
	if serr != nil {
		c.JSON(serr.StatusCode, gin.H{"error": serr.Message})
		return
	}

	rc.cache.SetRuleAsync(id, rule)
	c.JSON(http.StatusOK, rule)
}

// CreateRule creates a single rule from a JSON payload.
func (rc *RuleController) CreateRule(c *gin.Context) {
	var rule models.Rule
	if err := c.ShouldBindJSON(&rule); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), rc.timeout)
	defer cancel()

	created, serr := rc.ruleService.CreateRule(ctx, &rule, middleware.GetActor(c))
	if serr != nil {
		c.JSON(serr.StatusCode, gin.H{"error": serr.Message})
		return
	}

	if err := rc.cache.Invalidate(ctx); err != nil {
		zap.L().Error("Failed to invalidate cache after rule create", zap.Error(err))
	}

	c.JSON(http.StatusCreated, created)
}

// UpdateRule replaces a rule's content by ID.
func (rc *RuleController) UpdateRule(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Rule ID required"})
		return
	}

	var rule models.Rule
	if err := c.ShouldBindJSON(&rule); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), rc.timeout)
	defer cancel()

	updated, serr := rc.ruleService.UpdateRule(ctx, id, &rule)
	if serr != nil {
		c.JSON(serr.StatusCode, gin.H{"error": serr.Message})
		return
	}

	rc.cache.InvalidateRule(ctx, id)
	c.JSON(http.StatusOK, updated)
}

// DeleteRule deletes a rule by ID.
func (rc *RuleController) DeleteRule(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Rule ID required"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), rc.timeout)
	defer cancel()

	if serr := rc.ruleService.DeleteRule(ctx, id); serr != nil {
		c.JSON(serr.StatusCode, gin.H{"error": serr.Message})
		return
	}

	rc.cache.InvalidateRule(ctx, id)
	c.JSON(http.StatusOK, gin.H{"message": "rule deleted"})
}
