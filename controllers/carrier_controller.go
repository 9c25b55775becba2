package controllers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/vm-ec/vm-appetite-check/models"
	"github.com/vm-ec/vm-appetite-check/repository"
)

// CarrierController handles the carrier directory endpoints. The
// directory is small reference data, so it talks to the repository
// directly.
type CarrierController struct {
	repo      repository.CarrierRepository
	validator *RequestValidator
	timeout   time.Duration
}

func NewCarrierController(repo repository.CarrierRepository, validator *RequestValidator) *CarrierController {
	return &CarrierController{
		repo:      repo,
		validator: validator,
		timeout:   DefaultContextTimeout,
	}
}

// ListCarriers returns carriers ordered by name.
func (cc *CarrierController) ListCarriers(c *gin.Context) {
	page, pageSize, err := cc.validator.ParsePagination(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), cc.timeout)
	defer cancel()

	carriers, total, err := cc.repo.FindAll(ctx, page, pageSize)
	if err != nil {
		zap.L().Error("Failed to list carriers", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list carriers"})
		return
	}
	if carriers == nil {
		carriers = []models.Carrier{}
	}

	c.JSON(http.StatusOK, gin.H{
		"data":     carriers,
		"page":     page,
		"pageSize": pageSize,
		"total":    total,
	})
}

// GetCarrier returns one carrier by ID.
func (cc *CarrierController) GetCarrier(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Carrier ID required"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), cc.timeout)
	defer cancel()

	carrier, err := cc.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "carrier not found"})
			return
		}
		zap.L().Error("Failed to fetch carrier", zap.String("carrier_id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch carrier"})
		return
	}

	c.JSON(http.StatusOK, carrier)
}

// CreateCarrier adds a carrier to the directory.
func (cc *CarrierController) CreateCarrier(c *gin.Context) {
	req, err := cc.validator.ValidateCarrierRequest(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), cc.timeout)
	defer cancel()

	carrier := &models.Carrier{
		ID:        models.NewCarrierID(),
		Name:      strings.TrimSpace(req.Name),
		Email:     strings.TrimSpace(req.Email),
		Roles:     req.Roles,
		IsActive:  req.IsActive,
		CreatedAt: time.Now().UTC(),
	}
	if carrier.Roles == nil {
		carrier.Roles = models.StringList{}
	}

	if err := cc.repo.Create(ctx, carrier); err != nil {
		zap.L().Error("Failed to create carrier", zap.String("name", carrier.Name), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create carrier"})
		return
	}

	c.JSON(http.StatusCreated, carrier)
}
