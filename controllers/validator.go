package controllers

import (
	"errors"
	"fmt"
	"mime/multipart"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/vm-ec/vm-appetite-check/pkg/tabular"
)

// Validation constants
const (
	MaxPageSize     = 100
	MaxPageNumber   = 1000000
	DefaultPageSize = 25

	DefaultContextTimeout = 30 * time.Second
)

// Extensions the upload endpoint accepts. Content beyond the extension
// is checked by the parser itself.
var allowedRulesFileExtensions = map[string]bool{
	".csv":  true,
	".xlsx": true,
	".xls":  true,
}

// CarrierRequest is the payload for carrier creation.
type CarrierRequest struct {
	Name     string   `json:"name" validate:"required"`
	Email    string   `json:"email" validate:"omitempty,email"`
	Roles    []string `json:"roles"`
	IsActive bool     `json:"isActive"`
}

// RequestValidator handles all input validation
type RequestValidator struct {
	validate *validator.Validate
}

func NewRequestValidator() *RequestValidator {
	return &RequestValidator{
		validate: validator.New(),
	}
}

// ParsePagination validates and parses pagination parameters
func (rv *RequestValidator) ParsePagination(c *gin.Context) (int, int, error) {
	pageStr := c.DefaultQuery("page", "1")
	pageSizeStr := c.DefaultQuery("pageSize", strconv.Itoa(DefaultPageSize))

	page, err := strconv.Atoi(pageStr)
	if err != nil || page < 1 {
		return 0, 0, errors.New("invalid page number")
	}
	if page > MaxPageNumber {
		page = MaxPageNumber
	}

	pageSize, err := strconv.Atoi(pageSizeStr)
	if err != nil || pageSize < 1 {
		return 0, 0, errors.New("invalid page size")
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}

	return page, pageSize, nil
}

// ParseOverwrite parses the upload form's overwrite flag. Absent means
// false.
func (rv *RequestValidator) ParseOverwrite(c *gin.Context) (bool, error) {
	raw := strings.TrimSpace(c.PostForm("overwrite"))
	if raw == "" {
		return false, nil
	}
	overwrite, err := strconv.ParseBool(raw)
	if err != nil {
		return false, errors.New("invalid boolean value for 'overwrite'")
	}
	return overwrite, nil
}

// IsValidRulesFile checks the uploaded file's extension against the
// supported spreadsheet formats.
func (rv *RequestValidator) IsValidRulesFile(file *multipart.FileHeader) bool {
	ext := strings.ToLower(filepath.Ext(file.Filename))
	return allowedRulesFileExtensions[ext]
}

// ValidateFileSize checks if file size is within limits
func (rv *RequestValidator) ValidateFileSize(file *multipart.FileHeader) error {
	if file.Size > tabular.MaxFileSize {
		return fmt.Errorf("file too large (max %dMB)", tabular.MaxFileSize/(1024*1024))
	}
	return nil
}

// ValidateCarrierRequest binds and validates a carrier payload.
func (rv *RequestValidator) ValidateCarrierRequest(c *gin.Context) (*CarrierRequest, error) {
	var req CarrierRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return nil, fmt.Errorf("invalid request body: %w", err)
	}
	if err := rv.validate.Struct(&req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}
	return &req, nil
}
