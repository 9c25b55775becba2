package controllers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vm-ec/vm-appetite-check/middleware"
	"github.com/vm-ec/vm-appetite-check/models"
	"github.com/vm-ec/vm-appetite-check/services"
)

// UploadHandler handles bulk rule upload operations: the synchronous
// ingest endpoint, the async job queue, and error report downloads.
type UploadHandler struct {
	uploadService services.UploadService
	redis         *redis.Client
	validator     *RequestValidator
	storageDir    string
	timeout       time.Duration
}

func NewUploadHandler(us services.UploadService, redis *redis.Client, validator *RequestValidator, storageDir string) *UploadHandler {
	if storageDir == "" {
		storageDir = "./data/rule_uploads"
	}
	return &UploadHandler{
		uploadService: us,
		redis:         redis,
		validator:     validator,
		storageDir:    storageDir,
		timeout:       DefaultContextTimeout,
	}
}

// UploadRules ingests a rules spreadsheet. The multipart part is named
// "rulesFile"; "overwrite" controls whether existing rule IDs are
// replaced. With ?async=true the file is queued and a job ID returned.
func (h *UploadHandler) UploadRules(c *gin.Context) {
	file, serr := h.getAndValidateFile(c)
	if serr != nil {
		c.JSON(serr.StatusCode, gin.H{"error": serr.Message})
		return
	}

	overwrite, err := h.validator.ParseOverwrite(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	fileHandle, err := file.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to open file"})
		return
	}
	defer fileHandle.Close()

	async := strings.ToLower(strings.TrimSpace(c.Query("async"))) == "true"
	if async {
		h.handleAsyncUpload(c, file, fileHandle, overwrite)
		return
	}

	h.handleSyncUpload(c, file, fileHandle, overwrite)
}

// GetUploadJobStatus returns the async job state stored in Redis.
func (h *UploadHandler) GetUploadJobStatus(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Job ID required"})
		return
	}
	if h.redis == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Async uploads are not enabled"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	val, err := h.redis.Get(ctx, services.UploadJobKey(id)).Result()
	if err == redis.Nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
		return
	}
	if err != nil {
		zap.L().Error("Failed to get upload job status", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve job status"})
		return
	}

	var job models.UploadJob
	if err := json.Unmarshal([]byte(val), &job); err != nil {
		zap.L().Error("Failed to parse upload job status", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to parse job result"})
		return
	}

	c.JSON(http.StatusOK, job)
}

// GetUploadReport serves the error report CSV for an upload.
func (h *UploadHandler) GetUploadReport(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	path, serr := h.uploadService.ReportPath(id)
	if serr != nil {
		c.JSON(serr.StatusCode, gin.H{"error": serr.Message})
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "upload-errors-"+id+".csv"))
	c.File(path)
}

// Private helper methods

func (h *UploadHandler) getAndValidateFile(c *gin.Context) (*multipart.FileHeader, *services.ServiceError) {
	file, err := c.FormFile("rulesFile")
	if err != nil {
		return nil, &services.ServiceError{StatusCode: http.StatusBadRequest, Message: "rulesFile is required"}
	}

	if !h.validator.IsValidRulesFile(file) {
		return nil, &services.ServiceError{StatusCode: http.StatusBadRequest, Message: "unsupported file type. Only CSV and XLSX files are allowed"}
	}

	// Same status the parser's size bound maps to.
	if err := h.validator.ValidateFileSize(file); err != nil {
		return nil, &services.ServiceError{StatusCode: http.StatusRequestEntityTooLarge, Message: err.Error()}
	}

	return file, nil
}

func (h *UploadHandler) handleSyncUpload(c *gin.Context, file *multipart.FileHeader, fileHandle multipart.File, overwrite bool) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	report, serr := h.uploadService.ProcessUpload(ctx, fileHandle, file.Filename, file.Size, overwrite, middleware.GetActor(c))
	if serr != nil {
		c.JSON(serr.StatusCode, gin.H{"error": serr.Message})
		return
	}

	c.JSON(http.StatusOK, report)
}

func (h *UploadHandler) handleAsyncUpload(c *gin.Context, file *multipart.FileHeader, fileHandle multipart.File, overwrite bool) {
	if h.redis == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Async uploads are not enabled"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	jobID, err := h.enqueueJob(ctx, file, fileHandle, overwrite, middleware.GetActor(c))
	if err != nil {
		zap.L().Error("Failed to enqueue async upload", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to queue upload job"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"job_id":  jobID,
		"message": "Upload queued for processing",
	})
}

func (h *UploadHandler) enqueueJob(ctx context.Context, file *multipart.FileHeader, fileHandle multipart.File, overwrite bool, actor string) (string, error) {
	data, err := io.ReadAll(fileHandle)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}

	if err := os.MkdirAll(h.storageDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create storage directory: %w", err)
	}

	// The saved file keeps the upload's extension so the parser can
	// dispatch on it later.
	jobID := uuid.New().String()
	filePath := filepath.Join(h.storageDir, jobID+strings.ToLower(filepath.Ext(file.Filename)))

	if err := os.WriteFile(filePath, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to persist file: %w", err)
	}

	job := models.UploadJob{
		Status:    models.JobStatusPending,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
		FilePath:  filePath,
		Filename:  file.Filename,
		Overwrite: overwrite,
		Actor:     actor,
	}
	jobData, err := json.Marshal(job)
	if err != nil {
		os.Remove(filePath)
		return "", fmt.Errorf("failed to marshal job info: %w", err)
	}

	jobKey := services.UploadJobKey(jobID)
	if err := h.redis.Set(ctx, jobKey, jobData, services.UploadJobTTL).Err(); err != nil {
		os.Remove(filePath)
		return "", fmt.Errorf("failed to store job metadata: %w", err)
	}

	if err := h.redis.RPush(ctx, services.UploadQueueKey, jobID).Err(); err != nil {
		os.Remove(filePath)
		h.redis.Del(ctx, jobKey)
		return "", fmt.Errorf("failed to enqueue job: %w", err)
	}

	zap.L().Info("Rule upload job queued", zap.String("job_id", jobID), zap.String("filename", file.Filename))
	return jobID, nil
}
