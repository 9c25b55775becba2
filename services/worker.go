package services

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/vm-ec/vm-appetite-check/models"
)

const (
	// UploadQueueKey is the Redis list async upload job IDs are pushed to.
	UploadQueueKey = "rule_upload:queue"
	// UploadJobKeyPattern is the Redis key holding one job's metadata.
	UploadJobKeyPattern = "rule_upload:job:%s"
	// UploadJobTTL bounds how long finished job results stay readable.
	UploadJobTTL = 24 * time.Hour
)

// UploadJobKey returns the Redis metadata key for a job ID.
func UploadJobKey(jobID string) string {
	return fmt.Sprintf(UploadJobKeyPattern, jobID)
}

// StartUploadWorker starts a background worker that consumes upload job
// IDs from the Redis queue and runs each saved file through the upload
// service.
func StartUploadWorker(ctx context.Context, rdb *redis.Client, uploadSvc UploadService, storageDir string) {
	if rdb == nil || uploadSvc == nil {
		zap.L().Warn("upload worker not started: missing dependencies")
		return
	}

	if storageDir == "" {
		storageDir = "./data/rule_uploads"
	}
	if err := os.MkdirAll(storageDir, 0o755); err != nil {
		zap.L().Error("failed to create upload storage dir", zap.Error(err))
		return
	}

	go func() {
		zap.L().Info("upload worker started", zap.String("queue", UploadQueueKey), zap.String("dir", storageDir))
		for {
			select {
			case <-ctx.Done():
				zap.L().Info("upload worker stopping")
				return
			default:
			}

			// BLPop with zero timeout blocks until a job arrives.
			res, err := rdb.BLPop(ctx, 0*time.Second, UploadQueueKey).Result()
			if err != nil {
				if err == context.Canceled || err == context.DeadlineExceeded {
					return
				}
				zap.L().Error("redis BLPop failed", zap.Error(err))
				time.Sleep(500 * time.Millisecond)
				continue
			}
			if len(res) < 2 {
				continue
			}
			processUploadJob(ctx, rdb, uploadSvc, res[1])
		}
	}()
}

func processUploadJob(ctx context.Context, rdb *redis.Client, uploadSvc UploadService, jobID string) {
	jobKey := UploadJobKey(jobID)

	val, err := rdb.Get(ctx, jobKey).Result()
	if err != nil {
		zap.L().Error("failed to read upload job metadata", zap.String("job", jobID), zap.Error(err))
		return
	}
	var job models.UploadJob
	if err := json.Unmarshal([]byte(val), &job); err != nil {
		zap.L().Error("failed to parse upload job metadata", zap.String("job", jobID), zap.Error(err))
		return
	}

	job.Status = models.JobStatusProcessing
	saveUploadJob(ctx, rdb, jobKey, &job)

	f, err := os.Open(filepath.Clean(job.FilePath))
	if err != nil {
		zap.L().Error("failed to open upload job file", zap.String("job", jobID), zap.String("path", job.FilePath), zap.Error(err))
		job.Status = models.JobStatusFailed
		job.Error = err.Error()
		saveUploadJob(ctx, rdb, jobKey, &job)
		return
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		zap.L().Error("failed to stat upload job file", zap.String("job", jobID), zap.Error(err))
		job.Status = models.JobStatusFailed
		job.Error = err.Error()
		saveUploadJob(ctx, rdb, jobKey, &job)
		return
	}

	report, serr := uploadSvc.ProcessUpload(ctx, f, job.Filename, info.Size(), job.Overwrite, job.Actor)
	f.Close()
	_ = os.Remove(job.FilePath)

	if serr != nil {
		zap.L().Error("upload job processing failed", zap.String("job", jobID), zap.String("error", serr.Message))
		job.Status = models.JobStatusFailed
		job.Error = serr.Message
		saveUploadJob(ctx, rdb, jobKey, &job)
		return
	}

	job.Status = models.JobStatusDone
	job.Result = report
	saveUploadJob(ctx, rdb, jobKey, &job)
	zap.L().Info("upload job finished",
		zap.String("job", jobID),
		zap.Int("created", report.Created),
		zap.Int("updated", report.Updated),
		zap.Int("failed", report.Failed),
	)
}

func saveUploadJob(ctx context.Context, rdb *redis.Client, jobKey string, job *models.UploadJob) {
	b, err := json.Marshal(job)
	if err != nil {
		zap.L().Error("failed to marshal upload job", zap.Error(err))
		return
	}
	if err := rdb.Set(ctx, jobKey, b, UploadJobTTL).Err(); err != nil {
		zap.L().Warn("failed to persist upload job state", zap.Error(err))
	}
}
