package services

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vm-ec/vm-appetite-check/models"
	"github.com/vm-ec/vm-appetite-check/pkg/tabular"
	"github.com/vm-ec/vm-appetite-check/repository"
)

// UploadService drives the bulk rule ingestion pipeline:
// parse -> validate -> resolve conflicts -> persist -> report.
type UploadService interface {
	ProcessUpload(ctx context.Context, file io.Reader, filename string, size int64, overwrite bool, actor string) (*models.UploadReport, *ServiceError)
	ReportPath(uploadID string) (string, *ServiceError)
}

// RuleCacheInvalidator drops cached rule reads after writes. Living on
// the service keeps invalidation identical for synchronous uploads and
// worker-driven async jobs.
type RuleCacheInvalidator interface {
	Invalidate(ctx context.Context) error
	DeleteRuleAsync(ruleID string)
}

type uploadServiceImpl struct {
	repo      repository.RuleRepository
	reportDir string
	cache     RuleCacheInvalidator
	logger    *zap.Logger
}

// NewUploadService creates a new UploadService. reportDir may be empty,
// in which case no downloadable error reports are written; cache may be
// nil when caching is disabled.
func NewUploadService(repo repository.RuleRepository, reportDir string, cache RuleCacheInvalidator, logger *zap.Logger) UploadService {
	return &uploadServiceImpl{repo: repo, reportDir: reportDir, cache: cache, logger: logger}
}

// validRow is a rule that survived validation, paired with its source
// row number for error attribution.
type validRow struct {
	row  int
	rule *models.Rule
}

// ProcessUpload ingests one uploaded file. Rows are processed in file
// order; a bad row is recorded and processing continues, so an upload
// never aborts partway and discards prior writes. Only parser failures
// and store unavailability abort the call without a report.
func (s *uploadServiceImpl) ProcessUpload(ctx context.Context, file io.Reader, filename string, size int64, overwrite bool, actor string) (*models.UploadReport, *ServiceError) {
	table, err := tabular.Parse(file, filename, size)
	if err != nil {
		return nil, parseError(err)
	}

	rowValidator := NewRowValidator(table)
	var valid []validRow
	var rowErrors []models.RowError
	for _, row := range table.Rows {
		rule, verr := rowValidator.Validate(row)
		if verr != nil {
			rowErrors = append(rowErrors, models.RowError{Row: verr.Row, Error: verr.Reason})
			continue
		}
		valid = append(valid, validRow{row: row.Number, rule: rule})
	}

	// One batched lookup for every candidate ID instead of one query
	// per row. A failure here is store unavailability, not a row error.
	var candidateIDs []string
	for _, vr := range valid {
		if vr.rule.RuleID != "" {
			candidateIDs = append(candidateIDs, vr.rule.RuleID)
		}
	}
	existingRules, err := s.repo.FindByIDs(ctx, candidateIDs)
	if err != nil {
		s.logger.Error("rule store lookup failed", zap.Error(err))
		return nil, &ServiceError{StatusCode: http.StatusServiceUnavailable, Message: "rule store unavailable"}
	}
	existing := make(map[string]models.Rule, len(existingRules))
	for _, r := range existingRules {
		existing[r.RuleID] = r
	}

	var created, updated int
	var updatedIDs []string
	for _, vr := range valid {
		// Abandoned request: stop without a report. Rows already
		// committed stay committed.
		if ctx.Err() != nil {
			s.logger.Warn("upload cancelled mid-stream",
				zap.String("filename", filename),
				zap.Int("created", created),
				zap.Int("updated", updated),
			)
			return nil, &ServiceError{StatusCode: http.StatusServiceUnavailable, Message: "upload cancelled"}
		}

		rule := vr.rule
		now := time.Now().UTC()

		prev, exists := existing[rule.RuleID]
		switch {
		case rule.RuleID == "" || !exists:
			if rule.RuleID == "" {
				rule.RuleID = models.NewRuleID()
			}
			rule.CreatedBy = actor
			rule.CreatedAt = now
			if err := s.repo.Create(ctx, rule); err != nil {
				rowErrors = append(rowErrors, models.RowError{Row: vr.row, Error: err.Error()})
				continue
			}
			created++

		case !overwrite:
			rowErrors = append(rowErrors, models.RowError{
				Row:   vr.row,
				Error: fmt.Sprintf("rule %q already exists (set overwrite to replace it)", rule.RuleID),
			})

		default:
			rule.CreatedBy = prev.CreatedBy
			rule.CreatedAt = prev.CreatedAt
			rule.UpdatedAt = &now
			if err := s.repo.Update(ctx, rule); err != nil {
				rowErrors = append(rowErrors, models.RowError{Row: vr.row, Error: err.Error()})
				continue
			}
			updated++
			updatedIDs = append(updatedIDs, rule.RuleID)
		}
	}

	if s.cache != nil && created+updated > 0 {
		if err := s.cache.Invalidate(ctx); err != nil {
			s.logger.Error("failed to invalidate rule cache after upload", zap.Error(err))
		}
		// Overwritten rules also have stale detail entries.
		for _, id := range updatedIDs {
			s.cache.DeleteRuleAsync(id)
		}
	}

	// Validation and persistence errors were collected in separate
	// passes; the report orders them by original row number.
	sort.SliceStable(rowErrors, func(i, j int) bool { return rowErrors[i].Row < rowErrors[j].Row })
	if rowErrors == nil {
		rowErrors = []models.RowError{}
	}

	report := &models.UploadReport{
		UploadID: uuid.New().String(),
		Status:   models.UploadStatusCompleted,
		Created:  created,
		Updated:  updated,
		Failed:   len(rowErrors),
		Errors:   rowErrors,
	}
	if report.Failed > 0 {
		report.Status = models.UploadStatusCompletedWithErrors
		report.ReportURL = s.writeErrorReport(report)
	}

	s.logger.Info("rule upload processed",
		zap.String("upload_id", report.UploadID),
		zap.String("filename", filename),
		zap.Bool("overwrite", overwrite),
		zap.String("actor", actor),
		zap.Int("created", report.Created),
		zap.Int("updated", report.Updated),
		zap.Int("failed", report.Failed),
	)
	return report, nil
}

// ReportPath resolves an upload ID to its on-disk error report. IDs are
// generated UUIDs, so anything that doesn't parse is rejected before it
// can touch the filesystem.
func (s *uploadServiceImpl) ReportPath(uploadID string) (string, *ServiceError) {
	if s.reportDir == "" {
		return "", &ServiceError{StatusCode: http.StatusNotFound, Message: "upload reports are not enabled"}
	}
	if _, err := uuid.Parse(uploadID); err != nil {
		return "", &ServiceError{StatusCode: http.StatusBadRequest, Message: "invalid upload ID"}
	}
	path := filepath.Join(s.reportDir, uploadID+".csv")
	if _, err := os.Stat(path); err != nil {
		return "", &ServiceError{StatusCode: http.StatusNotFound, Message: "report not found"}
	}
	return path, nil
}

// writeErrorReport persists the failed rows as a small CSV so the
// uploader can fix the source file without scraping the JSON response.
// Failures here degrade the report to having no reportUrl.
func (s *uploadServiceImpl) writeErrorReport(report *models.UploadReport) string {
	if s.reportDir == "" {
		return ""
	}
	if err := os.MkdirAll(s.reportDir, 0o755); err != nil {
		s.logger.Warn("failed to create report dir", zap.Error(err))
		return ""
	}

	path := filepath.Join(s.reportDir, report.UploadID+".csv")
	f, err := os.Create(path)
	if err != nil {
		s.logger.Warn("failed to write upload report", zap.Error(err))
		return ""
	}
	defer f.Close()

	w := csv.NewWriter(f)
	_ = w.Write([]string{"row", "error"})
	for _, re := range report.Errors {
		_ = w.Write([]string{strconv.Itoa(re.Row), re.Error})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		s.logger.Warn("failed to write upload report", zap.Error(err))
		return ""
	}

	return "/canvas/rules/upload/" + report.UploadID + "/report"
}

// parseError maps parser failures onto request-level HTTP errors.
func parseError(err error) *ServiceError {
	switch {
	case errors.Is(err, tabular.ErrUnsupportedFormat):
		return &ServiceError{StatusCode: http.StatusBadRequest, Message: err.Error()}
	case errors.Is(err, tabular.ErrFileTooLarge):
		return &ServiceError{StatusCode: http.StatusRequestEntityTooLarge, Message: err.Error()}
	default:
		return &ServiceError{StatusCode: http.StatusBadRequest, Message: err.Error()}
	}
}
