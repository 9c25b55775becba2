package services_test

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/vm-ec/vm-appetite-check/models"
	"github.com/vm-ec/vm-appetite-check/services"
)

// ---- mock repository ----

type mockRuleRepo struct {
	existing map[string]models.Rule

	createErrFor map[string]error
	updateErrFor map[string]error
	findByIDsErr error

	created []*models.Rule
	updated []*models.Rule
}

func newMockRuleRepo(existing ...models.Rule) *mockRuleRepo {
	m := &mockRuleRepo{existing: map[string]models.Rule{}}
	for _, r := range existing {
		m.existing[r.RuleID] = r
	}
	return m
}

func (m *mockRuleRepo) Create(_ context.Context, rule *models.Rule) error {
	if err := m.createErrFor[rule.Title]; err != nil {
		return err
	}
	m.created = append(m.created, rule)
	return nil
}

func (m *mockRuleRepo) FindByID(_ context.Context, id string) (*models.Rule, error) {
	if r, ok := m.existing[id]; ok {
		return &r, nil
	}
	return nil, errors.New("record not found")
}

func (m *mockRuleRepo) FindByIDs(_ context.Context, ids []string) ([]models.Rule, error) {
	if m.findByIDsErr != nil {
		return nil, m.findByIDsErr
	}
	var out []models.Rule
	for _, id := range ids {
		if r, ok := m.existing[id]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *mockRuleRepo) Update(_ context.Context, rule *models.Rule) error {
	if err := m.updateErrFor[rule.Title]; err != nil {
		return err
	}
	m.updated = append(m.updated, rule)
	return nil
}

func (m *mockRuleRepo) Delete(_ context.Context, _ string) error { return nil }

func (m *mockRuleRepo) FindAll(_ context.Context, _, _ int, _ string) ([]models.Rule, int64, error) {
	return nil, 0, nil
}

// ---- mock cache invalidator ----

type mockInvalidator struct {
	invalidateCalls int
	invalidateErr   error
	deletedIDs      []string
}

func (m *mockInvalidator) Invalidate(_ context.Context) error {
	m.invalidateCalls++
	return m.invalidateErr
}

func (m *mockInvalidator) DeleteRuleAsync(ruleID string) {
	m.deletedIDs = append(m.deletedIDs, ruleID)
}

// ---- helpers ----

func newTestUploadService(repo *mockRuleRepo) services.UploadService {
	logger, _ := zap.NewDevelopment()
	return services.NewUploadService(repo, "", nil, logger)
}

func processCSV(t *testing.T, svc services.UploadService, csv string, overwrite bool) (*models.UploadReport, *services.ServiceError) {
	t.Helper()
	return svc.ProcessUpload(context.Background(), strings.NewReader(csv), "rules.csv", int64(len(csv)), overwrite, "alice")
}

// ---- tests ----

func TestProcessUpload_AllRowsValid(t *testing.T) {
	repo := newMockRuleRepo()
	svc := newTestUploadService(repo)

	csv := "title,outcome\nRule one,accept\nRule two,reject\n"
	report, serr := processCSV(t, svc, csv, false)

	assert.Nil(t, serr)
	assert.Equal(t, models.UploadStatusCompleted, report.Status)
	assert.Equal(t, 2, report.Created)
	assert.Equal(t, 0, report.Updated)
	assert.Equal(t, 0, report.Failed)
	assert.Empty(t, report.Errors)
	assert.NotEmpty(t, report.UploadID)
}

func TestProcessUpload_MixedValidity(t *testing.T) {
	repo := newMockRuleRepo()
	svc := newTestUploadService(repo)

	csv := "title,priority,outcome\nGood rule,low,accept\n,low,accept\nBad priority,urgent,accept\n"
	report, serr := processCSV(t, svc, csv, false)

	assert.Nil(t, serr)
	assert.Equal(t, models.UploadStatusCompletedWithErrors, report.Status)
	assert.Equal(t, 1, report.Created)
	assert.Equal(t, 2, report.Failed)
	assert.Len(t, report.Errors, 2)
	assert.Equal(t, 2, report.Errors[0].Row)
	assert.Equal(t, "missing title", report.Errors[0].Error)
	assert.Equal(t, 3, report.Errors[1].Row)
}

func TestProcessUpload_GeneratesIDsForNewRules(t *testing.T) {
	repo := newMockRuleRepo()
	svc := newTestUploadService(repo)

	csv := "title,outcome\nNo ID given,accept\n"
	report, serr := processCSV(t, svc, csv, false)

	assert.Nil(t, serr)
	assert.Equal(t, 1, report.Created)
	assert.True(t, strings.HasPrefix(repo.created[0].RuleID, "rule-"))
}

func TestProcessUpload_KeepsSuppliedUnknownID(t *testing.T) {
	repo := newMockRuleRepo()
	svc := newTestUploadService(repo)

	csv := "ruleId,title,outcome\nrule-custom-1,With ID,accept\n"
	report, serr := processCSV(t, svc, csv, false)

	assert.Nil(t, serr)
	assert.Equal(t, 1, report.Created)
	assert.Equal(t, "rule-custom-1", repo.created[0].RuleID)
}

func TestProcessUpload_DuplicateWithoutOverwrite(t *testing.T) {
	repo := newMockRuleRepo(models.Rule{RuleID: "rule-1", Title: "Old", CreatedBy: "bob"})
	svc := newTestUploadService(repo)

	csv := "ruleId,title,outcome\nrule-1,New content,accept\n"
	report, serr := processCSV(t, svc, csv, false)

	assert.Nil(t, serr)
	assert.Equal(t, models.UploadStatusCompletedWithErrors, report.Status)
	assert.Equal(t, 0, report.Created)
	assert.Equal(t, 0, report.Updated)
	assert.Equal(t, 1, report.Failed)
	assert.Contains(t, report.Errors[0].Error, `rule "rule-1" already exists`)
	assert.Empty(t, repo.updated)
}

func TestProcessUpload_OverwritePreservesProvenance(t *testing.T) {
	createdAt := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	repo := newMockRuleRepo(models.Rule{RuleID: "rule-1", Title: "Old", CreatedBy: "bob", CreatedAt: createdAt})
	svc := newTestUploadService(repo)

	csv := "ruleId,title,outcome\nrule-1,Replacement,reject\n"
	report, serr := processCSV(t, svc, csv, true)

	assert.Nil(t, serr)
	assert.Equal(t, 1, report.Updated)
	assert.Equal(t, 0, report.Created)

	updated := repo.updated[0]
	assert.Equal(t, "Replacement", updated.Title)
	assert.Equal(t, "bob", updated.CreatedBy)
	assert.Equal(t, createdAt, updated.CreatedAt)
	assert.NotNil(t, updated.UpdatedAt)
}

func TestProcessUpload_ActorStampedOnCreates(t *testing.T) {
	repo := newMockRuleRepo()
	svc := newTestUploadService(repo)

	csv := "title,outcome,createdBy\nStamped,accept,mallory\n"
	report, serr := processCSV(t, svc, csv, false)

	assert.Nil(t, serr)
	assert.Equal(t, 1, report.Created)
	assert.Equal(t, "alice", repo.created[0].CreatedBy)
	assert.False(t, repo.created[0].CreatedAt.IsZero())
}

func TestProcessUpload_RowStoreFailureIsIsolated(t *testing.T) {
	repo := newMockRuleRepo()
	repo.createErrFor = map[string]error{"Doomed": errors.New("duplicate key value")}
	svc := newTestUploadService(repo)

	csv := "title,outcome\nFine before,accept\nDoomed,accept\nFine after,accept\n"
	report, serr := processCSV(t, svc, csv, false)

	assert.Nil(t, serr)
	assert.Equal(t, 2, report.Created)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 2, report.Errors[0].Row)
	assert.Contains(t, report.Errors[0].Error, "duplicate key")
}

func TestProcessUpload_ErrorsSortedByRow(t *testing.T) {
	repo := newMockRuleRepo()
	repo.createErrFor = map[string]error{"Store fails": errors.New("insert failed")}
	svc := newTestUploadService(repo)

	// Row 1 fails at the store, row 2 fails validation. The store error
	// is collected later but must sort first.
	csv := "title,outcome\nStore fails,accept\n,accept\n"
	report, serr := processCSV(t, svc, csv, false)

	assert.Nil(t, serr)
	assert.Equal(t, 2, report.Failed)
	assert.Equal(t, 1, report.Errors[0].Row)
	assert.Contains(t, report.Errors[0].Error, "insert failed")
	assert.Equal(t, 2, report.Errors[1].Row)
	assert.Equal(t, "missing title", report.Errors[1].Error)
}

func TestProcessUpload_StoreLookupFailureAborts(t *testing.T) {
	repo := newMockRuleRepo()
	repo.findByIDsErr = errors.New("connection refused")
	svc := newTestUploadService(repo)

	csv := "ruleId,title,outcome\nrule-1,Never written,accept\n"
	report, serr := processCSV(t, svc, csv, false)

	assert.Nil(t, report)
	assert.NotNil(t, serr)
	assert.Equal(t, http.StatusServiceUnavailable, serr.StatusCode)
	assert.Empty(t, repo.created)
}

func TestProcessUpload_UnsupportedFormatAborts(t *testing.T) {
	repo := newMockRuleRepo()
	svc := newTestUploadService(repo)

	content := "whatever"
	report, serr := svc.ProcessUpload(context.Background(), strings.NewReader(content), "rules.pdf", int64(len(content)), false, "alice")

	assert.Nil(t, report)
	assert.Equal(t, http.StatusBadRequest, serr.StatusCode)
}

func TestProcessUpload_TooLargeAborts(t *testing.T) {
	repo := newMockRuleRepo()
	svc := newTestUploadService(repo)

	report, serr := svc.ProcessUpload(context.Background(), strings.NewReader("x"), "rules.csv", 11<<20, false, "alice")

	assert.Nil(t, report)
	assert.Equal(t, http.StatusRequestEntityTooLarge, serr.StatusCode)
}

func TestProcessUpload_CancelledContextAborts(t *testing.T) {
	repo := newMockRuleRepo()
	svc := newTestUploadService(repo)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	csv := "title,outcome\nNever lands,accept\n"
	report, serr := svc.ProcessUpload(ctx, strings.NewReader(csv), "rules.csv", int64(len(csv)), false, "alice")

	assert.Nil(t, report)
	assert.NotNil(t, serr)
	assert.Empty(t, repo.created)
}

func TestProcessUpload_InvalidatesCacheAfterWrites(t *testing.T) {
	repo := newMockRuleRepo(models.Rule{RuleID: "rule-1", Title: "Old", CreatedBy: "bob"})
	cache := &mockInvalidator{}
	logger, _ := zap.NewDevelopment()
	svc := services.NewUploadService(repo, "", cache, logger)

	// One create and one overwrite, via the same entry point the async
	// worker uses.
	csv := "ruleId,title,outcome\n,Brand new,accept\nrule-1,Replacement,reject\n"
	report, serr := svc.ProcessUpload(context.Background(), strings.NewReader(csv), "rules.csv", int64(len(csv)), true, "alice")

	assert.Nil(t, serr)
	assert.Equal(t, 1, report.Created)
	assert.Equal(t, 1, report.Updated)
	assert.Equal(t, 1, cache.invalidateCalls)
	assert.Equal(t, []string{"rule-1"}, cache.deletedIDs)
}

func TestProcessUpload_NoCacheInvalidationWithoutWrites(t *testing.T) {
	repo := newMockRuleRepo(models.Rule{RuleID: "rule-1", Title: "Old"})
	cache := &mockInvalidator{}
	logger, _ := zap.NewDevelopment()
	svc := services.NewUploadService(repo, "", cache, logger)

	// Duplicate without overwrite: nothing written, nothing stale.
	csv := "ruleId,title,outcome\nrule-1,Skipped,accept\n"
	report, serr := svc.ProcessUpload(context.Background(), strings.NewReader(csv), "rules.csv", int64(len(csv)), false, "alice")

	assert.Nil(t, serr)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 0, cache.invalidateCalls)
	assert.Empty(t, cache.deletedIDs)
}

func TestProcessUpload_EmptyFileCompletes(t *testing.T) {
	repo := newMockRuleRepo()
	svc := newTestUploadService(repo)

	report, serr := processCSV(t, svc, "title,outcome\n", false)

	assert.Nil(t, serr)
	assert.Equal(t, models.UploadStatusCompleted, report.Status)
	assert.Equal(t, 0, report.Created)
	assert.Equal(t, 0, report.Failed)
	assert.NotNil(t, report.Errors)
}

func TestProcessUpload_ReportWrittenForFailures(t *testing.T) {
	repo := newMockRuleRepo()
	logger, _ := zap.NewDevelopment()
	svc := services.NewUploadService(repo, t.TempDir(), nil, logger)

	csv := "title,outcome\n,accept\n"
	report, serr := svc.ProcessUpload(context.Background(), strings.NewReader(csv), "rules.csv", int64(len(csv)), false, "alice")

	assert.Nil(t, serr)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, "/canvas/rules/upload/"+report.UploadID+"/report", report.ReportURL)

	path, perr := svc.ReportPath(report.UploadID)
	assert.Nil(t, perr)
	assert.NotEmpty(t, path)
}

func TestReportPath_RejectsNonUUID(t *testing.T) {
	repo := newMockRuleRepo()
	logger, _ := zap.NewDevelopment()
	svc := services.NewUploadService(repo, t.TempDir(), nil, logger)

	_, serr := svc.ReportPath("../../etc/passwd")
	assert.NotNil(t, serr)
	assert.Equal(t, http.StatusBadRequest, serr.StatusCode)
}

func TestReportPath_UnknownUploadIsNotFound(t *testing.T) {
	repo := newMockRuleRepo()
	logger, _ := zap.NewDevelopment()
	svc := services.NewUploadService(repo, t.TempDir(), nil, logger)

	_, serr := svc.ReportPath("0e1e9c5e-9f5f-4f4c-b9a2-8c9d1f2a3b4c")
	assert.NotNil(t, serr)
	assert.Equal(t, http.StatusNotFound, serr.StatusCode)
}
