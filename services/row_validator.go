package services

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/vm-ec/vm-appetite-check/models"
	"github.com/vm-ec/vm-appetite-check/pkg/tabular"
)

// RowValidationError is the single error reported for a rejected row.
// Row is the 1-based data row number; Reason is self-contained and
// names the offending field where relevant.
type RowValidationError struct {
	Row    int
	Field  string
	Reason string
}

func (e *RowValidationError) Error() string { return e.Reason }

var stateCodePattern = regexp.MustCompile(`^[A-Za-z]{2}$`)

// Accepted timestamp layouts for effectiveFrom/effectiveTo.
var dateLayouts = []string{time.RFC3339, "2006-01-02"}

// RowValidator turns raw upload rows into normalized rules. It is pure:
// no store access, no side effects, and a row yields either exactly one
// rule or exactly one error.
type RowValidator struct {
	table    *tabular.Table
	validate *validator.Validate
}

// NewRowValidator creates a validator bound to the uploaded file's
// header set. Column presence matters: priority and status default only
// when their column is absent from the file entirely, not when a cell
// is left empty.
func NewRowValidator(table *tabular.Table) *RowValidator {
	return &RowValidator{
		table:    table,
		validate: validator.New(),
	}
}

// Validate checks one row and returns the normalized rule, without
// provenance fields: createdBy/createdAt/updatedAt belong to the
// orchestrator, and client-supplied values for them are ignored.
func (v *RowValidator) Validate(row tabular.Row) (*models.Rule, *RowValidationError) {
	rule := &models.Rule{
		RuleID:       strings.TrimSpace(row.Get("ruleId")),
		Description:  row.Get("description"),
		BusinessType: row.Get("businessType"),
		Carrier:      row.Get("carrier"),
		Product:      row.Get("product"),
		RuleVersion:  row.Get("ruleVersion"),
	}

	rule.Title = strings.TrimSpace(row.Get("title"))
	if rule.Title == "" {
		return nil, v.fail(row, "title", "missing title")
	}

	if !v.table.HasColumn("priority") {
		rule.Priority = models.PriorityMedium
	} else if rule.Priority = models.NormalizePriority(row.Get("priority")); rule.Priority == "" {
		if strings.TrimSpace(row.Get("priority")) == "" {
			return nil, v.fail(row, "priority", "missing priority")
		}
		return nil, v.fail(row, "priority", fmt.Sprintf("invalid priority %q (expected low, medium or high)", row.Get("priority")))
	}

	if rule.Outcome = models.NormalizeOutcome(row.Get("outcome")); rule.Outcome == "" {
		if strings.TrimSpace(row.Get("outcome")) == "" {
			return nil, v.fail(row, "outcome", "missing outcome")
		}
		return nil, v.fail(row, "outcome", fmt.Sprintf("invalid outcome %q (expected accept, reject or refer)", row.Get("outcome")))
	}

	if !v.table.HasColumn("status") {
		rule.Status = models.StatusDraft
	} else if rule.Status = models.NormalizeStatus(row.Get("status")); rule.Status == "" {
		if strings.TrimSpace(row.Get("status")) == "" {
			return nil, v.fail(row, "status", "missing status")
		}
		return nil, v.fail(row, "status", fmt.Sprintf("invalid status %q (expected Draft, Active or Inactive)", row.Get("status")))
	}

	rule.NaicsCodes = splitList(row.Get("naicsCodes"))
	rule.Restrictions = splitList(row.Get("restrictions"))
	rule.Conditions = splitList(row.Get("conditions"))

	// One malformed state code rejects the whole row, matching the
	// single-error-per-row reporting used everywhere else.
	rule.States = splitList(row.Get("states"))
	for i, code := range rule.States {
		if !stateCodePattern.MatchString(code) {
			return nil, v.fail(row, "states", fmt.Sprintf("invalid state code %q", code))
		}
		rule.States[i] = strings.ToUpper(code)
	}

	var verr *RowValidationError
	if rule.MinRevenue, verr = v.floatField(row, "minRevenue"); verr != nil {
		return nil, verr
	}
	if rule.MaxRevenue, verr = v.floatField(row, "maxRevenue"); verr != nil {
		return nil, verr
	}
	if rule.MinRevenue != nil && rule.MaxRevenue != nil && *rule.MinRevenue > *rule.MaxRevenue {
		return nil, v.fail(row, "minRevenue", "minRevenue greater than maxRevenue")
	}

	if rule.MinYearsInBusiness, verr = v.intField(row, "minYearsInBusiness"); verr != nil {
		return nil, verr
	}
	if rule.MaxYearsInBusiness, verr = v.intField(row, "maxYearsInBusiness"); verr != nil {
		return nil, verr
	}
	if rule.MinYearsInBusiness != nil && rule.MaxYearsInBusiness != nil &&
		*rule.MinYearsInBusiness > *rule.MaxYearsInBusiness {
		return nil, v.fail(row, "minYearsInBusiness", "minYearsInBusiness greater than maxYearsInBusiness")
	}

	if rule.PriorClaimsAllowed, verr = v.intField(row, "priorClaimsAllowed"); verr != nil {
		return nil, verr
	}

	if rule.EffectiveFrom, verr = v.dateField(row, "effectiveFrom"); verr != nil {
		return nil, verr
	}
	if rule.EffectiveTo, verr = v.dateField(row, "effectiveTo"); verr != nil {
		return nil, verr
	}

	if email := strings.TrimSpace(row.Get("contactEmail")); email != "" {
		if err := v.validate.Var(email, "email"); err != nil {
			return nil, v.fail(row, "contactEmail", fmt.Sprintf("invalid contactEmail %q", email))
		}
		rule.ContactEmail = email
	}

	return rule, nil
}

func (v *RowValidator) fail(row tabular.Row, field, reason string) *RowValidationError {
	return &RowValidationError{Row: row.Number, Field: field, Reason: reason}
}

// splitList splits a comma-separated cell, trimming elements and
// dropping empties. An all-empty result is an empty list; the empty
// versus null ambiguity is resolved toward the empty sequence.
func splitList(raw string) models.StringList {
	if strings.TrimSpace(raw) == "" {
		return models.StringList{}
	}
	out := models.StringList{}
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (v *RowValidator) floatField(row tabular.Row, field string) (*float64, *RowValidationError) {
	raw := strings.TrimSpace(row.Get(field))
	if raw == "" {
		return nil, nil
	}
	val, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, v.fail(row, field, fmt.Sprintf("%s is not a valid number: %q", field, raw))
	}
	if val < 0 {
		return nil, v.fail(row, field, fmt.Sprintf("%s must not be negative", field))
	}
	return &val, nil
}

func (v *RowValidator) intField(row tabular.Row, field string) (*int, *RowValidationError) {
	raw := strings.TrimSpace(row.Get(field))
	if raw == "" {
		return nil, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return nil, v.fail(row, field, fmt.Sprintf("%s is not a valid integer: %q", field, raw))
	}
	if val < 0 {
		return nil, v.fail(row, field, fmt.Sprintf("%s must not be negative", field))
	}
	return &val, nil
}

func (v *RowValidator) dateField(row tabular.Row, field string) (*time.Time, *RowValidationError) {
	raw := strings.TrimSpace(row.Get(field))
	if raw == "" {
		return nil, nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t, nil
		}
	}
	return nil, v.fail(row, field, fmt.Sprintf("%s is not a valid date: %q", field, raw))
}
