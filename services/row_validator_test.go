package services_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vm-ec/vm-appetite-check/models"
	"github.com/vm-ec/vm-appetite-check/pkg/tabular"
	"github.com/vm-ec/vm-appetite-check/services"
)

// parseCSVTable builds a Table from inline CSV for validator tests.
func parseCSVTable(t *testing.T, csv string) *tabular.Table {
	t.Helper()
	table, err := tabular.Parse(strings.NewReader(csv), "rules.csv", int64(len(csv)))
	assert.NoError(t, err)
	return table
}

func validateSingleRow(t *testing.T, csv string) (*models.Rule, *services.RowValidationError) {
	t.Helper()
	table := parseCSVTable(t, csv)
	assert.Len(t, table.Rows, 1)
	return services.NewRowValidator(table).Validate(table.Rows[0])
}

func TestValidate_FullRow(t *testing.T) {
	csv := "title,description,businessType,naicsCodes,states,carrier,product,priority,outcome,status,minRevenue,maxRevenue,minYearsInBusiness,maxYearsInBusiness,priorClaimsAllowed,effectiveFrom,contactEmail\n" +
		"Plumbers OK,Small plumbing shops,Contractor,238220,\"ca, tx\",Acme Mutual,GL,High,Accept,active,50000,2000000,2,10,1,2026-01-01,underwriting@acme.example\n"

	rule, verr := validateSingleRow(t, csv)
	assert.Nil(t, verr)
	assert.Equal(t, "Plumbers OK", rule.Title)
	assert.Equal(t, models.PriorityHigh, rule.Priority)
	assert.Equal(t, models.OutcomeAccept, rule.Outcome)
	assert.Equal(t, models.StatusActive, rule.Status)
	assert.Equal(t, models.StringList{"CA", "TX"}, rule.States)
	assert.Equal(t, 50000.0, *rule.MinRevenue)
	assert.Equal(t, 2, *rule.MinYearsInBusiness)
	assert.Equal(t, 1, *rule.PriorClaimsAllowed)
	assert.Equal(t, "underwriting@acme.example", rule.ContactEmail)
	assert.NotNil(t, rule.EffectiveFrom)
	assert.Equal(t, "2026-01-01", rule.EffectiveFrom.Format("2006-01-02"))
}

func TestValidate_MissingTitle(t *testing.T) {
	csv := "title,outcome\n ,accept\n"

	rule, verr := validateSingleRow(t, csv)
	assert.Nil(t, rule)
	assert.Equal(t, 1, verr.Row)
	assert.Equal(t, "title", verr.Field)
	assert.Equal(t, "missing title", verr.Reason)
}

func TestValidate_PriorityDefaultsWhenColumnAbsent(t *testing.T) {
	csv := "title,outcome\nNo priority column,accept\n"

	rule, verr := validateSingleRow(t, csv)
	assert.Nil(t, verr)
	assert.Equal(t, models.PriorityMedium, rule.Priority)
}

func TestValidate_EmptyPriorityCellFails(t *testing.T) {
	// A present-but-empty cell is missing data, not a default.
	csv := "title,priority,outcome\nEmpty priority,,accept\n"

	rule, verr := validateSingleRow(t, csv)
	assert.Nil(t, rule)
	assert.Equal(t, "missing priority", verr.Reason)
}

func TestValidate_InvalidPriority(t *testing.T) {
	csv := "title,priority,outcome\nBad priority,urgent,accept\n"

	rule, verr := validateSingleRow(t, csv)
	assert.Nil(t, rule)
	assert.Equal(t, "priority", verr.Field)
	assert.Contains(t, verr.Reason, `invalid priority "urgent"`)
}

func TestValidate_MissingOutcome(t *testing.T) {
	csv := "title,outcome\nNo outcome,\n"

	rule, verr := validateSingleRow(t, csv)
	assert.Nil(t, rule)
	assert.Equal(t, "missing outcome", verr.Reason)
}

func TestValidate_StatusDefaultsWhenColumnAbsent(t *testing.T) {
	csv := "title,outcome\nDraft by default,reject\n"

	rule, verr := validateSingleRow(t, csv)
	assert.Nil(t, verr)
	assert.Equal(t, models.StatusDraft, rule.Status)
}

func TestValidate_InvalidStateCodeFailsRow(t *testing.T) {
	csv := "title,outcome,states\nBad state,accept,\"CA,Texas,NY\"\n"

	rule, verr := validateSingleRow(t, csv)
	assert.Nil(t, rule)
	assert.Equal(t, "states", verr.Field)
	assert.Contains(t, verr.Reason, `invalid state code "Texas"`)
}

func TestValidate_StateCodesUppercased(t *testing.T) {
	csv := "title,outcome,states\nLower states,accept,\"ca,ny\"\n"

	rule, verr := validateSingleRow(t, csv)
	assert.Nil(t, verr)
	assert.Equal(t, models.StringList{"CA", "NY"}, rule.States)
}

func TestValidate_ListCellsSplitAndTrimmed(t *testing.T) {
	csv := "title,outcome,naicsCodes,restrictions\nLists,accept,\"238220, 238210 , ,\",\n"

	rule, verr := validateSingleRow(t, csv)
	assert.Nil(t, verr)
	assert.Equal(t, models.StringList{"238220", "238210"}, rule.NaicsCodes)
	assert.Equal(t, models.StringList{}, rule.Restrictions)
}

func TestValidate_NonNumericRevenue(t *testing.T) {
	csv := "title,outcome,minRevenue\nBad revenue,accept,lots\n"

	rule, verr := validateSingleRow(t, csv)
	assert.Nil(t, rule)
	assert.Equal(t, "minRevenue", verr.Field)
	assert.Contains(t, verr.Reason, "not a valid number")
}

func TestValidate_NegativeRevenue(t *testing.T) {
	csv := "title,outcome,minRevenue\nNegative,accept,-100\n"

	rule, verr := validateSingleRow(t, csv)
	assert.Nil(t, rule)
	assert.Equal(t, "minRevenue must not be negative", verr.Reason)
}

func TestValidate_RevenueRangeInverted(t *testing.T) {
	csv := "title,outcome,minRevenue,maxRevenue\nInverted,accept,500000,100\n"

	rule, verr := validateSingleRow(t, csv)
	assert.Nil(t, rule)
	assert.Equal(t, "minRevenue greater than maxRevenue", verr.Reason)
}

func TestValidate_YearsRangeInverted(t *testing.T) {
	csv := "title,outcome,minYearsInBusiness,maxYearsInBusiness\nInverted years,accept,10,2\n"

	rule, verr := validateSingleRow(t, csv)
	assert.Nil(t, rule)
	assert.Equal(t, "minYearsInBusiness greater than maxYearsInBusiness", verr.Reason)
}

func TestValidate_OpenEndedRangesAllowed(t *testing.T) {
	csv := "title,outcome,minRevenue\nOnly a floor,accept,100000\n"

	rule, verr := validateSingleRow(t, csv)
	assert.Nil(t, verr)
	assert.Equal(t, 100000.0, *rule.MinRevenue)
	assert.Nil(t, rule.MaxRevenue)
}

func TestValidate_InvalidDate(t *testing.T) {
	csv := "title,outcome,effectiveFrom\nBad date,accept,next tuesday\n"

	rule, verr := validateSingleRow(t, csv)
	assert.Nil(t, rule)
	assert.Equal(t, "effectiveFrom", verr.Field)
	assert.Contains(t, verr.Reason, "not a valid date")
}

func TestValidate_InvalidEmail(t *testing.T) {
	csv := "title,outcome,contactEmail\nBad email,accept,not-an-email\n"

	rule, verr := validateSingleRow(t, csv)
	assert.Nil(t, rule)
	assert.Equal(t, "contactEmail", verr.Field)
}

func TestValidate_ProvenanceColumnsIgnored(t *testing.T) {
	csv := "title,outcome,createdBy,createdAt\nStamped later,accept,mallory,1999-01-01\n"

	rule, verr := validateSingleRow(t, csv)
	assert.Nil(t, verr)
	assert.Empty(t, rule.CreatedBy)
	assert.True(t, rule.CreatedAt.IsZero())
}

func TestValidate_RowNumbersSurviveBlankLines(t *testing.T) {
	csv := "title,outcome\nFirst,accept\n,\n,badvalue\n"

	table := parseCSVTable(t, csv)
	assert.Len(t, table.Rows, 2)
	rv := services.NewRowValidator(table)

	_, verr := rv.Validate(table.Rows[1])
	assert.NotNil(t, verr)
	assert.Equal(t, 3, verr.Row)
}
