package payroll

import (
	"errors"
	"reflect"
	"strings"
	"time"
	"unicode"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

type CalculateInput struct {
	EmployeeID  string    `json:"employeeId" validate:"required"`
	Period      string    `json:"period" validate:"required,max=32"`
	StartDate   time.Time `json:"startDate" validate:"required"`
	EndDate     time.Time `json:"endDate" validate:"required"`
	WorkingDays int       `json:"workingDays" validate:"gte=0,lte=366"`
}

type BulkInput struct {
	EmployeeIDs []string  `json:"employeeIds" validate:"required,min=1,dive,required"`
	Period      string    `json:"period" validate:"required,max=32"`
	StartDate   time.Time `json:"startDate" validate:"required"`
	EndDate     time.Time `json:"endDate" validate:"required"`
	WorkingDays int       `json:"workingDays" validate:"gte=0,lte=366"`
}

type AssignInput struct {
	EmployeeID    string              `json:"employeeId" validate:"required"`
	StructureID   string              `json:"structureId" validate:"required"`
	CTC           decimal.Decimal     `json:"ctc"`
	EffectiveFrom time.Time           `json:"effectiveFrom" validate:"required"`
	Overrides     []ComponentOverride `json:"overrides" validate:"dive"`
}

type RevisionInput struct {
	EmployeeID    string          `json:"employeeId" validate:"required"`
	NewCTC        decimal.Decimal `json:"newCtc"`
	EffectiveFrom time.Time       `json:"effectiveFrom" validate:"required"`
	RevisionType  string          `json:"revisionType" validate:"required,oneof=INCREMENT PROMOTION MARKET_ADJUSTMENT CORRECTION"`
	Reason        string          `json:"reason" validate:"max=500"`
	CreatedBy     string          `json:"-"`
}

type AdjustInput struct {
	RecordID string          `json:"recordId" validate:"required"`
	Type     string          `json:"type" validate:"required,oneof=BONUS ALLOWANCE DEDUCTION CORRECTION"`
	Amount   decimal.Decimal `json:"amount"`
	Reason   string          `json:"reason" validate:"required,max=500"`
	Actor    string          `json:"-"`
}

type FinalizeInput struct {
	RunID         string    `json:"runId" validate:"required"`
	PaymentMethod string    `json:"paymentMethod" validate:"required,oneof=BANK_TRANSFER CASH CHEQUE"`
	PaymentDate   time.Time `json:"paymentDate" validate:"required"`
	Actor         string    `json:"-"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func validateInput(in any) error {
	err := validate.Struct(in)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return &ValidationError{Field: fe.Field(), Reason: validationReason(fe)}
	}
	return err
}

func validationReason(fe validator.FieldError) string {
	label := humanField(fe.Field())
	switch fe.Tag() {
	case "required":
		return label + " is required"
	case "oneof":
		return label + " must be one of " + fe.Param()
	case "min":
		return label + " must have at least " + fe.Param() + " entries"
	case "max":
		return label + " must be at most " + fe.Param() + " characters"
	case "gte", "lte":
		return label + " is out of range"
	default:
		return label + " is invalid"
	}
}

// humanField turns "employeeIds[2]" into "Employee Ids[2]".
func humanField(field string) string {
	var b strings.Builder
	for i, r := range field {
		if i > 0 && unicode.IsUpper(r) {
			b.WriteRune(' ')
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return cases.Title(language.English).String(b.String())
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// calendarDays counts the days of [start, end], both inclusive.
func calendarDays(start, end time.Time) int {
	return int(dateOnly(end).Sub(dateOnly(start)).Hours()/24) + 1
}

func validatePeriod(period string, start, end time.Time) error {
	if strings.TrimSpace(period) == "" {
		return invalid("period", "period is required")
	}
	if dateOnly(end).Before(dateOnly(start)) {
		return invalid("endDate", "must be on or after startDate")
	}
	return nil
}

func validatePositive(field string, value decimal.Decimal) error {
	if !value.IsPositive() {
		return invalid(field, "must be greater than zero")
	}
	if !isMoney(value) {
		return invalid(field, "must have at most 2 decimal places")
	}
	return nil
}
