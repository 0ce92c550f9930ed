package payroll

import (
	"time"

	"github.com/shopspring/decimal"
)

type PayComponent struct {
	ID              string `json:"id"`
	Code            string `json:"code"`
	Name            string `json:"name"`
	Category        string `json:"category"`
	CalculationType string `json:"calculationType"`
}

type Grade struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	MinSalary decimal.Decimal `json:"minSalary"`
	MaxSalary decimal.Decimal `json:"maxSalary"`
}

type SalaryStructure struct {
	ID         string               `json:"id"`
	Name       string               `json:"name"`
	Code       string               `json:"code"`
	Grade      *Grade               `json:"grade,omitempty"`
	CTCBasis   string               `json:"ctcBasis"`
	Components []StructureComponent `json:"components"`
}

type StructureComponent struct {
	ComponentID      string              `json:"componentId"`
	Component        PayComponent        `json:"component"`
	Percentage       decimal.NullDecimal `json:"percentage"`
	FixedValue       decimal.NullDecimal `json:"fixedValue"`
	BaseComponentRef string              `json:"baseComponentRef,omitempty"`
	MinValue         decimal.NullDecimal `json:"minValue"`
	MaxValue         decimal.NullDecimal `json:"maxValue"`
	Order            int                 `json:"order"`
	// Prorate nil means the component is prorated.
	Prorate *bool `json:"prorate,omitempty"`
}

func (c StructureComponent) prorates() bool {
	return c.Prorate == nil || *c.Prorate
}

type ComponentOverride struct {
	ComponentID string          `json:"componentId" validate:"required"`
	Value       decimal.Decimal `json:"value"`
}

type ResolvedComponent struct {
	ComponentID     string          `json:"componentId"`
	ComponentCode   string          `json:"componentCode"`
	Category        string          `json:"category"`
	BaseValue       decimal.Decimal `json:"baseValue"`
	CalculatedValue decimal.Decimal `json:"calculatedValue"`
	IsProrated      bool            `json:"isProrated"`
	Clamped         bool            `json:"clamped"`
	Prorate         bool            `json:"prorate"`
}

type EmployeeSalaryAssignment struct {
	ID            string              `json:"id"`
	EmployeeID    string              `json:"employeeId"`
	StructureID   string              `json:"structureId"`
	CTC           decimal.Decimal     `json:"ctc"`
	EffectiveFrom time.Time           `json:"effectiveFrom"`
	EffectiveTo   *time.Time          `json:"effectiveTo,omitempty"`
	IsActive      bool                `json:"isActive"`
	SupersededBy  string              `json:"supersededBy,omitempty"`
	Overrides     []ComponentOverride `json:"overrides"`
	Components    []ResolvedComponent `json:"components"`
	CreatedAt     time.Time           `json:"createdAt"`
}

func (a EmployeeSalaryAssignment) IsOpen() bool {
	return a.EffectiveTo == nil
}

// Covers reports whether the assignment is in effect at some point of [start, end].
func (a EmployeeSalaryAssignment) Covers(start, end time.Time) bool {
	if a.EffectiveFrom.After(end) {
		return false
	}
	return a.EffectiveTo == nil || !a.EffectiveTo.Before(start)
}

type SalaryRevision struct {
	ID              string          `json:"id"`
	EmployeeID      string          `json:"employeeId"`
	NewCTC          decimal.Decimal `json:"newCtc"`
	EffectiveFrom   time.Time       `json:"effectiveFrom"`
	RevisionType    string          `json:"revisionType"`
	Reason          string          `json:"reason"`
	Status          string          `json:"status"`
	CreatedBy       string          `json:"createdBy,omitempty"`
	ApprovedBy      string          `json:"approvedBy,omitempty"`
	ApprovedAt      *time.Time      `json:"approvedAt,omitempty"`
	Comments        string          `json:"comments,omitempty"`
	NewAssignmentID string          `json:"newAssignmentId,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
}

type PayrollRun struct {
	ID              string          `json:"id"`
	Period          string          `json:"period"`
	StartDate       time.Time       `json:"startDate"`
	EndDate         time.Time       `json:"endDate"`
	Status          string          `json:"status"`
	TotalGross      decimal.Decimal `json:"totalGross"`
	TotalNet        decimal.Decimal `json:"totalNet"`
	TotalDeductions decimal.Decimal `json:"totalDeductions"`
	RecordCount     int             `json:"recordCount"`
}

// LineItem is one resolved component on a payroll record.
type LineItem struct {
	ComponentID     string          `json:"componentId"`
	ComponentCode   string          `json:"componentCode"`
	Category        string          `json:"category"`
	BaseValue       decimal.Decimal `json:"baseValue"`
	CalculatedValue decimal.Decimal `json:"calculatedValue"`
	IsProrated      bool            `json:"isProrated"`
	Clamped         bool            `json:"clamped,omitempty"`
}

// AdjustmentLine is a post-calculation change. Amount is the signed value
// applied to its side; for CORRECTION, RequestedAmount holds the target net.
type AdjustmentLine struct {
	ID              string          `json:"id"`
	Type            string          `json:"type"`
	Amount          decimal.Decimal `json:"amount"`
	RequestedAmount decimal.Decimal `json:"requestedAmount"`
	Reason          string          `json:"reason"`
	CreatedBy       string          `json:"createdBy,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
}

func (a AdjustmentLine) IsDeduction() bool {
	return a.Type == AdjustmentDeduction
}

type PayrollRecord struct {
	ID              string           `json:"id"`
	PayrollRunID    string           `json:"payrollRunId"`
	EmployeeID      string           `json:"employeeId"`
	AssignmentID    string           `json:"assignmentId"`
	CTC             decimal.Decimal  `json:"ctc"`
	WorkingDays     int              `json:"workingDays"`
	PayableDays     int              `json:"payableDays"`
	LWPDays         int              `json:"lwpDays"`
	Earnings        []LineItem       `json:"earnings"`
	Deductions      []LineItem       `json:"deductions"`
	Adjustments     []AdjustmentLine `json:"adjustments"`
	GrossSalary     decimal.Decimal  `json:"grossSalary"`
	TotalEarnings   decimal.Decimal  `json:"totalEarnings"`
	TotalDeductions decimal.Decimal  `json:"totalDeductions"`
	NetSalary       decimal.Decimal  `json:"netSalary"`
	Status          string           `json:"status"`
	ApprovedBy      string           `json:"approvedBy,omitempty"`
	ApprovedAt      *time.Time       `json:"approvedAt,omitempty"`
	PaymentMethod   string           `json:"paymentMethod,omitempty"`
	PaidAt          *time.Time       `json:"paidAt,omitempty"`
}

type Payment struct {
	ID          string          `json:"id"`
	RecordID    string          `json:"recordId"`
	RunID       string          `json:"runId"`
	EmployeeID  string          `json:"employeeId"`
	Amount      decimal.Decimal `json:"amount"`
	Method      string          `json:"method"`
	PaymentDate time.Time       `json:"paymentDate"`
	PaidBy      string          `json:"paidBy"`
}

type Attendance struct {
	PayableDays int
	LWPDays     int
}

type BankDetails struct {
	AccountName   string `json:"accountName"`
	AccountNumber string `json:"accountNumber"`
	BankName      string `json:"bankName"`
	RoutingCode   string `json:"routingCode"`
}

type Employee struct {
	ID   string       `json:"id"`
	Code string       `json:"code"`
	Name string       `json:"name"`
	Bank *BankDetails `json:"bank,omitempty"`
}

type BulkError struct {
	EmployeeID string `json:"employeeId"`
	Kind       string `json:"kind"`
	Message    string `json:"message"`
}

type BulkResult struct {
	Run                    PayrollRun      `json:"run"`
	Results                []PayrollRecord `json:"results"`
	SuccessfulCalculations int             `json:"successfulCalculations"`
	FailedCalculations     int             `json:"failedCalculations"`
	Errors                 []BulkError     `json:"errors"`
}

type FinalizeResult struct {
	Run          PayrollRun `json:"run"`
	PaymentCount int        `json:"paymentCount"`
	BankFile     *BankFile  `json:"bankFile,omitempty"`
}
