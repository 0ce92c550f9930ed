package payroll

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	PayslipLineComponent  = "component"
	PayslipLineAdjustment = "adjustment"
)

type PayslipEmployee struct {
	ID            string `json:"id"`
	Code          string `json:"code"`
	Name          string `json:"name"`
	BankName      string `json:"bankName,omitempty"`
	AccountMasked string `json:"accountMasked,omitempty"`
}

type PayslipLine struct {
	Kind       string          `json:"kind"`
	Code       string          `json:"code"`
	Label      string          `json:"label"`
	Amount     decimal.Decimal `json:"amount"`
	IsProrated bool            `json:"isProrated,omitempty"`
}

type Payslip struct {
	RecordID        string          `json:"recordId"`
	Employee        PayslipEmployee `json:"employee"`
	Period          string          `json:"period"`
	StartDate       time.Time       `json:"startDate"`
	EndDate         time.Time       `json:"endDate"`
	WorkingDays     int             `json:"workingDays"`
	PayableDays     int             `json:"payableDays"`
	Earnings        []PayslipLine   `json:"earnings"`
	Deductions      []PayslipLine   `json:"deductions"`
	Gross           decimal.Decimal `json:"gross"`
	TotalDeductions decimal.Decimal `json:"totalDeductions"`
	Net             decimal.Decimal `json:"net"`
	Status          string          `json:"status"`
	PaymentMethod   string          `json:"paymentMethod,omitempty"`
	PaidAt          *time.Time      `json:"paidAt,omitempty"`
}

func assemblePayslip(rec PayrollRecord, run PayrollRun, emp Employee, components map[string]PayComponent) (Payslip, error) {
	if rec.Status != RecordStatusApproved && rec.Status != RecordStatusPaid {
		return Payslip{}, &StateConflictError{Entity: "payroll record", ID: rec.ID, State: rec.Status, Action: "assemble payslip"}
	}

	slip := Payslip{
		RecordID:        rec.ID,
		Employee:        payslipEmployee(emp),
		Period:          run.Period,
		StartDate:       run.StartDate,
		EndDate:         run.EndDate,
		WorkingDays:     rec.WorkingDays,
		PayableDays:     rec.PayableDays,
		Earnings:        componentLines(rec.Earnings, components),
		Deductions:      componentLines(rec.Deductions, components),
		Gross:           rec.GrossSalary,
		TotalDeductions: rec.TotalDeductions,
		Net:             rec.NetSalary,
		Status:          rec.Status,
		PaymentMethod:   rec.PaymentMethod,
		PaidAt:          rec.PaidAt,
	}
	for _, adj := range rec.Adjustments {
		line := PayslipLine{
			Kind:   PayslipLineAdjustment,
			Code:   adj.Type,
			Label:  adjustmentLabel(adj),
			Amount: adj.Amount,
		}
		if adj.IsDeduction() {
			slip.Deductions = append(slip.Deductions, line)
		} else {
			slip.Earnings = append(slip.Earnings, line)
		}
	}
	settleLines(slip.Earnings, slip.Gross)
	settleLines(slip.Deductions, slip.TotalDeductions)
	return slip, nil
}

// componentLines keeps calculation precision; settleLines rounds afterwards.
func componentLines(items []LineItem, components map[string]PayComponent) []PayslipLine {
	lines := make([]PayslipLine, 0, len(items))
	for _, item := range items {
		label := item.ComponentCode
		if c, ok := components[item.ComponentID]; ok && c.Name != "" {
			label = c.Name
		}
		lines = append(lines, PayslipLine{
			Kind:       PayslipLineComponent,
			Code:       item.ComponentCode,
			Label:      label,
			Amount:     item.CalculatedValue,
			IsProrated: item.IsProrated,
		})
	}
	return lines
}

// settleLines rounds line amounts in place so they add up to total.
func settleLines(lines []PayslipLine, total decimal.Decimal) {
	exact := make([]decimal.Decimal, len(lines))
	for i, line := range lines {
		exact[i] = line.Amount
	}
	for i, amount := range allocateCents(exact, total) {
		lines[i].Amount = amount
	}
}

func adjustmentLabel(adj AdjustmentLine) string {
	label := humanField(strings.ToLower(adj.Type))
	if adj.Reason != "" {
		label += ": " + adj.Reason
	}
	return label
}

func payslipEmployee(emp Employee) PayslipEmployee {
	out := PayslipEmployee{ID: emp.ID, Code: emp.Code, Name: emp.Name}
	if emp.Bank != nil {
		out.BankName = emp.Bank.BankName
		out.AccountMasked = maskAccount(emp.Bank.AccountNumber)
	}
	return out
}

func maskAccount(number string) string {
	if len(number) <= 4 {
		return number
	}
	return strings.Repeat("*", len(number)-4) + number[len(number)-4:]
}
