package payroll

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// BankFile is the transfer instruction list produced by a BANK_TRANSFER
// finalize. It is returned to the caller and never stored.
type BankFile struct {
	Period      string          `json:"period"`
	RunID       string          `json:"runId"`
	PaymentDate time.Time       `json:"paymentDate"`
	Rows        []BankFileRow   `json:"rows"`
	Total       decimal.Decimal `json:"total"`
}

type BankFileRow struct {
	SerialNo      int             `json:"serialNo"`
	EmployeeID    string          `json:"employeeId"`
	EmployeeCode  string          `json:"employeeCode"`
	EmployeeName  string          `json:"employeeName"`
	NetAmount     decimal.Decimal `json:"netAmount"`
	AccountName   string          `json:"accountName"`
	AccountNumber string          `json:"accountNumber"`
	BankName      string          `json:"bankName"`
	RoutingCode   string          `json:"routingCode"`
}

// buildBankFile lists paid records ordered by employee code. Every employee
// must be present in employees with bank details.
func buildBankFile(run PayrollRun, records []PayrollRecord, employees map[string]Employee, paymentDate time.Time) (*BankFile, error) {
	rows := make([]BankFileRow, 0, len(records))
	total := decimal.Zero
	for _, rec := range records {
		emp, ok := employees[rec.EmployeeID]
		if !ok {
			return nil, &StructuralError{EmployeeID: rec.EmployeeID, Reason: "not found in employee directory", Err: ErrEmployeeNotFound}
		}
		if emp.Bank == nil || emp.Bank.AccountNumber == "" {
			return nil, &StructuralError{EmployeeID: rec.EmployeeID, Reason: "no bank details on file"}
		}
		rows = append(rows, BankFileRow{
			EmployeeID:    rec.EmployeeID,
			EmployeeCode:  emp.Code,
			EmployeeName:  emp.Name,
			NetAmount:     rec.NetSalary,
			AccountName:   emp.Bank.AccountName,
			AccountNumber: emp.Bank.AccountNumber,
			BankName:      emp.Bank.BankName,
			RoutingCode:   emp.Bank.RoutingCode,
		})
		total = total.Add(rec.NetSalary)
	}

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].EmployeeCode != rows[j].EmployeeCode {
			return rows[i].EmployeeCode < rows[j].EmployeeCode
		}
		return rows[i].EmployeeID < rows[j].EmployeeID
	})
	for i := range rows {
		rows[i].SerialNo = i + 1
	}

	return &BankFile{
		Period:      run.Period,
		RunID:       run.ID,
		PaymentDate: dateOnly(paymentDate),
		Rows:        rows,
		Total:       total,
	}, nil
}
