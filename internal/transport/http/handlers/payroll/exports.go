package payrollhandler

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	"paycore/internal/domain/payroll"
)

const bankSheet = "Bank Transfer"

var bankFileHeader = []string{
	"S.No",
	"Employee Code",
	"Employee Name",
	"Account Name",
	"Account Number",
	"Bank Name",
	"Routing Code",
	"Net Amount",
}

func renderPayslipPDF(slip payroll.Payslip) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	pdf.Cell(40, 10, "Payslip")
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "", 11)
	header := []string{
		fmt.Sprintf("Employee: %s (%s)", slip.Employee.Name, slip.Employee.Code),
		fmt.Sprintf("Period: %s (%s to %s)", slip.Period, slip.StartDate.Format(time.DateOnly), slip.EndDate.Format(time.DateOnly)),
		fmt.Sprintf("Payable days: %d of %d", slip.PayableDays, slip.WorkingDays),
	}
	if slip.Employee.AccountMasked != "" {
		header = append(header, fmt.Sprintf("Bank: %s %s", slip.Employee.BankName, slip.Employee.AccountMasked))
	}
	if slip.PaidAt != nil {
		header = append(header, fmt.Sprintf("Paid: %s by %s", slip.PaidAt.Format(time.DateOnly), slip.PaymentMethod))
	}
	for _, line := range header {
		pdf.Cell(0, 7, tr(line))
		pdf.Ln(7)
	}
	pdf.Ln(4)

	section := func(title string, lines []payroll.PayslipLine, total string) {
		pdf.SetFont("Helvetica", "B", 11)
		pdf.CellFormat(130, 8, title, "1", 0, "L", false, 0, "")
		pdf.CellFormat(50, 8, "Amount", "1", 1, "R", false, 0, "")
		pdf.SetFont("Helvetica", "", 11)
		for _, line := range lines {
			label := line.Label
			if line.IsProrated {
				label += " *"
			}
			pdf.CellFormat(130, 7, tr(label), "1", 0, "L", false, 0, "")
			pdf.CellFormat(50, 7, line.Amount.StringFixed(2), "1", 1, "R", false, 0, "")
		}
		pdf.SetFont("Helvetica", "B", 11)
		pdf.CellFormat(130, 7, "Total", "1", 0, "L", false, 0, "")
		pdf.CellFormat(50, 7, total, "1", 1, "R", false, 0, "")
		pdf.Ln(4)
	}
	section("Earnings", slip.Earnings, slip.Gross.StringFixed(2))
	section("Deductions", slip.Deductions, slip.TotalDeductions.StringFixed(2))

	pdf.SetFont("Helvetica", "B", 13)
	pdf.CellFormat(130, 9, "Net pay", "1", 0, "L", false, 0, "")
	pdf.CellFormat(50, 9, slip.Net.StringFixed(2), "1", 1, "R", false, 0, "")
	pdf.SetFont("Helvetica", "I", 9)
	pdf.Ln(3)
	pdf.Cell(0, 6, "* prorated for payable days")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render payslip: %w", err)
	}
	return buf.Bytes(), nil
}

func renderBankFileXLSX(file *payroll.BankFile) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(bankSheet)
	if err != nil {
		return nil, fmt.Errorf("create sheet: %w", err)
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("drop default sheet: %w", err)
	}
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("header style: %w", err)
	}
	amountStyle, err := f.NewStyle(&excelize.Style{NumFmt: 4})
	if err != nil {
		return nil, fmt.Errorf("amount style: %w", err)
	}

	header := make([]any, len(bankFileHeader))
	for i, name := range bankFileHeader {
		header[i] = name
	}
	if err := f.SetSheetRow(bankSheet, "A1", &header); err != nil {
		return nil, err
	}
	lastCol, _ := excelize.ColumnNumberToName(len(bankFileHeader))
	if err := f.SetCellStyle(bankSheet, "A1", lastCol+"1", headerStyle); err != nil {
		return nil, err
	}

	for i, row := range file.Rows {
		values := []any{
			row.SerialNo,
			row.EmployeeCode,
			row.EmployeeName,
			row.AccountName,
			row.AccountNumber,
			row.BankName,
			row.RoutingCode,
			row.NetAmount.InexactFloat64(),
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(bankSheet, cell, &values); err != nil {
			return nil, err
		}
	}

	totalRow := len(file.Rows) + 2
	if err := f.SetCellValue(bankSheet, fmt.Sprintf("G%d", totalRow), "Total"); err != nil {
		return nil, err
	}
	if err := f.SetCellValue(bankSheet, fmt.Sprintf("H%d", totalRow), file.Total.InexactFloat64()); err != nil {
		return nil, err
	}
	if err := f.SetCellStyle(bankSheet, "H2", fmt.Sprintf("H%d", totalRow), amountStyle); err != nil {
		return nil, err
	}
	if err := f.SetColWidth(bankSheet, "A", lastCol, 20); err != nil {
		return nil, err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}
