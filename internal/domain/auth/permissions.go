package auth

const (
	RolePayrollAdmin = "PAYROLL_ADMIN"
	RoleFinance      = "FINANCE"
	RoleHR           = "HR"
	RoleEmployee     = "EMPLOYEE"
)

const (
	PermPayrollRead       = "payroll.read"
	PermPayrollRun        = "payroll.run"
	PermPayrollAdjust     = "payroll.adjust"
	PermPayrollApprove    = "payroll.approve"
	PermPayrollFinalize   = "payroll.finalize"
	PermSalaryAssign      = "salary.assign"
	PermRevisionCreate    = "salary.revision.create"
	PermRevisionApprove   = "salary.revision.approve"
	PermPayslipRead       = "payslip.read"
	PermBankFileExport    = "payroll.bankfile.export"
	PermSystemMetricsRead = "system.metrics.read"
	PermAuditRead         = "audit.read"
)

var DefaultPermissions = []string{
	PermPayrollRead,
	PermPayrollRun,
	PermPayrollAdjust,
	PermPayrollApprove,
	PermPayrollFinalize,
	PermSalaryAssign,
	PermRevisionCreate,
	PermRevisionApprove,
	PermPayslipRead,
	PermBankFileExport,
	PermSystemMetricsRead,
	PermAuditRead,
}

var RolePermissions = map[string][]string{
	RolePayrollAdmin: {
		PermPayrollRead,
		PermPayrollRun,
		PermPayrollAdjust,
		PermPayrollApprove,
		PermSalaryAssign,
		PermRevisionCreate,
		PermPayslipRead,
		PermSystemMetricsRead,
		PermAuditRead,
	},
	RoleFinance: {
		PermPayrollRead,
		PermPayrollApprove,
		PermPayrollFinalize,
		PermBankFileExport,
		PermPayslipRead,
		PermAuditRead,
	},
	RoleHR: {
		PermPayrollRead,
		PermSalaryAssign,
		PermRevisionCreate,
		PermRevisionApprove,
		PermPayslipRead,
	},
	RoleEmployee: {
		PermPayslipRead,
	},
}
