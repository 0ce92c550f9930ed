package payroll

const (
	CategoryBasic     = "BASIC"
	CategoryHouseRent = "HOUSE_RENT"
	CategoryAllowance = "ALLOWANCE"
	CategoryDeduction = "DEDUCTION"
	CategorySpecial   = "SPECIAL"

	CalcFixed      = "FIXED"
	CalcPercentage = "PERCENTAGE"

	CTCBasisMonthly = "MONTHLY"
	CTCBasisAnnual  = "ANNUAL"
)

const (
	RunStatusDraft      = "DRAFT"
	RunStatusProcessing = "PROCESSING"
	RunStatusCompleted  = "COMPLETED"
	RunStatusFailed     = "FAILED"
	RunStatusCancelled  = "CANCELLED"

	RecordStatusCalculated = "CALCULATED"
	RecordStatusApproved   = "APPROVED"
	RecordStatusPaid       = "PAID"

	RevisionStatusPending     = "PENDING"
	RevisionStatusApproved    = "APPROVED"
	RevisionStatusRejected    = "REJECTED"
	RevisionStatusImplemented = "IMPLEMENTED"
)

const (
	AdjustmentBonus      = "BONUS"
	AdjustmentAllowance  = "ALLOWANCE"
	AdjustmentDeduction  = "DEDUCTION"
	AdjustmentCorrection = "CORRECTION"

	PaymentBankTransfer = "BANK_TRANSFER"
	PaymentCash         = "CASH"
	PaymentCheque       = "CHEQUE"

	RevisionIncrement        = "INCREMENT"
	RevisionPromotion        = "PROMOTION"
	RevisionMarketAdjustment = "MARKET_ADJUSTMENT"
	RevisionCorrection       = "CORRECTION"
)

const (
	EventRevisionImplemented = "salary_revision.implemented"
	EventRevisionRejected    = "salary_revision.rejected"
	EventRunFinalized        = "payroll_run.finalized"
	EventRecordAdjusted      = "payroll_record.adjusted"
	EventBulkCompleted       = "payroll_run.bulk_completed"

	AggregateRevision = "salary_revision"
	AggregateRun      = "payroll_run"
	AggregateRecord   = "payroll_record"
)

// StandardComponents is the catalog installed by the seeder.
var StandardComponents = []PayComponent{
	{ID: "basic", Code: "BASIC", Name: "Basic Salary", Category: CategoryBasic, CalculationType: CalcFixed},
	{ID: "hra", Code: "HRA", Name: "House Rent Allowance", Category: CategoryHouseRent, CalculationType: CalcPercentage},
	{ID: "conveyance", Code: "CONV", Name: "Conveyance Allowance", Category: CategoryAllowance, CalculationType: CalcFixed},
	{ID: "special", Code: "SPECIAL", Name: "Special Allowance", Category: CategorySpecial, CalculationType: CalcPercentage},
	{ID: "pf", Code: "PF", Name: "Provident Fund", Category: CategoryDeduction, CalculationType: CalcPercentage},
	{ID: "professional-tax", Code: "PT", Name: "Professional Tax", Category: CategoryDeduction, CalculationType: CalcFixed},
	{ID: "income-tax", Code: "TDS", Name: "Income Tax", Category: CategoryDeduction, CalculationType: CalcFixed},
}

func isEarningCategory(category string) bool {
	switch category {
	case CategoryBasic, CategoryHouseRent, CategoryAllowance, CategorySpecial:
		return true
	}
	return false
}
