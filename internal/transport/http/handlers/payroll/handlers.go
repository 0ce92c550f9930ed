package payrollhandler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"paycore/internal/domain/audit"
	"paycore/internal/domain/auth"
	"paycore/internal/domain/payroll"
	"paycore/internal/platform/jobs"
	"paycore/internal/transport/http/api"
	"paycore/internal/transport/http/middleware"
	"paycore/internal/transport/http/shared"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

type Deps struct {
	Service     *payroll.Service
	Perms       middleware.PermissionStore
	Audit       *audit.Service
	Idempotency middleware.Idempotency
	Jobs        *jobs.Service
	BankDetails payroll.BankDetailsWriter
	Logger      *zap.Logger
}

type Handler struct {
	Service     *payroll.Service
	Perms       middleware.PermissionStore
	Audit       *audit.Service
	Idempotency middleware.Idempotency
	Jobs        *jobs.Service
	BankDetails payroll.BankDetailsWriter
	log         *zap.Logger
}

func NewHandler(d Deps) *Handler {
	log := d.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		Service:     d.Service,
		Perms:       d.Perms,
		Audit:       d.Audit,
		Idempotency: d.Idempotency,
		Jobs:        d.Jobs,
		BankDetails: d.BankDetails,
		log:         log.Named("payroll.http"),
	}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	can := func(perm string) func(http.Handler) http.Handler {
		return middleware.RequirePermission(perm, h.Perms)
	}
	r.Route("/payroll", func(r chi.Router) {
		r.With(can(auth.PermPayrollRead)).Get("/components", h.handleListComponents)

		r.With(can(auth.PermSalaryAssign)).Post("/assignments", h.handleAssignStructure)
		r.With(can(auth.PermPayrollRead)).Get("/employees/{employeeID}/assignments", h.handleListAssignments)
		r.With(can(auth.PermSalaryAssign)).Put("/employees/{employeeID}/bank-details", h.handleSaveBankDetails)

		r.With(can(auth.PermRevisionCreate)).Post("/revisions", h.handleCreateRevision)
		r.With(can(auth.PermPayrollRead)).Get("/revisions", h.handleListRevisions)
		r.With(can(auth.PermPayrollRead)).Get("/revisions/{revisionID}", h.handleGetRevision)
		r.With(can(auth.PermRevisionApprove)).Post("/revisions/{revisionID}/approve", h.handleApproveRevision)
		r.With(can(auth.PermRevisionApprove)).Post("/revisions/{revisionID}/reject", h.handleRejectRevision)

		r.With(can(auth.PermPayrollRun)).Post("/calculate", h.handleCalculate)
		r.With(can(auth.PermPayrollRun)).Post("/calculate/bulk", h.handleCalculateBulk)
		r.With(can(auth.PermPayrollRead)).Get("/jobs/{jobID}", h.handleGetJob)

		r.With(can(auth.PermPayrollRead)).Get("/runs", h.handleListRuns)
		r.With(can(auth.PermPayrollRead)).Get("/runs/{runID}", h.handleGetRun)
		r.With(can(auth.PermPayrollRun)).Post("/runs/{runID}/transition", h.handleTransitionRun)
		r.With(can(auth.PermPayrollRun)).Delete("/runs/{runID}", h.handleDeleteRun)
		r.With(can(auth.PermPayrollRead)).Get("/runs/{runID}/records", h.handleListRecords)
		r.With(can(auth.PermPayrollApprove)).Post("/runs/{runID}/approve", h.handleApproveRun)
		r.With(can(auth.PermPayrollFinalize)).Post("/runs/{runID}/finalize", h.handleFinalizeRun)
		r.With(can(auth.PermBankFileExport)).Get("/runs/{runID}/bank-file", h.handleBankFile)
		r.With(can(auth.PermBankFileExport)).Get("/runs/{runID}/bank-file.xlsx", h.handleBankFileXLSX)

		r.With(can(auth.PermPayrollRead)).Get("/records/{recordID}", h.handleGetRecord)
		r.With(can(auth.PermPayrollApprove)).Post("/records/{recordID}/approve", h.handleApproveRecord)
		r.With(can(auth.PermPayrollAdjust)).Post("/records/{recordID}/adjustments", h.handleAdjustRecord)
		r.With(can(auth.PermPayrollRun)).Delete("/records/{recordID}", h.handleDeleteRecord)
		r.With(can(auth.PermPayslipRead)).Get("/records/{recordID}/payslip", h.handlePayslip)
		r.With(can(auth.PermPayslipRead)).Get("/records/{recordID}/payslip.pdf", h.handlePayslipPDF)
	})
}

func actor(r *http.Request) string {
	user, _ := middleware.GetUser(r.Context())
	return user.UserID
}

func (h *Handler) audit(r *http.Request, action, entityType, entityID string, after any) {
	h.Audit.RecordQuietly(r.Context(), audit.Entry{
		ActorID:    actor(r),
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		RequestID:  middleware.GetRequestID(r.Context()),
		IP:         shared.ClientIP(r),
		After:      after,
	})
}

func (h *Handler) handleListComponents(w http.ResponseWriter, r *http.Request) {
	components, err := h.Service.ListComponents(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	api.Success(w, components, middleware.GetRequestID(r.Context()))
}
