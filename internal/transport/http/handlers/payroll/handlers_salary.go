package payrollhandler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"paycore/internal/domain/payroll"
	"paycore/internal/transport/http/api"
	"paycore/internal/transport/http/middleware"
	"paycore/internal/transport/http/shared"
)

type assignPayload struct {
	EmployeeID    string                      `json:"employeeId"`
	StructureID   string                      `json:"structureId"`
	CTC           decimal.Decimal             `json:"ctc"`
	EffectiveFrom string                      `json:"effectiveFrom"`
	Overrides     []payroll.ComponentOverride `json:"overrides"`
}

type revisionPayload struct {
	EmployeeID    string          `json:"employeeId"`
	NewCTC        decimal.Decimal `json:"newCtc"`
	EffectiveFrom string          `json:"effectiveFrom"`
	RevisionType  string          `json:"revisionType"`
	Reason        string          `json:"reason"`
}

type rejectPayload struct {
	Comments string `json:"comments"`
}

var revisionTypes = []string{
	payroll.RevisionIncrement,
	payroll.RevisionPromotion,
	payroll.RevisionMarketAdjustment,
	payroll.RevisionCorrection,
}

func (h *Handler) handleAssignStructure(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	var payload assignPayload
	if err := shared.DecodeJSON(r, &payload); err != nil {
		shared.FailDecode(w, err, reqID)
		return
	}
	v := shared.NewValidator()
	v.Required("employeeId", payload.EmployeeID, "is required")
	v.Required("structureId", payload.StructureID, "is required")
	v.Money("ctc", payload.CTC, false)
	effectiveFrom, _ := v.Date("effectiveFrom", payload.EffectiveFrom)
	if v.Reject(w, reqID) {
		return
	}

	assignment, err := h.Service.AssignStructure(r.Context(), payroll.AssignInput{
		EmployeeID:    strings.TrimSpace(payload.EmployeeID),
		StructureID:   strings.TrimSpace(payload.StructureID),
		CTC:           payload.CTC,
		EffectiveFrom: effectiveFrom,
		Overrides:     payload.Overrides,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.audit(r, "salary.assign", "salary_assignment", assignment.ID, assignment)
	api.Created(w, assignment, reqID)
}

func (h *Handler) handleListAssignments(w http.ResponseWriter, r *http.Request) {
	assignments, err := h.Service.ListAssignments(r.Context(), chi.URLParam(r, "employeeID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	api.Success(w, assignments, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleSaveBankDetails(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	if h.BankDetails == nil {
		api.Fail(w, http.StatusNotImplemented, "not_configured", "bank details storage is not configured", reqID)
		return
	}
	var payload payroll.BankDetails
	if err := shared.DecodeJSON(r, &payload); err != nil {
		shared.FailDecode(w, err, reqID)
		return
	}
	v := shared.NewValidator()
	v.Required("accountName", payload.AccountName, "is required")
	v.Required("accountNumber", payload.AccountNumber, "is required")
	v.Required("bankName", payload.BankName, "is required")
	if v.Reject(w, reqID) {
		return
	}

	employeeID := chi.URLParam(r, "employeeID")
	if err := h.BankDetails.SaveBankDetails(r.Context(), employeeID, payload); err != nil {
		h.fail(w, r, err)
		return
	}
	h.audit(r, "employee.bank_details.update", "employee", employeeID, nil)
	api.NoContent(w)
}

func (h *Handler) handleCreateRevision(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	var payload revisionPayload
	if err := shared.DecodeJSON(r, &payload); err != nil {
		shared.FailDecode(w, err, reqID)
		return
	}
	v := shared.NewValidator()
	v.Required("employeeId", payload.EmployeeID, "is required")
	v.Required("revisionType", payload.RevisionType, "is required")
	v.Money("newCtc", payload.NewCTC, false)
	v.Enum("revisionType", payload.RevisionType, revisionTypes, "must be one of "+strings.Join(revisionTypes, ", "))
	effectiveFrom, _ := v.Date("effectiveFrom", payload.EffectiveFrom)
	if v.Reject(w, reqID) {
		return
	}

	rev, err := h.Service.CreateRevision(r.Context(), payroll.RevisionInput{
		EmployeeID:    strings.TrimSpace(payload.EmployeeID),
		NewCTC:        payload.NewCTC,
		EffectiveFrom: effectiveFrom,
		RevisionType:  strings.ToUpper(strings.TrimSpace(payload.RevisionType)),
		Reason:        payload.Reason,
		CreatedBy:     actor(r),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.audit(r, "salary.revision.create", "salary_revision", rev.ID, rev)
	api.Created(w, rev, reqID)
}

func (h *Handler) handleListRevisions(w http.ResponseWriter, r *http.Request) {
	page := shared.ParsePagination(r, defaultPageSize, maxPageSize)
	revisions, total, err := h.Service.ListRevisions(r.Context(), payroll.RevisionFilter{
		EmployeeID: r.URL.Query().Get("employeeId"),
		Status:     strings.ToUpper(r.URL.Query().Get("status")),
		Limit:      page.Limit,
		Offset:     page.Offset,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	api.SuccessPage(w, revisions, page.Meta(total), middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleGetRevision(w http.ResponseWriter, r *http.Request) {
	rev, err := h.Service.GetRevision(r.Context(), chi.URLParam(r, "revisionID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	api.Success(w, rev, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleApproveRevision(w http.ResponseWriter, r *http.Request) {
	rev, err := h.Service.ApproveRevision(r.Context(), chi.URLParam(r, "revisionID"), actor(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.audit(r, "salary.revision.approve", "salary_revision", rev.ID, rev)
	api.Success(w, rev, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleRejectRevision(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	var payload rejectPayload
	if err := shared.DecodeJSON(r, &payload); err != nil && !errors.Is(err, shared.ErrEmptyBody) {
		shared.FailDecode(w, err, reqID)
		return
	}
	rev, err := h.Service.RejectRevision(r.Context(), chi.URLParam(r, "revisionID"), actor(r), payload.Comments)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.audit(r, "salary.revision.reject", "salary_revision", rev.ID, rev)
	api.Success(w, rev, reqID)
}
