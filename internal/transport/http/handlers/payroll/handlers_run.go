package payrollhandler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"paycore/internal/domain/payroll"
	"paycore/internal/platform/jobs"
	"paycore/internal/transport/http/api"
	"paycore/internal/transport/http/middleware"
	"paycore/internal/transport/http/shared"
)

const finalizeEndpoint = "payroll.finalize"

type periodPayload struct {
	Period      string `json:"period"`
	StartDate   string `json:"startDate"`
	EndDate     string `json:"endDate"`
	WorkingDays int    `json:"workingDays"`
}

type calculatePayload struct {
	EmployeeID string `json:"employeeId"`
	periodPayload
}

type bulkPayload struct {
	EmployeeIDs []string `json:"employeeIds"`
	periodPayload
}

type transitionPayload struct {
	Status string `json:"status"`
}

type adjustPayload struct {
	Type   string          `json:"type"`
	Amount decimal.Decimal `json:"amount"`
	Reason string          `json:"reason"`
}

type finalizePayload struct {
	PaymentMethod string `json:"paymentMethod"`
	PaymentDate   string `json:"paymentDate"`
}

var paymentMethods = []string{payroll.PaymentBankTransfer, payroll.PaymentCash, payroll.PaymentCheque}

// period validates the shared period fields and returns the parsed dates.
func (p periodPayload) period(v *shared.Validator) (time.Time, time.Time) {
	v.Required("period", p.Period, "is required")
	start, _ := v.Date("startDate", p.StartDate)
	end, _ := v.Date("endDate", p.EndDate)
	v.DateOrder("startDate", start, "endDate", end)
	if p.WorkingDays < 0 {
		v.Add("workingDays", "must not be negative")
	}
	return start, end
}

func (h *Handler) handleCalculate(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	var payload calculatePayload
	if err := shared.DecodeJSON(r, &payload); err != nil {
		shared.FailDecode(w, err, reqID)
		return
	}
	v := shared.NewValidator()
	v.Required("employeeId", payload.EmployeeID, "is required")
	start, end := payload.period(v)
	if v.Reject(w, reqID) {
		return
	}

	rec, err := h.Service.CalculateEmployeePayroll(r.Context(), payroll.CalculateInput{
		EmployeeID:  strings.TrimSpace(payload.EmployeeID),
		Period:      strings.TrimSpace(payload.Period),
		StartDate:   start,
		EndDate:     end,
		WorkingDays: payload.WorkingDays,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.audit(r, "payroll.calculate", "payroll_record", rec.ID, nil)
	api.Success(w, rec, reqID)
}

func bulkSummary(res payroll.BulkResult) map[string]any {
	return map[string]any{
		"runId":                  res.Run.ID,
		"status":                 res.Run.Status,
		"successfulCalculations": res.SuccessfulCalculations,
		"failedCalculations":     res.FailedCalculations,
		"errors":                 res.Errors,
	}
}

func (h *Handler) handleCalculateBulk(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	var payload bulkPayload
	if err := shared.DecodeJSON(r, &payload); err != nil {
		shared.FailDecode(w, err, reqID)
		return
	}
	v := shared.NewValidator()
	if len(payload.EmployeeIDs) == 0 {
		v.Add("employeeIds", "must list at least one employee")
	}
	start, end := payload.period(v)
	if v.Reject(w, reqID) {
		return
	}
	in := payroll.BulkInput{
		EmployeeIDs: payload.EmployeeIDs,
		Period:      strings.TrimSpace(payload.Period),
		StartDate:   start,
		EndDate:     end,
		WorkingDays: payload.WorkingDays,
	}
	user := actor(r)

	if r.URL.Query().Get("async") == "true" && h.Jobs != nil {
		jobID, err := h.Jobs.Enqueue(r.Context(), jobs.JobBulkPayroll, func(ctx context.Context) (any, error) {
			res, err := h.Service.CalculateBulkPayroll(ctx, in)
			if err != nil {
				return nil, err
			}
			return bulkSummary(res), nil
		})
		if err != nil {
			if errors.Is(err, jobs.ErrQueueFull) {
				api.Fail(w, http.StatusServiceUnavailable, "queue_full", "bulk payroll queue is full", reqID)
				return
			}
			h.fail(w, r, err)
			return
		}
		h.log.Info("bulk payroll queued", zap.String("job_id", jobID), zap.String("user_id", user))
		api.WriteJSON(w, http.StatusAccepted, api.Envelope{Success: true, Data: map[string]string{"jobId": jobID}, RequestID: reqID})
		return
	}

	var result payroll.BulkResult
	run := func(ctx context.Context) (any, error) {
		var err error
		result, err = h.Service.CalculateBulkPayroll(ctx, in)
		if err != nil {
			return nil, err
		}
		return bulkSummary(result), nil
	}
	var err error
	if h.Jobs != nil {
		_, _, err = h.Jobs.RunNow(r.Context(), jobs.JobBulkPayroll, run)
	} else {
		_, err = run(r.Context())
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.audit(r, "payroll.calculate_bulk", "payroll_run", result.Run.ID, bulkSummary(result))
	api.Success(w, result, reqID)
}

func (h *Handler) handleGetJob(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	if h.Jobs == nil {
		api.Fail(w, http.StatusNotFound, "not_found", jobs.ErrJobNotFound.Error(), reqID)
		return
	}
	run, err := h.Jobs.Get(r.Context(), chi.URLParam(r, "jobID"))
	if errors.Is(err, jobs.ErrJobNotFound) {
		api.Fail(w, http.StatusNotFound, "not_found", err.Error(), reqID)
		return
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	api.Success(w, run, reqID)
}

func (h *Handler) handleListRuns(w http.ResponseWriter, r *http.Request) {
	page := shared.ParsePagination(r, defaultPageSize, maxPageSize)
	runs, total, err := h.Service.ListRuns(r.Context(), page.Limit, page.Offset)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	api.SuccessPage(w, runs, page.Meta(total), middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.Service.GetRun(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	api.Success(w, run, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleTransitionRun(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	var payload transitionPayload
	if err := shared.DecodeJSON(r, &payload); err != nil {
		shared.FailDecode(w, err, reqID)
		return
	}
	v := shared.NewValidator()
	v.Required("status", payload.Status, "is required")
	if v.Reject(w, reqID) {
		return
	}
	run, err := h.Service.TransitionRun(r.Context(), chi.URLParam(r, "runID"), strings.ToUpper(strings.TrimSpace(payload.Status)))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.audit(r, "payroll.run.transition", "payroll_run", run.ID, map[string]string{"status": run.Status})
	api.Success(w, run, reqID)
}

func (h *Handler) handleDeleteRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	if err := h.Service.DeleteRun(r.Context(), runID); err != nil {
		h.fail(w, r, err)
		return
	}
	h.audit(r, "payroll.run.delete", "payroll_run", runID, nil)
	api.NoContent(w)
}

func (h *Handler) handleListRecords(w http.ResponseWriter, r *http.Request) {
	records, err := h.Service.ListRecords(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	api.Success(w, records, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleApproveRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	approved, err := h.Service.ApproveRunRecords(r.Context(), runID, actor(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.audit(r, "payroll.run.approve", "payroll_run", runID, map[string]int{"approved": approved})
	api.Success(w, map[string]int{"approved": approved}, middleware.GetRequestID(r.Context()))
}

// handleFinalizeRun pays the run once per Idempotency-Key; a repeated key with
// the same body replays the stored response.
func (h *Handler) handleFinalizeRun(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	runID := chi.URLParam(r, "runID")
	body, err := io.ReadAll(r.Body)
	if err != nil {
		shared.FailDecode(w, err, reqID)
		return
	}
	var payload finalizePayload
	if err := shared.DecodeJSONBytes(body, &payload); err != nil {
		shared.FailDecode(w, err, reqID)
		return
	}
	v := shared.NewValidator()
	v.Required("paymentMethod", payload.PaymentMethod, "is required")
	v.Enum("paymentMethod", payload.PaymentMethod, paymentMethods, "must be one of "+strings.Join(paymentMethods, ", "))
	paymentDate, _ := v.Date("paymentDate", payload.PaymentDate)
	if v.Reject(w, reqID) {
		return
	}

	user := actor(r)
	key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	requestHash := middleware.RequestHash(append([]byte(runID+"\n"), body...))
	if key != "" && h.Idempotency != nil {
		stored, found, err := h.Idempotency.Check(r.Context(), user, finalizeEndpoint, key, requestHash)
		if errors.Is(err, middleware.ErrIdempotencyConflict) {
			api.Fail(w, http.StatusConflict, "idempotency_conflict", err.Error(), reqID)
			return
		}
		if err != nil {
			h.log.Warn("idempotency check failed", zap.String("request_id", reqID), zap.Error(err))
		}
		if found {
			api.Success(w, json.RawMessage(stored), reqID)
			return
		}
	}

	result, err := h.Service.FinalizeRun(r.Context(), payroll.FinalizeInput{
		RunID:         runID,
		PaymentMethod: strings.ToUpper(strings.TrimSpace(payload.PaymentMethod)),
		PaymentDate:   paymentDate,
		Actor:         user,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	if key != "" && h.Idempotency != nil {
		encoded, err := json.Marshal(result)
		if err != nil {
			h.log.Warn("idempotency response marshal failed", zap.Error(err))
		} else if err := h.Idempotency.Save(r.Context(), user, finalizeEndpoint, key, requestHash, encoded); err != nil {
			h.log.Warn("idempotency save failed", zap.String("request_id", reqID), zap.Error(err))
		}
	}
	h.audit(r, "payroll.run.finalize", "payroll_run", runID, map[string]any{
		"paymentMethod": payload.PaymentMethod,
		"paymentCount":  result.PaymentCount,
		"totalNet":      result.Run.TotalNet,
	})
	api.Success(w, result, reqID)
}

func (h *Handler) handleBankFile(w http.ResponseWriter, r *http.Request) {
	file, err := h.Service.BankFile(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	api.Success(w, file, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleBankFileXLSX(w http.ResponseWriter, r *http.Request) {
	file, err := h.Service.BankFile(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	content, err := renderBankFileXLSX(file)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="bank-transfer-`+file.Period+`.xlsx"`)
	if _, err := w.Write(content); err != nil {
		h.log.Warn("bank file write failed", zap.Error(err))
	}
}

func (h *Handler) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	rec, err := h.Service.GetRecord(r.Context(), chi.URLParam(r, "recordID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	api.Success(w, rec, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleApproveRecord(w http.ResponseWriter, r *http.Request) {
	rec, err := h.Service.ApproveRecord(r.Context(), chi.URLParam(r, "recordID"), actor(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.audit(r, "payroll.record.approve", "payroll_record", rec.ID, nil)
	api.Success(w, rec, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleAdjustRecord(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	var payload adjustPayload
	if err := shared.DecodeJSON(r, &payload); err != nil {
		shared.FailDecode(w, err, reqID)
		return
	}
	v := shared.NewValidator()
	v.Required("type", payload.Type, "is required")
	v.Money("amount", payload.Amount, true)
	v.Required("reason", payload.Reason, "is required")
	if v.Reject(w, reqID) {
		return
	}
	rec, err := h.Service.AdjustRecord(r.Context(), payroll.AdjustInput{
		RecordID: chi.URLParam(r, "recordID"),
		Type:     strings.ToUpper(strings.TrimSpace(payload.Type)),
		Amount:   payload.Amount,
		Reason:   payload.Reason,
		Actor:    actor(r),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.audit(r, "payroll.record.adjust", "payroll_record", rec.ID, payload)
	api.Success(w, rec, reqID)
}

func (h *Handler) handleDeleteRecord(w http.ResponseWriter, r *http.Request) {
	recordID := chi.URLParam(r, "recordID")
	if err := h.Service.DeleteRecord(r.Context(), recordID); err != nil {
		h.fail(w, r, err)
		return
	}
	h.audit(r, "payroll.record.delete", "payroll_record", recordID, nil)
	api.NoContent(w)
}

func (h *Handler) handlePayslip(w http.ResponseWriter, r *http.Request) {
	slip, err := h.Service.AssemblePayslip(r.Context(), chi.URLParam(r, "recordID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	api.Success(w, slip, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handlePayslipPDF(w http.ResponseWriter, r *http.Request) {
	slip, err := h.Service.AssemblePayslip(r.Context(), chi.URLParam(r, "recordID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	content, err := renderPayslipPDF(slip)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="payslip-`+slip.Period+`-`+slip.Employee.ID+`.pdf"`)
	if _, err := w.Write(content); err != nil {
		h.log.Warn("payslip write failed", zap.Error(err))
	}
}
