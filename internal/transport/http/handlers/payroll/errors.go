package payrollhandler

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"paycore/internal/domain/payroll"
	"paycore/internal/transport/http/api"
	"paycore/internal/transport/http/middleware"
	"paycore/internal/transport/http/shared"
)

// fail maps a service error onto the envelope by its kind.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	reqID := middleware.GetRequestID(r.Context())
	switch payroll.ErrorKind(err) {
	case payroll.KindValidation:
		var verr *payroll.ValidationError
		errors.As(err, &verr)
		shared.FailValidation(w, reqID, []shared.ValidationIssue{{Field: verr.Field, Reason: verr.Reason}})
	case payroll.KindNotFound:
		api.Fail(w, http.StatusNotFound, "not_found", err.Error(), reqID)
	case payroll.KindStateConflict:
		api.Fail(w, http.StatusConflict, "state_conflict", err.Error(), reqID)
	case payroll.KindStructural:
		api.Fail(w, http.StatusUnprocessableEntity, "structural_error", err.Error(), reqID)
	case payroll.KindConsistency:
		h.log.Error("consistency violation", zap.String("request_id", reqID), zap.Error(err))
		api.Fail(w, http.StatusInternalServerError, "consistency_violation", "payroll totals failed verification", reqID)
	default:
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			api.Fail(w, http.StatusServiceUnavailable, "request_cancelled", "request was cancelled before completion", reqID)
			return
		}
		h.log.Error("payroll request failed", zap.String("path", r.URL.Path), zap.String("request_id", reqID), zap.Error(err))
		api.Fail(w, http.StatusInternalServerError, "internal_error", "internal server error", reqID)
	}
}
