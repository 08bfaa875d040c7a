package handler

import (
	"net/http"

	"github.com/mshcbt/cbthub/internal/access"
	appI18n "github.com/mshcbt/cbthub/internal/i18n"
	"github.com/mshcbt/cbthub/internal/model"
)

func (h *Handler) accessMessage(r *http.Request, sum access.Summary) string {
	switch sum.Status {
	case access.TrialActive:
		return appI18n.Tp(r.Context(), "TrialDaysLeft", sum.DaysLeft)
	case access.TrialExpired:
		return appI18n.T(r.Context(), model.ErrTrialExpired.Reason)
	case access.Activated:
		return appI18n.T(r.Context(), "ActivationSuccess")
	}
	return ""
}

func (h *Handler) handleAccess(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	sum, err := h.gate.Authorize(r.Context(), user.ID, access.OpStatus)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, map[string]any{
		"access":  sum,
		"message": h.accessMessage(r, sum),
	})
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	sum, err := h.gate.Authorize(r.Context(), user.ID, access.OpProfile)
	if err != nil {
		writeError(w, r, err)
		return
	}
	count, err := h.store.CountResults(r.Context(), user.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, map[string]any{
		"user":       user,
		"access":     sum,
		"message":    h.accessMessage(r, sum),
		"exam_count": count,
	})
}

type activateRequest struct {
	Code string `json:"code"`
}

func (h *Handler) handleActivate(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	if !h.redeems.Allow(user.ID, h.config.Now()) {
		writeFail(w, r, http.StatusTooManyRequests, "rate_limited", "RateLimited")
		return
	}

	var req activateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeFail(w, r, http.StatusBadRequest, "bad_request", "BadRequest")
		return
	}
	if _, err := h.gate.Authorize(r.Context(), user.ID, access.OpRedeem); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.ledger.Redeem(r.Context(), user.ID, req.Code); err != nil {
		writeError(w, r, err)
		return
	}

	sum, err := h.gate.Check(r.Context(), user.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, map[string]any{
		"access":  sum,
		"message": appI18n.T(r.Context(), "ActivationSuccess"),
	})
}
