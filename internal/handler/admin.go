package handler

import (
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mshcbt/cbthub/internal/access"
	"github.com/mshcbt/cbthub/internal/bank"
	"github.com/mshcbt/cbthub/internal/exam"
	appI18n "github.com/mshcbt/cbthub/internal/i18n"
	"github.com/mshcbt/cbthub/internal/model"
)

const maxCodesPerRequest = 100

type adminUser struct {
	model.UserOverview
	Access access.Summary `json:"access"`
}

func (h *Handler) handleAdminUsers(w http.ResponseWriter, r *http.Request) {
	overviews, err := h.store.ListUserOverviews(r.Context())
	if err != nil {
		slog.Error("failed to list users", "error", err)
		writeError(w, r, err)
		return
	}
	now := h.config.Now()
	users := make([]adminUser, 0, len(overviews))
	for _, o := range overviews {
		st := model.AccessState{
			TrialStartedAt: o.TrialStartedAt,
			Activated:      o.Activated,
			ActivationCode: o.ActivationCode,
		}
		users = append(users, adminUser{
			UserOverview: o,
			Access:       access.Summarize(st, h.gate.TrialDuration(), now),
		})
	}
	writeOK(w, http.StatusOK, map[string]any{"users": users})
}

func (h *Handler) handleToggleUserActive(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		writeFail(w, r, http.StatusBadRequest, "bad_request", "BadRequest")
		return
	}

	if err := h.store.ToggleUserActive(r.Context(), id); err != nil {
		slog.Error("failed to toggle user active", "id", id, "error", err)
		writeError(w, r, err)
		return
	}
	if err := h.store.DeleteUserAuthSessions(r.Context(), id); err != nil {
		slog.Warn("failed to sign out toggled user", "id", id, "error", err)
	}
	user, err := h.store.GetUserByID(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, map[string]any{"user": user})
}

func (h *Handler) handleAdminCodes(w http.ResponseWriter, r *http.Request) {
	codes, err := h.store.ListActivationCodes(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if codes == nil {
		codes = []model.ActivationCode{}
	}
	writeOK(w, http.StatusOK, map[string]any{"codes": codes})
}

type generateCodesRequest struct {
	Count int `json:"count"`
	// Days overrides the default validity; zero keeps it.
	Days int `json:"days"`
}

func (h *Handler) handleGenerateCodes(w http.ResponseWriter, r *http.Request) {
	var req generateCodesRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			writeFail(w, r, http.StatusBadRequest, "bad_request", "BadRequest")
			return
		}
	}
	if req.Count <= 0 {
		req.Count = 1
	}
	if req.Count > maxCodesPerRequest || req.Days < 0 {
		writeFail(w, r, http.StatusBadRequest, "bad_request", "BadRequest")
		return
	}
	validity := h.config.CodeValidity
	if req.Days > 0 {
		validity = time.Duration(req.Days) * 24 * time.Hour
	}

	codes, err := h.ledger.Issue(r.Context(), req.Count, validity)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusCreated, map[string]any{
		"codes":   codes,
		"message": appI18n.Tp(r.Context(), "CodesIssued", len(codes)),
	})
}

// handleUploadQuestions imports one bank file and reloads the pool so new
// exams can draw from it at once.
func (h *Handler) handleUploadQuestions(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(10 << 20); err != nil {
		writeFail(w, r, http.StatusBadRequest, "bad_request", "BadRequest")
		return
	}

	file, header, err := r.FormFile("questions_file")
	if err != nil {
		writeFail(w, r, http.StatusBadRequest, "bad_request", "BadRequest")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var rep bank.Report
	if err := bank.ImportData(r.Context(), h.store, header.Filename, data, &rep); err != nil {
		slog.Warn("question upload rejected", "filename", header.Filename, "error", err)
		writeFail(w, r, http.StatusBadRequest, "bad_request", "BadRequest")
		return
	}

	pool, err := exam.LoadPool(r.Context(), h.store)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.exams.SetPool(pool)
	slog.Info("uploaded questions via admin", "filename", header.Filename, "imported", rep.Imported, "pool_size", pool.Size())

	writeOK(w, http.StatusOK, map[string]any{"report": rep, "pool_size": pool.Size()})
}
