package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mshcbt/cbthub/internal/access"
	"github.com/mshcbt/cbthub/internal/exam"
	"github.com/mshcbt/cbthub/internal/model"
)

type formatInfo struct {
	Format               model.ExamFormat `json:"exam_format"`
	RequiredSubjectCount int              `json:"required_subject_count,omitempty"`
	MaxSubjects          int              `json:"max_subjects"`
	MandatorySubjects    []string         `json:"mandatory_subjects"`
	TimeAllowed          int              `json:"time_allowed"`
	TotalQuestions       int              `json:"total_questions"`
	AvailableSubjects    []string         `json:"available_subjects"`
}

func (h *Handler) handleFormats(w http.ResponseWriter, r *http.Request) {
	pool := h.exams.Pool()
	var out []formatInfo
	for _, f := range exam.Formats() {
		req, _ := exam.Requirement(f)
		out = append(out, formatInfo{
			Format:               f,
			RequiredSubjectCount: req.RequiredSubjectCount,
			MaxSubjects:          req.MaxSubjects,
			MandatorySubjects:    req.MandatorySubjects,
			TimeAllowed:          int(req.TimeAllowed / time.Second),
			TotalQuestions:       model.TotalQuestions,
			AvailableSubjects:    pool.Subjects(f),
		})
	}
	writeOK(w, http.StatusOK, map[string]any{"formats": out})
}

type assembleRequest struct {
	Format   string   `json:"exam_format"`
	Subjects []string `json:"subjects"`
}

func (h *Handler) handleAssemble(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())

	var req assembleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeFail(w, r, http.StatusBadRequest, "bad_request", "BadRequest")
		return
	}
	format, err := exam.ParseFormat(req.Format)
	if err != nil {
		writeError(w, r, err)
		return
	}

	e, err := h.exams.AssembleExam(r.Context(), user.ID, format, req.Subjects)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusCreated, map[string]any{"exam": e})
}

func (h *Handler) handleResume(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	e, err := h.exams.ResumeExam(r.Context(), user.ID, chi.URLParam(r, "handle"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, map[string]any{"exam": e})
}

type submitRequest struct {
	Answers         model.Answers `json:"answers"`
	DurationSeconds int           `json:"duration_seconds"`
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())

	var req submitRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, model.ErrInvalidSubmission.With(nil, "%v", err))
		return
	}

	// Bound before converting so a huge value cannot wrap around.
	if req.DurationSeconds < 0 || int64(req.DurationSeconds) > int64(h.exams.SessionTTL()/time.Second) {
		writeError(w, r, model.ErrInvalidSubmission.With(nil, "duration %ds out of range", req.DurationSeconds))
		return
	}

	result, err := h.exams.GradeExam(r.Context(), user.ID, chi.URLParam(r, "handle"), req.Answers,
		time.Duration(req.DurationSeconds)*time.Second)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, map[string]any{"result": result})
}

func (h *Handler) handleResults(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	if _, err := h.gate.Authorize(r.Context(), user.ID, access.OpProfile); err != nil {
		writeError(w, r, err)
		return
	}
	results, err := h.store.ListResults(r.Context(), user.ID, h.config.ResultHistory)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if results == nil {
		results = []model.GradedResult{}
	}
	writeOK(w, http.StatusOK, map[string]any{"results": results})
}

// handleResult returns one result with its review items. With ?explain=true
// and an LLM configured, wrong answers the bank left unexplained get a
// generated explanation.
func (h *Handler) handleResult(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	if _, err := h.gate.Authorize(r.Context(), user.ID, access.OpProfile); err != nil {
		writeError(w, r, err)
		return
	}
	result, err := h.store.GetResult(r.Context(), chi.URLParam(r, "resultID"), user.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if result == nil {
		writeError(w, r, model.ErrResultNotFound)
		return
	}

	if explain, _ := strconv.ParseBool(r.URL.Query().Get("explain")); explain && h.llm != nil {
		for i, item := range result.Items {
			if item.IsCorrect || item.Explanation != "" {
				continue
			}
			text, err := h.llm.Explain(r.Context(), item)
			if err != nil {
				slog.Warn("explanation failed", "result_id", result.ID, "index", item.Index, "error", err)
				continue
			}
			result.Items[i].Explanation = text
		}
	}
	writeOK(w, http.StatusOK, map[string]any{"result": result})
}
