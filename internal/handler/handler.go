package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/time/rate"

	"github.com/mshcbt/cbthub/internal/access"
	"github.com/mshcbt/cbthub/internal/activation"
	"github.com/mshcbt/cbthub/internal/exam"
	appI18n "github.com/mshcbt/cbthub/internal/i18n"
	"github.com/mshcbt/cbthub/internal/model"
	"github.com/mshcbt/cbthub/internal/store"
)

// Explainer writes an explanation for a reviewed question.
type Explainer interface {
	Explain(ctx context.Context, item model.ResultItem) (string, error)
}

// Config holds HTTP-level settings.
type Config struct {
	SecureCookies bool
	// CodeValidity is the default lifetime of codes issued by an admin.
	CodeValidity time.Duration
	RedeemRate   rate.Limit
	RedeemBurst  int
	// ResultHistory caps the result list; zero means 10.
	ResultHistory int
	Now           func() time.Time
}

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store   *store.Store
	exams   *exam.Service
	gate    *access.Gate
	ledger  *activation.Ledger
	llm     Explainer
	config  Config
	redeems *accountLimiter
}

// New creates a new Handler. llm may be nil, in which case result review
// only shows the bank's own explanations.
func New(s *store.Store, exams *exam.Service, gate *access.Gate, ledger *activation.Ledger, llm Explainer, cfg Config) *Handler {
	if cfg.ResultHistory <= 0 {
		cfg.ResultHistory = 10
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Handler{
		store:   s,
		exams:   exams,
		gate:    gate,
		ledger:  ledger,
		llm:     llm,
		config:  cfg,
		redeems: newAccountLimiter(cfg.RedeemRate, cfg.RedeemBurst),
	}
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Post("/register", h.handleRegister)
		r.Post("/login", h.handleLogin)
		r.Post("/logout", h.handleLogout)
		r.Get("/formats", h.handleFormats)

		r.Group(func(r chi.Router) {
			r.Use(h.requireAuth)

			r.Get("/access", h.handleAccess)
			r.Get("/me", h.handleMe)
			r.Post("/activate", h.handleActivate)

			r.Post("/exams", h.handleAssemble)
			r.Get("/exams/{handle}", h.handleResume)
			r.Post("/exams/{handle}/submit", h.handleSubmit)

			r.Get("/results", h.handleResults)
			r.Get("/results/{resultID}", h.handleResult)

			r.Route("/admin", func(r chi.Router) {
				r.Use(requireRole(model.UserRoleAdmin))
				r.Get("/users", h.handleAdminUsers)
				r.Post("/users/{userID}/toggle-active", h.handleToggleUserActive)
				r.Get("/codes", h.handleAdminCodes)
				r.Post("/codes", h.handleGenerateCodes)
				r.Post("/questions", h.handleUploadQuestions)
			})
		})
	})
}

// writeOK sends {"success": true} merged with fields.
func writeOK(w http.ResponseWriter, status int, fields map[string]any) {
	body := map[string]any{"success": true}
	for k, v := range fields {
		body[k] = v
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

// writeFail sends a rejection whose message is the localized msgID.
func writeFail(w http.ResponseWriter, r *http.Request, status int, reason, msgID string) {
	writeJSON(w, status, map[string]any{
		"success": false,
		"reason":  reason,
		"message": appI18n.T(r.Context(), msgID),
	})
}

// writeError maps err to a status and a localized rejection. Anything that
// is not a *model.Error is an internal fault and its text is not exposed.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var me *model.Error
	if !errors.As(err, &me) {
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeFail(w, r, http.StatusInternalServerError, "internal_error", "InternalError")
		return
	}
	slog.Debug("request rejected", "path", r.URL.Path, "reason", me.Reason, "detail", me.Detail)
	writeJSON(w, statusFor(me), map[string]any{
		"success": false,
		"reason":  me.Reason,
		"message": appI18n.Td(r.Context(), me.Reason, me.Data),
	})
}

func statusFor(e *model.Error) int {
	switch e.Reason {
	case model.ErrInvalidCredentials.Reason:
		return http.StatusUnauthorized
	case model.ErrEmailTaken.Reason,
		model.ErrSessionAlreadyConsumed.Reason,
		model.ErrCodeAlreadyUsed.Reason,
		model.ErrAlreadyActivated.Reason:
		return http.StatusConflict
	case model.ErrSessionExpired.Reason, model.ErrCodeExpired.Reason:
		return http.StatusGone
	case model.ErrAccountNotFound.Reason, model.ErrCodeNotFound.Reason:
		return http.StatusNotFound
	}
	switch e.Category {
	case model.CategoryValidation, model.CategoryCode:
		return http.StatusBadRequest
	case model.CategoryUnavailable:
		return http.StatusServiceUnavailable
	case model.CategorySession:
		return http.StatusNotFound
	case model.CategoryAccess:
		return http.StatusForbidden
	}
	return http.StatusInternalServerError
}

// decodeJSON reads a JSON request body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	return json.NewDecoder(r.Body).Decode(v)
}
