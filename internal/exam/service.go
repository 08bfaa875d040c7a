package exam

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/mshcbt/cbthub/internal/access"
	"github.com/mshcbt/cbthub/internal/model"
)

// SessionStore persists exam sessions and their graded results.
type SessionStore interface {
	CreateExamSession(ctx context.Context, ownerID int64, format model.ExamFormat, subjects []string, questions []model.Question, now time.Time, ttl time.Duration) (model.ExamSession, error)
	GetExamSession(ctx context.Context, handle string, ownerID int64, now time.Time) (model.ExamSession, error)
	ConsumeExamSession(ctx context.Context, handle string, ownerID int64, now time.Time, build func(model.ExamSession) (model.GradedResult, error)) (model.GradedResult, error)
}

// Authorizer decides whether an account may perform an operation.
type Authorizer interface {
	Authorize(ctx context.Context, userID int64, op access.Operation) (access.Summary, error)
}

// Config tunes a Service.
type Config struct {
	SessionTTL time.Duration
	Rand       Rand
	Now        func() time.Time
}

// Service assembles and grades exams.
type Service struct {
	pool     atomic.Pointer[Pool]
	sessions SessionStore
	gate     Authorizer
	planner  *Planner
	sampler  *Sampler
	ttl      time.Duration
	now      func() time.Time
}

// NewService wires the engine around a loaded pool.
func NewService(pool *Pool, sessions SessionStore, gate Authorizer, cfg Config) *Service {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 3 * time.Hour
	}
	s := &Service{
		sessions: sessions,
		gate:     gate,
		planner:  NewPlanner(cfg.Rand),
		sampler:  NewSampler(cfg.Rand),
		ttl:      cfg.SessionTTL,
		now:      cfg.Now,
	}
	s.SetPool(pool)
	return s
}

// SetPool swaps the question bank used by later assemblies.
func (s *Service) SetPool(p *Pool) {
	if p == nil {
		p = NewPool(nil)
	}
	s.pool.Store(p)
}

// Pool returns the current question bank.
func (s *Service) Pool() *Pool {
	return s.pool.Load()
}

// SessionTTL is how long an exam session stays gradable. No honest
// submission reports a longer duration.
func (s *Service) SessionTTL() time.Duration {
	return s.ttl
}

// Exam is what the exam taker receives: no answers, no explanations.
type Exam struct {
	Handle         string                    `json:"handle"`
	Format         model.ExamFormat          `json:"exam_format"`
	Subjects       []string                  `json:"subjects"`
	Questions      []model.SanitizedQuestion `json:"questions"`
	TotalQuestions int                       `json:"total_questions"`
	TimeAllowed    int                       `json:"time_allowed"`
	ExpiresAt      time.Time                 `json:"expires_at"`
	Shortfalls     []Shortfall               `json:"shortfalls,omitempty"`
}

// AssembleExam builds a fresh exam for ownerID and stores its canonical
// question set under a new handle.
func (s *Service) AssembleExam(ctx context.Context, ownerID int64, format model.ExamFormat, subjects []string) (Exam, error) {
	if _, err := s.gate.Authorize(ctx, ownerID, access.OpAssemble); err != nil {
		return Exam{}, err
	}

	req, ok := Requirement(format)
	if !ok {
		return Exam{}, model.ErrUnknownFormat.With(map[string]any{"Format": string(format)}, "%q", format)
	}
	subjects, err := ValidateSubjects(req, subjects)
	if err != nil {
		return Exam{}, err
	}

	bp, err := s.planner.Plan(req, subjects)
	if err != nil {
		return Exam{}, err
	}
	asm, err := s.sampler.Sample(bp, s.Pool(), format, req.LanguageSubject)
	if err != nil {
		return Exam{}, err
	}

	sess, err := s.sessions.CreateExamSession(ctx, ownerID, format, subjects, asm.Questions, s.now(), s.ttl)
	if err != nil {
		return Exam{}, fmt.Errorf("create exam session: %w", err)
	}
	slog.Info("exam assembled",
		"user_id", ownerID,
		"format", format,
		"subjects", subjects,
		"questions", len(asm.Questions))

	exam := newExam(sess, req)
	exam.Shortfalls = asm.Shortfalls
	return exam, nil
}

// ResumeExam returns the sanitized questions of a live session, in the same
// order they were first handed out.
func (s *Service) ResumeExam(ctx context.Context, ownerID int64, handle string) (Exam, error) {
	if _, err := s.gate.Authorize(ctx, ownerID, access.OpAssemble); err != nil {
		return Exam{}, err
	}
	sess, err := s.sessions.GetExamSession(ctx, handle, ownerID, s.now())
	if err != nil {
		return Exam{}, err
	}
	req, _ := Requirement(sess.Format)
	return newExam(sess, req), nil
}

func newExam(sess model.ExamSession, req model.SubjectRequirement) Exam {
	return Exam{
		Handle:         sess.Handle,
		Format:         sess.Format,
		Subjects:       sess.Subjects,
		Questions:      Sanitize(sess.Questions),
		TotalQuestions: len(sess.Questions),
		TimeAllowed:    int(req.TimeAllowed / time.Second),
		ExpiresAt:      sess.ExpiresAt,
	}
}

// GradeExam scores answers against the session's canonical set and stores
// the result. A session grades at most once; a second submission fails with
// model.ErrSessionAlreadyConsumed and creates nothing.
func (s *Service) GradeExam(ctx context.Context, ownerID int64, handle string, answers model.Answers, duration time.Duration) (model.GradedResult, error) {
	if _, err := s.gate.Authorize(ctx, ownerID, access.OpGrade); err != nil {
		return model.GradedResult{}, err
	}
	if duration < 0 || duration > s.ttl {
		return model.GradedResult{}, model.ErrInvalidSubmission.With(nil, "duration %v outside 0..%v", duration, s.ttl)
	}

	now := s.now()
	result, err := s.sessions.ConsumeExamSession(ctx, handle, ownerID, now, func(sess model.ExamSession) (model.GradedResult, error) {
		for idx := range answers {
			if idx < 0 || idx >= len(sess.Questions) {
				return model.GradedResult{}, model.ErrInvalidSubmission.With(
					map[string]any{"Index": idx}, "answer index %d out of range", idx)
			}
		}
		out := Grade(sess.Questions, answers)
		return model.GradedResult{
			Format:          sess.Format,
			Subjects:        sess.Subjects,
			Score:           out.Score,
			TotalQuestions:  out.Total,
			Percentage:      out.Percentage,
			PerSubject:      out.PerSubject,
			DurationSeconds: int(duration / time.Second),
			CreatedAt:       now.UTC(),
			Items:           out.Items,
		}, nil
	})
	if err != nil {
		return model.GradedResult{}, err
	}
	slog.Info("exam graded",
		"user_id", ownerID,
		"result_id", result.ID,
		"score", result.Score,
		"total", result.TotalQuestions)
	return result, nil
}
