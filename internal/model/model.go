package model

import (
	"context"
	"time"
)

// TotalQuestions is the exact size of every assembled exam.
const TotalQuestions = 60

// UserRole represents a user's access level.
type UserRole string

const (
	// UserRoleCandidate is a regular exam taker.
	UserRoleCandidate UserRole = "candidate"
	// UserRoleAdmin can manage activation codes and view accounts.
	UserRoleAdmin UserRole = "admin"
)

// User represents a registered account.
type User struct {
	ID             int64      `json:"id"`
	FullName       string     `json:"full_name"`
	Email          string     `json:"email"`
	PasswordHash   string     `json:"-"`
	Role           UserRole   `json:"role"`
	Active         bool       `json:"active"`
	TrialStartedAt *time.Time `json:"trial_started_at,omitempty"`
	Activated      bool       `json:"activated"`
	ActivationCode string     `json:"activation_code,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	LastLogin      *time.Time `json:"last_login,omitempty"`
}

// AuthSession represents an authentication session.
type AuthSession struct {
	ID        string
	UserID    int64
	CreatedAt time.Time
	ExpiresAt time.Time
}

type userCtxKey struct{}

// ContextWithUser stores a user in the request context.
func ContextWithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, userCtxKey{}, u)
}

// UserFromContext retrieves the authenticated user from context, or nil.
func UserFromContext(ctx context.Context) *User {
	u, _ := ctx.Value(userCtxKey{}).(*User)
	return u
}

// ExamFormat names a standardized exam structure.
type ExamFormat string

const (
	FormatWAEC ExamFormat = "WAEC"
	FormatJAMB ExamFormat = "JAMB"
)

// Option is one labeled choice of a question.
type Option struct {
	Label string `json:"label"`
	Text  string `json:"text"`
}

// Question is an answer-bearing question from the bank.
type Question struct {
	ID            int64      `json:"id"`
	Format        ExamFormat `json:"format"`
	Subject       string     `json:"subject"`
	Prompt        string     `json:"prompt"`
	Passage       string     `json:"passage,omitempty"`
	Options       []Option   `json:"options"`
	CorrectAnswer string     `json:"correct_answer"`
	Explanation   string     `json:"explanation,omitempty"`
}

// SanitizedQuestion is the answer-free view handed to the exam taker.
type SanitizedQuestion struct {
	Index   int      `json:"index"`
	Subject string   `json:"subject"`
	Prompt  string   `json:"prompt"`
	Passage string   `json:"passage,omitempty"`
	Options []Option `json:"options"`
}

// SubjectRequirement is the static subject policy of one exam format.
type SubjectRequirement struct {
	Format ExamFormat
	// RequiredSubjectCount is the exact number of subjects; zero allows
	// anything from one up to MaxSubjects.
	RequiredSubjectCount int
	MaxSubjects          int
	MandatorySubjects    []string
	LanguageSubject      string
	LanguageWeightMin    int
	LanguageWeightMax    int
	TimeAllowed          time.Duration
}

// Blueprint maps each subject to the number of questions it contributes.
type Blueprint map[string]int

// Total returns the number of questions the blueprint asks for.
func (b Blueprint) Total() int {
	n := 0
	for _, c := range b {
		n += c
	}
	return n
}

// ExamSession holds the canonical question set of one exam attempt.
type ExamSession struct {
	Handle    string
	OwnerID   int64
	Format    ExamFormat
	Subjects  []string
	Questions []Question
	CreatedAt time.Time
	ExpiresAt time.Time
	Consumed  bool
}

// Answers maps a question's position index to the chosen label.
type Answers map[int]string

// SubjectScore is the per-subject part of a graded result.
type SubjectScore struct {
	Correct int `json:"correct"`
	Total   int `json:"total"`
}

// ResultItem records how one question was answered, for review.
type ResultItem struct {
	Index         int      `json:"index"`
	Subject       string   `json:"subject"`
	Prompt        string   `json:"prompt"`
	Passage       string   `json:"passage,omitempty"`
	Options       []Option `json:"options"`
	Chosen        string   `json:"chosen"`
	CorrectAnswer string   `json:"correct_answer"`
	IsCorrect     bool     `json:"is_correct"`
	Explanation   string   `json:"explanation,omitempty"`
}

// GradedResult is an immutable, persisted exam outcome.
type GradedResult struct {
	ID              string                  `json:"id"`
	OwnerID         int64                   `json:"owner_id"`
	Handle          string                  `json:"-"`
	Format          ExamFormat              `json:"exam_format"`
	Subjects        []string                `json:"subjects"`
	Score           int                     `json:"score"`
	TotalQuestions  int                     `json:"total_questions"`
	Percentage      float64                 `json:"percentage"`
	PerSubject      map[string]SubjectScore `json:"per_subject"`
	DurationSeconds int                     `json:"duration_seconds"`
	CreatedAt       time.Time               `json:"created_at"`
	Items           []ResultItem            `json:"items,omitempty"`
}

// AccessState is the persisted trial/activation state of an account.
type AccessState struct {
	TrialStartedAt *time.Time
	Activated      bool
	ActivationCode string
}

// ActivationCode is a single-use code granting permanent access.
type ActivationCode struct {
	Code      string     `json:"code"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Used      bool       `json:"used"`
	UsedBy    *int64     `json:"used_by,omitempty"`
	UsedAt    *time.Time `json:"used_at,omitempty"`
}

// QuestionFile is the on-disk layout of a question bank file.
type QuestionFile struct {
	Questions []QuestionImport `json:"questions"`
}

// QuestionImport is used for loading questions from JSON.
type QuestionImport struct {
	ID            any               `json:"id"`
	Question      string            `json:"question"`
	Passage       string            `json:"passage"`
	Options       map[string]string `json:"options"`
	CorrectAnswer string            `json:"correct_answer"`
	Explanation   string            `json:"explanation"`
}

// UserOverview is an account together with its exam count.
type UserOverview struct {
	User
	ExamCount int `json:"exam_count"`
}
