package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mshcbt/cbthub/internal/model"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One connection serializes writers, which is what gives session
	// consumption and code redemption their per-record exclusivity.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		full_name TEXT NOT NULL,
		email TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT 'candidate',
		active INTEGER NOT NULL DEFAULT 1,
		trial_started_at INTEGER,
		activated INTEGER NOT NULL DEFAULT 0,
		activation_code TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		last_login INTEGER
	);

	CREATE TABLE IF NOT EXISTS auth_sessions (
		id TEXT PRIMARY KEY,
		user_id INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		expires_at INTEGER NOT NULL,
		FOREIGN KEY (user_id) REFERENCES users(id)
	);

	CREATE TABLE IF NOT EXISTS questions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		format TEXT NOT NULL,
		subject TEXT NOT NULL,
		source_id TEXT NOT NULL DEFAULT '',
		prompt TEXT NOT NULL,
		passage TEXT NOT NULL DEFAULT '',
		options_json TEXT NOT NULL,
		correct_answer TEXT NOT NULL,
		explanation TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_questions_format_subject ON questions(format, subject);

	CREATE TABLE IF NOT EXISTS imported_files (
		path TEXT PRIMARY KEY,
		hash TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS exam_sessions (
		handle TEXT PRIMARY KEY,
		owner_id INTEGER NOT NULL,
		format TEXT NOT NULL,
		subjects_json TEXT NOT NULL,
		questions_json TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		expires_at INTEGER NOT NULL,
		consumed INTEGER NOT NULL DEFAULT 0,
		FOREIGN KEY (owner_id) REFERENCES users(id)
	);
	CREATE INDEX IF NOT EXISTS idx_exam_sessions_expires ON exam_sessions(expires_at);

	CREATE TABLE IF NOT EXISTS results (
		id TEXT PRIMARY KEY,
		owner_id INTEGER NOT NULL,
		handle TEXT NOT NULL UNIQUE,
		format TEXT NOT NULL,
		subjects_json TEXT NOT NULL,
		score INTEGER NOT NULL,
		total_questions INTEGER NOT NULL,
		percentage REAL NOT NULL,
		per_subject_json TEXT NOT NULL,
		items_json TEXT NOT NULL,
		duration_seconds INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (owner_id) REFERENCES users(id)
	);
	CREATE INDEX IF NOT EXISTS idx_results_owner ON results(owner_id, created_at DESC);

	CREATE TABLE IF NOT EXISTS activation_codes (
		code TEXT PRIMARY KEY,
		created_at INTEGER NOT NULL,
		expires_at INTEGER,
		used INTEGER NOT NULL DEFAULT 0,
		used_by INTEGER,
		used_at INTEGER
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// InsertQuestion stores a question.
func (s *Store) InsertQuestion(ctx context.Context, q model.Question, sourceID string) (int64, error) {
	return insertQuestion(ctx, s.db, q, sourceID)
}

func insertQuestion(ctx context.Context, e execer, q model.Question, sourceID string) (int64, error) {
	opts, err := json.Marshal(q.Options)
	if err != nil {
		return 0, err
	}
	res, err := e.ExecContext(ctx,
		`INSERT INTO questions (format, subject, source_id, prompt, passage, options_json, correct_answer, explanation)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		q.Format, q.Subject, sourceID, q.Prompt, q.Passage, string(opts), q.CorrectAnswer, q.Explanation,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// ListQuestions returns every question in the bank ordered by ID.
func (s *Store) ListQuestions(ctx context.Context) ([]model.Question, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, format, subject, prompt, passage, options_json, correct_answer, explanation
		 FROM questions ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var questions []model.Question
	for rows.Next() {
		var q model.Question
		var opts string
		if err := rows.Scan(&q.ID, &q.Format, &q.Subject, &q.Prompt, &q.Passage, &opts, &q.CorrectAnswer, &q.Explanation); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(opts), &q.Options); err != nil {
			return nil, fmt.Errorf("decode options of question %d: %w", q.ID, err)
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// QuestionCount returns the number of questions in the database.
func (s *Store) QuestionCount(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM questions`).Scan(&count)
	return count, err
}

func toUnix(t time.Time) int64 {
	return t.UTC().UnixNano()
}

func fromUnix(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func nullableTime(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := fromUnix(n.Int64)
	return &t
}

func nullableUnix(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toUnix(*t), Valid: true}
}
