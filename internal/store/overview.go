package store

import (
	"context"
	"fmt"

	"github.com/mshcbt/cbthub/internal/model"
)

// ListUserOverviews returns every account with its number of graded exams,
// for the admin user list.
func (s *Store) ListUserOverviews(ctx context.Context) ([]model.UserOverview, error) {
	users, err := s.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT owner_id, COUNT(*) FROM results GROUP BY owner_id`)
	if err != nil {
		return nil, fmt.Errorf("count results: %w", err)
	}
	defer rows.Close()
	examCount := make(map[int64]int)
	for rows.Next() {
		var owner int64
		var n int
		if err := rows.Scan(&owner, &n); err != nil {
			return nil, err
		}
		examCount[owner] = n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	overviews := make([]model.UserOverview, 0, len(users))
	for _, u := range users {
		overviews = append(overviews, model.UserOverview{
			User:      u,
			ExamCount: examCount[u.ID],
		})
	}
	return overviews, nil
}
