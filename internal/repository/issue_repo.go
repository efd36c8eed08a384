package repository

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/21andrewchang/hermes/internal/domain/entity"
)

// IssueRepository persists maintenance issues. The extraction pipeline only
// reads from it; writes happen through the management API.
type IssueRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewIssueRepository creates a new issue repository
func NewIssueRepository(db *sql.DB, logger *zap.Logger) *IssueRepository {
	return &IssueRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new issue.
func (r *IssueRepository) Create(ctx context.Context, issue *entity.Issue) error {
	query := `
		INSERT INTO issues (id, reported_at, building, unit, description, action, status, is_draft)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		issue.ID,
		issue.ReportedAt,
		issue.Building,
		issue.Unit,
		issue.Description,
		issue.Action,
		issue.Status,
		issue.IsDraft,
	)
	if err != nil {
		r.logger.Error("Failed to create issue", zap.Error(err))
		return fmt.Errorf("failed to create issue: %w", err)
	}

	return nil
}

// List returns every issue, unfiltered by status. The matcher reads this
// fresh per invoice so candidates are never stale.
func (r *IssueRepository) List(ctx context.Context) ([]entity.Issue, error) {
	query := `
		SELECT id, reported_at, building, unit, description, action, status, is_draft
		FROM issues
		ORDER BY reported_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		r.logger.Error("Failed to list issues", zap.Error(err))
		return nil, fmt.Errorf("failed to list issues: %w", err)
	}
	defer rows.Close()

	var issues []entity.Issue
	for rows.Next() {
		var issue entity.Issue
		var reportedAt sql.NullTime
		var building, unit, description, action sql.NullString

		err := rows.Scan(
			&issue.ID,
			&reportedAt,
			&building,
			&unit,
			&description,
			&action,
			&issue.Status,
			&issue.IsDraft,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan issue: %w", err)
		}

		if reportedAt.Valid {
			issue.ReportedAt = &reportedAt.Time
		}
		issue.Building = nullableString(building)
		issue.Unit = nullableString(unit)
		issue.Description = nullableString(description)
		issue.Action = nullableString(action)

		issues = append(issues, issue)
	}

	return issues, rows.Err()
}
