package mysql

import (
	"context"
	"database/sql"
	"errors"
	"time"

	domain "github.com/stillwater-app/stillwater/internal/domain/analyses"
	journal "github.com/stillwater-app/stillwater/internal/domain/journal"
)

type AnalysisRepository struct {
	db *sql.DB
}

func NewAnalysisRepository(db *sql.DB) *AnalysisRepository {
	return &AnalysisRepository{db: db}
}

// Create writes the analysis row, its drop links, and the advance of the
// user's last_analysis_date in a single transaction. A partial write would
// corrupt the eligibility window, so any failure rolls the whole thing back.
func (r *AnalysisRepository) Create(ctx context.Context, a *domain.Analysis, dropIDs []int64) error {
	created := a.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	const insertAnalysis = `
INSERT INTO analyses (id, user_id, content, summary, bullet_points, is_favorited, created_at)
VALUES (?,?,?,?,?,?,?);
`
	if _, err := tx.ExecContext(ctx, insertAnalysis,
		string(a.ID), a.UserID, a.Content, a.Summary, joinBullets(a.BulletPoints), a.IsFavorited, created,
	); err != nil {
		return err
	}

	const insertLink = `INSERT INTO analysis_drops (analysis_id, drop_id) VALUES (?,?);`
	for _, dropID := range dropIDs {
		if _, err := tx.ExecContext(ctx, insertLink, string(a.ID), dropID); err != nil {
			return err
		}
	}

	const advance = `UPDATE users SET last_analysis_date=? WHERE id=?;`
	if _, err := tx.ExecContext(ctx, advance, created, a.UserID); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	a.CreatedAt = created
	return nil
}

// ListByUser returns a page of analyses ordered newest-first.
func (r *AnalysisRepository) ListByUser(ctx context.Context, userID int64, page, pageSize int) ([]*domain.Analysis, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	const q = `
SELECT id, user_id, content, summary, bullet_points, is_favorited, created_at
FROM analyses
WHERE user_id=?
ORDER BY created_at DESC, id DESC
LIMIT ? OFFSET ?;
`
	rows, err := r.db.QueryContext(ctx, q, userID, pageSize, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Analysis
	for rows.Next() {
		a, err := scanAnalysis(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *AnalysisRepository) Get(ctx context.Context, id domain.AnalysisID) (*domain.Analysis, error) {
	const q = `
SELECT id, user_id, content, summary, bullet_points, is_favorited, created_at
FROM analyses WHERE id=? LIMIT 1;
`
	a, err := scanAnalysis(r.db.QueryRowContext(ctx, q, string(id)).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrAnalysisNotFound
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (r *AnalysisRepository) SetFavorite(ctx context.Context, id domain.AnalysisID, favorited bool) (*domain.Analysis, error) {
	const q = `UPDATE analyses SET is_favorited=? WHERE id=?;`
	res, err := r.db.ExecContext(ctx, q, favorited, string(id))
	if err != nil {
		return nil, err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		// distinguish "no such row" from "already at that value"
		if _, err := r.Get(ctx, id); err != nil {
			return nil, err
		}
	}
	return r.Get(ctx, id)
}

// Drops returns the entries linked to an analysis in chronological order.
func (r *AnalysisRepository) Drops(ctx context.Context, id domain.AnalysisID) ([]*journal.DropWithQuestion, error) {
	const q = `
SELECT d.id, d.user_id, d.question_id, d.text, d.message_count, d.created_at, q.text
FROM analysis_drops ad
JOIN drops d ON d.id = ad.drop_id
JOIN questions q ON q.id = d.question_id
WHERE ad.analysis_id=?
ORDER BY d.created_at ASC, d.id ASC;
`
	rows, err := r.db.QueryContext(ctx, q, string(id))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanDropsWithQuestion(rows)
}

func scanAnalysis(scan func(dest ...interface{}) error) (*domain.Analysis, error) {
	var a domain.Analysis
	var id, bullets string
	if err := scan(&id, &a.UserID, &a.Content, &a.Summary, &bullets, &a.IsFavorited, &a.CreatedAt); err != nil {
		return nil, err
	}
	a.ID = domain.AnalysisID(id)
	a.BulletPoints = splitBullets(bullets)
	return &a, nil
}
