package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/stillwater-app/stillwater/internal/domain/journal"
)

type JournalRepository struct {
	db *sql.DB
}

func NewJournalRepository(db *sql.DB) *JournalRepository {
	return &JournalRepository{db: db}
}

func (r *JournalRepository) CreateUser(ctx context.Context, u *domain.User) error {
	const q = `
INSERT INTO users (email, name, last_analysis_date, created_at)
VALUES (?,?,?,?);
`
	created := u.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	res, err := r.db.ExecContext(ctx, q, u.Email, stringOrDash(u.Name), nullTime(u.LastAnalysisDate), created)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	u.ID = id
	u.CreatedAt = created
	return nil
}

func (r *JournalRepository) GetUser(ctx context.Context, id int64) (*domain.User, error) {
	const q = `
SELECT id, email, name, last_analysis_date, created_at
FROM users WHERE id=? LIMIT 1;
`
	var u domain.User
	var last sql.NullTime
	err := r.db.QueryRowContext(ctx, q, id).Scan(&u.ID, &u.Email, &u.Name, &last, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	u.LastAnalysisDate = timePtr(last)
	return &u, nil
}

func (r *JournalRepository) ListQuestions(ctx context.Context) ([]*domain.Question, error) {
	const q = `SELECT id, text, created_at FROM questions ORDER BY id ASC;`
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Question
	for rows.Next() {
		var question domain.Question
		if err := rows.Scan(&question.ID, &question.Text, &question.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &question)
	}
	return out, rows.Err()
}

func (r *JournalRepository) GetQuestion(ctx context.Context, id int64) (*domain.Question, error) {
	const q = `SELECT id, text, created_at FROM questions WHERE id=? LIMIT 1;`
	var question domain.Question
	err := r.db.QueryRowContext(ctx, q, id).Scan(&question.ID, &question.Text, &question.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrQuestionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &question, nil
}

func (r *JournalRepository) CreateDrop(ctx context.Context, d *domain.Drop) error {
	const q = `
INSERT INTO drops (user_id, question_id, text, message_count, created_at)
VALUES (?,?,?,0,?);
`
	created := d.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	res, err := r.db.ExecContext(ctx, q, d.UserID, d.QuestionID, d.Text, created)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	d.ID = id
	d.CreatedAt = created
	return nil
}

func (r *JournalRepository) GetDrop(ctx context.Context, id int64) (*domain.Drop, error) {
	const q = `
SELECT id, user_id, question_id, text, message_count, created_at
FROM drops WHERE id=? LIMIT 1;
`
	var d domain.Drop
	err := r.db.QueryRowContext(ctx, q, id).Scan(&d.ID, &d.UserID, &d.QuestionID, &d.Text, &d.MessageCount, &d.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrDropNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// ListDrops returns a user's drops newest-first with the prompt text joined.
func (r *JournalRepository) ListDrops(ctx context.Context, userID int64, limit int) ([]*domain.DropWithQuestion, error) {
	if limit <= 0 {
		limit = 20
	}
	const q = `
SELECT d.id, d.user_id, d.question_id, d.text, d.message_count, d.created_at, q.text
FROM drops d
JOIN questions q ON q.id = d.question_id
WHERE d.user_id=?
ORDER BY d.created_at DESC, d.id DESC
LIMIT ?;
`
	rows, err := r.db.QueryContext(ctx, q, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanDropsWithQuestion(rows)
}

// CreateMessage appends a chat turn and bumps the drop's message counter in
// one transaction.
func (r *JournalRepository) CreateMessage(ctx context.Context, m *domain.Message) error {
	created := m.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO messages (drop_id, text, from_user, created_at) VALUES (?,?,?,?);`,
		m.DropID, m.Text, m.FromUser, created,
	)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE drops SET message_count = message_count + 1 WHERE id=?;`, m.DropID,
	); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	m.ID = id
	m.CreatedAt = created
	return nil
}

func (r *JournalRepository) ListMessages(ctx context.Context, dropID int64) ([]*domain.Message, error) {
	const q = `
SELECT id, drop_id, text, from_user, created_at
FROM messages WHERE drop_id=?
ORDER BY created_at ASC, id ASC;
`
	rows, err := r.db.QueryContext(ctx, q, dropID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Message
	for rows.Next() {
		var m domain.Message
		if err := rows.Scan(&m.ID, &m.DropID, &m.Text, &m.FromUser, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

// CountUnanalyzedDrops counts drops created strictly after the user's last
// analysis date. The user row is checked first so an absent user is
// distinguishable from a user with zero drops.
func (r *JournalRepository) CountUnanalyzedDrops(ctx context.Context, userID int64) (int, error) {
	u, err := r.GetUser(ctx, userID)
	if err != nil {
		return 0, err
	}

	const q = `
SELECT COUNT(*) FROM drops
WHERE user_id=? AND (? IS NULL OR created_at > ?);
`
	last := nullTime(u.LastAnalysisDate)
	var n int
	if err := r.db.QueryRowContext(ctx, q, userID, last, last).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// UnanalyzedDropsWithConversations loads unanalyzed drops oldest-first and
// attaches each one's full transcript.
func (r *JournalRepository) UnanalyzedDropsWithConversations(ctx context.Context, userID int64) ([]*domain.DropConversation, error) {
	u, err := r.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	const q = `
SELECT d.id, d.user_id, d.question_id, d.text, d.message_count, d.created_at, q.text
FROM drops d
JOIN questions q ON q.id = d.question_id
WHERE d.user_id=? AND (? IS NULL OR d.created_at > ?)
ORDER BY d.created_at ASC, d.id ASC;
`
	last := nullTime(u.LastAnalysisDate)
	rows, err := r.db.QueryContext(ctx, q, userID, last, last)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	drops, err := scanDropsWithQuestion(rows)
	if err != nil {
		return nil, err
	}
	if len(drops) == 0 {
		return nil, nil
	}

	transcripts, err := r.transcriptsFor(ctx, drops)
	if err != nil {
		return nil, err
	}

	out := make([]*domain.DropConversation, len(drops))
	for i, d := range drops {
		out[i] = &domain.DropConversation{
			DropWithQuestion: *d,
			Conversation:     transcripts[d.ID],
		}
	}
	return out, nil
}

// transcriptsFor loads all messages for the given drops in one query.
func (r *JournalRepository) transcriptsFor(ctx context.Context, drops []*domain.DropWithQuestion) (map[int64][]*domain.Message, error) {
	placeholders := make([]string, len(drops))
	args := make([]interface{}, len(drops))
	for i, d := range drops {
		placeholders[i] = "?"
		args[i] = d.ID
	}

	q := fmt.Sprintf(`
SELECT id, drop_id, text, from_user, created_at
FROM messages WHERE drop_id IN (%s)
ORDER BY created_at ASC, id ASC;`, strings.Join(placeholders, ","))

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byDrop := make(map[int64][]*domain.Message)
	for rows.Next() {
		var m domain.Message
		if err := rows.Scan(&m.ID, &m.DropID, &m.Text, &m.FromUser, &m.CreatedAt); err != nil {
			return nil, err
		}
		byDrop[m.DropID] = append(byDrop[m.DropID], &m)
	}
	return byDrop, rows.Err()
}

func scanDropsWithQuestion(rows *sql.Rows) ([]*domain.DropWithQuestion, error) {
	var out []*domain.DropWithQuestion
	for rows.Next() {
		var d domain.DropWithQuestion
		if err := rows.Scan(&d.ID, &d.UserID, &d.QuestionID, &d.Text, &d.MessageCount, &d.CreatedAt, &d.QuestionText); err != nil {
			return nil, err
		}
		out = append(out, &d)
	}
	return out, rows.Err()
}
