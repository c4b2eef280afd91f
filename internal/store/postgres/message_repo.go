package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/aaronBIOO/QuickChat/internal/domain"
)

type MessageRepo struct {
	db *sql.DB
}

func NewMessageRepo(db *sql.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

var _ domain.MessageRepository = (*MessageRepo)(nil)

const messageColumns = `id, sender_id, receiver_id, text, image, seen, created_at`

func (r *MessageRepo) Create(ctx context.Context, m *domain.Message) error {
	query := `
		INSERT INTO messages (id, sender_id, receiver_id, text, image, seen, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7, NOW()))
		RETURNING created_at
	`
	var at sql.NullTime
	if !m.CreatedAt.IsZero() {
		at = sql.NullTime{Time: m.CreatedAt, Valid: true}
	}
	err := r.db.QueryRowContext(ctx, query,
		m.ID, m.SenderID, m.ReceiverID, m.Text, m.Image, m.Seen, at,
	).Scan(&m.CreatedAt)
	if err != nil {
		return mapError(err, "insert message")
	}
	return nil
}

func (r *MessageRepo) GetByID(ctx context.Context, id string) (*domain.Message, error) {
	m := &domain.Message{}
	err := scanMessageInto(r.db.QueryRowContext(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE id = $1`, id), m)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, mapError(err, "get message")
	}
	return m, nil
}

func (r *MessageRepo) ListBetween(ctx context.Context, a, b string) ([]*domain.Message, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE (sender_id = $1 AND receiver_id = $2)
		   OR (sender_id = $2 AND receiver_id = $1)
		ORDER BY created_at ASC, id ASC
	`, a, b)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	res := []*domain.Message{}
	for rows.Next() {
		m := &domain.Message{}
		if err := scanMessageInto(rows, m); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

func (r *MessageRepo) MarkSeen(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE messages SET seen = TRUE WHERE id = $1`, id)
	if err != nil {
		return mapError(err, "mark seen")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("mark seen %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func (r *MessageRepo) MarkSeenFrom(ctx context.Context, senderID, receiverID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE messages SET seen = TRUE
		WHERE sender_id = $1 AND receiver_id = $2 AND NOT seen
	`, senderID, receiverID)
	if err != nil {
		return 0, fmt.Errorf("mark conversation seen: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

func (r *MessageRepo) UnseenCounts(ctx context.Context, receiverID string) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT sender_id, COUNT(*)
		FROM messages
		WHERE receiver_id = $1 AND NOT seen
		GROUP BY sender_id
	`, receiverID)
	if err != nil {
		return nil, fmt.Errorf("unseen counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var sender string
		var n int
		if err := rows.Scan(&sender, &n); err != nil {
			return nil, fmt.Errorf("scan unseen count: %w", err)
		}
		counts[sender] = n
	}
	return counts, rows.Err()
}

func scanMessageInto(row rowScanner, m *domain.Message) error {
	return row.Scan(&m.ID, &m.SenderID, &m.ReceiverID, &m.Text, &m.Image, &m.Seen, &m.CreatedAt)
}
