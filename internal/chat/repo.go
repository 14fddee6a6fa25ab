package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/yshindo/publog/internal/auth"
	"github.com/yshindo/publog/internal/telemetry/tracing"
)

var (
	ErrMessageNotFound = errors.New("chat message not found")
	ErrMessageEmpty    = errors.New("chat message empty")
)

type Author struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Image string `json:"image"`
}

type Message struct {
	ID        int       `json:"id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	Author    Author    `json:"author"`
}

var _ chatRepo = (*Repo)(nil)

type Repo struct {
	db *pgxpool.Pool
}

func NewRepo(db *pgxpool.Pool) *Repo {
	return &Repo{
		db: db,
	}
}

func (r *Repo) Add(ctx context.Context, authorID int, content string) (*Message, error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "chatRepo.Add")
	defer span.End()

	if content == "" {
		return nil, ErrMessageEmpty
	}

	message := &Message{
		Content: content,
	}
	if err := r.db.QueryRow(
		ctx,
		`INSERT INTO chat_message (content, author_id) VALUES ($1, $2) RETURNING id, created_at`,
		content, authorID,
	).Scan(&message.ID, &message.CreatedAt); err != nil {
		return nil, fmt.Errorf("insert chat message: %w", err)
	}

	message.Author.ID = authorID
	if err := r.db.QueryRow(
		ctx,
		`SELECT name, image FROM users WHERE id = $1`,
		authorID,
	).Scan(&message.Author.Name, &message.Author.Image); err != nil {
		return nil, fmt.Errorf("fetch message author: %w", err)
	}

	return message, nil
}

func (r *Repo) Delete(ctx context.Context, id, userID int) error {
	ctx, span := tracing.GlobalTracer.Start(ctx, "chatRepo.Delete")
	span.SetAttributes(attribute.Int("id", id))
	defer span.End()

	var authorID int
	err := r.db.QueryRow(
		ctx,
		`SELECT author_id FROM chat_message WHERE id = $1`,
		id,
	).Scan(&authorID)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrMessageNotFound
	}
	if err != nil {
		return err
	}

	if err := auth.AssertOwner(authorID, userID); err != nil {
		return err
	}

	tag, err := r.db.Exec(ctx, `DELETE FROM chat_message WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrMessageNotFound
	}
	return nil
}

// LastMessages returns the newest messages, oldest first, ready for
// rendering a chat log top to bottom.
func (r *Repo) LastMessages(ctx context.Context, limit int) ([]Message, error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "chatRepo.LastMessages")
	span.SetAttributes(attribute.Int("limit", limit))
	defer span.End()

	rows, err := r.db.Query(
		ctx,
		`
			SELECT * FROM (
				SELECT m.id, m.content, m.created_at, u.id, u.name, u.image
				FROM chat_message m
				JOIN users u ON u.id = m.author_id
				ORDER BY m.created_at DESC, m.id DESC
				LIMIT $1
			) last ORDER BY created_at, id;
		`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return r.rows2messages(rows)
}

func (r *Repo) GetMessagesPage(ctx context.Context, page, size int) ([]Message, error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "chatRepo.GetMessagesPage")
	span.SetAttributes(attribute.Int("page", page))
	span.SetAttributes(attribute.Int("size", size))
	defer span.End()

	limit := size
	offset := (page - 1) * size

	log.Tracef("getting chat messages, limit %d, offset %d", limit, offset)

	rows, err := r.db.Query(
		ctx,
		`
			SELECT m.id, m.content, m.created_at, u.id, u.name, u.image
			FROM chat_message m
			JOIN users u ON u.id = m.author_id
			ORDER BY m.created_at DESC, m.id DESC
			LIMIT $1
			OFFSET $2;
		`,
		limit,
		offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return r.rows2messages(rows)
}

func (r *Repo) MessagesCount(ctx context.Context) (int, error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "chatRepo.MessagesCount")
	defer span.End()

	var count int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM chat_message`).Scan(&count); err != nil {
		return -1, err
	}
	return count, nil
}

func (r *Repo) rows2messages(rows pgx.Rows) ([]Message, error) {
	var messages []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(
			&m.ID, &m.Content, &m.CreatedAt,
			&m.Author.ID, &m.Author.Name, &m.Author.Image,
		); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return messages, nil
}
