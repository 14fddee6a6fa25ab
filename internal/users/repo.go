package users

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"

	"github.com/yshindo/publog/internal/telemetry/tracing"
	"github.com/yshindo/publog/pkg"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrEmailTaken   = errors.New("email already taken")
)

type User struct {
	ID           int       `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	Image        string    `json:"image"`
	Bio          string    `json:"bio"`
	CreatedAt    time.Time `json:"created_at"`
}

var _ usersRepo = (*Repo)(nil)

type Repo struct {
	db *pgxpool.Pool
}

func NewRepo(db *pgxpool.Pool) *Repo {
	return &Repo{
		db: db,
	}
}

// Create inserts the user and its empty profile row in one transaction.
// A taken email reports ErrEmailTaken.
func (r *Repo) Create(ctx context.Context, email, name, passwordHash string) (*User, error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "usersRepo.Create")
	defer span.End()

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	user := &User{
		Email: email,
		Name:  name,
	}
	err = tx.QueryRow(
		ctx,
		`INSERT INTO users (email, name, password_hash) VALUES ($1, $2, $3) RETURNING id, created_at`,
		email, name, passwordHash,
	).Scan(&user.ID, &user.CreatedAt)
	if err != nil {
		if pkg.IsUniqueViolationError(err) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}

	if _, err := tx.Exec(
		ctx,
		`INSERT INTO profiles (user_id) VALUES ($1)`,
		user.ID,
	); err != nil {
		return nil, fmt.Errorf("insert profile: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return user, nil
}

func (r *Repo) GetByEmail(ctx context.Context, email string) (*User, error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "usersRepo.GetByEmail")
	defer span.End()

	return r.getUser(ctx, `u.email = $1`, email)
}

func (r *Repo) GetByID(ctx context.Context, id int) (*User, error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "usersRepo.GetByID")
	span.SetAttributes(attribute.Int("id", id))
	defer span.End()

	return r.getUser(ctx, `u.id = $1`, id)
}

func (r *Repo) getUser(ctx context.Context, where string, arg any) (*User, error) {
	var user User
	err := r.db.QueryRow(
		ctx,
		fmt.Sprintf(
			`SELECT u.id, u.email, u.name, u.password_hash, u.image, u.created_at, COALESCE(p.bio, '')
			FROM users u
			LEFT JOIN profiles p ON p.user_id = u.id
			WHERE %s`,
			where,
		),
		arg,
	).Scan(
		&user.ID, &user.Email, &user.Name, &user.PasswordHash,
		&user.Image, &user.CreatedAt, &user.Bio,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// UpdateProfile writes the user name and the profile bio atomically, so a
// failure partway never leaves the two rows disagreeing.
func (r *Repo) UpdateProfile(ctx context.Context, id int, name, bio string) error {
	ctx, span := tracing.GlobalTracer.Start(ctx, "usersRepo.UpdateProfile")
	span.SetAttributes(attribute.Int("id", id))
	defer span.End()

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(
		ctx,
		`UPDATE users SET name = $1, updated_at = now() WHERE id = $2`,
		name, id,
	)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}

	if _, err := tx.Exec(
		ctx,
		`INSERT INTO profiles (user_id, bio) VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET bio = EXCLUDED.bio`,
		id, bio,
	); err != nil {
		return fmt.Errorf("update profile: %w", err)
	}

	return tx.Commit(ctx)
}

func (r *Repo) UpdatePassword(ctx context.Context, id int, passwordHash string) error {
	ctx, span := tracing.GlobalTracer.Start(ctx, "usersRepo.UpdatePassword")
	span.SetAttributes(attribute.Int("id", id))
	defer span.End()

	tag, err := r.db.Exec(
		ctx,
		`UPDATE users SET password_hash = $1, updated_at = now() WHERE id = $2`,
		passwordHash, id,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *Repo) UpdateImage(ctx context.Context, id int, image string) error {
	ctx, span := tracing.GlobalTracer.Start(ctx, "usersRepo.UpdateImage")
	span.SetAttributes(attribute.Int("id", id))
	defer span.End()

	tag, err := r.db.Exec(
		ctx,
		`UPDATE users SET image = $1, updated_at = now() WHERE id = $2`,
		image, id,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}
