package content

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/yshindo/publog/internal/auth"
	"github.com/yshindo/publog/internal/telemetry/tracing"
)

var (
	ErrPostNotFound        = errors.New("post not found")
	ErrTitleOrContentEmpty = errors.New("post title or content empty")
)

// DefaultPageSize is the page size used when the caller does not ask for one
const DefaultPageSize = 10

type Author struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Image string `json:"image"`
}

type Post struct {
	ID          int        `json:"id"`
	Title       string     `json:"title"`
	Content     string     `json:"content"`
	Published   bool       `json:"published"`
	PublishedAt *time.Time `json:"published_at"`
	CreatedAt   time.Time  `json:"created_at"`
	Author      Author     `json:"author"`
	CategoryIDs []int      `json:"category_ids"`
}

type ListParams struct {
	// Search matches title OR content, case-insensitive
	Search     string
	CategoryID int
	Page       int
	Size       int
}

type ListResult struct {
	Posts       []*Post `json:"posts"`
	TotalPages  int     `json:"total_pages"`
	CurrentPage int     `json:"current_page"`
}

type UpdateParams struct {
	ID          int
	UserID      int
	Title       string
	Content     string
	Published   bool
	CategoryIDs []int
}

var _ contentRepo = (*Repo)(nil)

// Repo serves one content table. Posts and blogs share the exact same shape
// and query logic, so the table and its category join table are parameters.
type Repo struct {
	db        *pgxpool.Pool
	table     string
	joinTable string
	joinCol   string
}

func NewPostsRepo(db *pgxpool.Pool) *Repo {
	return &Repo{
		db:        db,
		table:     "post",
		joinTable: "post_category",
		joinCol:   "post_id",
	}
}

func NewBlogsRepo(db *pgxpool.Pool) *Repo {
	return &Repo{
		db:        db,
		table:     "blog",
		joinTable: "blog_category",
		joinCol:   "blog_id",
	}
}

// filterClause composes the search and category predicates, bound to $1 and
// $2. An empty search pattern or a zero category id disables the respective
// filter, so an unknown category simply matches nothing instead of erroring.
func (r *Repo) filterClause() string {
	return fmt.Sprintf(
		`($1::text = '' OR p.title ILIKE $1 OR p.content ILIKE $1)
		AND ($2::int = 0 OR EXISTS (
			SELECT 1 FROM %s pc WHERE pc.%s = p.id AND pc.category_id = $2
		))`,
		r.joinTable, r.joinCol,
	)
}

// ListPublished returns one page of publicly visible items: published, with
// the publish timestamp set. The count runs over the same predicate as the
// page select so total_pages and the returned rows never drift apart.
func (r *Repo) ListPublished(ctx context.Context, params ListParams) (*ListResult, error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, fmt.Sprintf("%sRepo.ListPublished", r.table))
	span.SetAttributes(attribute.Int("page", params.Page))
	span.SetAttributes(attribute.String("search", params.Search))
	defer span.End()

	page := params.Page
	if page < 1 {
		page = 1
	}
	size := params.Size
	if size < 1 {
		size = DefaultPageSize
	}
	offset := (page - 1) * size

	searchPattern := ""
	if params.Search != "" {
		searchPattern = "%" + params.Search + "%"
	}

	var count int
	if err := r.db.QueryRow(
		ctx,
		fmt.Sprintf(
			`SELECT COUNT(*) FROM %s p
			WHERE p.published AND p.published_at IS NOT NULL AND %s`,
			r.table, r.filterClause(),
		),
		searchPattern, params.CategoryID,
	).Scan(&count); err != nil {
		return nil, fmt.Errorf("count %s: %w", r.table, err)
	}

	totalPages := int(math.Ceil(float64(count) / float64(size)))

	log.Tracef("listing %s, count %d, limit %d, offset %d", r.table, count, size, offset)

	rows, err := r.db.Query(
		ctx,
		fmt.Sprintf(
			`SELECT p.id, p.title, p.content, p.published, p.published_at, p.created_at,
				u.id, u.name, u.image
			FROM %s p
			JOIN users u ON u.id = p.author_id
			WHERE p.published AND p.published_at IS NOT NULL AND %s
			ORDER BY p.published_at DESC, p.id DESC
			LIMIT $3 OFFSET $4`,
			r.table, r.filterClause(),
		),
		searchPattern, params.CategoryID, size, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	posts, err := r.rows2posts(rows)
	if err != nil {
		return nil, err
	}

	if err := r.attachCategories(ctx, posts); err != nil {
		return nil, err
	}

	return &ListResult{
		Posts:       posts,
		TotalPages:  totalPages,
		CurrentPage: page,
	}, nil
}

// ListForOwner lists one author's items. With includeUnpublished the
// visibility predicate is dropped entirely, which is only correct when the
// requester is that author - callers decide that, not the repo.
func (r *Repo) ListForOwner(
	ctx context.Context,
	ownerID int,
	includeUnpublished bool,
	page, size int,
) (*ListResult, error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, fmt.Sprintf("%sRepo.ListForOwner", r.table))
	span.SetAttributes(attribute.Int("ownerID", ownerID))
	defer span.End()

	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = DefaultPageSize
	}
	offset := (page - 1) * size

	visibility := `AND p.published AND p.published_at IS NOT NULL`
	if includeUnpublished {
		visibility = ""
	}

	var count int
	if err := r.db.QueryRow(
		ctx,
		fmt.Sprintf(`SELECT COUNT(*) FROM %s p WHERE p.author_id = $1 %s`, r.table, visibility),
		ownerID,
	).Scan(&count); err != nil {
		return nil, fmt.Errorf("count %s for owner: %w", r.table, err)
	}

	rows, err := r.db.Query(
		ctx,
		fmt.Sprintf(
			`SELECT p.id, p.title, p.content, p.published, p.published_at, p.created_at,
				u.id, u.name, u.image
			FROM %s p
			JOIN users u ON u.id = p.author_id
			WHERE p.author_id = $1 %s
			ORDER BY p.created_at DESC, p.id DESC
			LIMIT $2 OFFSET $3`,
			r.table, visibility,
		),
		ownerID, size, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	posts, err := r.rows2posts(rows)
	if err != nil {
		return nil, err
	}

	if err := r.attachCategories(ctx, posts); err != nil {
		return nil, err
	}

	return &ListResult{
		Posts:       posts,
		TotalPages:  int(math.Ceil(float64(count) / float64(size))),
		CurrentPage: page,
	}, nil
}

// Get returns a single item. Items not visible to the viewer report
// ErrPostNotFound, same as missing ones, so existence of drafts and foreign
// unpublished content does not leak.
func (r *Repo) Get(ctx context.Context, id, viewerID int) (*Post, error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, fmt.Sprintf("%sRepo.Get", r.table))
	span.SetAttributes(attribute.Int("id", id))
	defer span.End()

	rows, err := r.db.Query(
		ctx,
		fmt.Sprintf(
			`SELECT p.id, p.title, p.content, p.published, p.published_at, p.created_at,
				u.id, u.name, u.image
			FROM %s p
			JOIN users u ON u.id = p.author_id
			WHERE p.id = $1`,
			r.table,
		),
		id,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	posts, err := r.rows2posts(rows)
	if err != nil {
		return nil, err
	}
	if len(posts) == 0 {
		return nil, ErrPostNotFound
	}

	post := posts[0]
	visible := post.Published && post.PublishedAt != nil
	if !visible && post.Author.ID != viewerID {
		return nil, ErrPostNotFound
	}

	if err := r.attachCategories(ctx, posts); err != nil {
		return nil, err
	}

	return post, nil
}

// Create inserts the item together with its category links. The publish
// timestamp is set iff the item is created published.
func (r *Repo) Create(ctx context.Context, post *Post) error {
	ctx, span := tracing.GlobalTracer.Start(ctx, fmt.Sprintf("%sRepo.Create", r.table))
	defer span.End()

	if post.Title == "" || post.Content == "" {
		return ErrTitleOrContentEmpty
	}

	if post.CreatedAt.IsZero() {
		post.CreatedAt = time.Now()
	}
	if post.Published {
		now := time.Now()
		post.PublishedAt = &now
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := tx.QueryRow(
		ctx,
		fmt.Sprintf(
			`INSERT INTO %s (title, content, published, published_at, author_id, created_at)
			VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
			r.table,
		),
		post.Title, post.Content, post.Published, post.PublishedAt, post.Author.ID, post.CreatedAt,
	).Scan(&post.ID); err != nil {
		return fmt.Errorf("insert %s: %w", r.table, err)
	}

	if err := r.setCategories(ctx, tx, post.ID, post.CategoryIDs); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// Update mutates title, content, categories and the published flag. The
// ownership check runs against a freshly fetched author id, never a
// client-supplied one. A publish timestamp, once set, is never touched again:
// re-publishing keeps the original one, unpublishing does not clear it.
func (r *Repo) Update(ctx context.Context, params UpdateParams) error {
	ctx, span := tracing.GlobalTracer.Start(ctx, fmt.Sprintf("%sRepo.Update", r.table))
	span.SetAttributes(attribute.Int("id", params.ID))
	defer span.End()

	if params.Title == "" || params.Content == "" {
		return ErrTitleOrContentEmpty
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var authorID int
	err = tx.QueryRow(
		ctx,
		fmt.Sprintf(`SELECT author_id FROM %s WHERE id = $1`, r.table),
		params.ID,
	).Scan(&authorID)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrPostNotFound
	}
	if err != nil {
		return err
	}

	if err := auth.AssertOwner(authorID, params.UserID); err != nil {
		return err
	}

	if _, err := tx.Exec(
		ctx,
		fmt.Sprintf(
			`UPDATE %s SET
				title = $1,
				content = $2,
				published = $3,
				published_at = COALESCE(published_at, CASE WHEN $3 THEN now() END)
			WHERE id = $4`,
			r.table,
		),
		params.Title, params.Content, params.Published, params.ID,
	); err != nil {
		return fmt.Errorf("update %s: %w", r.table, err)
	}

	if _, err := tx.Exec(
		ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE %s = $1`, r.joinTable, r.joinCol),
		params.ID,
	); err != nil {
		return fmt.Errorf("clear %s categories: %w", r.table, err)
	}
	if err := r.setCategories(ctx, tx, params.ID, params.CategoryIDs); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// Delete removes the item after checking ownership against the stored
// author id.
func (r *Repo) Delete(ctx context.Context, id, userID int) error {
	ctx, span := tracing.GlobalTracer.Start(ctx, fmt.Sprintf("%sRepo.Delete", r.table))
	span.SetAttributes(attribute.Int("id", id))
	defer span.End()

	var authorID int
	err := r.db.QueryRow(
		ctx,
		fmt.Sprintf(`SELECT author_id FROM %s WHERE id = $1`, r.table),
		id,
	).Scan(&authorID)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrPostNotFound
	}
	if err != nil {
		return err
	}

	if err := auth.AssertOwner(authorID, userID); err != nil {
		return err
	}

	tag, err := r.db.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, r.table), id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPostNotFound
	}
	return nil
}

func (r *Repo) setCategories(ctx context.Context, tx pgx.Tx, postID int, categoryIDs []int) error {
	for _, categoryID := range categoryIDs {
		if _, err := tx.Exec(
			ctx,
			fmt.Sprintf(
				`INSERT INTO %s (%s, category_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
				r.joinTable, r.joinCol,
			),
			postID, categoryID,
		); err != nil {
			return fmt.Errorf("link category %d: %w", categoryID, err)
		}
	}
	return nil
}

func (r *Repo) attachCategories(ctx context.Context, posts []*Post) error {
	if len(posts) == 0 {
		return nil
	}

	byID := make(map[int]*Post, len(posts))
	ids := make([]int, 0, len(posts))
	for _, p := range posts {
		byID[p.ID] = p
		ids = append(ids, p.ID)
	}

	rows, err := r.db.Query(
		ctx,
		fmt.Sprintf(
			`SELECT %s, category_id FROM %s WHERE %s = ANY($1)`,
			r.joinCol, r.joinTable, r.joinCol,
		),
		ids,
	)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var postID, categoryID int
		if err := rows.Scan(&postID, &categoryID); err != nil {
			return err
		}
		if p, ok := byID[postID]; ok {
			p.CategoryIDs = append(p.CategoryIDs, categoryID)
		}
	}
	return rows.Err()
}

func (r *Repo) rows2posts(rows pgx.Rows) ([]*Post, error) {
	var posts []*Post
	for rows.Next() {
		var p Post
		if err := rows.Scan(
			&p.ID, &p.Title, &p.Content, &p.Published, &p.PublishedAt, &p.CreatedAt,
			&p.Author.ID, &p.Author.Name, &p.Author.Image,
		); err != nil {
			return nil, err
		}
		posts = append(posts, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return posts, nil
}
