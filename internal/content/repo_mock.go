package content

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/yshindo/publog/internal/auth"
)

var _ contentRepo = (*RepoMock)(nil)

// RepoMock mirrors the visibility, filtering and pagination semantics of
// Repo in memory.
type RepoMock struct {
	mutex  sync.Mutex
	Posts  map[int]*Post
	nextID int
}

func NewRepoMock() *RepoMock {
	return &RepoMock{
		Posts:  map[int]*Post{},
		nextID: 1,
	}
}

func (r *RepoMock) matches(p *Post, params ListParams) bool {
	if params.Search != "" {
		search := strings.ToLower(params.Search)
		title := strings.ToLower(p.Title)
		content := strings.ToLower(p.Content)
		if !strings.Contains(title, search) && !strings.Contains(content, search) {
			return false
		}
	}
	if params.CategoryID != 0 {
		found := false
		for _, categoryID := range p.CategoryIDs {
			if categoryID == params.CategoryID {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func paginate(matched []*Post, page, size int) ([]*Post, int) {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = DefaultPageSize
	}

	totalPages := int(math.Ceil(float64(len(matched)) / float64(size)))
	offset := (page - 1) * size
	if offset >= len(matched) {
		return nil, totalPages
	}
	end := offset + size
	if end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], totalPages
}

func (r *RepoMock) ListPublished(_ context.Context, params ListParams) (*ListResult, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	var matched []*Post
	for _, p := range r.Posts {
		if !p.Published || p.PublishedAt == nil {
			continue
		}
		if r.matches(p, params) {
			matched = append(matched, p)
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].PublishedAt.Equal(*matched[j].PublishedAt) {
			return matched[i].PublishedAt.After(*matched[j].PublishedAt)
		}
		return matched[i].ID > matched[j].ID
	})

	posts, totalPages := paginate(matched, params.Page, params.Size)
	page := params.Page
	if page < 1 {
		page = 1
	}
	return &ListResult{
		Posts:       posts,
		TotalPages:  totalPages,
		CurrentPage: page,
	}, nil
}

func (r *RepoMock) ListForOwner(
	_ context.Context,
	ownerID int,
	includeUnpublished bool,
	page, size int,
) (*ListResult, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	var matched []*Post
	for _, p := range r.Posts {
		if p.Author.ID != ownerID {
			continue
		}
		if !includeUnpublished && (!p.Published || p.PublishedAt == nil) {
			continue
		}
		matched = append(matched, p)
	}

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID > matched[j].ID
	})

	posts, totalPages := paginate(matched, page, size)
	if page < 1 {
		page = 1
	}
	return &ListResult{
		Posts:       posts,
		TotalPages:  totalPages,
		CurrentPage: page,
	}, nil
}

func (r *RepoMock) Get(_ context.Context, id, viewerID int) (*Post, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	p, ok := r.Posts[id]
	if !ok {
		return nil, ErrPostNotFound
	}
	visible := p.Published && p.PublishedAt != nil
	if !visible && p.Author.ID != viewerID {
		return nil, ErrPostNotFound
	}
	return p, nil
}

func (r *RepoMock) Create(_ context.Context, post *Post) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if post.Title == "" || post.Content == "" {
		return ErrTitleOrContentEmpty
	}

	post.ID = r.nextID
	r.nextID++
	if post.CreatedAt.IsZero() {
		post.CreatedAt = time.Now()
	}
	if post.Published {
		now := time.Now()
		post.PublishedAt = &now
	}
	r.Posts[post.ID] = post
	return nil
}

func (r *RepoMock) Update(_ context.Context, params UpdateParams) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if params.Title == "" || params.Content == "" {
		return ErrTitleOrContentEmpty
	}

	p, ok := r.Posts[params.ID]
	if !ok {
		return ErrPostNotFound
	}
	if err := auth.AssertOwner(p.Author.ID, params.UserID); err != nil {
		return err
	}

	p.Title = params.Title
	p.Content = params.Content
	p.Published = params.Published
	if p.PublishedAt == nil && params.Published {
		now := time.Now()
		p.PublishedAt = &now
	}
	p.CategoryIDs = params.CategoryIDs
	return nil
}

func (r *RepoMock) Delete(_ context.Context, id, userID int) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	p, ok := r.Posts[id]
	if !ok {
		return ErrPostNotFound
	}
	if err := auth.AssertOwner(p.Author.ID, userID); err != nil {
		return err
	}
	delete(r.Posts, id)
	return nil
}
