package chat

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/yshindo/publog/internal/auth"
)

var _ chatRepo = (*RepoMock)(nil)

type RepoMock struct {
	mutex    sync.Mutex
	Messages map[int]*Message
	nextID   int
}

func NewRepoMock() *RepoMock {
	return &RepoMock{
		Messages: map[int]*Message{},
		nextID:   1,
	}
}

func (r *RepoMock) Add(_ context.Context, authorID int, content string) (*Message, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if content == "" {
		return nil, ErrMessageEmpty
	}

	m := &Message{
		ID:        r.nextID,
		Content:   content,
		CreatedAt: time.Now(),
		Author:    Author{ID: authorID},
	}
	r.nextID++
	r.Messages[m.ID] = m
	return m, nil
}

func (r *RepoMock) Delete(_ context.Context, id, userID int) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	m, ok := r.Messages[id]
	if !ok {
		return ErrMessageNotFound
	}
	if err := auth.AssertOwner(m.Author.ID, userID); err != nil {
		return err
	}
	delete(r.Messages, id)
	return nil
}

func (r *RepoMock) sortedNewestFirst() []Message {
	var messages []Message
	for _, m := range r.Messages {
		messages = append(messages, *m)
	}
	sort.Slice(messages, func(i, j int) bool {
		if !messages[i].CreatedAt.Equal(messages[j].CreatedAt) {
			return messages[i].CreatedAt.After(messages[j].CreatedAt)
		}
		return messages[i].ID > messages[j].ID
	})
	return messages
}

func (r *RepoMock) LastMessages(_ context.Context, limit int) ([]Message, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	messages := r.sortedNewestFirst()
	if limit < len(messages) {
		messages = messages[:limit]
	}
	// oldest first, as the repo returns them
	sort.Slice(messages, func(i, j int) bool {
		if !messages[i].CreatedAt.Equal(messages[j].CreatedAt) {
			return messages[i].CreatedAt.Before(messages[j].CreatedAt)
		}
		return messages[i].ID < messages[j].ID
	})
	return messages, nil
}

func (r *RepoMock) GetMessagesPage(_ context.Context, page, size int) ([]Message, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	messages := r.sortedNewestFirst()
	offset := (page - 1) * size
	if offset >= len(messages) {
		return nil, nil
	}
	end := offset + size
	if end > len(messages) {
		end = len(messages)
	}
	return messages[offset:end], nil
}

func (r *RepoMock) MessagesCount(_ context.Context) (int, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return len(r.Messages), nil
}
