package users

import (
	"context"
	"sync"
	"time"
)

var _ usersRepo = (*RepoMock)(nil)

type RepoMock struct {
	mutex  sync.Mutex
	Users  map[int]*User
	nextID int
}

func NewRepoMock() *RepoMock {
	return &RepoMock{
		Users:  map[int]*User{},
		nextID: 1,
	}
}

func (r *RepoMock) Create(_ context.Context, email, name, passwordHash string) (*User, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	for _, u := range r.Users {
		if u.Email == email {
			return nil, ErrEmailTaken
		}
	}

	user := &User{
		ID:           r.nextID,
		Email:        email,
		Name:         name,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now(),
	}
	r.nextID++
	r.Users[user.ID] = user
	return user, nil
}

func (r *RepoMock) GetByEmail(_ context.Context, email string) (*User, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	for _, u := range r.Users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, ErrUserNotFound
}

func (r *RepoMock) GetByID(_ context.Context, id int) (*User, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	u, ok := r.Users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return u, nil
}

func (r *RepoMock) UpdateProfile(_ context.Context, id int, name, bio string) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	u, ok := r.Users[id]
	if !ok {
		return ErrUserNotFound
	}
	u.Name = name
	u.Bio = bio
	return nil
}

func (r *RepoMock) UpdatePassword(_ context.Context, id int, passwordHash string) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	u, ok := r.Users[id]
	if !ok {
		return ErrUserNotFound
	}
	u.PasswordHash = passwordHash
	return nil
}

func (r *RepoMock) UpdateImage(_ context.Context, id int, image string) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	u, ok := r.Users[id]
	if !ok {
		return ErrUserNotFound
	}
	u.Image = image
	return nil
}
