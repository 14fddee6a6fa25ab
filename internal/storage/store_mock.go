package storage

import (
	"context"
	"io"
	"sync"
)

var _ ObjectStore = (*StoreMock)(nil)

type StoreMock struct {
	mutex   sync.Mutex
	Objects map[string][]byte
}

func NewStoreMock() *StoreMock {
	return &StoreMock{
		Objects: map[string][]byte{},
	}
}

func (s *StoreMock) Put(_ context.Context, key, _ string, body io.Reader) (string, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	s.Objects[key] = data
	return "https://cdn.test/" + key, nil
}

func (s *StoreMock) Delete(_ context.Context, key string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	delete(s.Objects, key)
	return nil
}
