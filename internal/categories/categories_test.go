package categories

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type repoMock struct {
	categories []Category
}

func (r *repoMock) List(_ context.Context) ([]Category, error) {
	return r.categories, nil
}

func TestHandler_List(t *testing.T) {
	repo := &repoMock{
		categories: []Category{
			{ID: 1, Name: "tech"},
			{ID: 2, Name: "life"},
		},
	}
	router := mux.NewRouter()
	NewHandler(repo).SetupRoutes(router)

	req, err := http.NewRequest(http.MethodGet, "/categories", nil)
	require.NoError(t, err)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var got []Category
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Equal(t, repo.categories, got)
}

func TestHandler_List_Empty(t *testing.T) {
	router := mux.NewRouter()
	NewHandler(&repoMock{}).SetupRoutes(router)

	req, err := http.NewRequest(http.MethodGet, "/categories", nil)
	require.NoError(t, err)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "[]", rr.Body.String())
}
