package test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yshindo/publog/internal/content"
)

type postPayload struct {
	Title      string `json:"title"`
	Content    string `json:"content"`
	Published  bool   `json:"published"`
	Categories []int  `json:"categories"`
}

func (s *IntegrationTestSuite) newPostRequest(
	ctx context.Context,
	authToken string,
	post postPayload,
) int {
	postJson, err := json.Marshal(post)
	require.NoError(s.T(), err)

	req, err := http.NewRequestWithContext(
		ctx,
		"POST", fmt.Sprintf("%s/posts", serverEndpoint),
		bytes.NewReader(postJson),
	)
	require.NoError(s.T(), err)
	req.Header.Set("User-Agent", "test-agent")
	req.Header.Set("X-PUBLOG-TOKEN", authToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	require.NoError(s.T(), err)
	require.Equal(s.T(), http.StatusCreated, resp.StatusCode)
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	require.NoError(s.T(), err)
	require.NotEmpty(s.T(), respBytes)

	respParts := bytes.Split(respBytes, []byte(":"))
	require.Equal(s.T(), 2, len(respParts))

	id, err := strconv.Atoi(string(respParts[1]))
	require.NoError(s.T(), err)

	return id
}

func (s *IntegrationTestSuite) getPosts(
	ctx context.Context,
	query url.Values,
) *content.ListResult {
	req, err := http.NewRequestWithContext(
		ctx,
		"GET", fmt.Sprintf("%s/posts?%s", serverEndpoint, query.Encode()),
		nil,
	)
	require.NoError(s.T(), err)
	req.Header.Set("User-Agent", "test-agent")

	resp, err := s.httpClient.Do(req)
	require.NoError(s.T(), err)
	require.Equal(s.T(), http.StatusOK, resp.StatusCode)
	defer resp.Body.Close()

	var listResult content.ListResult
	require.NoError(s.T(),
		json.NewDecoder(resp.Body).Decode(&listResult),
	)

	return &listResult
}

func (s *IntegrationTestSuite) deletePostRequest(
	ctx context.Context,
	authToken string,
	postID int,
) (*http.Response, error) {
	req, err := http.NewRequestWithContext(
		ctx,
		"DELETE", fmt.Sprintf("%s/posts/%d", serverEndpoint, postID),
		nil,
	)
	require.NoError(s.T(), err)
	req.Header.Set("User-Agent", "test-agent")
	if authToken != "" {
		req.Header.Set("X-PUBLOG-TOKEN", authToken)
	}

	return s.httpClient.Do(req)
}

func (s *IntegrationTestSuite) TestPosts() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	author := s.signupUser(ctx, "Post Author", "post.author@publog.test", "password1")
	other := s.signupUser(ctx, "Other User", "other.user@publog.test", "password1")

	// the needle keeps these assertions independent from
	// posts created by the other suite tests
	needle := "krokodil"

	s.T().Run("add post without auth token", func(t *testing.T) {
		postJson, err := json.Marshal(postPayload{
			Title:   "test post",
			Content: "test content",
		})
		require.NoError(t, err)

		req, err := http.NewRequestWithContext(
			ctx,
			"POST", fmt.Sprintf("%s/posts", serverEndpoint),
			bytes.NewReader(postJson),
		)
		require.NoError(t, err)
		req.Header.Set("User-Agent", "test-agent")
		req.Header.Set("Content-Type", "application/json")

		resp, err := s.httpClient.Do(req)
		require.NoError(t, err)
		assert.NoError(t, resp.Body.Close())
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	var publishedID, draftID int
	s.T().Run("published posts visible, drafts not", func(t *testing.T) {
		publishedID = s.newPostRequest(ctx, author.Token, postPayload{
			Title:      "a " + needle + " appears",
			Content:    "published content",
			Published:  true,
			Categories: []int{1},
		})
		require.NotZero(t, publishedID)

		draftID = s.newPostRequest(ctx, author.Token, postPayload{
			Title:     "a " + needle + " hides",
			Content:   "draft content",
			Published: false,
		})
		require.NotZero(t, draftID)

		listResult := s.getPosts(ctx, url.Values{"search": {needle}})
		require.Equal(t, 1, len(listResult.Posts))
		require.Equal(t, 1, listResult.TotalPages)
		assert.Equal(t, publishedID, listResult.Posts[0].ID)
		assert.Equal(t, author.User.ID, listResult.Posts[0].Author.ID)
		assert.NotNil(t, listResult.Posts[0].PublishedAt)
	})

	s.T().Run("category filter", func(t *testing.T) {
		listResult := s.getPosts(ctx, url.Values{
			"search":   {needle},
			"category": {"1"},
		})
		require.Equal(t, 1, len(listResult.Posts))
		assert.Equal(t, publishedID, listResult.Posts[0].ID)

		listResult = s.getPosts(ctx, url.Values{
			"search":   {needle},
			"category": {"2"},
		})
		assert.Empty(t, listResult.Posts)
	})

	s.T().Run("pagination", func(t *testing.T) {
		for i := 0; i < 12; i++ {
			s.newPostRequest(ctx, author.Token, postPayload{
				Title:     fmt.Sprintf("%s wave %d", needle, i),
				Content:   "wave content",
				Published: true,
			})
		}

		listResult := s.getPosts(ctx, url.Values{"search": {needle}})
		require.Equal(t, 10, len(listResult.Posts))
		assert.Equal(t, 2, listResult.TotalPages)
		assert.Equal(t, 1, listResult.CurrentPage)

		listResult = s.getPosts(ctx, url.Values{
			"search": {needle},
			"page":   {"2"},
		})
		require.Equal(t, 3, len(listResult.Posts))
		assert.Equal(t, 2, listResult.CurrentPage)

		// a page past the data is simply empty
		listResult = s.getPosts(ctx, url.Values{
			"search": {needle},
			"page":   {"5"},
		})
		assert.Empty(t, listResult.Posts)
		assert.Equal(t, 2, listResult.TotalPages)
	})

	s.T().Run("update respects ownership", func(t *testing.T) {
		updateJson, err := json.Marshal(postPayload{
			Title:     "hijacked",
			Content:   "hijacked content",
			Published: true,
		})
		require.NoError(t, err)

		req, err := http.NewRequestWithContext(
			ctx,
			"PUT", fmt.Sprintf("%s/posts/%d", serverEndpoint, publishedID),
			bytes.NewReader(updateJson),
		)
		require.NoError(t, err)
		req.Header.Set("User-Agent", "test-agent")
		req.Header.Set("X-PUBLOG-TOKEN", other.Token)
		req.Header.Set("Content-Type", "application/json")

		resp, err := s.httpClient.Do(req)
		require.NoError(t, err)
		assert.NoError(t, resp.Body.Close())
		require.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	s.T().Run("delete respects ownership", func(t *testing.T) {
		resp, err := s.deletePostRequest(ctx, other.Token, draftID)
		require.NoError(t, err)
		assert.NoError(t, resp.Body.Close())
		require.Equal(t, http.StatusForbidden, resp.StatusCode)

		resp, err = s.deletePostRequest(ctx, "", draftID)
		require.NoError(t, err)
		assert.NoError(t, resp.Body.Close())
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

		resp, err = s.deletePostRequest(ctx, author.Token, draftID)
		require.NoError(t, err)
		assert.NoError(t, resp.Body.Close())
		require.Equal(t, http.StatusOK, resp.StatusCode)

		// deleting again, the post is gone
		resp, err = s.deletePostRequest(ctx, author.Token, draftID)
		require.NoError(t, err)
		assert.NoError(t, resp.Body.Close())
		require.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}
