package test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yshindo/publog/internal/content"
)

type profileResponse struct {
	User struct {
		ID    int    `json:"id"`
		Name  string `json:"name"`
		Image string `json:"image"`
		Bio   string `json:"bio"`
		Email string `json:"email"`
	} `json:"user"`
	Blogs *content.ListResult `json:"blogs"`
}

func (s *IntegrationTestSuite) getProfile(
	ctx context.Context,
	authToken string,
	userID int,
) (profileResponse, *http.Response) {
	req, err := http.NewRequestWithContext(
		ctx,
		"GET", fmt.Sprintf("%s/users/profile/%d", serverEndpoint, userID),
		nil,
	)
	require.NoError(s.T(), err)
	req.Header.Set("User-Agent", "test-agent")
	if authToken != "" {
		req.Header.Set("X-PUBLOG-TOKEN", authToken)
	}

	resp, err := s.httpClient.Do(req)
	require.NoError(s.T(), err)
	defer resp.Body.Close()

	var profile profileResponse
	if resp.StatusCode == http.StatusOK {
		require.NoError(s.T(), json.NewDecoder(resp.Body).Decode(&profile))
	}

	return profile, resp
}

func (s *IntegrationTestSuite) TestUsers() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s.T().Run("signup validation", func(t *testing.T) {
		signupJson, err := json.Marshal(map[string]string{
			"name":     "Short Pass",
			"email":    "short.pass@publog.test",
			"password": "nope",
		})
		require.NoError(t, err)

		req, err := http.NewRequestWithContext(
			ctx,
			"POST", fmt.Sprintf("%s/users/signup", serverEndpoint),
			bytes.NewReader(signupJson),
		)
		require.NoError(t, err)
		req.Header.Set("User-Agent", "test-agent")
		req.Header.Set("Content-Type", "application/json")

		resp, err := s.httpClient.Do(req)
		require.NoError(t, err)
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
		defer resp.Body.Close()

		var errResp struct {
			Errors map[string][]string `json:"errors"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&errResp))
		assert.Contains(t, errResp.Errors, "password")
	})

	session := s.signupUser(ctx, "Milica M", "milica@publog.test", "password1")

	s.T().Run("login", func(t *testing.T) {
		_, resp := s.doLogin(ctx, "milica@publog.test", "wrong-password")
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)

		// an unknown email gets the same rejection
		_, resp = s.doLogin(ctx, "nobody@publog.test", "password1")
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)

		loginSession, resp := s.doLogin(ctx, "milica@publog.test", "password1")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.NotEmpty(t, loginSession.Token)
		assert.Equal(t, session.User.ID, loginSession.User.ID)
		assert.Equal(t, "milica@publog.test", loginSession.User.Email)
	})

	s.T().Run("profile", func(t *testing.T) {
		// a draft only the owner should see on their profile
		draftID := s.newPostRequest(ctx, session.Token, postPayload{
			Title:     "my unfinished thoughts",
			Content:   "draft",
			Published: false,
		})
		require.NotZero(t, draftID)

		// visitor view: no email, no drafts
		profile, resp := s.getProfile(ctx, "", session.User.ID)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "Milica M", profile.User.Name)
		assert.Empty(t, profile.User.Email)
		for _, post := range profile.Blogs.Posts {
			assert.True(t, post.Published)
		}

		// owner view
		profile, resp = s.getProfile(ctx, session.Token, session.User.ID)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "milica@publog.test", profile.User.Email)
		found := false
		for _, post := range profile.Blogs.Posts {
			if post.ID == draftID {
				found = true
			}
		}
		assert.True(t, found, "owner profile should list the draft")

		_, resp = s.getProfile(ctx, "", 987654)
		require.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	s.T().Run("update profile", func(t *testing.T) {
		updateJson, err := json.Marshal(map[string]string{
			"name": "Milica Mirabilis",
			"bio":  "writes about everything and nothing",
		})
		require.NoError(t, err)

		req, err := http.NewRequestWithContext(
			ctx,
			"PUT", fmt.Sprintf("%s/users/profile", serverEndpoint),
			bytes.NewReader(updateJson),
		)
		require.NoError(t, err)
		req.Header.Set("User-Agent", "test-agent")
		req.Header.Set("X-PUBLOG-TOKEN", session.Token)
		req.Header.Set("Content-Type", "application/json")

		resp, err := s.httpClient.Do(req)
		require.NoError(t, err)
		assert.NoError(t, resp.Body.Close())
		require.Equal(t, http.StatusOK, resp.StatusCode)

		profile, getResp := s.getProfile(ctx, "", session.User.ID)
		require.Equal(t, http.StatusOK, getResp.StatusCode)
		assert.Equal(t, "Milica Mirabilis", profile.User.Name)
		assert.Equal(t, "writes about everything and nothing", profile.User.Bio)
	})

	s.T().Run("change password", func(t *testing.T) {
		changeJson, err := json.Marshal(map[string]string{
			"current_password": "password1",
			"new_password":     "password2",
		})
		require.NoError(t, err)

		req, err := http.NewRequestWithContext(
			ctx,
			"PUT", fmt.Sprintf("%s/users/password", serverEndpoint),
			bytes.NewReader(changeJson),
		)
		require.NoError(t, err)
		req.Header.Set("User-Agent", "test-agent")
		req.Header.Set("X-PUBLOG-TOKEN", session.Token)
		req.Header.Set("Content-Type", "application/json")

		resp, err := s.httpClient.Do(req)
		require.NoError(t, err)
		assert.NoError(t, resp.Body.Close())
		require.Equal(t, http.StatusOK, resp.StatusCode)

		_, loginResp := s.doLogin(ctx, "milica@publog.test", "password1")
		require.Equal(t, http.StatusBadRequest, loginResp.StatusCode)

		_, loginResp = s.doLogin(ctx, "milica@publog.test", "password2")
		require.Equal(t, http.StatusOK, loginResp.StatusCode)
	})

	s.T().Run("logout", func(t *testing.T) {
		req, err := http.NewRequestWithContext(
			ctx,
			"GET", fmt.Sprintf("%s/users/logout", serverEndpoint),
			nil,
		)
		require.NoError(t, err)
		req.Header.Set("User-Agent", "test-agent")
		req.Header.Set("X-PUBLOG-TOKEN", session.Token)

		resp, err := s.httpClient.Do(req)
		require.NoError(t, err)
		assert.NoError(t, resp.Body.Close())
		require.Equal(t, http.StatusOK, resp.StatusCode)

		// the token no longer opens protected doors
		postJson, err := json.Marshal(postPayload{
			Title:     "after logout",
			Content:   "should not happen",
			Published: true,
		})
		require.NoError(t, err)

		req, err = http.NewRequestWithContext(
			ctx,
			"POST", fmt.Sprintf("%s/posts", serverEndpoint),
			bytes.NewReader(postJson),
		)
		require.NoError(t, err)
		req.Header.Set("User-Agent", "test-agent")
		req.Header.Set("X-PUBLOG-TOKEN", session.Token)
		req.Header.Set("Content-Type", "application/json")

		resp, err = s.httpClient.Do(req)
		require.NoError(t, err)
		assert.NoError(t, resp.Body.Close())
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})
}
