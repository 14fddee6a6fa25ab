package test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yshindo/publog/internal/chat"
)

func (s *IntegrationTestSuite) newChatMessageRequest(
	ctx context.Context,
	authToken string,
	content string,
) int {
	messageJson, err := json.Marshal(map[string]string{"content": content})
	require.NoError(s.T(), err)

	req, err := http.NewRequestWithContext(
		ctx,
		"POST", fmt.Sprintf("%s/chat/messages", serverEndpoint),
		bytes.NewReader(messageJson),
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

	respParts := bytes.Split(respBytes, []byte(":"))
	require.Equal(s.T(), 2, len(respParts))

	id, err := strconv.Atoi(string(respParts[1]))
	require.NoError(s.T(), err)

	return id
}

func (s *IntegrationTestSuite) getLastChatMessages(
	ctx context.Context,
	limit int,
) []chat.Message {
	req, err := http.NewRequestWithContext(
		ctx,
		"GET", fmt.Sprintf("%s/chat/messages/last/%d", serverEndpoint, limit),
		nil,
	)
	require.NoError(s.T(), err)
	req.Header.Set("User-Agent", "test-agent")

	resp, err := s.httpClient.Do(req)
	require.NoError(s.T(), err)
	require.Equal(s.T(), http.StatusOK, resp.StatusCode)
	defer resp.Body.Close()

	var messages []chat.Message
	require.NoError(s.T(), json.NewDecoder(resp.Body).Decode(&messages))

	return messages
}

func (s *IntegrationTestSuite) TestChat() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	chatter := s.signupUser(ctx, "Chatter", "chatter@publog.test", "password1")
	lurker := s.signupUser(ctx, "Lurker", "lurker@publog.test", "password1")

	s.T().Run("message without auth token", func(t *testing.T) {
		messageJson, err := json.Marshal(map[string]string{"content": "sneaky"})
		require.NoError(t, err)

		req, err := http.NewRequestWithContext(
			ctx,
			"POST", fmt.Sprintf("%s/chat/messages", serverEndpoint),
			bytes.NewReader(messageJson),
		)
		require.NoError(t, err)
		req.Header.Set("User-Agent", "test-agent")
		req.Header.Set("Content-Type", "application/json")

		resp, err := s.httpClient.Do(req)
		require.NoError(t, err)
		assert.NoError(t, resp.Body.Close())
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	s.T().Run("send and list messages", func(t *testing.T) {
		id1 := s.newChatMessageRequest(ctx, chatter.Token, "hello there")
		id2 := s.newChatMessageRequest(ctx, chatter.Token, "anyone home?")
		require.NotZero(t, id1)
		require.NotZero(t, id2)

		// last messages come back oldest first
		messages := s.getLastChatMessages(ctx, 2)
		require.Equal(t, 2, len(messages))
		assert.Equal(t, id1, messages[0].ID)
		assert.Equal(t, "hello there", messages[0].Content)
		assert.Equal(t, chatter.User.ID, messages[0].Author.ID)
		assert.Equal(t, id2, messages[1].ID)

		req, err := http.NewRequestWithContext(
			ctx,
			"GET", fmt.Sprintf("%s/chat/messages/count", serverEndpoint),
			nil,
		)
		require.NoError(t, err)
		req.Header.Set("User-Agent", "test-agent")

		resp, err := s.httpClient.Do(req)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		defer resp.Body.Close()

		var countResp struct {
			Count int `json:"count"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&countResp))
		assert.GreaterOrEqual(t, countResp.Count, 2)
	})

	s.T().Run("delete respects ownership", func(t *testing.T) {
		id := s.newChatMessageRequest(ctx, chatter.Token, "to be removed")

		deleteReq := func(token string) *http.Response {
			req, err := http.NewRequestWithContext(
				ctx,
				"DELETE", fmt.Sprintf("%s/chat/messages/%d", serverEndpoint, id),
				nil,
			)
			require.NoError(t, err)
			req.Header.Set("User-Agent", "test-agent")
			req.Header.Set("X-PUBLOG-TOKEN", token)

			resp, err := s.httpClient.Do(req)
			require.NoError(t, err)
			require.NoError(t, resp.Body.Close())
			return resp
		}

		resp := deleteReq(lurker.Token)
		require.Equal(t, http.StatusForbidden, resp.StatusCode)

		resp = deleteReq(chatter.Token)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		resp = deleteReq(chatter.Token)
		require.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}
