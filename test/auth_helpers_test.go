package test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/stretchr/testify/require"
)

type sessionUser struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Image string `json:"image"`
	Email string `json:"email"`
}

type sessionResponse struct {
	Token string      `json:"token"`
	User  sessionUser `json:"user"`
}

func (s *IntegrationTestSuite) signupUser(
	ctx context.Context,
	name, email, password string,
) sessionResponse {
	signupJson, err := json.Marshal(map[string]string{
		"name":     name,
		"email":    email,
		"password": password,
	})
	require.NoError(s.T(), err)

	req, err := http.NewRequestWithContext(
		ctx,
		"POST", fmt.Sprintf("%s/users/signup", serverEndpoint),
		bytes.NewReader(signupJson),
	)
	require.NoError(s.T(), err)
	req.Header.Set("User-Agent", "test-agent")
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	require.NoError(s.T(), err)
	require.Equal(s.T(), http.StatusCreated, resp.StatusCode)
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	require.NoError(s.T(), err)
	require.NotEmpty(s.T(), respBytes)

	var session sessionResponse
	require.NoError(s.T(), json.Unmarshal(respBytes, &session))
	require.NotEmpty(s.T(), session.Token)
	require.NotZero(s.T(), session.User.ID)

	return session
}

func (s *IntegrationTestSuite) doLogin(
	ctx context.Context,
	email, password string,
) (sessionResponse, *http.Response) {
	loginJson, err := json.Marshal(map[string]string{
		"email":    email,
		"password": password,
	})
	require.NoError(s.T(), err)

	req, err := http.NewRequestWithContext(
		ctx,
		"POST", fmt.Sprintf("%s/users/login", serverEndpoint),
		bytes.NewReader(loginJson),
	)
	require.NoError(s.T(), err)
	req.Header.Set("User-Agent", "test-agent")
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	require.NoError(s.T(), err)
	defer resp.Body.Close()

	var session sessionResponse
	if resp.StatusCode == http.StatusOK {
		require.NoError(s.T(), json.NewDecoder(resp.Body).Decode(&session))
	}

	return session, resp
}
