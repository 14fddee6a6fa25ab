package auth

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		// INFO: https://github.com/go-redis/redis/issues/1029
		goleak.IgnoreTopFunction(
			"github.com/go-redis/redis/v8/internal/pool.(*ConnPool).reaper",
		),
	)
}

func TestService_Login(t *testing.T) {
	db, mock := redismock.NewClientMock()
	service := NewService(time.Hour, db)
	require.NotNil(t, service)
	service.RandStringFunc = func(_ int) (string, error) {
		return "test-token", nil
	}

	now := time.Now()
	sessionVal := fmt.Sprintf("42:%d", now.Unix())
	mock.ExpectSet(sessionKeyPrefix+"test-token", sessionVal, 0).SetVal("OK")
	mock.ExpectSAdd(tokensSetKey, "test-token").SetVal(1)

	token, err := service.Login(context.Background(), 42, now)
	require.NoError(t, err)
	assert.Equal(t, "test-token", token)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestService_Logout(t *testing.T) {
	db, mock := redismock.NewClientMock()
	service := NewService(time.Hour, db)

	now := time.Now()
	sessionKey := sessionKeyPrefix + "test-token"
	mock.ExpectGet(sessionKey).SetVal(fmt.Sprintf("42:%d", now.Unix()))
	mock.ExpectDel(sessionKey).SetVal(1)
	mock.ExpectSRem(tokensSetKey, "test-token").SetVal(1)

	loggedOut, err := service.Logout(context.Background(), "test-token")
	require.NoError(t, err)
	assert.True(t, loggedOut)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestService_Logout_unknownToken(t *testing.T) {
	db, mock := redismock.NewClientMock()
	service := NewService(time.Hour, db)

	mock.ExpectGet(sessionKeyPrefix + "whatever").RedisNil()

	loggedOut, err := service.Logout(context.Background(), "whatever")
	require.Error(t, err)
	assert.False(t, loggedOut)
}

func TestSessionChecker_UserID(t *testing.T) {
	db, mock := redismock.NewClientMock()
	checker := NewSessionChecker(time.Hour, db)
	require.NotNil(t, checker)

	ctx := context.Background()

	// unknown token -> no session, no error
	mock.ExpectGet(sessionKeyPrefix + "invalid token").RedisNil()
	userID, err := checker.UserID(ctx, "invalid token")
	require.NoError(t, err)
	assert.Zero(t, userID)

	// valid token
	now := time.Now()
	sessionKey := sessionKeyPrefix + "test-token"
	mock.ExpectGet(sessionKey).SetVal(fmt.Sprintf("42:%d", now.Unix()))
	userID, err = checker.UserID(ctx, "test-token")
	require.NoError(t, err)
	assert.Equal(t, 42, userID)

	// expired token
	expired := now.Add(-2 * time.Hour)
	mock.ExpectGet(sessionKey).SetVal(fmt.Sprintf("42:%d", expired.Unix()))
	userID, err = checker.UserID(ctx, "test-token")
	require.NoError(t, err)
	assert.Zero(t, userID)

	// malformed session value
	mock.ExpectGet(sessionKey).SetVal("gibberish")
	_, err = checker.UserID(ctx, "test-token")
	require.Error(t, err)
}

func TestAssertOwner(t *testing.T) {
	assert.NoError(t, AssertOwner(1, 1))
	assert.ErrorIs(t, AssertOwner(1, 2), ErrForbidden)
	assert.ErrorIs(t, AssertOwner(1, 0), ErrUnauthenticated)
	// the unauthenticated check comes first
	assert.ErrorIs(t, AssertOwner(0, 0), ErrUnauthenticated)
}

func TestUserIDContext(t *testing.T) {
	ctx := context.Background()
	assert.Zero(t, UserIDFromContext(ctx))

	ctx = WithUserID(ctx, 42)
	assert.Equal(t, 42, UserIDFromContext(ctx))
}
