// Package testutil provides helpers shared by the integration suites:
// deterministic identities, bearer tokens and polling assertions.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/tsafe/backend/internal/infrastructure/auth"
	"github.com/tsafe/backend/internal/infrastructure/config"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// NewTestUUID generates a deterministic UUID for testing.
// Uses the provided seed string to create a reproducible UUID.
func NewTestUUID(seed string) uuid.UUID {
	namespace := uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	return uuid.NewSHA1(namespace, []byte(seed))
}

// TestUserID returns a standard tourist user ID for tests.
func TestUserID() uuid.UUID {
	return NewTestUUID("test-user")
}

// TestAdminID returns a standard operator user ID for tests.
func TestAdminID() uuid.UUID {
	return NewTestUUID("test-admin")
}

// TestJWTConfig returns signing settings shared by the token helpers and
// the middleware under test.
func TestJWTConfig() config.JWTConfig {
	return config.JWTConfig{
		Secret:                "integration-test-secret-at-least-32-bytes",
		Issuer:                "tsafe-test",
		AccessTokenExpiration: time.Hour,
	}
}

// IssueToken signs a bearer token for userID.
func IssueToken(t *testing.T, svc *auth.JWTService, userID uuid.UUID, isAdmin bool) string {
	t.Helper()

	token, _, err := svc.Issue(auth.IssueInput{UserID: userID, IsAdmin: isAdmin})
	require.NoError(t, err, "Failed to issue token")
	return token
}

// ContextWithTimeout creates a context with a timeout for tests.
func ContextWithTimeout(t *testing.T, timeout time.Duration) (context.Context, context.CancelFunc) {
	t.Helper()
	return context.WithTimeout(context.Background(), timeout)
}

// RequireEventually retries condition until it holds or fails the test.
func RequireEventually(t *testing.T, condition func() bool, timeout, interval time.Duration, msgAndArgs ...any) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(interval)
	}

	require.Fail(t, "Condition not met within timeout", msgAndArgs...)
}

// AssertNever verifies a condition never becomes true within the duration.
func AssertNever(t *testing.T, condition func() bool, duration, interval time.Duration, msgAndArgs ...any) {
	t.Helper()

	deadline := time.Now().Add(duration)
	for time.Now().Before(deadline) {
		if condition() {
			t.Fatalf("Condition unexpectedly became true: %v", msgAndArgs)
		}
		time.Sleep(interval)
	}
}
