package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sessionhub/internal/domain"
	dErrors "sessionhub/pkg/domainerrors"
)

func newTestVerifier(lifetime time.Duration) *Verifier {
	return NewVerifier(Config{Secret: "test-secret", Issuer: "sessionhub", Lifetime: lifetime})
}

func TestVerifier_IssueAndVerifyRoundTrip(t *testing.T) {
	v := newTestVerifier(time.Hour)

	token, err := v.Issue(domain.UserID("user-1"), "Ada", "ada@example.com", false)
	require.NoError(t, err)

	principal, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, domain.UserID("user-1"), principal.UserID)
	assert.Equal(t, "Ada", principal.DisplayName)
	assert.Equal(t, "ada@example.com", principal.Email)
	assert.False(t, principal.Anonymous)
}

func TestVerifier_AnonymousPrincipal(t *testing.T) {
	v := newTestVerifier(time.Hour)

	token, err := v.Issue(domain.UserID("guest-1"), "Guest", "", true)
	require.NoError(t, err)

	principal, err := v.Verify(token)
	require.NoError(t, err)
	assert.True(t, principal.Anonymous)
	assert.Empty(t, principal.Email)
}

func TestVerifier_RejectsTamperedSignature(t *testing.T) {
	v := newTestVerifier(time.Hour)
	other := newTestVerifier(time.Hour)
	other.signingKey = []byte("different-secret")

	token, err := other.Issue(domain.UserID("user-1"), "Ada", "", false)
	require.NoError(t, err)

	_, err = v.Verify(token)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func TestVerifier_RejectsExpiredToken(t *testing.T) {
	v := newTestVerifier(-time.Hour)

	token, err := v.Issue(domain.UserID("user-1"), "Ada", "", false)
	require.NoError(t, err)

	_, err = v.Verify(token)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func TestVerifier_RefreshRejectsExpired(t *testing.T) {
	v := newTestVerifier(-time.Hour)

	token, err := v.Issue(domain.UserID("user-1"), "Ada", "", false)
	require.NoError(t, err)

	_, err = v.Refresh(token)
	require.Error(t, err, "refresh must not grant a sliding grace period to expired tokens")
}

func TestVerifier_RefreshPreservesIdentity(t *testing.T) {
	v := newTestVerifier(time.Hour)

	token, err := v.Issue(domain.UserID("user-1"), "Ada", "ada@example.com", false)
	require.NoError(t, err)

	refreshed, err := v.Refresh(token)
	require.NoError(t, err)

	principal, err := v.Verify(refreshed)
	require.NoError(t, err)
	assert.Equal(t, domain.UserID("user-1"), principal.UserID)
	assert.Equal(t, "Ada", principal.DisplayName)
	assert.Equal(t, "ada@example.com", principal.Email)
}
