package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToken_RoundTrip(t *testing.T) {
	a := New("jwt-secret", "master")

	token, err := a.CreateToken("admin")
	require.NoError(t, err)

	claims, err := a.VerifyToken(token)
	require.NoError(t, err)
	assert.Equal(t, "admin", claims.Username)

	_, err = New("other-secret", "master").VerifyToken(token)
	assert.Error(t, err)
}

func TestToken_Expired(t *testing.T) {
	a := New("jwt-secret", "master")
	a.now = func() time.Time { return time.Now().Add(-48 * time.Hour) }

	token, err := a.CreateToken("admin")
	require.NoError(t, err)

	_, err = New("jwt-secret", "master").VerifyToken(token)
	assert.Error(t, err)
}

func TestParticipantKey(t *testing.T) {
	a := New("jwt", "master-secret")

	key := a.GenerateParticipantKey("alice@example.com")
	userID, err := a.VerifyParticipantKey(key)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", userID)

	_, err = New("jwt", "different").VerifyParticipantKey(key)
	assert.ErrorIs(t, err, ErrInvalidSignature)

	for _, bad := range []string{"", "nodot", ".sig", "user."} {
		_, err = a.VerifyParticipantKey(bad)
		assert.ErrorIs(t, err, ErrInvalidKeyFormat, bad)
	}
}

type fakeAdminStore struct {
	count   int64
	created []string
}

func (f *fakeAdminStore) CountAdmins(context.Context) (int64, error) { return f.count, nil }

func (f *fakeAdminStore) CreateAdmin(_ context.Context, username, hash string) error {
	f.created = append(f.created, username)
	f.count++
	return nil
}

func TestEnsureAdminExists(t *testing.T) {
	store := &fakeAdminStore{}

	created, err := EnsureAdminExists(context.Background(), store, "root", "pw")
	require.NoError(t, err)
	assert.True(t, created)

	created, err = EnsureAdminExists(context.Background(), store, "root", "pw")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, []string{"root"}, store.created)
}

func TestPasswordHash(t *testing.T) {
	hash, err := HashPassword("hunter2")
	require.NoError(t, err)
	assert.True(t, CheckPasswordHash("hunter2", hash))
	assert.False(t, CheckPasswordHash("hunter3", hash))
}
