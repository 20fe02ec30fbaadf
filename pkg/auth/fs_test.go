package auth

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFsAuth(t *testing.T, dir string, pepper byte) *FsAuth {
	t.Helper()
	var p [PepperLen]byte
	for i := range p {
		p[i] = pepper
	}
	a, err := NewFsAuth(FsAuthConfig{AuthPath: dir, Pepper: p})
	require.NoError(t, err)
	return a
}

func TestTokenShape(t *testing.T) {
	a := newFsAuth(t, t.TempDir(), 123)
	ctx := context.Background()

	token, err := a.Register(ctx, "alice")
	require.NoError(t, err)

	// fr1_ prefix plus 28 base64 chars for the 21-byte payload.
	assert.Len(t, token, 32)
	assert.True(t, strings.HasPrefix(token, "fr1_"))

	// Round trip: parsing the rendered token recovers the stored hash.
	var bare [bareTokenLen]byte
	hash := a.hashToken(bare)
	parsed, err := a.tokenFromString(a.tokenToString(bare))
	require.NoError(t, err)
	assert.Equal(t, hash, parsed)
}

func TestFsTokens(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	a := newFsAuth(t, dir, 123)

	user1, err := a.Register(ctx, "user1")
	require.NoError(t, err)
	user2, err := a.Register(ctx, "user2")
	require.NoError(t, err)
	assert.NotEqual(t, user1, user2)

	assert.ErrorIs(t, a.AuthYank(ctx, user1, "crate1"), ErrCrateNotFound)
	assert.ErrorIs(t, a.AuthYank(ctx, "badtoken", "crate1"), ErrInvalidCredentials)
	assert.ErrorIs(t, a.Publish(ctx, "badtoken", "crate1"), ErrInvalidCredentials)

	require.NoError(t, a.Publish(ctx, user1, "crate1"))
	assert.ErrorIs(t, a.Publish(ctx, user2, "crate1"), ErrForbidden)
	require.NoError(t, a.AuthYank(ctx, user1, "crate1"))

	require.NoError(t, a.AddOwners(ctx, user1, []string{"user2"}, "crate1"))
	require.NoError(t, a.AuthYank(ctx, user2, "crate1"))
	require.NoError(t, a.Publish(ctx, user2, "crate1"))

	// Reload from disk.
	a = newFsAuth(t, dir, 123)

	assert.ErrorIs(t, a.RemoveOwners(ctx, user1, []string{"user1"}, "bad_crate"), ErrCrateNotFound)
	assert.ErrorIs(t, a.AuthYank(ctx, user1, "bad_crate"), ErrCrateNotFound)
	require.NoError(t, a.RemoveOwners(ctx, user2, []string{"user1"}, "crate1"))
	assert.ErrorIs(t, a.Publish(ctx, user1, "crate1"), ErrForbidden)
	require.NoError(t, a.Publish(ctx, user2, "crate1"))

	// Can't remove all owners, and non-owners can't remove anyone.
	assert.ErrorIs(t, a.RemoveOwners(ctx, user1, []string{"user2"}, "crate1"), ErrForbidden)
	assert.ErrorIs(t, a.RemoveOwners(ctx, user1, []string{"user1"}, "crate1"), ErrForbidden)

	// Changing the pepper invalidates all outstanding tokens.
	a = newFsAuth(t, dir, 99)
	assert.ErrorIs(t, a.AuthYank(ctx, user2, "crate1"), ErrInvalidCredentials)
	assert.ErrorIs(t, a.Publish(ctx, user2, "crate1"), ErrInvalidCredentials)
	assert.ErrorIs(t, a.Publish(ctx, user1, "crate1"), ErrInvalidCredentials)
}

func TestRemoveOwnersRefusesToEmptyTheSet(t *testing.T) {
	ctx := context.Background()
	a := newFsAuth(t, t.TempDir(), 1)

	alice, err := a.Register(ctx, "alice")
	require.NoError(t, err)
	bob, err := a.Register(ctx, "bob")
	require.NoError(t, err)

	require.NoError(t, a.Publish(ctx, alice, "crate1"))
	require.NoError(t, a.AddOwners(ctx, alice, []string{"bob"}, "crate1"))

	// Attempting to empty the set stops at the last owner.
	assert.ErrorIs(t, a.RemoveOwners(ctx, bob, []string{"alice", "bob"}, "crate1"), ErrForbidden)

	owners, err := a.ListOwners(ctx, "", "crate1")
	require.NoError(t, err)
	require.Len(t, owners, 1)
	assert.Equal(t, "bob", owners[0].Login)
}

func TestRegisterDuplicateLogin(t *testing.T) {
	ctx := context.Background()
	a := newFsAuth(t, t.TempDir(), 1)

	_, err := a.Register(ctx, "alice")
	require.NoError(t, err)
	_, err = a.Register(ctx, "alice")
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestFirstPublishClaimsOwnershipDurably(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	a := newFsAuth(t, dir, 1)

	alice, err := a.Register(ctx, "alice")
	require.NoError(t, err)
	require.NoError(t, a.Publish(ctx, alice, "crate1"))

	// Ownership from the first publish survives a restart.
	a = newFsAuth(t, dir, 1)
	owners, err := a.ListOwners(ctx, "", "crate1")
	require.NoError(t, err)
	require.Len(t, owners, 1)
	assert.Equal(t, "alice", owners[0].Login)
}
