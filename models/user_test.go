package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserLogin(t *testing.T) {
	initTestEnv(t)
	user := createTestUser(t, "alice")
	require.NotZero(t, user.ID)
	assert.NotEmpty(t, user.PassSalt)
	assert.NotEqual(t, "secret", user.Password)

	loggedIn, ok := UserLogin("alice@example.com", "secret")
	require.True(t, ok)
	assert.Equal(t, user.ID, loggedIn.ID)

	_, ok = UserLogin("alice@example.com", "wrong")
	assert.False(t, ok)
	_, ok = UserLogin("nobody@example.com", "secret")
	assert.False(t, ok)
}

func TestOwnsPlace(t *testing.T) {
	user := User{PlaceIDs: []uint64{3, 5}}
	assert.True(t, user.OwnsPlace(3))
	assert.True(t, user.OwnsPlace(5))
	assert.False(t, user.OwnsPlace(4))
}
