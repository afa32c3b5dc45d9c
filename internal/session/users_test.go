package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewUsersAppendsRootLast(t *testing.T) {
	u := NewUsers([]string{"alice", "bob"})
	assert.Equal(t, []string{"alice", "bob", "root"}, u.Names())
	assert.Equal(t, "alice", u.Selected())
}

func TestNewUsersRootOnlyOnce(t *testing.T) {
	u := NewUsers([]string{"root", "alice", " root "})
	assert.Equal(t, []string{"alice", "root"}, u.Names())
}

func TestNewUsersEmpty(t *testing.T) {
	u := NewUsers(nil)
	assert.Equal(t, []string{"root"}, u.Names())
	assert.Equal(t, "root", u.Selected())
}

func TestSelectBounds(t *testing.T) {
	u := NewUsers([]string{"alice"})
	require.NoError(t, u.Select(1))
	assert.Equal(t, "root", u.Selected())

	assert.Error(t, u.Select(-1))
	assert.Error(t, u.Select(2))
	assert.Equal(t, "root", u.Selected(), "failed select must not move")
}
