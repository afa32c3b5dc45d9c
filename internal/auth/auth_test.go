package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFuncAdapter(t *testing.T) {
	calls := 0
	a := Func(func(ctx context.Context, user string) error {
		calls++
		if user == "alice" {
			return nil
		}
		return errors.New("denied")
	})

	assert.NoError(t, a.Authenticate(context.Background(), "alice"))
	assert.Error(t, a.Authenticate(context.Background(), "bob"))
	assert.Equal(t, 2, calls)
}

func TestHelperArgs(t *testing.T) {
	h := &Helper{}
	assert.Equal(t, DefaultHelper, h.command())
	assert.Equal(t, []string{"alice", "-c", "exit 0"}, h.args("alice"))

	h.Command = "/usr/bin/su"
	assert.Equal(t, "/usr/bin/su", h.command())
}

func TestHelperSuccessAndFailure(t *testing.T) {
	ctx := context.Background()

	ok := &Helper{Command: "true"}
	require.NoError(t, ok.Authenticate(ctx, "anyone"))

	bad := &Helper{Command: "false"}
	assert.Error(t, bad.Authenticate(ctx, "anyone"))
}

func TestHelperMissingBinary(t *testing.T) {
	h := &Helper{Command: "/nonexistent/helper"}
	assert.Error(t, h.Authenticate(context.Background(), "alice"))
}
