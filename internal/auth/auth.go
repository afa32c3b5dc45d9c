// Package auth verifies unlock credentials. The core never inspects why an
// attempt failed; any non-nil error counts as a failed attempt.
package auth

import (
	"context"
	"fmt"
	"os"
	"os/exec"
)

// Authenticator checks credentials for a username.
type Authenticator interface {
	Authenticate(ctx context.Context, user string) error
}

// Func adapts a function to the Authenticator interface.
type Func func(ctx context.Context, user string) error

func (f Func) Authenticate(ctx context.Context, user string) error { return f(ctx, user) }

// DefaultHelper is PAM-aware, prompts on its controlling terminal and exits
// zero only on success, which is exactly the contract needed here.
const DefaultHelper = "su"

// Helper authenticates by running a helper command attached to the locked
// terminal. The child gets a scrubbed environment so nothing from the locked
// session can influence the credential check.
type Helper struct {
	// Command is the helper binary; DefaultHelper when empty.
	Command string
	// Terminal carries the helper's std streams; inherited when nil.
	Terminal *os.File
}

func (h *Helper) Authenticate(ctx context.Context, user string) error {
	cmd := exec.CommandContext(ctx, h.command(), h.args(user)...)
	cmd.Env = []string{"TERM=linux"}
	if h.Terminal != nil {
		cmd.Stdin = h.Terminal
		cmd.Stdout = h.Terminal
		cmd.Stderr = h.Terminal
	}
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("authenticate %s: %w", user, err)
	}
	return nil
}

func (h *Helper) command() string {
	if h.Command != "" {
		return h.Command
	}
	return DefaultHelper
}

// args asks the helper to verify credentials and exit instead of starting a
// shell.
func (h *Helper) args(user string) []string {
	return []string{user, "-c", "exit 0"}
}
