package cli

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"
)

// detachedEnv marks the re-executed child so it locks instead of spawning
// another copy of itself.
const detachedEnv = "VTLOCK_DETACHED"

// detach re-executes the binary in its own session and returns immediately,
// giving the invoking shell its prompt back while the child holds the lock.
func detach() error {
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locate executable: %w", err)
	}

	cmd := exec.Command(exe, os.Args[1:]...)
	cmd.Env = append(os.Environ(), detachedEnv+"=1")
	// Keep the streams for diagnostics that happen before the console
	// switches; Setsid drops the controlling terminal so a later hangup
	// on it cannot take the lock down.
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("detach: %w", err)
	}
	return nil
}
