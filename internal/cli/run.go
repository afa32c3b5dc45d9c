package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sys/unix"
	"golang.org/x/term"

	"github.com/vtlock/vtlock/internal/auth"
	"github.com/vtlock/vtlock/internal/config"
	"github.com/vtlock/vtlock/internal/fb"
	"github.com/vtlock/vtlock/internal/lock"
	"github.com/vtlock/vtlock/internal/session"
	"github.com/vtlock/vtlock/internal/vt"
)

func run(ctx context.Context, cfg config.Config, noDetach bool) error {
	if os.Geteuid() != 0 {
		return exitf(1, "vtlock: must be run as root or installed setuid root")
	}
	// Under setuid the real ids still point at the invoking user; become
	// root outright so the child keeps the privilege across the re-exec.
	if err := unix.Setregid(0, 0); err != nil {
		return exitf(1, "vtlock: setregid: %v", err)
	}
	if err := unix.Setreuid(0, 0); err != nil {
		return exitf(1, "vtlock: setreuid: %v", err)
	}

	if os.Getenv(detachedEnv) == "" && !noDetach {
		return detach()
	}
	return lockAndServe(ctx, cfg)
}

func lockAndServe(ctx context.Context, cfg config.Config) error {
	logger, closeLog, err := newLogger(cfg.Logging)
	if err != nil {
		return exitf(1, "vtlock: %v", err)
	}
	defer closeLog()

	// The locked terminal is the only way back in; none of these may end
	// the process while the console is locked.
	signal.Ignore(syscall.SIGQUIT, syscall.SIGTERM, syscall.SIGTSTP)
	interrupts := make(chan os.Signal, 1)
	signal.Notify(interrupts, syscall.SIGINT)
	defer signal.Stop(interrupts)

	console, err := vt.Open()
	if err != nil {
		return fatal(logger, err)
	}
	defer console.Close()

	locker := lock.New(lock.NewConsoleDriver(console), nil, logger)
	return serveLocked(ctx, cfg, locker, interrupts, logger)
}

func serveLocked(ctx context.Context, cfg config.Config, locker *lock.Locker, interrupts <-chan os.Signal, logger *slog.Logger) error {
	sess, err := locker.Enter(lock.Config{
		GuardSysrq:  cfg.Guards.Sysrq,
		GuardPrintk: cfg.Guards.KernelMessages,
		LockSwitch:  cfg.Guards.SwitchLock,
		Dark:        cfg.Dark,
	})
	if err != nil {
		return fatal(logger, err)
	}
	// Deferred so teardown survives anything below, panics included; a
	// dead process with switching still locked leaves the console unusable.
	defer locker.Leave(sess)

	terminal := sess.Terminal
	// Ctrl+C has to reach us as SIGINT to drive user selection.
	if err := terminal.SetSignals(vt.SigInterrupt); err != nil {
		return fatalOn(logger, terminal, err)
	}

	var painter session.Painter
	if cfg.Background.Path != "" {
		mode, _ := fb.ParseFillMode(cfg.Background.Fill)
		bg, bgErr := fb.Open(cfg.Background.Path, mode, cfg.Background.Device)
		if bgErr != nil {
			logger.Warn("background disabled", "path", cfg.Background.Path, "error", bgErr)
		} else {
			painter = bg
			defer bg.Close()
		}
	}

	ctrl := &session.Controller{
		Terminal:   terminal,
		Users:      session.NewUsers(cfg.Users),
		Auth:       &auth.Helper{Command: cfg.Auth.Helper, Terminal: terminal.File()},
		Painter:    painter,
		Interrupts: interrupts,
		Logger:     logger,
		Message:    cfg.Message,
		Dark:       cfg.Dark,
		Quick:      cfg.Quick,
	}

	runErr := ctrl.Run(ctx)
	_ = terminal.Clear()
	if runErr != nil {
		return fatalOn(logger, terminal, runErr)
	}
	return nil
}

// newLogger builds the slog logger from config. Without a file everything is
// discarded; the locked console is no place for log lines.
func newLogger(cfg config.LoggingConfig) (*slog.Logger, func(), error) {
	level, err := cfg.SlogLevel()
	if err != nil {
		return nil, nil, err
	}
	if cfg.File == "" {
		return slog.New(slog.NewTextHandler(io.Discard, nil)), func() {}, nil
	}
	f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, nil, err
	}
	h := slog.NewTextHandler(f, &slog.HandlerOptions{Level: level})
	return slog.New(h), func() { _ = f.Close() }, nil
}

// interactiveStderr reports whether stderr still reaches an operator.
// Overridable in tests.
var interactiveStderr = func() bool {
	return term.IsTerminal(int(os.Stderr.Fd()))
}

// fatal logs the error and maps it onto the process exit. The message is
// repeated on stderr only when stderr is still a terminal someone can see;
// once detached it would land nowhere useful.
func fatal(logger *slog.Logger, err error) error {
	logger.Error("fatal", "error", err)
	if interactiveStderr() {
		return exitf(1, "vtlock: %v", err)
	}
	return &ExitError{code: 1}
}

// fatalOn is fatal for errors raised after the display has switched: when
// stderr is no longer visible the diagnostic is painted on the locked
// terminal, the only screen the operator still sees.
func fatalOn(logger *slog.Logger, t io.Writer, err error) error {
	if !interactiveStderr() {
		fmt.Fprintf(t, "\nvtlock: %v\n", err)
	}
	return fatal(logger, err)
}
