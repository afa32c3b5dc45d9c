// Package lock sequences terminal acquisition, kernel-parameter suppression
// and display switching into a single enter/leave bracket. Entering aborts
// on the first failure and unwinds whatever was already done; leaving is
// best-effort and always runs every step, because a half-restored console
// is still better than a locked one.
package lock

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/google/uuid"

	"github.com/vtlock/vtlock/internal/kparam"
	"github.com/vtlock/vtlock/internal/vt"
)

// Terminal is the slice of the terminal driver the orchestrator and its
// callers need. *vt.Terminal implements it.
type Terminal interface {
	io.ReadWriter
	Number() int
	SetEcho(on bool) error
	SetSignals(sigs vt.Signals) error
	Flush() error
	Clear() error
	Blank(blank bool) error
	File() *os.File
}

// Driver is the console surface the orchestrator locks through.
type Driver interface {
	Current() (Terminal, error)
	CreateNew() (Terminal, error)
	Switch(t Terminal) error
	LockSwitch(lock bool) error
	Release(t Terminal) error
}

// Snapshot is a captured kernel parameter ready to suppress and restore.
type Snapshot interface {
	Path() string
	Suppress() error
	Restore() error
}

// TakeFunc captures a kernel parameter. The default wraps kparam.Take.
type TakeFunc func(path string) (Snapshot, error)

// Config selects which protections a lock bracket applies.
type Config struct {
	GuardSysrq  bool
	GuardPrintk bool
	LockSwitch  bool
	Dark        bool
}

// Session records everything one Enter set up, so Leave can reverse exactly
// that, in reverse order, even after a partial Enter.
type Session struct {
	ID       string
	Previous Terminal
	Terminal Terminal

	sysrq        Snapshot
	printk       Snapshot
	switchLocked bool
	blanked      bool
}

// Blanked reports whether the display is currently switched off.
func (s *Session) Blanked() bool { return s != nil && s.blanked }

// Locker owns the lock/unlock state machine.
type Locker struct {
	drv  Driver
	take TakeFunc
	log  *slog.Logger
}

// New returns a Locker over the given driver. A nil take falls back to
// kparam.Take; a nil logger discards.
func New(drv Driver, take TakeFunc, logger *slog.Logger) *Locker {
	if take == nil {
		take = func(path string) (Snapshot, error) { return kparam.Take(path) }
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Locker{drv: drv, take: take, log: logger}
}

// Enter acquires a fresh terminal, suppresses the requested kernel
// parameters and switches the display to it. On any failure the steps
// already performed are unwound and the error is returned.
func (l *Locker) Enter(cfg Config) (*Session, error) {
	s := &Session{ID: uuid.NewString()}
	if err := l.enter(s, cfg); err != nil {
		l.log.Error("lock aborted, unwinding", "session", s.ID, "error", err)
		l.Leave(s)
		return nil, err
	}
	l.log.Info("locked", "session", s.ID, "terminal", s.Terminal.Number(), "previous", s.Previous.Number())
	return s, nil
}

func (l *Locker) enter(s *Session, cfg Config) error {
	var err error

	if cfg.GuardSysrq {
		if s.sysrq, err = l.take(kparam.SysrqPath); err != nil {
			return fmt.Errorf("snapshot sysrq: %w", err)
		}
	}
	if cfg.GuardPrintk {
		if s.printk, err = l.take(kparam.PrintkPath); err != nil {
			return fmt.Errorf("snapshot printk: %w", err)
		}
	}

	if s.Previous, err = l.drv.Current(); err != nil {
		return err
	}
	if s.Terminal, err = l.drv.CreateNew(); err != nil {
		return err
	}

	if s.sysrq != nil {
		if err = s.sysrq.Suppress(); err != nil {
			return fmt.Errorf("suppress sysrq: %w", err)
		}
	}
	if s.printk != nil {
		if err = s.printk.Suppress(); err != nil {
			return fmt.Errorf("suppress printk: %w", err)
		}
	}

	if err = l.drv.Switch(s.Terminal); err != nil {
		return err
	}

	if cfg.LockSwitch {
		if err = l.drv.LockSwitch(true); err != nil {
			return err
		}
		s.switchLocked = true
	}

	if cfg.Dark {
		// Cosmetic: a console that cannot blank still locks.
		if err := s.Terminal.Blank(true); err != nil {
			l.log.Warn("blank failed", "session", s.ID, "error", err)
		} else {
			s.blanked = true
		}
	}

	return nil
}

// Leave reverses everything the session's Enter managed to do, in reverse
// order. Every step runs regardless of earlier failures; errors are logged
// and superseded. Safe on partially entered and already-left sessions.
func (l *Locker) Leave(s *Session) {
	if s == nil {
		return
	}

	if s.blanked {
		if err := s.Terminal.Blank(false); err != nil {
			l.log.Warn("unblank failed", "session", s.ID, "error", err)
		}
		s.blanked = false
	}

	if s.switchLocked {
		if err := l.drv.LockSwitch(false); err != nil {
			l.log.Error("re-enabling terminal switching failed", "session", s.ID, "error", err)
		}
		s.switchLocked = false
	}

	if s.Previous != nil && s.Terminal != nil {
		if err := l.drv.Switch(s.Previous); err != nil {
			l.log.Error("switch back failed", "session", s.ID, "terminal", s.Previous.Number(), "error", err)
		}
	}

	if s.Previous != nil {
		if err := l.drv.Release(s.Previous); err != nil {
			l.log.Warn("release previous terminal failed", "session", s.ID, "error", err)
		}
		s.Previous = nil
	}
	if s.Terminal != nil {
		if err := l.drv.Release(s.Terminal); err != nil {
			l.log.Warn("release terminal failed", "session", s.ID, "error", err)
		}
		s.Terminal = nil
	}

	if s.printk != nil {
		if err := s.printk.Restore(); err != nil {
			l.log.Error("restore printk failed", "session", s.ID, "error", err)
		}
		s.printk = nil
	}
	if s.sysrq != nil {
		if err := s.sysrq.Restore(); err != nil {
			l.log.Error("restore sysrq failed", "session", s.ID, "error", err)
		}
		s.sysrq = nil
	}

	l.log.Info("unlocked", "session", s.ID)
}
