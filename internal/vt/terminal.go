package vt

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// Signals selects which keyboard-generated signals a terminal delivers.
type Signals uint

const (
	SigInterrupt Signals = 1 << iota
	SigQuit
	SigSuspend
)

// Control characters installed for enabled signals: Ctrl+C, Ctrl+\ (0x1c is
// the usual quit character; the console driver uses 34), Ctrl+Z.
const (
	intrChar = 3
	quitChar = 34
	suspChar = 32
)

var consoleBlankParam = "/sys/module/kernel/parameters/consoleblank"

// Terminal is one virtual terminal. An open terminal carries a device
// descriptor and its saved line discipline; a closed one only carries the
// number (used to remember the terminal that was active before locking).
type Terminal struct {
	num       int
	fd        int
	term      *unix.Termios
	allocated bool
	file      *os.File
	sys       kernel
}

// Number reports the terminal number.
func (t *Terminal) Number() int { return t.num }

func (t *Terminal) Read(p []byte) (int, error) {
	n, err := t.sys.read(t.fd, p)
	if err != nil {
		return n, fmt.Errorf("%w: read tty%d: %v", ErrIoFailed, t.num, err)
	}
	return n, err
}

func (t *Terminal) Write(p []byte) (int, error) {
	n, err := t.sys.write(t.fd, p)
	if err != nil {
		return n, fmt.Errorf("%w: write tty%d: %v", ErrIoFailed, t.num, err)
	}
	return n, err
}

// File exposes the open device for handing to child processes.
func (t *Terminal) File() *os.File {
	if t.fd < 0 {
		return nil
	}
	if t.file == nil {
		t.file = os.NewFile(uintptr(t.fd), fmt.Sprintf(ttyDeviceFmt, t.num))
	}
	return t.file
}

// initDiscipline saves the line discipline and applies the lock-screen
// defaults: no echo, no signal generation, no end-of-input character, and
// break conditions ignored.
func (t *Terminal) initDiscipline() error {
	term, err := t.sys.getTermios(t.fd)
	if err != nil {
		return fmt.Errorf("%w: tcgetattr tty%d: %v", ErrAttributeFailed, t.num, err)
	}
	term.Iflag |= unix.IGNBRK
	term.Lflag &^= unix.ECHO | unix.ISIG
	term.Cc[unix.VEOF] = 0
	if err := t.sys.setTermios(t.fd, term); err != nil {
		return fmt.Errorf("%w: tcsetattr tty%d: %v", ErrAttributeFailed, t.num, err)
	}
	t.term = term
	return nil
}

// SetEcho turns echoing of typed characters on or off.
func (t *Terminal) SetEcho(on bool) error {
	if on {
		t.term.Lflag |= unix.ECHO
	} else {
		t.term.Lflag &^= unix.ECHO
	}
	if err := t.sys.setTermios(t.fd, t.term); err != nil {
		return fmt.Errorf("%w: tcsetattr tty%d: %v", ErrAttributeFailed, t.num, err)
	}
	return nil
}

// SetSignals re-enables signal generation and installs control characters
// for exactly the requested signals; the rest stay disabled.
func (t *Terminal) SetSignals(sigs Signals) error {
	t.term.Lflag |= unix.ISIG
	set := func(cc int, enabled bool, ch uint8) {
		if enabled {
			t.term.Cc[cc] = ch
		} else {
			t.term.Cc[cc] = 0
		}
	}
	set(unix.VINTR, sigs&SigInterrupt != 0, intrChar)
	set(unix.VQUIT, sigs&SigQuit != 0, quitChar)
	set(unix.VSUSP, sigs&SigSuspend != 0, suspChar)
	if err := t.sys.setTermios(t.fd, t.term); err != nil {
		return fmt.Errorf("%w: tcsetattr tty%d: %v", ErrAttributeFailed, t.num, err)
	}
	return nil
}

// Flush drops input typed but not yet read.
func (t *Terminal) Flush() error {
	if err := t.sys.flush(t.fd); err != nil {
		return fmt.Errorf("%w: tcflush tty%d: %v", ErrIoFailed, t.num, err)
	}
	return nil
}

// Clear homes the cursor and erases the display.
func (t *Terminal) Clear() error {
	if _, err := t.sys.write(t.fd, []byte("\033[H\033[J")); err != nil {
		return fmt.Errorf("%w: clear tty%d: %v", ErrIoFailed, t.num, err)
	}
	return nil
}

// Blank switches the physical display off or on. The blanking ioctl is a
// no-op while the kernel's automatic blank timer is disabled, so blanking
// briefly forces a one-minute timer and resets it afterwards.
func (t *Terminal) Blank(blank bool) error {
	restoreTimer := false
	if blank && t.blankTimerDisabled() {
		if err := t.setBlankTimer(1); err == nil {
			restoreTimer = true
		}
	}

	err := t.sys.blank(t.fd, blank)

	if restoreTimer {
		_ = t.setBlankTimer(0)
	}
	if err != nil {
		return fmt.Errorf("%w: tty%d blank=%v: %v", ErrBlankFailed, t.num, blank, err)
	}
	return nil
}

func (t *Terminal) blankTimerDisabled() bool {
	raw, err := os.ReadFile(consoleBlankParam)
	if err != nil {
		return false
	}
	v, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	return err == nil && v == 0
}

func (t *Terminal) setBlankTimer(minutes int) error {
	_, err := t.sys.write(t.fd, []byte(fmt.Sprintf("\033[9;%d]", minutes)))
	return err
}

func (t *Terminal) closeFd() error {
	if t.fd < 0 {
		return nil
	}
	var err error
	if t.file != nil {
		err = t.file.Close()
		t.file = nil
	} else {
		err = t.sys.close(t.fd)
	}
	t.fd = -1
	return err
}
