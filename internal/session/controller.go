// Package session runs the authentication wait loop on a locked terminal:
// prompt, acknowledgement keypress, credential check, and the Ctrl+C driven
// candidate-user selection.
package session

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/vtlock/vtlock/internal/auth"
	"github.com/vtlock/vtlock/internal/vt"
)

const (
	highlight = "\033[1m\033[34m"
	reset     = "\033[0m"

	// Pause after a failed attempt, long enough to blunt rapid guessing.
	defaultCooldown = 3 * time.Second
)

// Terminal is the slice of the terminal driver the controller interacts
// with. *vt.Terminal implements it.
type Terminal interface {
	io.ReadWriter
	SetEcho(on bool) error
	Flush() error
	Clear() error
	Blank(blank bool) error
}

// Painter repaints the configured background after a clear. Optional and
// purely cosmetic; errors are ignored.
type Painter interface {
	Paint() error
}

// Controller drives the auth loop for one lock session.
type Controller struct {
	Terminal Terminal
	Users    *Users
	Auth     auth.Authenticator
	Painter  Painter

	// Interrupts delivers the operator's Ctrl+C. It is only observed while
	// waiting for the acknowledgement keypress; everywhere else pending
	// interrupts are drained and dropped, so one can never fire while
	// authentication is in flight.
	Interrupts <-chan os.Signal

	Logger  *slog.Logger
	Message string
	Dark    bool
	Quick   bool

	// Cooldown overrides the post-failure pause; zero means the default.
	Cooldown time.Duration
	sleep    func(time.Duration)
}

// Run loops until the selected candidate authenticates. It returns nil once
// unlocked, or an error when the terminal becomes unusable.
func (c *Controller) Run(ctx context.Context) error {
	if c.Logger == nil {
		c.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if c.sleep == nil {
		c.sleep = time.Sleep
	}

	lines, readErr := c.startReader()
	quick := c.Quick

	for {
		c.repaint()

		if !quick {
			interrupted, err := c.waitAck(lines, readErr)
			if err != nil {
				return err
			}
			if interrupted {
				if err := c.selectUser(lines, readErr); err != nil {
					return err
				}
				// Back to the top: repaint and wait again with the new user.
				continue
			}
			if c.Dark {
				_ = c.Terminal.Blank(false)
			}
			c.repaint()
			fmt.Fprintln(c.Terminal)
		} else {
			// Quick mode skips the first acknowledgement only.
			quick = false
			fmt.Fprintln(c.Terminal)
		}

		user := c.Users.Selected()
		if err := c.Auth.Authenticate(ctx, user); err == nil {
			c.Logger.Info("authenticated", "user", user)
			return nil
		}
		c.Logger.Warn("authentication failed", "user", user)

		if c.Dark {
			_ = c.Terminal.Blank(false)
		}
		fmt.Fprint(c.Terminal, "\nAuthentication failed.\n")
		c.sleep(c.cooldown())
	}
}

// startReader feeds terminal lines through a channel so the acknowledgement
// wait can select between input and an interrupt. The goroutine is the only
// reader of the terminal; every consumer takes lines from the channel, which
// keeps the input stream whole when an interrupt aborts a wait.
func (c *Controller) startReader() (<-chan string, <-chan error) {
	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		r := bufio.NewReader(c.Terminal)
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				readErr <- fmt.Errorf("%w: %v", vt.ErrIoFailed, err)
				close(lines)
				return
			}
			lines <- strings.TrimRight(line, "\r\n")
		}
	}()
	return lines, readErr
}

// waitAck blocks until the operator acknowledges with a line or interrupts
// with Ctrl+C. Stale interrupts from outside the wait are dropped first.
func (c *Controller) waitAck(lines <-chan string, readErr <-chan error) (interrupted bool, err error) {
	c.drainInterrupts()
	if c.Interrupts != nil {
		select {
		case <-c.Interrupts:
			return true, nil
		case _, ok := <-lines:
			if !ok {
				return false, <-readErr
			}
			return false, nil
		}
	}
	if _, ok := <-lines; !ok {
		return false, <-readErr
	}
	return false, nil
}

func (c *Controller) drainInterrupts() {
	for {
		select {
		case <-c.Interrupts:
		default:
			return
		}
	}
}

// selectUser redraws the candidate list and reads a 1-based index. Invalid
// input of any kind re-prompts without advancing state. Echo is enabled only
// for the duration of each read.
func (c *Controller) selectUser(lines <-chan string, readErr <-chan error) error {
	for {
		_ = c.Terminal.Flush()
		_ = c.Terminal.Clear()
		if c.Dark {
			_ = c.Terminal.Blank(false)
		}
		c.paintBackground()

		fmt.Fprint(c.Terminal, "\nThe following users are authorized to unlock:\n\n")
		for i, name := range c.Users.Names() {
			if name == c.Users.Selected() {
				fmt.Fprintf(c.Terminal, "%d. %s%s%s\n", i+1, highlight, name, reset)
			} else {
				fmt.Fprintf(c.Terminal, "%d. %s\n", i+1, name)
			}
		}
		fmt.Fprint(c.Terminal, "\nInsert the number of the user that wants to unlock and press enter: ")

		_ = c.Terminal.SetEcho(true)
		line, ok := <-lines
		_ = c.Terminal.SetEcho(false)
		if !ok {
			return <-readErr
		}

		idx, err := strconv.Atoi(line)
		if err != nil || idx < 1 || idx > c.Users.Len() {
			continue
		}
		if err := c.Users.Select(idx - 1); err != nil {
			continue
		}
		c.Logger.Info("candidate changed", "user", c.Users.Selected())
		return nil
	}
}

func (c *Controller) repaint() {
	_ = c.Terminal.Clear()
	_ = c.Terminal.Flush()
	c.paintBackground()

	if c.Message != "" {
		fmt.Fprintf(c.Terminal, "\n%s\n", c.Message)
	}
	fmt.Fprintf(c.Terminal, "\nPress enter to unlock as %s%s%s. [Press Ctrl+C to change user] ",
		highlight, c.Users.Selected(), reset)
}

func (c *Controller) paintBackground() {
	if c.Painter != nil {
		_ = c.Painter.Paint()
	}
}

func (c *Controller) cooldown() time.Duration {
	if c.Cooldown > 0 {
		return c.Cooldown
	}
	return defaultCooldown
}
