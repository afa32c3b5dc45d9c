// Package vt drives Linux virtual terminals: allocation of a fresh terminal,
// display switching, line-discipline changes and console blanking. All
// operations go through a Console, the process-wide handle to /dev/console.
package vt

import (
	"fmt"
)

const (
	consoleDevice = "/dev/console"
	ttyDeviceFmt  = "/dev/tty%d"

	// Terminals 1..12 are reachable through operator key chords and are
	// managed by the login manager; a lock screen must never claim one.
	reservedTerminals = 13

	// The vt_stat in-use bitmask only covers this many terminals.
	stateMaskBits = 16
)

// Console is the handle to the console control device. It must be opened
// before any other operation and closed exactly once at process end.
type Console struct {
	fd  int
	sys kernel
}

// Open opens the console control device.
func Open() (*Console, error) {
	return openConsole(realKernel{})
}

func openConsole(sys kernel) (*Console, error) {
	fd, err := sys.open(consoleDevice)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrDeviceUnavailable, consoleDevice, err)
	}
	return &Console{fd: fd, sys: sys}, nil
}

// Close releases the console control device. Safe to call more than once.
func (c *Console) Close() error {
	if c == nil || c.fd < 0 {
		return nil
	}
	err := c.sys.close(c.fd)
	c.fd = -1
	return err
}

// Current returns a closed handle naming the terminal the display is
// showing right now.
func (c *Console) Current() (*Terminal, error) {
	st, err := c.sys.state(c.fd)
	if err != nil {
		return nil, fmt.Errorf("%w: VT_GETSTATE: %v", ErrQueryFailed, err)
	}
	return &Terminal{num: int(st.active), fd: -1, sys: c.sys}, nil
}

// CreateNew allocates a free terminal at or above the reserved range, opens
// its device and disables echo, signal generation and the end-of-input
// character. The returned handle is open and owned by the caller.
func (c *Console) CreateNew() (*Terminal, error) {
	num, fd, err := c.findFree()
	if err != nil {
		return nil, err
	}

	if fd < 0 {
		fd, err = c.sys.open(fmt.Sprintf(ttyDeviceFmt, num))
		if err != nil {
			return nil, fmt.Errorf("%w: tty%d: %v", ErrOpenFailed, num, err)
		}
	}

	t := &Terminal{num: num, fd: fd, allocated: true, sys: c.sys}
	if err := t.initDiscipline(); err != nil {
		t.closeFd()
		return nil, err
	}
	return t, nil
}

// findFree returns the number of a free terminal outside the reserved range,
// plus an already-open descriptor for it when the slow path had to claim one.
func (c *Console) findFree() (num, fd int, err error) {
	num, err = c.sys.openQuery(c.fd)
	if err != nil {
		return 0, -1, fmt.Errorf("%w: VT_OPENQRY: %v", ErrAllocationFailed, err)
	}
	if num >= reservedTerminals {
		return num, -1, nil
	}

	// The first free terminal is inside the reserved range. Re-search from
	// the threshold up. Fast path: the vt_stat bitmask directly reports
	// which of the low-numbered terminals are busy.
	st, err := c.sys.state(c.fd)
	if err != nil {
		return 0, -1, fmt.Errorf("%w: VT_GETSTATE: %v", ErrAllocationFailed, err)
	}
	for n := reservedTerminals; n < stateMaskBits; n++ {
		if st.state&(1<<uint(n)) == 0 {
			return n, -1, nil
		}
	}

	// Slow path: every terminal the bitmask covers is busy. Ask the kernel
	// for the first free terminal over and over, holding each low-numbered
	// device open to mark it busy, until the answer clears the threshold.
	return c.claimAboveReserved()
}

func (c *Console) claimAboveReserved() (num, fd int, err error) {
	held := make(map[int]int)
	defer func() {
		for n, hfd := range held {
			if err != nil || n != num {
				_ = c.sys.close(hfd)
			}
		}
	}()

	for {
		num, err = c.sys.openQuery(c.fd)
		if err != nil {
			return 0, -1, fmt.Errorf("%w: VT_OPENQRY: %v", ErrAllocationFailed, err)
		}
		if num > maxConsoles {
			return 0, -1, fmt.Errorf("%w: no terminal free below %d", ErrAllocationFailed, maxConsoles)
		}
		if _, ok := held[num]; ok {
			// Holding the device open did not mark it busy; bail out
			// instead of spinning on the same answer.
			return 0, -1, fmt.Errorf("%w: tty%d reported free twice", ErrAllocationFailed, num)
		}
		fd, err = c.sys.open(fmt.Sprintf(ttyDeviceFmt, num))
		if err != nil {
			return 0, -1, fmt.Errorf("%w: tty%d: %v", ErrAllocationFailed, num, err)
		}
		held[num] = fd
		if num >= reservedTerminals {
			return num, fd, nil
		}
	}
}

// Switch activates the given terminal and waits for the switch to complete.
func (c *Console) Switch(t *Terminal) error {
	if err := c.sys.activate(c.fd, t.num); err != nil {
		return fmt.Errorf("%w: VT_ACTIVATE tty%d: %v", ErrSwitchFailed, t.num, err)
	}
	if err := c.sys.waitActive(c.fd, t.num); err != nil {
		return fmt.Errorf("%w: VT_WAITACTIVE tty%d: %v", ErrSwitchFailed, t.num, err)
	}
	return nil
}

// LockSwitch disables or re-enables switching terminals from the keyboard.
// Idempotent.
func (c *Console) LockSwitch(lock bool) error {
	if err := c.sys.lockSwitch(c.fd, lock); err != nil {
		return fmt.Errorf("%w: lock=%v: %v", ErrSwitchLockFailed, lock, err)
	}
	return nil
}

// Release closes the terminal's device and, for dynamically allocated
// terminals, returns the number to the pool. Safe to call more than once
// and on closed handles.
func (c *Console) Release(t *Terminal) error {
	if t == nil || t.fd < 0 {
		return nil
	}
	err := t.closeFd()
	if t.allocated {
		if derr := c.sys.disallocate(c.fd, t.num); derr != nil && err == nil {
			err = derr
		}
		t.allocated = false
	}
	return err
}
