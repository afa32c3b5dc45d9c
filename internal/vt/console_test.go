package vt

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"golang.org/x/sys/unix"
)

// fakeKernel scripts the console ioctls and records everything the driver
// does to it.
type fakeKernel struct {
	freeAnswers []int // successive VT_OPENQRY answers
	stateMask   uint16
	active      uint16

	queryCalls int
	opened     []string
	closed     []int
	nextFd     int

	openErr    error
	stateErr   error
	activated  []int
	waited     []int
	deallocs   []int
	lockCalls  []bool
	termios    map[int]*unix.Termios
	setCalls   int
	setErr     error
	writes     map[int][]string
	blanks     []bool
	blankErr   error
	flushCalls int
}

func newFakeKernel() *fakeKernel {
	return &fakeKernel{
		nextFd:  100,
		termios: make(map[int]*unix.Termios),
		writes:  make(map[int][]string),
	}
}

func (f *fakeKernel) open(path string) (int, error) {
	if f.openErr != nil {
		return -1, f.openErr
	}
	f.nextFd++
	f.opened = append(f.opened, path)
	f.termios[f.nextFd] = &unix.Termios{Lflag: unix.ECHO | unix.ISIG | unix.ICANON}
	return f.nextFd, nil
}

func (f *fakeKernel) close(fd int) error {
	f.closed = append(f.closed, fd)
	return nil
}

func (f *fakeKernel) read(fd int, p []byte) (int, error) { return 0, nil }

func (f *fakeKernel) write(fd int, p []byte) (int, error) {
	f.writes[fd] = append(f.writes[fd], string(p))
	return len(p), nil
}

func (f *fakeKernel) openQuery(fd int) (int, error) {
	if f.queryCalls >= len(f.freeAnswers) {
		return 0, errors.New("no scripted answer")
	}
	n := f.freeAnswers[f.queryCalls]
	f.queryCalls++
	return n, nil
}

func (f *fakeKernel) state(fd int) (vtState, error) {
	if f.stateErr != nil {
		return vtState{}, f.stateErr
	}
	return vtState{active: f.active, state: f.stateMask}, nil
}

func (f *fakeKernel) activate(fd, num int) error {
	f.activated = append(f.activated, num)
	return nil
}

func (f *fakeKernel) waitActive(fd, num int) error {
	f.waited = append(f.waited, num)
	return nil
}

func (f *fakeKernel) disallocate(fd, num int) error {
	f.deallocs = append(f.deallocs, num)
	return nil
}

func (f *fakeKernel) lockSwitch(fd int, lock bool) error {
	f.lockCalls = append(f.lockCalls, lock)
	return nil
}

func (f *fakeKernel) blank(fd int, blank bool) error {
	if f.blankErr != nil {
		return f.blankErr
	}
	f.blanks = append(f.blanks, blank)
	return nil
}

func (f *fakeKernel) getTermios(fd int) (*unix.Termios, error) {
	t, ok := f.termios[fd]
	if !ok {
		return nil, errors.New("no termios for fd")
	}
	cp := *t
	return &cp, nil
}

func (f *fakeKernel) setTermios(fd int, t *unix.Termios) error {
	if f.setErr != nil {
		return f.setErr
	}
	f.setCalls++
	cp := *t
	f.termios[fd] = &cp
	return nil
}

func (f *fakeKernel) flush(fd int) error {
	f.flushCalls++
	return nil
}

func newTestConsole(t *testing.T, sys *fakeKernel) *Console {
	t.Helper()
	c, err := openConsole(sys)
	require.NoError(t, err)
	return c
}

func TestCurrentReturnsClosedHandle(t *testing.T) {
	sys := newFakeKernel()
	sys.active = 2
	c := newTestConsole(t, sys)

	term, err := c.Current()
	require.NoError(t, err)
	assert.Equal(t, 2, term.Number())
	assert.Equal(t, -1, term.fd, "current terminal must not hold a descriptor")
}

func TestCreateNewAboveReservedRange(t *testing.T) {
	sys := newFakeKernel()
	sys.freeAnswers = []int{20}
	c := newTestConsole(t, sys)

	term, err := c.CreateNew()
	require.NoError(t, err)
	assert.Equal(t, 20, term.Number())
	assert.Equal(t, []string{"/dev/console", "/dev/tty20"}, sys.opened)

	got := sys.termios[term.fd]
	assert.Zero(t, got.Lflag&unix.ECHO, "echo must be off")
	assert.Zero(t, got.Lflag&unix.ISIG, "signal generation must be off")
	assert.NotZero(t, got.Iflag&unix.IGNBRK)
	assert.Zero(t, got.Cc[unix.VEOF])
}

func TestCreateNewFastPath(t *testing.T) {
	sys := newFakeKernel()
	sys.freeAnswers = []int{2}
	// Terminal 13 busy, 14 free.
	sys.stateMask = 1 << 13
	c := newTestConsole(t, sys)

	term, err := c.CreateNew()
	require.NoError(t, err)
	assert.Equal(t, 14, term.Number())
	assert.Equal(t, 1, sys.queryCalls, "fast path hit must not re-query")
	assert.Equal(t, []string{"/dev/console", "/dev/tty14"}, sys.opened,
		"fast path must not probe devices")
}

func TestCreateNewSlowPath(t *testing.T) {
	sys := newFakeKernel()
	// Initial answer is low, bitmask reports 13..15 busy, then the probe
	// sequence walks 5, 7 before clearing the threshold at 13.
	sys.freeAnswers = []int{2, 5, 7, 13}
	sys.stateMask = 0xffff
	c := newTestConsole(t, sys)

	term, err := c.CreateNew()
	require.NoError(t, err)
	assert.Equal(t, 13, term.Number())
	assert.Equal(t, []string{"/dev/console", "/dev/tty5", "/dev/tty7", "/dev/tty13"}, sys.opened,
		"slow path holds each probed device open")

	// The losers are closed, the winner's descriptor is kept and reused.
	assert.Len(t, sys.closed, 2)
	assert.NotContains(t, sys.closed, term.fd)
}

func TestCreateNewSlowPathExhausted(t *testing.T) {
	answers := []int{2}
	for n := 1; n <= maxConsoles+1; n++ {
		answers = append(answers, n)
	}
	sys := newFakeKernel()
	sys.freeAnswers = answers
	sys.stateMask = 0xffff
	c := newTestConsole(t, sys)

	_, err := c.CreateNew()
	require.ErrorIs(t, err, ErrAllocationFailed)

	// Everything held during the search is released on the error path.
	assert.Len(t, sys.closed, len(sys.opened)-1, "all probes closed, console kept")
}

func TestCreateNewNeverBelowReserved(t *testing.T) {
	cases := []struct {
		name    string
		answers []int
		mask    uint16
	}{
		{"direct", []int{13}, 0},
		{"fast", []int{1}, 1<<13 | 1<<14},
		{"slow", []int{1, 3, 14}, 0xffff},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sys := newFakeKernel()
			sys.freeAnswers = tc.answers
			sys.stateMask = tc.mask
			c := newTestConsole(t, sys)

			term, err := c.CreateNew()
			require.NoError(t, err)
			assert.GreaterOrEqual(t, term.Number(), reservedTerminals)
		})
	}
}

func TestCreateNewAttributeFailureReleasesDevice(t *testing.T) {
	sys := newFakeKernel()
	sys.freeAnswers = []int{15}
	sys.setErr = errors.New("tcsetattr rejected")
	c := newTestConsole(t, sys)

	_, err := c.CreateNew()
	require.ErrorIs(t, err, ErrAttributeFailed)
	assert.Len(t, sys.closed, 1, "device opened during the failed call must be closed")
}

func TestSwitchActivatesAndWaits(t *testing.T) {
	sys := newFakeKernel()
	sys.freeAnswers = []int{17}
	c := newTestConsole(t, sys)
	term, err := c.CreateNew()
	require.NoError(t, err)

	require.NoError(t, c.Switch(term))
	assert.Equal(t, []int{17}, sys.activated)
	assert.Equal(t, []int{17}, sys.waited)
}

func TestReleaseIdempotent(t *testing.T) {
	sys := newFakeKernel()
	sys.freeAnswers = []int{13}
	c := newTestConsole(t, sys)
	term, err := c.CreateNew()
	require.NoError(t, err)
	fd := term.fd

	require.NoError(t, c.Release(term))
	require.NoError(t, c.Release(term))
	assert.Equal(t, []int{fd}, sys.closed)
	assert.Equal(t, []int{13}, sys.deallocs, "allocated terminal is returned to the pool once")
}

func TestReleaseClosedHandleIsNoop(t *testing.T) {
	sys := newFakeKernel()
	sys.active = 4
	c := newTestConsole(t, sys)
	prev, err := c.Current()
	require.NoError(t, err)

	require.NoError(t, c.Release(prev))
	assert.Empty(t, sys.deallocs)
	assert.Empty(t, sys.closed)
}

func TestConsoleCloseIdempotent(t *testing.T) {
	sys := newFakeKernel()
	c := newTestConsole(t, sys)
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.Len(t, sys.closed, 1)
}

func TestOpenConsoleUnavailable(t *testing.T) {
	sys := newFakeKernel()
	sys.openErr = fmt.Errorf("permission denied")
	_, err := openConsole(sys)
	require.ErrorIs(t, err, ErrDeviceUnavailable)
}
