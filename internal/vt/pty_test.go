package vt

import (
	"testing"

	"github.com/creack/pty"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"golang.org/x/sys/unix"
)

// openTestPTY returns a Terminal backed by a real pty slave so the termios
// paths run against a live line discipline.
func openTestPTY(t *testing.T) *Terminal {
	t.Helper()
	master, slave, err := pty.Open()
	if err != nil {
		t.Skipf("pty not available: %v", err)
	}
	t.Cleanup(func() {
		_ = master.Close()
		_ = slave.Close()
	})
	term := &Terminal{num: 0, fd: int(slave.Fd()), sys: realKernel{}}
	require.NoError(t, term.initDiscipline())
	return term
}

func TestLiveDisciplineDefaults(t *testing.T) {
	term := openTestPTY(t)

	got, err := unix.IoctlGetTermios(term.fd, unix.TCGETS)
	require.NoError(t, err)
	assert.Zero(t, got.Lflag&unix.ECHO)
	assert.Zero(t, got.Lflag&unix.ISIG)
	assert.NotZero(t, got.Iflag&unix.IGNBRK)
	assert.Zero(t, got.Cc[unix.VEOF])
}

func TestLiveEchoRoundTrip(t *testing.T) {
	term := openTestPTY(t)

	require.NoError(t, term.SetEcho(true))
	got, err := unix.IoctlGetTermios(term.fd, unix.TCGETS)
	require.NoError(t, err)
	assert.NotZero(t, got.Lflag&unix.ECHO)

	require.NoError(t, term.SetEcho(false))
	got, err = unix.IoctlGetTermios(term.fd, unix.TCGETS)
	require.NoError(t, err)
	assert.Zero(t, got.Lflag&unix.ECHO)
}

func TestLiveSignalCharacters(t *testing.T) {
	term := openTestPTY(t)

	require.NoError(t, term.SetSignals(SigInterrupt))
	got, err := unix.IoctlGetTermios(term.fd, unix.TCGETS)
	require.NoError(t, err)
	assert.NotZero(t, got.Lflag&unix.ISIG)
	assert.EqualValues(t, 3, got.Cc[unix.VINTR])
	assert.EqualValues(t, 0, got.Cc[unix.VQUIT])
	assert.EqualValues(t, 0, got.Cc[unix.VSUSP])
}

func TestLiveFlush(t *testing.T) {
	term := openTestPTY(t)
	assert.NoError(t, term.Flush())
}
