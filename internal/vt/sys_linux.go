package vt

import (
	"errors"
	"unsafe"

	"golang.org/x/sys/unix"
)

// <linux/vt.h>, <linux/tiocl.h>. x/sys/unix does not carry the VT console
// ioctls, so they are defined here.
const (
	vtOpenQry      = 0x5600
	vtGetState     = 0x5603
	vtActivate     = 0x5606
	vtWaitActive   = 0x5607
	vtDisallocate  = 0x5608
	vtLockSwitch   = 0x560b
	vtUnlockSwitch = 0x560c

	tiocLinux          = 0x541c
	tioclBlankScreen   = 14
	tioclUnblankScreen = 4

	// MAX_NR_CONSOLES in the kernel.
	maxConsoles = 63
)

// vtState mirrors struct vt_stat.
type vtState struct {
	active uint16
	signal uint16
	state  uint16
}

// kernel is the syscall surface of the driver. The allocation and attribute
// logic runs against this interface so it can be exercised with a fake.
type kernel interface {
	open(path string) (int, error)
	close(fd int) error
	read(fd int, p []byte) (int, error)
	write(fd int, p []byte) (int, error)

	openQuery(fd int) (int, error)
	state(fd int) (vtState, error)
	activate(fd, num int) error
	waitActive(fd, num int) error
	disallocate(fd, num int) error
	lockSwitch(fd int, lock bool) error
	blank(fd int, blank bool) error

	getTermios(fd int) (*unix.Termios, error)
	setTermios(fd int, t *unix.Termios) error
	flush(fd int) error
}

// realKernel talks to the real console. Every call transparently retries
// EINTR, matching the blocking-syscall contract of the driver.
type realKernel struct{}

func retryEINTR(fn func() error) error {
	for {
		err := fn()
		if !errors.Is(err, unix.EINTR) {
			return err
		}
	}
}

func (realKernel) open(path string) (fd int, err error) {
	err = retryEINTR(func() error {
		fd, err = unix.Open(path, unix.O_RDWR, 0)
		return err
	})
	return fd, err
}

func (realKernel) close(fd int) error {
	return unix.Close(fd)
}

func (realKernel) read(fd int, p []byte) (n int, err error) {
	err = retryEINTR(func() error {
		n, err = unix.Read(fd, p)
		return err
	})
	return n, err
}

func (realKernel) write(fd int, p []byte) (n int, err error) {
	err = retryEINTR(func() error {
		n, err = unix.Write(fd, p)
		return err
	})
	return n, err
}

func ioctl(fd int, req uint, arg uintptr) error {
	return retryEINTR(func() error {
		_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), uintptr(req), arg)
		if errno != 0 {
			return errno
		}
		return nil
	})
}

func (realKernel) openQuery(fd int) (int, error) {
	var num int32
	if err := ioctl(fd, vtOpenQry, uintptr(unsafe.Pointer(&num))); err != nil {
		return 0, err
	}
	return int(num), nil
}

func (realKernel) state(fd int) (vtState, error) {
	var st vtState
	if err := ioctl(fd, vtGetState, uintptr(unsafe.Pointer(&st))); err != nil {
		return vtState{}, err
	}
	return st, nil
}

func (realKernel) activate(fd, num int) error {
	return ioctl(fd, vtActivate, uintptr(num))
}

func (realKernel) waitActive(fd, num int) error {
	return ioctl(fd, vtWaitActive, uintptr(num))
}

func (realKernel) disallocate(fd, num int) error {
	return ioctl(fd, vtDisallocate, uintptr(num))
}

func (realKernel) lockSwitch(fd int, lock bool) error {
	req := uint(vtUnlockSwitch)
	if lock {
		req = vtLockSwitch
	}
	return ioctl(fd, req, 1)
}

func (realKernel) blank(fd int, blank bool) error {
	arg := int32(tioclUnblankScreen)
	if blank {
		arg = tioclBlankScreen
	}
	return ioctl(fd, tiocLinux, uintptr(unsafe.Pointer(&arg)))
}

func (realKernel) getTermios(fd int) (t *unix.Termios, err error) {
	err = retryEINTR(func() error {
		t, err = unix.IoctlGetTermios(fd, unix.TCGETS)
		return err
	})
	return t, err
}

func (realKernel) setTermios(fd int, t *unix.Termios) error {
	return retryEINTR(func() error {
		return unix.IoctlSetTermios(fd, unix.TCSETS, t)
	})
}

func (realKernel) flush(fd int) error {
	return ioctl(fd, unix.TCFLSH, uintptr(unix.TCIFLUSH))
}
