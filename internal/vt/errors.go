package vt

import "errors"

var (
	// ErrDeviceUnavailable means the console control device could not be opened.
	ErrDeviceUnavailable = errors.New("console device unavailable")
	// ErrQueryFailed means the active terminal could not be determined.
	ErrQueryFailed = errors.New("console state query failed")
	// ErrAllocationFailed means no free terminal could be found.
	ErrAllocationFailed = errors.New("terminal allocation failed")
	// ErrOpenFailed means a terminal device file could not be opened.
	ErrOpenFailed = errors.New("terminal open failed")
	// ErrAttributeFailed means the line discipline could not be read or changed.
	ErrAttributeFailed = errors.New("terminal attribute change failed")
	// ErrSwitchFailed means the display could not be switched to a terminal.
	ErrSwitchFailed = errors.New("terminal switch failed")
	// ErrSwitchLockFailed means terminal switching could not be locked or unlocked.
	ErrSwitchLockFailed = errors.New("terminal switch lock failed")
	// ErrBlankFailed means the display could not be blanked or unblanked.
	ErrBlankFailed = errors.New("display blank failed")
	// ErrIoFailed means reading from or writing to a terminal failed.
	ErrIoFailed = errors.New("terminal io failed")
)
