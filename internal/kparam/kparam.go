// Package kparam snapshots and restores the kernel text parameters that
// could be used to escape or peek through a console lock: the magic sysrq
// key and the printk console verbosity.
package kparam

import (
	"errors"
	"fmt"
	"io"
	"os"
)

const (
	// SysrqPath controls the magic sysrq key combinations.
	SysrqPath = "/proc/sys/kernel/sysrq"
	// PrintkPath controls which kernel messages reach the console.
	PrintkPath = "/proc/sys/kernel/printk"

	// maxDigits bounds the captured value; parameter values are small
	// integers and anything longer means we are not reading what we think
	// we are.
	maxDigits = 99
)

var (
	// ErrOpenFailed means the parameter file could not be opened read-write.
	ErrOpenFailed = errors.New("parameter open failed")
	// ErrParseFailed means the parameter did not start with a bounded run
	// of decimal digits.
	ErrParseFailed = errors.New("parameter parse failed")
	// ErrWriteFailed means the suppression value could not be written.
	ErrWriteFailed = errors.New("parameter write failed")
)

// Snapshot holds a parameter file open with its pre-lock value captured,
// ready to be suppressed and later restored.
type Snapshot struct {
	path       string
	file       *os.File
	original   string
	suppressed bool
}

// Take opens the parameter read-write and captures its current value.
func Take(path string) (*Snapshot, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrOpenFailed, path, err)
	}
	original, err := readDigits(f)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("%w: %s: %v", ErrParseFailed, path, err)
	}
	return &Snapshot{path: path, file: f, original: original}, nil
}

// readDigits reads the leading run of decimal digits. Parameters like printk
// carry several fields; only the first one is captured and later restored,
// which is enough to bring the console back to its pre-lock behavior.
func readDigits(f *os.File) (string, error) {
	buf := make([]byte, maxDigits+1)
	n, err := f.Read(buf)
	if err != nil && err != io.EOF {
		return "", err
	}
	run := 0
	for run < n && buf[run] >= '0' && buf[run] <= '9' {
		run++
	}
	if run == 0 {
		return "", errors.New("no digits")
	}
	if run > maxDigits {
		return "", errors.New("value too long")
	}
	return string(buf[:run]), nil
}

// Path reports which parameter this snapshot guards.
func (s *Snapshot) Path() string { return s.path }

// Original reports the captured pre-lock value.
func (s *Snapshot) Original() string { return s.original }

// Suppressed reports whether the parameter currently holds the lock value.
func (s *Snapshot) Suppressed() bool { return s != nil && s.suppressed }

// Suppress writes "0" over the parameter.
func (s *Snapshot) Suppress() error {
	if err := s.rewrite("0"); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrWriteFailed, s.path, err)
	}
	s.suppressed = true
	return nil
}

// Restore writes the captured value back and closes the file. Best-effort:
// the caller logs the returned error but never escalates it, since a failed
// restore leaves the parameter no worse than the lock already did. Safe to
// call more than once.
func (s *Snapshot) Restore() error {
	if s == nil || s.file == nil {
		return nil
	}
	err := s.rewrite(s.original)
	if cerr := s.file.Close(); err == nil {
		err = cerr
	}
	s.file = nil
	s.suppressed = false
	if err != nil {
		return fmt.Errorf("restore %s: %w", s.path, err)
	}
	return nil
}

func (s *Snapshot) rewrite(value string) error {
	if s.file == nil {
		return errors.New("snapshot already restored")
	}
	if _, err := s.file.Seek(0, io.SeekStart); err != nil {
		return err
	}
	_, err := s.file.WriteString(value)
	return err
}
