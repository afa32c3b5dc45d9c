package lock

import (
	"fmt"

	"github.com/vtlock/vtlock/internal/vt"
)

// consoleDriver adapts *vt.Console to the Driver interface.
type consoleDriver struct {
	console *vt.Console
}

// NewConsoleDriver wraps the real console.
func NewConsoleDriver(c *vt.Console) Driver {
	return consoleDriver{console: c}
}

func (d consoleDriver) Current() (Terminal, error) {
	t, err := d.console.Current()
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (d consoleDriver) CreateNew() (Terminal, error) {
	t, err := d.console.CreateNew()
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (d consoleDriver) Switch(t Terminal) error {
	vterm, err := unwrap(t)
	if err != nil {
		return err
	}
	return d.console.Switch(vterm)
}

func (d consoleDriver) LockSwitch(lock bool) error {
	return d.console.LockSwitch(lock)
}

func (d consoleDriver) Release(t Terminal) error {
	vterm, err := unwrap(t)
	if err != nil {
		return err
	}
	return d.console.Release(vterm)
}

func unwrap(t Terminal) (*vt.Terminal, error) {
	vterm, ok := t.(*vt.Terminal)
	if !ok {
		return nil, fmt.Errorf("foreign terminal handle %T", t)
	}
	return vterm, nil
}
