package session

import (
	"fmt"
	"strings"
)

const rootUser = "root"

// Users is the ordered candidate list for unlocking. Root is always present
// and always last. The list is read-only after construction; only the
// selection moves.
type Users struct {
	names    []string
	selected int
}

// NewUsers builds the candidate list from the configured names, trimming
// blanks and appending root.
func NewUsers(names []string) *Users {
	out := make([]string, 0, len(names)+1)
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n != "" && n != rootUser {
			out = append(out, n)
		}
	}
	out = append(out, rootUser)
	return &Users{names: out}
}

// Len reports the number of candidates.
func (u *Users) Len() int { return len(u.names) }

// Names returns the candidates in order.
func (u *Users) Names() []string { return u.names }

// Selected returns the currently selected candidate.
func (u *Users) Selected() string { return u.names[u.selected] }

// Select moves the selection to the given index.
func (u *Users) Select(i int) error {
	if i < 0 || i >= len(u.names) {
		return fmt.Errorf("user index %d out of range", i)
	}
	u.selected = i
	return nil
}
