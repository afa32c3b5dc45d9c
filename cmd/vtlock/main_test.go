package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVersionString(t *testing.T) {
	cases := []struct {
		name            string
		version, commit string
		want            string
	}{
		{"unset build", "", "", "dev"},
		{"release without commit", "0.3.0", "", "0.3.0"},
		{"unknown commit dropped", "0.3.0", "unknown", "0.3.0"},
		{"commit folded in", "0.3.0", "f00dcafe", "0.3.0+f00dcafe"},
		{"git describe already carries it", "0.3.0-2-gf00dcafe", "f00dcafe", "0.3.0-2-gf00dcafe"},
		{"whitespace trimmed", "\t0.3.0 ", " f00d\n", "0.3.0+f00d"},
	}

	origVersion, origCommit := version, commit
	t.Cleanup(func() { version, commit = origVersion, origCommit })

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			version, commit = tc.version, tc.commit
			assert.Equal(t, tc.want, versionString())
		})
	}
}
