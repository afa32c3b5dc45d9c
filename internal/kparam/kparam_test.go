package kparam

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeParam(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "param")
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestTakeCapturesLeadingDigits(t *testing.T) {
	cases := []struct {
		name    string
		content string
		want    string
	}{
		{"plain", "438\n", "438"},
		{"multi field", "4\t4\t1\t7\n", "4"},
		{"no trailer", "1", "1"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			snap, err := Take(writeParam(t, tc.content))
			require.NoError(t, err)
			defer func() { _ = snap.Restore() }()
			assert.Equal(t, tc.want, snap.Original())
		})
	}
}

func TestTakeRejectsMalformedValues(t *testing.T) {
	cases := []struct {
		name    string
		content string
	}{
		{"empty", ""},
		{"non numeric", "abc\n"},
		{"too long", strings.Repeat("7", 150)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Take(writeParam(t, tc.content))
			assert.ErrorIs(t, err, ErrParseFailed)
		})
	}
}

func TestTakeMissingFile(t *testing.T) {
	_, err := Take(filepath.Join(t.TempDir(), "missing"))
	assert.ErrorIs(t, err, ErrOpenFailed)
}

func TestSuppressAndRestoreRoundTrip(t *testing.T) {
	p := writeParam(t, "176\n")

	snap, err := Take(p)
	require.NoError(t, err)

	require.NoError(t, snap.Suppress())
	assert.True(t, snap.Suppressed())
	got, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, byte('0'), got[0])

	require.NoError(t, snap.Restore())
	assert.False(t, snap.Suppressed())
	got, err = os.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, "176\n", string(got))
}

func TestRestoreWithoutSuppressKeepsValue(t *testing.T) {
	p := writeParam(t, "99\n")
	snap, err := Take(p)
	require.NoError(t, err)

	require.NoError(t, snap.Restore())
	got, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, "99\n", string(got))
}

func TestRestoreIdempotent(t *testing.T) {
	snap, err := Take(writeParam(t, "1\n"))
	require.NoError(t, err)
	require.NoError(t, snap.Suppress())
	require.NoError(t, snap.Restore())
	require.NoError(t, snap.Restore())
}

func TestSuppressAfterRestoreFails(t *testing.T) {
	snap, err := Take(writeParam(t, "1\n"))
	require.NoError(t, err)
	require.NoError(t, snap.Restore())
	assert.ErrorIs(t, snap.Suppress(), ErrWriteFailed)
}
