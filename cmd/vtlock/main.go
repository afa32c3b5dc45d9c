package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/vtlock/vtlock/internal/cli"
)

// Overridden at build time via -ldflags.
var version = "dev"
var commit = "unknown"

// versionString folds the build commit into the version, unless the version
// (e.g. git-describe output) already carries it.
func versionString() string {
	v := strings.TrimSpace(version)
	if v == "" {
		v = "dev"
	}
	c := strings.TrimSpace(commit)
	if c == "" || strings.EqualFold(c, "unknown") || strings.Contains(v, c) {
		return v
	}
	return v + "+" + c
}

func main() {
	err := cli.NewRoot(versionString()).ExecuteContext(context.Background())
	if err == nil {
		return
	}
	var ee *cli.ExitError
	if errors.As(err, &ee) {
		if msg := ee.Message(); msg != "" {
			fmt.Fprintln(os.Stderr, msg)
		}
		os.Exit(ee.Code())
	}
	fmt.Fprintln(os.Stderr, err.Error())
	os.Exit(1)
}
