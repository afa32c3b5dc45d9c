// Package cli wires the command line onto the locker: flag parsing, config
// layering, privilege handling and the detach dance.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/vtlock/vtlock/internal/config"
)

func NewRoot(version string) *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:           "vtlock",
		Short:         "vtlock: lock the Linux console until an authorized user re-authenticates",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.buildConfig()
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg, opts.noDetach)
		},
	}

	cmd.Version = version
	cmd.SetVersionTemplate("vtlock {{.Version}}\n")

	f := cmd.Flags()
	f.BoolVarP(&opts.noSysrq, "no-sysrq", "s", false, "leave the magic sysrq key enabled while locked")
	f.BoolVarP(&opts.noSwitchLock, "no-lock", "l", false, "do not disable terminal switching")
	f.BoolVarP(&opts.noKernelMessages, "no-kernel-messages", "k", false, "do not mute kernel messages on the console")
	f.StringVarP(&opts.users, "users", "u", "", "comma-separated users allowed to unlock (root is always allowed)")
	f.StringVarP(&opts.message, "message", "m", "", "message shown on the lock screen")
	f.BoolVarP(&opts.dark, "dark", "d", false, "switch the display off after locking")
	f.BoolVarP(&opts.quick, "quick", "q", false, "skip the keypress before the first unlock attempt")
	f.BoolVarP(&opts.noDetach, "no-detach", "n", false, "stay in the foreground until unlocked")
	f.StringVar(&opts.configPath, "config", "", "config file (default "+config.DefaultPath+")")
	f.StringVar(&opts.background, "background", "", "background image shown while locked")
	f.StringVar(&opts.fill, "fill", "", "background fill mode: center|stretch|fit")
	f.StringVar(&opts.fbdev, "fbdev", "", "framebuffer device for the background")
	f.StringVar(&opts.authHelper, "auth-helper", "", "credential helper command")
	f.StringVar(&opts.logFile, "log-file", "", "append structured logs to this file")

	return cmd
}

type options struct {
	noSysrq          bool
	noSwitchLock     bool
	noKernelMessages bool
	users            string
	message          string
	dark             bool
	quick            bool
	noDetach         bool
	configPath       string
	background       string
	fill             string
	fbdev            string
	authHelper       string
	logFile          string
}

// buildConfig loads the file config and layers the flags on top. Boolean
// flags only ever tighten or loosen in the direction they name, so plain
// "set means override" is enough; string flags override when non-empty.
func (o *options) buildConfig() (config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return cfg, err
	}

	if o.noSysrq {
		cfg.Guards.Sysrq = false
	}
	if o.noSwitchLock {
		cfg.Guards.SwitchLock = false
	}
	if o.noKernelMessages {
		cfg.Guards.KernelMessages = false
	}
	if o.dark {
		cfg.Dark = true
	}
	if o.quick {
		cfg.Quick = true
	}
	if o.users != "" {
		cfg.Users = config.SplitUsers(o.users)
	}
	if o.message != "" {
		cfg.Message = o.message
	}
	if o.background != "" {
		cfg.Background.Path = o.background
	}
	if o.fill != "" {
		cfg.Background.Fill = o.fill
	}
	if o.fbdev != "" {
		cfg.Background.Device = o.fbdev
	}
	if o.authHelper != "" {
		cfg.Auth.Helper = o.authHelper
	}
	if o.logFile != "" {
		cfg.Logging.File = o.logFile
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}
