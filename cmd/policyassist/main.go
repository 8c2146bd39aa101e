// Command policyassist is a terminal client for the policy assistant API.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/policyassist/policyassist/pkg/config"
	"github.com/spf13/cobra"
)

// Version information (set via ldflags)
var (
	Version = "dev"
	Commit  = "none"
)

// rootOptions holds the persistent flags and the lazily built app.
type rootOptions struct {
	configPath string
	envFile    string
	debug      bool

	app *app
}

// open builds the app on first use.
func (o *rootOptions) open(ctx context.Context) (*app, error) {
	if o.app != nil {
		return o.app, nil
	}
	if err := config.LoadEnvFile(o.envFile); err != nil {
		return nil, err
	}
	cfg, err := config.LoadConfig(o.configPath)
	if err != nil {
		return nil, err
	}
	if o.debug {
		cfg.Log.Debug = true
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	a, err := newApp(ctx, cfg)
	if err != nil {
		return nil, err
	}
	o.app = a
	return a, nil
}

func (o *rootOptions) close() {
	if o.app != nil {
		o.app.close()
		o.app = nil
	}
}

// run wraps a command body that needs the app.
func (o *rootOptions) run(fn func(cmd *cobra.Command, a *app, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := o.open(cmd.Context())
		if err != nil {
			return err
		}
		return fn(cmd, a, args)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:          "policyassist",
		Short:        "Ask questions about insurance policies and communications",
		Long:         "policyassist signs in to the policy assistant API and lets staff and policyholders query indexed documents, manage uploads and review query history.",
		SilenceUsage: true,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			opts.close()
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", os.Getenv("POLICYASSIST_CONFIG"), "path to YAML config file")
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "path to .env file")
	cmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "log debug output to stderr")

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newLoginCmd(opts))
	cmd.AddCommand(newVerifyCmd(opts))
	cmd.AddCommand(newLogoutCmd(opts))
	cmd.AddCommand(newWhoamiCmd(opts))
	cmd.AddCommand(newAskCmd(opts))
	cmd.AddCommand(newPoliciesCmd(opts))
	cmd.AddCommand(newCommsCmd(opts))
	cmd.AddCommand(newHistoryCmd(opts))
	cmd.AddCommand(newMonitorCmd(opts))
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "policyassist %s (commit: %s)\n", Version, Commit)
		},
	}
}

func execute(ctx context.Context, cmd *cobra.Command) int {
	if err := cmd.ExecuteContext(ctx); err != nil {
		if hint := errorHint(err); hint != "" {
			printFaint(cmd.ErrOrStderr(), "%s", hint)
		}
		return 1
	}
	return 0
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := execute(ctx, newRootCmd())
	stop()
	os.Exit(code)
}
