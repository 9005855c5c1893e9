// Package cli implements the unibro command line client.
package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"unibro/internal/app"
	"unibro/internal/config"
	"unibro/internal/util"
	"unibro/pkg/kv"
	"unibro/pkg/notify"
	"unibro/pkg/storage"
)

// Options overrides process I/O and backends, mainly for tests.
type Options struct {
	Stdin       io.Reader
	Stdout      io.Writer
	Stderr      io.Writer
	KV          kv.Store
	Broadcaster notify.Broadcaster
	Objects     storage.ObjectStore
	// Args replaces os.Args[1:] when non-nil.
	Args []string
}

type runtime struct {
	opts       Options
	configPath string
	jsonOut    bool
	app        *app.App
	logger     *slog.Logger
	stdin      *bufio.Reader
}

// Execute runs the unibro command tree. The app is closed on every exit path,
// including commands that fail.
func Execute(ctx context.Context, opts Options) error {
	root, rt := newRootCommand(opts)
	if opts.Args != nil {
		root.SetArgs(opts.Args)
	}
	err := root.ExecuteContext(ctx)
	if cerr := rt.close(); err == nil {
		err = cerr
	}
	return err
}

func newRootCommand(opts Options) (*cobra.Command, *runtime) {
	rt := &runtime{opts: opts}
	root := &cobra.Command{
		Use:           "unibro",
		Short:         "Unibro academic resource sharing client",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return rt.init(cmd)
		},
	}
	if opts.Stdout != nil {
		root.SetOut(opts.Stdout)
	}
	if opts.Stderr != nil {
		root.SetErr(opts.Stderr)
	}
	if opts.Stdin != nil {
		root.SetIn(opts.Stdin)
	}
	root.PersistentFlags().StringVarP(&rt.configPath, "config", "c", os.Getenv("UNIBRO_CONFIG"), "config file path (default unibro.yaml)")
	root.PersistentFlags().BoolVar(&rt.jsonOut, "json", false, "print results as JSON")

	root.AddCommand(
		newRegisterCommand(rt),
		newLoginCommand(rt),
		newLogoutCommand(rt),
		newWhoamiCommand(rt),
		newOAuthCommand(rt),
		newPasswordCommand(rt),
		newVerifyCommand(rt),
		newProfileCommand(rt),
		newResourcesCommand(rt),
		newAdminCommand(rt),
		newStaffCommand(rt),
		newWatchCommand(rt),
	)
	return root, rt
}

func (rt *runtime) close() error {
	if rt.app == nil {
		return nil
	}
	a := rt.app
	rt.app = nil
	return a.Close()
}

func (rt *runtime) init(cmd *cobra.Command) error {
	cfg, err := config.Load(rt.configPath)
	if err != nil {
		return err
	}
	if rt.opts.KV != nil {
		cfg.Session.Backend = config.SessionBackendMemory
		if cfg.Broadcast.Driver == config.BroadcastFile {
			cfg.Broadcast.Driver = config.BroadcastNone
		}
	}
	rt.logger = util.InitLoggerFormat(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat)
	a, err := app.New(app.Config{
		File:        cfg,
		Logger:      rt.logger,
		KV:          rt.opts.KV,
		Broadcaster: rt.opts.Broadcaster,
		Objects:     rt.opts.Objects,
	})
	if err != nil {
		return err
	}
	rt.app = a
	return nil
}

func (rt *runtime) println(cmd *cobra.Command, format string, args ...any) {
	fmt.Fprintf(cmd.OutOrStdout(), format+"\n", args...)
}

// emit prints v as JSON with --json, else runs text.
func (rt *runtime) emit(cmd *cobra.Command, v any, text func(io.Writer)) error {
	if rt.jsonOut {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text(cmd.OutOrStdout())
	return nil
}

// prompt reads one line from stdin after printing label to stderr.
func (rt *runtime) prompt(cmd *cobra.Command, label string) (string, error) {
	if rt.stdin == nil {
		rt.stdin = bufio.NewReader(cmd.InOrStdin())
	}
	fmt.Fprint(cmd.ErrOrStderr(), label)
	line, err := rt.stdin.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", fmt.Errorf("read input: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// secret returns value, or prompts for it when empty.
func (rt *runtime) secret(cmd *cobra.Command, value, label string) (string, error) {
	if value != "" {
		return value, nil
	}
	return rt.prompt(cmd, label)
}
