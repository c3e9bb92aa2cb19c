// Package cli wires configuration, logging, the record store and the
// session together and exposes them as cobra commands. Running the root
// command without a subcommand starts the terminal UI.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"taskflow/internal/config"
	"taskflow/internal/manager"
	"taskflow/internal/preference"
	"taskflow/internal/session"
	"taskflow/internal/storage"
	"taskflow/internal/task"
	"taskflow/internal/ui"
)

// app holds what a command needs once configuration has been loaded.
type app struct {
	fs       afero.Fs
	cfgPath  string
	envFile  string
	logLevel string

	cfg     config.Config
	log     *slog.Logger
	store   *storage.Store
	sess    *session.Session
	user    *session.User
	tasks   *task.Repository
	prefs   *preference.Repository
	closers []io.Closer
}

// Execute runs the command line and returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := NewRootCmd(afero.NewOsFs())
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(root.ErrOrStderr(), "error: %v\n", err)
		return 1
	}
	return 0
}

func NewRootCmd(fs afero.Fs) *cobra.Command {
	a := &app{fs: fs}

	root := &cobra.Command{
		Use:           "taskflow",
		Short:         "Personal task manager for the terminal",
		Long:          "TaskFlow keeps a personal task list with status, priority, due dates and tags.\nRun without a command to open the interactive view.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE:          a.withStore(true, a.runTUI),
	}
	root.PersistentFlags().StringVarP(&a.cfgPath, "config", "c", "", "config file (default $TASKFLOW_CONFIG or the user config dir)")
	root.PersistentFlags().StringVar(&a.envFile, "env-file", ".env", "dotenv file loaded before the config")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "override log_level (DEBUG, INFO, WARN, ERROR)")

	root.AddCommand(
		&cobra.Command{
			Use:   "tui",
			Short: "Open the interactive view",
			Args:  cobra.NoArgs,
			RunE:  a.withStore(true, a.runTUI),
		},
		a.listCmd(),
		a.addCmd(),
		a.editCmd(),
		a.statusCmd(),
		a.deleteCmd(),
		a.prefsCmd(),
		a.whoamiCmd(),
	)
	return root
}

// withStore loads everything fn needs and releases it afterwards. tui sends
// logs to the configured log file instead of stderr.
func (a *app) withStore(tui bool, fn func(cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		if err := a.open(cmd, tui); err != nil {
			return err
		}
		defer a.close()
		return fn(cmd, args)
	}
}

func (a *app) open(cmd *cobra.Command, tui bool) error {
	if err := config.LoadDotEnv(a.envFile); err != nil {
		return err
	}
	path := a.cfgPath
	if path == "" {
		path = config.ResolveConfigPath()
	}
	cfg, err := config.LoadOrCreate(a.fs, path)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if a.logLevel != "" {
		cfg.LogLevel = strings.ToUpper(a.logLevel)
	}
	a.cfg = cfg

	logOut := cmd.ErrOrStderr()
	if tui {
		logOut = io.Discard
		if cfg.LogFile != "" {
			f, err := a.fs.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err != nil {
				return fmt.Errorf("open log file: %w", err)
			}
			a.closers = append(a.closers, f)
			logOut = f
		}
	}
	a.log = mustMakeLogger(cfg.LogLevel, logOut)

	store, err := storage.Open(cfg.DBDriver, cfg.StoreDSN(), a.log, task.Schema, preference.Schema)
	if err != nil {
		a.close()
		return fmt.Errorf("open store: %w", err)
	}
	a.store = store
	a.closers = append(a.closers, store)

	a.sess = session.New(session.NewLocal(cfg.UserID, cfg.UserName))
	user, err := a.sess.Start(cmd.Context())
	if err != nil {
		a.close()
		return fmt.Errorf("start session: %w", err)
	}
	a.user = user
	a.log.Debug("session started", "user", user.ID)

	a.tasks = task.NewRepository(store, user.ID, a.log)
	a.prefs = preference.NewRepository(store, a.log)
	return nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil && a.log != nil {
			a.log.Warn("close", "error", err)
		}
	}
	a.closers = nil
}

func (a *app) runTUI(cmd *cobra.Command, _ []string) error {
	filters, err := a.cfg.Filters()
	if err != nil {
		return err
	}
	err = ui.Run(cmd.Context(), ui.Options{
		Repo:    a.tasks,
		Auth:    a.sess,
		Session: a.sess,
		Prefs:   a.prefs,
		Keys:    a.cfg.Keys,
		Filters: filters,
		Log:     a.log,
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// manager builds a task manager that prints notifications to the command's
// output streams.
func (a *app) manager(cmd *cobra.Command, confirm manager.Confirmer) *manager.Manager {
	notify := manager.NotifierFunc(func(n manager.Notification) {
		w := cmd.OutOrStdout()
		if n.Level == manager.LevelError {
			w = cmd.ErrOrStderr()
		}
		fmt.Fprintln(w, n.Message)
	})
	filters, err := a.cfg.Filters()
	if err != nil {
		filters = task.DefaultFilters()
	}
	return manager.New(a.tasks, a.sess, confirm,
		manager.WithNotifier(notify),
		manager.WithLogger(a.log),
		manager.WithFilters(filters),
	)
}

func mustMakeLogger(logLevel string, w io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToUpper(logLevel) {
	case "DEBUG":
		level = slog.LevelDebug
	case "INFO":
		level = slog.LevelInfo
	case "WARN":
		level = slog.LevelWarn
	case "ERROR":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}
