package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/systemshift/coursefs/internal/config"
	"github.com/systemshift/coursefs/internal/course"
	"github.com/systemshift/coursefs/internal/store"
)

// app is what every subcommand runs against, built once per invocation.
type app struct {
	cfg    config.Config
	logger *log.Logger
	store  course.Store
	repo   *course.Repository
}

type globalFlags struct {
	configPath string
	dataDir    string
	backend    string
	logLevel   string
}

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout, os.Stderr); err != nil {
		os.Exit(1)
	}
}

// run executes one command line and always releases the store.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	a := &app{}
	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	err := root.ExecuteContext(ctx)
	if cerr := a.close(); err == nil {
		err = cerr
	}
	return err
}

func newRootCmd(a *app) *cobra.Command {
	var flags globalFlags
	root := &cobra.Command{
		Use:          "coursefs",
		Short:        "Versioned, content-addressed course trees",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.open(cmd, flags)
		},
	}
	pf := root.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "", "YAML config file")
	pf.StringVar(&flags.dataDir, "data", "", "data directory (overrides config and COURSEFS_DATA)")
	pf.StringVar(&flags.backend, "backend", "", "store backend: badger, file or memory (memory is mount-only; it does not persist between commands)")
	pf.StringVar(&flags.logLevel, "log-level", "", "log level")

	root.AddCommand(
		newCreateCourseCmd(a),
		newCoursesCmd(a),
		newShowCmd(a),
		newAddBranchCmd(a),
		newCreateBranchCmd(a),
		newAddNodeCmd(a, false),
		newAddNodeCmd(a, true),
		newDeleteNodeCmd(a),
		newNodesCmd(a),
		newLogCmd(a),
		newTreeCmd(a),
		newVerifyCmd(a),
		newMountCmd(a),
	)
	return root
}

func (a *app) open(cmd *cobra.Command, flags globalFlags) error {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return err
	}
	if flags.dataDir != "" {
		cfg.DataDir = flags.dataDir
	}
	if flags.backend != "" {
		cfg.Backend = flags.backend
	}
	if flags.logLevel != "" {
		cfg.LogLevel = flags.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.Backend == config.BackendMemory && cmd.Name() != "mount" {
		return errors.Errorf("backend %q keeps nothing between invocations; use it with mount only", cfg.Backend)
	}

	a.cfg = cfg
	a.logger = config.NewLogger(cfg, cmd.ErrOrStderr())
	a.store, err = openStore(cfg, a.logger)
	if err != nil {
		return err
	}
	a.repo = course.New(a.store, course.WithLogger(a.logger.WithField("component", "course")))
	a.logger.WithFields(log.Fields{"backend": cfg.Backend, "data": cfg.DataDir}).Debug("store opened")
	return nil
}

func (a *app) close() error {
	if a.store == nil {
		return nil
	}
	err := a.store.Close()
	a.store = nil
	return err
}

func openStore(cfg config.Config, logger *log.Logger) (course.Store, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return store.NewMemory(), nil
	case config.BackendFile:
		return store.NewFile(cfg.DataDir)
	case config.BackendBadger:
		bc := store.DefaultBadgerConfig(filepath.Join(cfg.DataDir, "badger"))
		bc.SyncWrites = cfg.Badger.SyncWrites
		bc.GCInterval = cfg.Badger.GCInterval
		bc.GCDiscardRatio = cfg.Badger.GCDiscardRatio
		bc.Logger = logger.WithField("component", "badger")
		return store.OpenBadger(bc)
	}
	return nil, errors.Errorf("unknown backend %q", cfg.Backend)
}

func (a *app) ctx(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func (a *app) printf(cmd *cobra.Command, format string, args ...interface{}) {
	fmt.Fprintf(cmd.OutOrStdout(), format, args...)
}
