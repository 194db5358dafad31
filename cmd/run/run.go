package run

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/sidkik/foldersync/cmd/util"
	"github.com/sidkik/foldersync/pkg/config"
	"github.com/sidkik/foldersync/pkg/errors"
	"github.com/sidkik/foldersync/pkg/fswatch"
	"github.com/sidkik/foldersync/pkg/logging"
	"github.com/sidkik/foldersync/pkg/scheduler"
	"github.com/sidkik/foldersync/pkg/sync"
)

// fs is overridden by the tests.
var fs = afero.NewOsFs()

type runCmd struct {
	flags      config.Config
	configPath string
	once       bool
	verbose    bool
}

// New creates a new `run` command.
func New() *cobra.Command {
	var cmd runCmd
	cobraCmd := &cobra.Command{
		Use:   "run",
		Short: "Keep a replica directory identical to a source directory",
		Long: `Periodically make the replica directory an exact copy of the source directory.

Each pass creates missing directories, copies new and changed files, and
removes anything from the replica that no longer exists in the source.
Keys set in the --config file take precedence over command line flags.`,
		Run: func(cobraCmd *cobra.Command, _ []string) {
			ctx, stop := signal.NotifyContext(cobraCmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := cmd.run(ctx, cobraCmd.ErrOrStderr()); err != nil {
				util.HandleFatalError(err)
			}
		},
	}

	flags := cobraCmd.Flags()
	flags.StringVar(&cmd.flags.Source, "source", "", "The directory to mirror")
	flags.StringVar(&cmd.flags.Replica, "replica", "", "The directory to keep identical to the source")
	flags.IntVar(&cmd.flags.Interval, "interval", config.DefaultInterval,
		"The number of seconds to wait between sync passes")
	flags.StringVar(&cmd.flags.LogFile, "logfile", "", "Also write logs to this rotating file")
	flags.StringSliceVar(&cmd.flags.Exclude, "exclude", nil,
		"Glob patterns for file names that are never copied. Can be repeated or comma separated")
	flags.BoolVar(&cmd.flags.DryRun, "dry-run", false, "Log what would change without modifying the replica")
	flags.BoolVar(&cmd.flags.PruneExcluded, "prune-excluded", false,
		"Also remove replica files whose names match an exclude pattern")
	flags.IntVar(&cmd.flags.Workers, "workers", 0,
		"The number of files copied concurrently. Defaults to the number of CPUs")
	flags.BoolVar(&cmd.flags.Watch, "watch", false,
		"Start a pass early when files in the source change")
	flags.StringVar(&cmd.configPath, "config", "", "Path to a JSON or YAML config file")
	flags.BoolVar(&cmd.once, "once", false, "Run a single sync pass and exit")
	flags.BoolVarP(&cmd.verbose, "verbose", "v", false, "Log debug events")

	return cobraCmd
}

func (cmd runCmd) run(ctx context.Context, console io.Writer) error {
	cfg, err := cmd.getConfig()
	if err != nil {
		return err
	}

	logger, logCloser := logging.New(logging.Options{
		LogFile: cfg.LogFile,
		Verbose: cmd.verbose || log.IsLevelEnabled(log.DebugLevel),
		Console: console,
	})
	defer logCloser.Close()

	logger.WithFields(log.Fields{
		"source":   cfg.Source,
		"replica":  cfg.Replica,
		"interval": cfg.Interval,
		"exclude":  cfg.Exclude,
		"dryRun":   cfg.DryRun,
	}).Info("Starting folder synchronization")

	syncer, err := sync.New(fs, logger, sync.Options{
		SourceRoot:    cfg.Source,
		ReplicaRoot:   cfg.Replica,
		DryRun:        cfg.DryRun,
		Exclude:       cfg.Exclude,
		PruneExcluded: cfg.PruneExcluded,
		Workers:       cfg.Workers,
	})
	if err != nil {
		return errors.WithContext(err, "create syncer")
	}

	schedCfg := scheduler.Config{
		Pass: func() error {
			_, err := syncer.RunPass()
			return err
		},
		Interval: time.Duration(cfg.Interval) * time.Second,
		Log:      logger,
	}

	if cmd.once {
		if err := scheduler.New(schedCfg).RunOnce(); err != nil {
			// RunOnce already logged the failure.
			return errors.NewFriendlyError("The sync pass failed: %s", err)
		}
		return nil
	}

	var watcher *fswatch.Watcher
	if cfg.Watch {
		watcher = cmd.startWatcher(cfg, logger)
		if watcher != nil {
			schedCfg.Trigger = watcher.Events()
		}
	}

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return scheduler.New(schedCfg).Run(ctx)
	})
	if watcher != nil {
		group.Go(func() error {
			<-ctx.Done()
			return watcher.Close()
		})
	}

	err = group.Wait()
	logger.Info("Stopping folder synchronization")
	if errors.RootCause(err) == context.Canceled {
		return nil
	}
	return err
}

// getConfig combines the command line flags with the config file, and
// checks the result.
func (cmd runCmd) getConfig() (config.Config, error) {
	cfg := cmd.flags
	if cmd.configPath != "" {
		file, err := config.Parse(cmd.configPath)
		if err != nil {
			if notFound, ok := errors.RootCause(err).(errors.FileNotFound); ok {
				return config.Config{}, errors.NewFriendlyError(
					"Config file not found at %q.", notFound.Path)
			}
			return config.Config{}, errors.WithContext(err, "parse config")
		}
		cfg = config.Merge(cfg, file)
	}

	cfg, err := cfg.Resolve()
	if err != nil {
		return config.Config{}, errors.WithContext(err, "resolve config")
	}

	if err := cfg.Validate(); err != nil {
		switch cause := errors.RootCause(err).(type) {
		case errors.MissingFieldError:
			return config.Config{}, errors.NewFriendlyError(
				"The %s directory is required. Set it with --%s or in the config file.",
				cause.Field, cause.Field)
		case errors.InvalidFieldError:
			return config.Config{}, errors.NewFriendlyError("Invalid %s: %s.", cause.Field, cause.Reason)
		}
		return config.Config{}, errors.WithContext(err, "validate config")
	}
	return cfg, nil
}

// startWatcher watches the source for changes. Watching is an optimization
// on top of the interval, so failures only disable it.
func (cmd runCmd) startWatcher(cfg config.Config, logger log.FieldLogger) *fswatch.Watcher {
	excludes, err := sync.CompileExcludes(cfg.Exclude)
	if err != nil {
		logger.WithError(err).Warn("Failed to watch source for changes. " +
			"Falling back to the sync interval.")
		return nil
	}

	watcher, err := fswatch.Watch(fs, cfg.Source, excludes, logger)
	if err != nil {
		logger.WithError(err).Warn("Failed to watch source for changes. " +
			"Falling back to the sync interval.")
		return nil
	}
	return watcher
}
