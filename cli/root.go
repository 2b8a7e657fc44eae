// Package cli provides the command-line interface for the conversion client.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/cbsinteractive/conversion-client/client"
	"github.com/cbsinteractive/conversion-client/config"
	"github.com/cbsinteractive/conversion-client/exceptions"
	"github.com/cbsinteractive/conversion-client/session"
	"github.com/cbsinteractive/conversion-client/sink"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// Version is set at build time
var Version = "0.1.0"

var (
	// Global flags
	baseURL  string
	saveDir  string
	useRedis bool
	verbose  bool
	asJSON   bool

	cfg    *config.Config
	logger *logrus.Logger
	ctl    *session.Controller

	// cleanup runs after every command
	cleanup []func()
)

var rootCmd = &cobra.Command{
	Use:   "conversion-client",
	Short: "Create, inspect and transfer files of model conversion jobs",
	Long: `conversion-client talks to a conversion server. It creates jobs that
convert SBML, SBGN and Escher models, uploads their input files, watches
their progress and downloads what they produced.

Configuration is read from CONVERT_* environment variables; flags win.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" || cmd.Name() == "version" {
			return nil
		}
		return setup(cmd)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		for _, f := range cleanup {
			f()
		}
		cleanup = nil
	},
}

func setup(cmd *cobra.Command) error {
	var err error
	if cfg, err = config.Load(); err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("base-url") {
		cfg.API.BaseURL = baseURL
	}
	if flags.Changed("save-dir") {
		cfg.SaveDir = saveDir
	}
	if verbose {
		cfg.Log.Level = "debug"
	}

	if logger, err = cfg.Log.Logger(); err != nil {
		return err
	}

	cl, err := client.New(cfg.API.BaseURL, cfg.API.Timeout)
	if err != nil {
		return errors.Wrap(err, "creating client")
	}

	var reporter exceptions.Reporter = &exceptions.NoopReporter{}
	if cfg.Sentry.Enabled() {
		sr, err := exceptions.NewSentryReporter(cfg.Sentry.DSN, cfg.Sentry.Env)
		if err != nil {
			return errors.Wrap(err, "creating sentry reporter")
		}
		reporter = sr
		cleanup = append(cleanup, func() { sr.Flush() })
	}

	saver, err := newSaver()
	if err != nil {
		return err
	}

	ctl = session.New(cl,
		session.WithLogger(logger),
		session.WithReporter(reporter),
		session.WithSaver(saver),
		session.WithNotifier(session.NotifierFunc(func(s session.Snapshot) {
			logger.WithFields(logrus.Fields{"version": s.Version, "label": s.Label}).Debug("session changed")
		})),
	)
	return nil
}

func newSaver() (session.Saver, error) {
	if !useRedis && !cfg.Redis.Enabled() {
		return sink.Dir{Path: cfg.SaveDir}, nil
	}
	r, err := sink.NewRedis(&sink.Options{
		Addr:     cfg.Redis.Addr,
		DB:       cfg.Redis.DB,
		Password: cfg.Redis.Password,
	})
	if err != nil {
		return nil, errors.Wrap(err, "connecting to redis")
	}
	logger.WithField("addr", r.Addr()).Debug("saving to redis")
	cleanup = append(cleanup, func() {
		if err := r.Close(); err != nil {
			logger.WithError(err).Warn("closing redis")
		}
	})
	return r, nil
}

// Execute runs the root command until ctx is done
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&baseURL, "base-url", "", "conversion server API root (default $CONVERT_API_BASE_URL or http://localhost:6969/api)")
	pf.StringVar(&saveDir, "save-dir", "", "directory downloads are saved to (default $CONVERT_SAVE_DIR or .)")
	pf.BoolVar(&useRedis, "redis", false, "save downloads to redis instead of the save directory")
	pf.BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	pf.BoolVar(&asJSON, "json", false, "print the session as JSON")

	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(uploadCmd)
	rootCmd.AddCommand(downloadCmd)
	rootCmd.AddCommand(logCmd)
	rootCmd.AddCommand(watchCmd)
}

// Fail prints an error and exits with code 1
func Fail(w io.Writer, err error) {
	fmt.Fprintf(w, "Error: %v\n", err)
	os.Exit(1)
}
