// Package cli is the shapscale command line application.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	urfave "github.com/urfave/cli/v3"

	"github.com/YuminosukeSato/shapscale/pkg/log"
)

const (
	logLevelFlag = "log-level"
	logFileFlag  = "log-file"
)

var (
	version = "v0.0.1-default"
	commit  = ""
)

func newApp(w io.Writer) *urfave.Command {
	return &urfave.Command{
		Name:    "shapscale",
		Version: fmt.Sprintf("%s (commit: %s)", version, commit),
		Usage:   "Category SHAP contributions of tree ensembles across spatial grid sizes",
		Writer:  w,
		Flags: []urfave.Flag{
			&urfave.StringFlag{
				Name:    logLevelFlag,
				Usage:   "Log level [debug, info, warn, error]",
				Value:   "info",
				Sources: urfave.EnvVars("SHAPSCALE_LOG_LEVEL"),
				Validator: func(s string) error {
					_, err := log.ParseLevel(s)
					return err
				},
			},
			&urfave.StringFlag{
				Name:      logFileFlag,
				Usage:     "Write JSON logs to a rotating file instead of stderr",
				TakesFile: true,
				Sources:   urfave.EnvVars("SHAPSCALE_LOG_FILE"),
			},
		},
		Commands: []*urfave.Command{
			newRunCmd(),
			newExplainCmd(),
			newConfigCmd(),
		},
		Before: func(ctx context.Context, cmd *urfave.Command) (context.Context, error) {
			var out io.Writer = os.Stderr
			if f := cmd.String(logFileFlag); f != "" {
				out = log.FileOutput(f)
			}
			log.SetupLoggerWithOutput(cmd.String(logLevelFlag), out)
			return ctx, nil
		},
	}
}

// Execute creates and runs the CLI application.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newApp(os.Stdout).Run(ctx, os.Args); err != nil {
		log.GetLogger().Error("fatal error", err)
		stop()
		os.Exit(1)
	}
}

// stdout is where command results go; tests replace the root writer.
func stdout(cmd *urfave.Command) io.Writer {
	if w := cmd.Root().Writer; w != nil {
		return w
	}
	return os.Stdout
}
