package cli

import (
	"context"

	urfave "github.com/urfave/cli/v3"

	"github.com/YuminosukeSato/shapscale/pkg/config"
)

func newConfigCmd() *urfave.Command {
	return &urfave.Command{
		Name:  "config",
		Usage: "Print the default analysis configuration as YAML",
		Action: func(ctx context.Context, cmd *urfave.Command) error {
			return config.Write(stdout(cmd), config.Default())
		},
	}
}
