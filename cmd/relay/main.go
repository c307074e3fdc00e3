package main

import (
	"context"
	"fmt"
	"os"

	"github.com/hookhub/relay/internal/app"
	"github.com/hookhub/relay/internal/config"
	"github.com/urfave/cli/v3"
)

// Version is set at build time via -ldflags "-X main.Version=...".
var Version = "dev"

func main() {
	cmd := &cli.Command{
		Name:    "relay",
		Usage:   "Relay - Webhook delivery service",
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a yaml or .env config file",
			},
			&cli.StringFlag{
				Name:    "service",
				Aliases: []string{"s"},
				Usage:   "Service to run: \"api\", \"worker\", or empty for both",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg, err := config.Parse(config.Flags{
				Config:  c.String("config"),
				Service: c.String("service"),
			})
			if err != nil {
				return err
			}
			return app.New(cfg).Run(ctx)
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}
