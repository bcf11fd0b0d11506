package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/hearthside/gigi-learning/internal/config"
)

// ConfigCommand returns the configuration management command.
func ConfigCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Manage configuration",
		Subcommands: []*cli.Command{
			{
				Name:      "init",
				Usage:     "Write a sample configuration file",
				ArgsUsage: "[PATH]",
				Action: func(c *cli.Context) error {
					path := c.Args().Get(0)
					if path == "" {
						path = "gigi.toml"
					}
					if err := config.Init(path); err != nil {
						return err
					}
					fmt.Printf("Wrote sample configuration to %s\n", path)
					return nil
				},
			},
			{
				Name:  "validate",
				Usage: "Load and validate the configuration",
				Action: func(c *cli.Context) error {
					cfg, err := loadConfig(c)
					if err != nil {
						return err
					}
					if err := cfg.Validate(); err != nil {
						return err
					}
					fmt.Println("Configuration OK")
					return nil
				},
			},
		},
	}
}
