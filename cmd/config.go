package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/vessel/internal/config"
)

// ConfigCommand manages the TOML configuration file.
func ConfigCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Manage configuration",
		Subcommands: []*cli.Command{
			{
				Name:  "init",
				Usage: "Write a sample configuration file",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Output file path",
						Value:   "vessel.toml",
					},
				},
				Action: runConfigInit,
			},
			{
				Name:   "validate",
				Usage:  "Check the merged configuration",
				Action: runConfigValidate,
			},
			{
				Name:   "show",
				Usage:  "Print the merged configuration (defaults, file, environment, flags) as TOML",
				Action: runConfigShow,
			},
		},
	}
}

func runConfigInit(c *cli.Context) error {
	path := c.String("output")
	if err := config.InitConfig(path); err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}
	fmt.Fprintf(c.App.Writer, "Created configuration file at %s\n", path)
	return nil
}

func runConfigValidate(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "Configuration is valid (database %s, port %d)\n", cfg.Database.Driver, cfg.Server.Port)
	return nil
}

func runConfigShow(c *cli.Context) error {
	k, err := loadTree(c)
	if err != nil {
		return err
	}
	out, err := config.Dump(k)
	if err != nil {
		return fmt.Errorf("render config: %w", err)
	}
	_, err = c.App.Writer.Write(out)
	return err
}
