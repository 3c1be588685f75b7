package cmd

import "github.com/urfave/cli/v2"

// NewApp builds the vessel command line application.
func NewApp(version string) *cli.App {
	return &cli.App{
		Name:    "vessel",
		Usage:   "Assemble companion system prompts from node template chains",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Load configuration from `FILE` (default: search ./vessel.toml, ./data/vessel.toml, ~/.vessel.toml)",
			},
			&cli.StringFlag{
				Name:  "db",
				Usage: "Database DSN override, or \"memory\" for a throwaway in-memory store",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Override general.log_level",
			},
		},
		Commands: []*cli.Command{
			ServeCommand(),
			ConfigCommand(),
			TemplatesCommand(),
			ChainCommand(),
			ComponentsCommand(),
		},
	}
}
