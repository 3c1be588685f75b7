package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/vessel/internal/api"
)

// ServeCommand returns the CLI command for starting the admin API server
func ServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the admin API server",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port for the API server (overrides server.port)",
			},
		},
		Action: func(c *cli.Context) error {
			e, err := openEngine(c)
			if err != nil {
				return err
			}
			defer e.Close()

			port := e.cfg.Server.Port
			if c.IsSet("port") {
				port = c.Int("port")
			}
			server := api.NewServer(e.manager, api.Options{
				Port:      port,
				RateLimit: e.cfg.Server.RateLimit,
				Burst:     e.cfg.Server.Burst,
			}, e.logger)
			return server.Start(background(c))
		},
	}
}
