package cmd

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/vessel/internal/importer"
	"github.com/vessel/internal/prompts"
)

// ComponentsCommand returns the components command
func ComponentsCommand() *cli.Command {
	return &cli.Command{
		Name:  "components",
		Usage: "Validate and assemble components configurations",
		Subcommands: []*cli.Command{
			{
				Name:      "validate",
				Usage:     "Validate a components configuration file",
				ArgsUsage: "FILE",
				Action:    runComponentsValidate,
			},
			{
				Name:      "assemble",
				Usage:     "Assemble the prompt a components configuration produces",
				ArgsUsage: "FILE",
				Flags:     runtimeFlags(),
				Action:    runComponentsAssemble,
			},
			{
				Name:      "activate",
				Usage:     "Save and activate a components configuration",
				ArgsUsage: "FILE",
				Action:    runComponentsActivate,
			},
		},
	}
}

func readComponents(c *cli.Context) (prompts.ComponentsConfig, error) {
	if c.NArg() < 1 {
		return prompts.ComponentsConfig{}, fmt.Errorf("missing required argument: configuration file")
	}
	data, err := os.ReadFile(c.Args().First())
	if err != nil {
		return prompts.ComponentsConfig{}, fmt.Errorf("failed to read configuration: %w", err)
	}
	cfg, report, err := importer.DecodeComponents(data, importer.FormatAuto)
	if err != nil {
		return cfg, err
	}
	for _, n := range report.Notes {
		fmt.Fprintf(os.Stderr, "note: %s\n", n)
	}
	return cfg, nil
}

func runComponentsValidate(c *cli.Context) error {
	cfg, err := readComponents(c)
	if err != nil {
		return err
	}
	e, err := openEngine(c)
	if err != nil {
		return err
	}
	defer e.Close()

	res := e.manager.ValidateConfiguration(cfg)
	printValidation(c.App.Writer, res)
	if !res.IsValid {
		return errInvalid
	}
	return nil
}

func runComponentsAssemble(c *cli.Context) error {
	cfg, err := readComponents(c)
	if err != nil {
		return err
	}
	rc, err := runtimeContext(c)
	if err != nil {
		return err
	}
	e, err := openEngine(c)
	if err != nil {
		return err
	}
	defer e.Close()

	p, err := e.manager.AssembleComponents(background(c), cfg, rc)
	if err != nil {
		return err
	}
	return printAssembly(c, c.App.Writer, p)
}

func runComponentsActivate(c *cli.Context) error {
	cfg, err := readComponents(c)
	if err != nil {
		return err
	}
	e, err := openEngine(c)
	if err != nil {
		return err
	}
	defer e.Close()

	saved, res, err := e.manager.ActivateConfiguration(background(c), cfg)
	printValidation(c.App.Writer, res)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "activated configuration %s\n", saved.ID)
	return nil
}
