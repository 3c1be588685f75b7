package cmd

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/vessel/internal/importer"
	"github.com/vessel/internal/prompts"
)

// ChainCommand returns the chain command
func ChainCommand() *cli.Command {
	return &cli.Command{
		Name:  "chain",
		Usage: "Validate, assemble and import prompt chains",
		Subcommands: []*cli.Command{
			{
				Name:      "validate",
				Usage:     "Validate a chain file",
				ArgsUsage: "FILE",
				Flags:     []cli.Flag{formatFlag()},
				Action:    runChainValidate,
			},
			{
				Name:      "assemble",
				Usage:     "Assemble a chain file into a system prompt",
				ArgsUsage: "FILE",
				Flags:     append([]cli.Flag{formatFlag()}, runtimeFlags()...),
				Action:    runChainAssemble,
			},
			{
				Name:      "import",
				Usage:     "Import a chain export, translating legacy conditions",
				ArgsUsage: "FILE",
				Flags: []cli.Flag{
					formatFlag(),
					&cli.StringFlag{
						Name:  "scope",
						Usage: "Scope to save into: global or user:<id>",
					},
					&cli.BoolFlag{
						Name:  "save",
						Usage: "Save the imported chain",
					},
					&cli.BoolFlag{
						Name:  "activate",
						Usage: "Save and activate the imported chain",
					},
				},
				Action: runChainImport,
			},
		},
	}
}

func formatFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Input format: json, yaml or auto",
	}
}

// readChain decodes the chain file named by the first argument.
func readChain(c *cli.Context) (prompts.PromptChain, importer.Report, error) {
	if c.NArg() < 1 {
		return prompts.PromptChain{}, importer.Report{}, fmt.Errorf("missing required argument: chain file")
	}
	format, err := importer.ParseFormat(c.String("format"))
	if err != nil {
		return prompts.PromptChain{}, importer.Report{}, err
	}
	data, err := os.ReadFile(c.Args().First())
	if err != nil {
		return prompts.PromptChain{}, importer.Report{}, fmt.Errorf("failed to read chain: %w", err)
	}
	return importer.DecodeChain(data, format)
}

func runChainValidate(c *cli.Context) error {
	chain, _, err := readChain(c)
	if err != nil {
		return err
	}
	e, err := openEngine(c)
	if err != nil {
		return err
	}
	defer e.Close()

	res, err := e.manager.ValidateChain(chain)
	if err != nil {
		return err
	}
	printValidation(c.App.Writer, res)
	if !res.IsValid {
		return errInvalid
	}
	return nil
}

func runChainAssemble(c *cli.Context) error {
	chain, _, err := readChain(c)
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

	p, err := e.manager.PreviewChain(background(c), chain, rc)
	if err != nil {
		return err
	}
	return printAssembly(c, c.App.Writer, p)
}

func runChainImport(c *cli.Context) error {
	chain, report, err := readChain(c)
	if err != nil {
		return err
	}
	w := c.App.Writer
	if report.Repaired {
		fmt.Fprintf(w, "repaired malformed JSON (%v)\n", report.Repair.Strategies)
	}
	for _, t := range report.Translated {
		fmt.Fprintf(w, "translated condition %s\n", t)
	}
	for _, n := range report.Notes {
		fmt.Fprintf(w, "note: %s\n", n)
	}

	e, err := openEngine(c)
	if err != nil {
		return err
	}
	defer e.Close()

	if !c.Bool("save") && !c.Bool("activate") {
		res, err := e.manager.ValidateChain(chain)
		if err != nil {
			return err
		}
		printValidation(w, res)
		return printJSON(w, chain)
	}

	if scope := c.String("scope"); scope != "" {
		chain.Scope = scope
	}
	chain.ID = ""
	ctx := background(c)
	saved, res, err := e.manager.CreateChain(ctx, chain)
	if err != nil {
		return err
	}
	printValidation(w, res)
	fmt.Fprintf(w, "saved chain %s (%s)\n", saved.ID, saved.Scope)

	if c.Bool("activate") {
		if _, err := e.manager.ActivateChain(ctx, saved.ID); err != nil {
			return err
		}
		fmt.Fprintf(w, "activated chain %s\n", saved.ID)
	}
	return nil
}
