package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/urfave/cli/v2"

	"github.com/vessel/internal/prompts"
)

// TemplatesCommand returns the templates command
func TemplatesCommand() *cli.Command {
	return &cli.Command{
		Name:  "templates",
		Usage: "Inspect node templates",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List templates, optionally filtered by category",
				Flags: []cli.Flag{
					&cli.StringSliceFlag{
						Name:    "category",
						Aliases: []string{"C"},
						Usage:   "Only show `CATEGORY` (repeatable)",
					},
				},
				Action: runTemplatesList,
			},
			{
				Name:      "show",
				Usage:     "Show one template",
				ArgsUsage: "ID|SLUG",
				Action:    runTemplatesShow,
			},
		},
	}
}

func runTemplatesList(c *cli.Context) error {
	var cats []prompts.Category
	for _, name := range c.StringSlice("category") {
		cat, err := prompts.ParseCategory(name)
		if err != nil {
			return err
		}
		cats = append(cats, cat)
	}

	e, err := openEngine(c)
	if err != nil {
		return err
	}
	defer e.Close()

	w := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SLUG\tCATEGORY\tORDER\tFLAGS\tNAME")
	for _, t := range e.manager.ListTemplates(cats...) {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n", t.Slug, t.Category, t.DefaultOrder, templateFlags(t), t.Name)
	}
	return w.Flush()
}

func templateFlags(t prompts.NodeTemplate) string {
	var flags []string
	if t.IsLocked {
		flags = append(flags, "locked")
	}
	if t.DefaultEnabled {
		flags = append(flags, "default")
	}
	if !t.IsSystem {
		flags = append(flags, "custom")
	}
	if len(flags) == 0 {
		return "-"
	}
	return strings.Join(flags, ",")
}

func runTemplatesShow(c *cli.Context) error {
	if c.NArg() < 1 {
		return fmt.Errorf("missing required argument: template id or slug")
	}
	e, err := openEngine(c)
	if err != nil {
		return err
	}
	defer e.Close()

	t, err := e.manager.GetTemplate(c.Args().First())
	if err != nil {
		return err
	}
	return printJSON(c.App.Writer, t)
}
