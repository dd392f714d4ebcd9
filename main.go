package main

import (
	"fmt"
	"log"
	"os"

	"github.com/dtnitsch/linkmeta/internal/blocks"
	"github.com/dtnitsch/linkmeta/internal/extract"
	"github.com/dtnitsch/linkmeta/internal/rules"
	"github.com/dtnitsch/linkmeta/pkg/help"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "linkmeta",
		Usage: "Extract structured metadata from linked pages into tagged blocks",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "YAML config file",
				Value:   "linkmeta.yaml",
				EnvVars: []string{"LINKMETA_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "db",
				Usage:   "SQLite block store (overrides db_path)",
				EnvVars: []string{"LINKMETA_DB"},
			},
			&cli.StringFlag{
				Name:  "assets-dir",
				Usage: "Directory for uploaded assets (overrides assets_dir)",
			},
			&cli.BoolFlag{
				Name:    "quiet",
				Aliases: []string{"q"},
				Usage:   "Only log errors",
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Log debug output",
			},
			&cli.StringFlag{
				Name:  "log-file",
				Usage: "Also write JSON logs to this rotated file",
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "extract",
				Usage:     "Extract metadata for a block or URL and apply it",
				ArgsUsage: "[url]",
				Flags: []cli.Flag{
					&cli.StringSliceFlag{Name: "block", Aliases: []string{"b"}, Usage: "Block whose content holds the URL; repeat to extract several"},
					&cli.StringFlag{Name: "url", Aliases: []string{"u"}, Usage: "URL to extract; creates a link block unless --dry-run"},
					&cli.StringFlag{Name: "rule", Aliases: []string{"r"}, Usage: "Use the named rule instead of matching"},
					&cli.BoolFlag{Name: "interactive", Aliases: []string{"i"}, Usage: "Capture the page from a browser window"},
					&cli.StringFlag{Name: "browser-bin", Usage: "Browser executable for --interactive"},
					&cli.StringFlag{Name: "browser-url", Usage: "DevTools URL of a running browser for --interactive"},
					&cli.BoolFlag{Name: "dry-run", Aliases: []string{"n"}, Usage: "Print the metadata without writing anything"},
					&cli.BoolFlag{Name: "no-cache", Usage: "Bypass the page cache"},
					&cli.StringFlag{Name: "fields", Usage: "Comma-separated property names to print"},
					&cli.IntFlag{Name: "workers", Aliases: []string{"w"}, Value: 4, Usage: "Concurrent extractions when several blocks are given"},
				},
				Action: extract.ExtractAction,
			},
			{
				Name:  "rules",
				Usage: "Inspect the configured rules",
				Subcommands: []*cli.Command{
					{Name: "list", Usage: "List rules in priority order", Action: rules.ListAction},
					{Name: "check", Usage: "Validate patterns and fields", Action: rules.CheckAction},
					{Name: "match", Usage: "Show the rule for a URL", ArgsUsage: "<url>", Action: rules.MatchAction},
				},
			},
			{
				Name:  "blocks",
				Usage: "Manage blocks in the local store",
				Subcommands: []*cli.Command{
					{Name: "add", Usage: "Create a block", ArgsUsage: "<text>", Action: blocks.AddAction},
					{
						Name:      "show",
						Usage:     "Print a block with its tags and extraction history",
						ArgsUsage: "<id>",
						Flags: []cli.Flag{
							&cli.IntFlag{Name: "history", Value: 10, Usage: "Extraction attempts to show"},
						},
						Action: blocks.ShowAction,
					},
					{
						Name:  "list",
						Usage: "List recent blocks",
						Flags: []cli.Flag{
							&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: 50, Usage: "Blocks to show"},
						},
						Action: blocks.ListAction,
					},
				},
			},
			{
				Name:  "schema",
				Usage: "Inspect tag schemas",
				Subcommands: []*cli.Command{
					{Name: "show", Usage: "Print a tag schema", ArgsUsage: "<tag>", Action: blocks.SchemaAction},
				},
			},
			{
				Name:  "coldstart",
				Usage: "Print a quick-start guide",
				Action: func(c *cli.Context) error {
					fmt.Print(help.ColdstartYAML)
					return nil
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
