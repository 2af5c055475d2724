package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/notedex/internal"
	pkgconfig "github.com/starford/notedex/pkg/config"
)

// loadConfig reads the config file and applies the --index and --vault
// overrides. A missing file is only an error when --config was given.
func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	configPath := cmd.String("config")

	cfg := internal.NewDefaultConfig()
	load := pkgconfig.LoadOptional[internal.Config]
	if cmd.IsSet("config") {
		load = pkgconfig.Load[internal.Config]
	}
	if err := load(configPath, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if v := cmd.String("index"); v != "" {
		cfg.Index.Path = v
	}
	if v := cmd.String("vault"); v != "" {
		cfg.Vault.Path = v
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	opts := []internal.Option{
		internal.WithConfig(cfg),
	}

	if err := internal.Run(ctx, opts...); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}

	return nil
}

func serveMCP(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := internal.ServeMCP(ctx, internal.WithConfig(cfg)); err != nil {
		return fmt.Errorf("mcp server error: %w", err)
	}
	return nil
}

func newApp(stdout io.Writer) *cli.Command {
	return &cli.Command{
		Name:   "notedex",
		Usage:  "Full-text and link index for a Markdown note vault",
		Action: serve,
		Writer: stdout,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
			&cli.StringFlag{
				Name:    "index",
				Usage:   "Index database path (overrides index.path)",
				Sources: cli.EnvVars("NOTEDEX_INDEX"),
			},
			&cli.StringFlag{
				Name:    "vault",
				Usage:   "Vault directory (overrides vault.path)",
				Sources: cli.EnvVars("NOTEDEX_VAULT"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API with live re-indexing of the vault",
				Action: serve,
			},
			{
				Name:   "mcp",
				Usage:  "Serve the index tools over MCP on stdio",
				Action: serveMCP,
			},
			{
				Name:   "init",
				Usage:  "Create the index and its schema",
				Action: initIndex,
			},
			{
				Name:      "index",
				Usage:     "Parse a Markdown file and add it to the index",
				ArgsUsage: "<file>",
				Action:    indexFile,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "as",
						Usage: "Vault-relative path to store the note under",
					},
				},
			},
			{
				Name:      "remove",
				Usage:     "Remove a note from the index",
				ArgsUsage: "<path>",
				Action:    removeNote,
			},
			{
				Name:   "list",
				Usage:  "List indexed notes, most recently updated first",
				Action: listNotes,
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "starred", Usage: "Only starred notes (--starred=false for unstarred)"},
					&cli.BoolFlag{Name: "template", Usage: "Only templates (--template=false for non-templates)"},
					&cli.StringFlag{Name: "tag", Usage: "Only notes with this tag"},
				},
			},
			{
				Name:      "search",
				Usage:     "Ranked full-text search",
				ArgsUsage: "<query>",
				Action:    searchNotes,
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "limit", Aliases: []string{"n"}, Usage: "Maximum results", Value: 50},
				},
			},
			{
				Name:      "backlinks",
				Usage:     "List links pointing at a note",
				ArgsUsage: "<path>",
				Action:    backlinks,
			},
			{
				Name:   "tree",
				Usage:  "Print the vault folder and note hierarchy",
				Action: tree,
			},
			{
				Name:   "sync",
				Usage:  "Reconcile the index with the vault",
				Action: syncVault,
			},
			{
				Name:   "status",
				Usage:  "Report index row counts and search shadow alignment",
				Action: status,
			},
		},
	}
}

func main() {
	if err := newApp(os.Stdout).Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
