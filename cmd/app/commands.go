package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/starford/notedex/internal"
	"github.com/starford/notedex/internal/index"
	"github.com/starford/notedex/internal/noteservice"
	"github.com/starford/notedex/internal/storage"
)

type commandFunc func(ctx context.Context, cmd *cli.Command, svc *noteservice.Service, cfg *internal.Config) error

// withService runs fn against a registry built from the configuration.
// Logs go to stderr; stdout carries command output only.
func withService(fn commandFunc) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		logger := internal.NewLogger(os.Stderr, cfg.App.LogLevel)
		reg := index.NewRegistry(append(cfg.Index.RegistryOptions(), index.WithLogger(logger))...)
		defer reg.Close()

		return fn(ctx, cmd, noteservice.NewService(reg, logger), cfg)
	}
}

func printJSON(cmd *cli.Command, v any) error {
	enc := json.NewEncoder(cmd.Root().Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func requireArg(cmd *cli.Command, name string) (string, error) {
	arg := strings.TrimSpace(strings.Join(cmd.Args().Slice(), " "))
	if arg == "" {
		return "", fmt.Errorf("%s: missing %s argument", cmd.Name, name)
	}
	return arg, nil
}

var initIndex = withService(func(ctx context.Context, cmd *cli.Command, svc *noteservice.Service, cfg *internal.Config) error {
	if err := svc.InitIndex(ctx, cfg.Index.Path); err != nil {
		return err
	}
	return printJSON(cmd, map[string]string{"status": "ok", "index": cfg.Index.Path})
})

var indexFile = withService(func(ctx context.Context, cmd *cli.Command, svc *noteservice.Service, cfg *internal.Config) error {
	file := cmd.Args().First()
	if file == "" {
		return errors.New("index: missing file argument")
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("index: %w", err)
	}
	rel, err := vaultPath(cmd, cfg, file)
	if err != nil {
		return err
	}

	if err := svc.InitIndex(ctx, cfg.Index.Path); err != nil {
		return err
	}
	doc, err := svc.IndexFile(ctx, cfg.Index.Path, rel, data)
	if err != nil {
		return err
	}
	return printJSON(cmd, map[string]any{
		"id":    index.NoteID(doc.Path),
		"path":  doc.Path,
		"title": doc.Title,
		"links": len(doc.Links),
	})
})

// vaultPath picks the path a file is stored under: --as when given,
// otherwise the file's location relative to the vault.
func vaultPath(cmd *cli.Command, cfg *internal.Config, file string) (string, error) {
	if as := cmd.String("as"); as != "" {
		return index.NormalizePath(as), nil
	}
	store, err := storage.NewFS(cfg.Vault.Path)
	if err != nil {
		return "", fmt.Errorf("index: %w (use --as to name the note)", err)
	}
	abs, err := filepath.Abs(file)
	if err != nil {
		return "", fmt.Errorf("index: %w", err)
	}
	rel, err := store.Rel(abs)
	if err != nil {
		return "", fmt.Errorf("index: %w (use --as to name the note)", err)
	}
	return rel, nil
}

var removeNote = withService(func(ctx context.Context, cmd *cli.Command, svc *noteservice.Service, cfg *internal.Config) error {
	path, err := requireArg(cmd, "path")
	if err != nil {
		return err
	}
	if err := svc.RemoveFromIndex(ctx, cfg.Index.Path, path); err != nil {
		return err
	}
	return printJSON(cmd, map[string]string{"removed": index.NormalizePath(path)})
})

var listNotes = withService(func(ctx context.Context, cmd *cli.Command, svc *noteservice.Service, cfg *internal.Config) error {
	var f index.Filter
	if cmd.IsSet("starred") {
		f.Starred = index.Bool(cmd.Bool("starred"))
	}
	if cmd.IsSet("template") {
		f.Template = index.Bool(cmd.Bool("template"))
	}
	f.Tag = cmd.String("tag")

	notes, err := svc.ListNotes(ctx, cfg.Index.Path, f)
	if err != nil {
		return err
	}
	return printJSON(cmd, notes)
})

var searchNotes = withService(func(ctx context.Context, cmd *cli.Command, svc *noteservice.Service, cfg *internal.Config) error {
	query, err := requireArg(cmd, "query")
	if err != nil {
		return err
	}
	results, err := svc.SearchNotes(ctx, cfg.Index.Path, query, int(cmd.Int("limit")))
	if err != nil {
		return err
	}
	return printJSON(cmd, results)
})

var backlinks = withService(func(ctx context.Context, cmd *cli.Command, svc *noteservice.Service, cfg *internal.Config) error {
	path, err := requireArg(cmd, "path")
	if err != nil {
		return err
	}
	links, err := svc.Backlinks(ctx, cfg.Index.Path, path)
	if err != nil {
		return err
	}
	return printJSON(cmd, links)
})

var tree = withService(func(_ context.Context, cmd *cli.Command, svc *noteservice.Service, cfg *internal.Config) error {
	root, err := svc.Tree(cfg.Vault.Path)
	if err != nil {
		return err
	}
	return printJSON(cmd, root)
})

var syncVault = withService(func(ctx context.Context, cmd *cli.Command, svc *noteservice.Service, cfg *internal.Config) error {
	if err := svc.InitIndex(ctx, cfg.Index.Path); err != nil {
		return err
	}
	stats, err := svc.Sync(ctx, cfg.Index.Path, cfg.Vault.Path)
	if err != nil {
		return err
	}
	return printJSON(cmd, stats)
})

var status = withService(func(ctx context.Context, cmd *cli.Command, svc *noteservice.Service, cfg *internal.Config) error {
	st, err := svc.Status(ctx, cfg.Index.Path)
	if err != nil {
		return err
	}
	return printJSON(cmd, map[string]any{
		"notes":   st.Notes,
		"shadow":  st.Shadow,
		"orphans": st.Orphans,
		"links":   st.Links,
		"aligned": st.Aligned(),
	})
})
