package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/quire/internal"
	pkgconfig "github.com/starford/quire/pkg/config"
)

var version = "dev"

func loadOptions(cmd *cli.Command) ([]internal.Option, error) {
	configPath := cmd.String("config")

	cfg := internal.NewDefaultConfig()
	read, err := pkgconfig.LoadOrDefault(configPath, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if !read {
		slog.Warn("config file not found, using defaults", slog.String("path", configPath))
	}

	if dir := cmd.String("content"); dir != "" {
		cfg.Site.ContentDir = dir
	}
	if dir := cmd.String("output"); dir != "" {
		cfg.Site.OutputDir = dir
	}
	if cmd.Bool("strict") {
		cfg.Site.Strict = true
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return []internal.Option{
		internal.WithConfig(cfg),
		internal.WithVersion(version),
	}, nil
}

func runBuild(ctx context.Context, cmd *cli.Command) error {
	opts, err := loadOptions(cmd)
	if err != nil {
		return err
	}
	res, err := internal.Build(ctx, opts...)
	if err != nil {
		return fmt.Errorf("build failed: %w", err)
	}
	fmt.Fprintf(cmd.Root().Writer, "built %d documents, %d references (build %s)\n",
		res.Index.Len(), len(res.References), res.ID)
	return nil
}

func runCheck(ctx context.Context, cmd *cli.Command) error {
	opts, err := loadOptions(cmd)
	if err != nil {
		return err
	}
	res, err := internal.Check(ctx, opts...)
	if err != nil {
		return fmt.Errorf("check failed: %w", err)
	}
	fmt.Fprintf(cmd.Root().Writer, "ok: %d documents, %d references\n", res.Index.Len(), len(res.References))
	return nil
}

func runServe(ctx context.Context, cmd *cli.Command) error {
	opts, err := loadOptions(cmd)
	if err != nil {
		return err
	}
	if err := internal.Serve(ctx, opts...); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func runMCP(ctx context.Context, cmd *cli.Command) error {
	opts, err := loadOptions(cmd)
	if err != nil {
		return err
	}
	return internal.ServeMCP(ctx, opts...)
}

func main() {
	cmd := &cli.Command{
		Name:    "quire",
		Usage:   "Build a blog from front-matter documents with checked post_url cross-references",
		Version: version,
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
				Name:    "content",
				Usage:   "Override site.content_dir",
				Sources: cli.EnvVars("QUIRE_CONTENT_DIR"),
			},
			&cli.StringFlag{
				Name:    "output",
				Usage:   "Override site.output_dir",
				Sources: cli.EnvVars("QUIRE_OUTPUT_DIR"),
			},
			&cli.BoolFlag{
				Name:  "strict",
				Usage: "Reject unknown front matter keys",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "build",
				Usage:  "Build the site into the output directory and record it in the catalog",
				Action: runBuild,
			},
			{
				Name:   "check",
				Usage:  "Validate documents and cross-references without writing anything",
				Action: runCheck,
			},
			{
				Name:   "serve",
				Usage:  "Build, serve the catalog API and rebuild on changes",
				Action: runServe,
			},
			{
				Name:   "mcp",
				Usage:  "Serve MCP tools over stdio",
				Action: runMCP,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
