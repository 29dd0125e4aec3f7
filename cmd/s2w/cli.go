package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/35services/slack-2-wordpress/internal/config"
	"github.com/35services/slack-2-wordpress/internal/errors"
	"github.com/35services/slack-2-wordpress/internal/media"
	"github.com/35services/slack-2-wordpress/internal/pipeline"
	"github.com/35services/slack-2-wordpress/internal/slack"
	"github.com/35services/slack-2-wordpress/internal/state"
	"github.com/35services/slack-2-wordpress/internal/transcript"
	"github.com/35services/slack-2-wordpress/internal/web"
	"github.com/35services/slack-2-wordpress/internal/wordpress"
)

// deps holds the wired collaborators for network commands.
type deps struct {
	source    *slack.Client
	publisher *wordpress.Client
	store     *state.Store
	tracker   *pipeline.Tracker
	pipeline  *pipeline.Pipeline
}

// buildDeps wires the full pipeline from config. Callers validate the config
// first so missing credentials surface as one readable error.
func buildDeps(cfg *config.Config) (*deps, error) {
	store, err := state.Open(cfg.StatePath)
	if err != nil {
		return nil, err
	}

	source := slack.NewClient(cfg.SlackToken)
	publisher := wordpress.NewClient(cfg.WordPressURL, cfg.WordPressUser, cfg.WordPressAppPassword)
	tracker := pipeline.NewTracker(time.Duration(cfg.RunRetentionSeconds) * time.Second)

	pipe := pipeline.New(pipeline.Params{
		Source:      source,
		Publisher:   publisher,
		Store:       store,
		Fetcher:     media.NewFetcher(source, mediaDir(cfg), "media", cfg.Concurrency),
		Exporter:    transcript.NewExporter(cfg.OutputDir, cfg.Concurrency),
		Tracker:     tracker,
		ChannelID:   cfg.SlackChannelID,
		Concurrency: cfg.Concurrency,
	})

	return &deps{
		source:    source,
		publisher: publisher,
		store:     store,
		tracker:   tracker,
		pipeline:  pipe,
	}, nil
}

func mediaDir(cfg *config.Config) string {
	return filepath.Join(cfg.OutputDir, "media")
}

// newCLIApp creates the CLI application with all commands.
func newCLIApp(cfg *config.Config, baseDir string) *cli.App {
	app := &cli.App{
		Name:    "s2w",
		Usage:   "Sync Slack threads to WordPress posts",
		Version: Version,
		Commands: []*cli.Command{
			syncCmd(cfg),
			statusCmd(),
			serveCmd(cfg),
			checkCmd(cfg),
			mappingsCmd(cfg),
			promptCmd(cfg),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// syncCmd creates the sync command.
func syncCmd(cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "Sync every thread in the configured channel to WordPress",
		Action: func(c *cli.Context) error {
			if err := cfg.Validate(); err != nil {
				return outputError(err)
			}
			d, err := buildDeps(cfg)
			if err != nil {
				return outputError(err)
			}

			report, err := d.pipeline.SyncAll(c.Context)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(report)
		},
	}
}

// statusCmd creates the status command. It queries a running serve process.
func statusCmd() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Query the sync status of a running serve process",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Value: "http://127.0.0.1:8035", Usage: "Address of the serve process"},
		},
		Action: func(c *cli.Context) error {
			url := strings.TrimRight(c.String("addr"), "/") + "/status"
			ctx, cancel := context.WithTimeout(c.Context, 5*time.Second)
			defer cancel()

			req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
			if err != nil {
				return outputError(errors.NewInternal(err))
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return outputError(errors.NewInvalidRequest(fmt.Sprintf("no serve process reachable at %s", c.String("addr"))))
			}
			defer resp.Body.Close()

			var body any
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
				return outputError(errors.NewInternal(err))
			}
			return outputJSON(body)
		},
	}
}

// serveCmd creates the serve command.
func serveCmd(cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the sync JSON API",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "bind", Value: "127.0.0.1", Usage: "Bind address"},
			&cli.IntFlag{Name: "port", Value: 8035, Usage: "Listen port"},
		},
		Action: func(c *cli.Context) error {
			if err := cfg.Validate(); err != nil {
				return outputError(err)
			}
			d, err := buildDeps(cfg)
			if err != nil {
				return outputError(err)
			}

			srv := web.NewServer(d.pipeline, d.tracker, d.store, Version, c.String("bind"), c.Int("port"))
			return web.Run(srv)
		},
	}
}

// checkCmd creates the check command. It probes both sides before a first
// sync: the channel must be visible to the Slack token and the WordPress
// account must be able to publish posts.
func checkCmd(cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "check",
		Usage: "Verify Slack channel access and WordPress credentials",
		Action: func(c *cli.Context) error {
			if err := cfg.Validate(); err != nil {
				return outputError(err)
			}
			d, err := buildDeps(cfg)
			if err != nil {
				return outputError(err)
			}

			result := map[string]any{"channel": cfg.SlackChannelID}
			if err := d.source.ValidateChannel(c.Context, cfg.SlackChannelID); err != nil {
				return outputError(err)
			}
			result["slack"] = "ok"

			if err := d.publisher.Validate(c.Context); err != nil {
				return outputError(err)
			}
			result["wordpress"] = "ok"

			return outputJSON(result)
		},
	}
}

// mappingsCmd creates the mappings command group.
func mappingsCmd(cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "mappings",
		Usage: "Inspect the thread→post mapping table",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List all mappings",
				Action: func(c *cli.Context) error {
					store, err := state.Open(cfg.StatePath)
					if err != nil {
						return outputError(err)
					}
					entries := store.List()
					return outputJSON(map[string]any{
						"mappings": entries,
						"count":    len(entries),
					})
				},
			},
			{
				Name:      "remove",
				Usage:     "Remove a mapping so the next sync creates a fresh post",
				ArgsUsage: "<fingerprint>",
				Action: func(c *cli.Context) error {
					if c.NArg() < 1 {
						return outputError(errors.NewInvalidRequest("fingerprint argument is required"))
					}
					store, err := state.Open(cfg.StatePath)
					if err != nil {
						return outputError(err)
					}
					fp := c.Args().First()
					if err := store.Remove(fp); err != nil {
						return outputError(err)
					}
					return outputJSON(map[string]any{"removed": true, "fingerprint": fp})
				},
			},
		},
	}
}

// promptCmd creates the prompt command group.
func promptCmd(cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "prompt",
		Usage: "Get or set the per-thread summarization prompt",
		Subcommands: []*cli.Command{
			{
				Name:      "get",
				Usage:     "Print the stored prompt for a thread",
				ArgsUsage: "<fingerprint>",
				Action: func(c *cli.Context) error {
					if c.NArg() < 1 {
						return outputError(errors.NewInvalidRequest("fingerprint argument is required"))
					}
					store, err := state.Open(cfg.StatePath)
					if err != nil {
						return outputError(err)
					}
					fp := c.Args().First()
					if _, ok := store.Get(fp); !ok {
						return outputError(errors.NewNotFound(fp))
					}
					prompt, set := store.GetPrompt(fp)
					return outputJSON(map[string]any{
						"fingerprint": fp,
						"prompt":      prompt,
						"set":         set,
					})
				},
			},
			{
				Name:      "set",
				Usage:     "Store a prompt for a thread (reads prompt text from stdin)",
				ArgsUsage: "<fingerprint>",
				Action: func(c *cli.Context) error {
					if c.NArg() < 1 {
						return outputError(errors.NewInvalidRequest("fingerprint argument is required"))
					}
					if !stdinHasData() {
						return outputError(errors.NewInvalidRequest("prompt text must be piped via stdin"))
					}
					prompt, err := readStdin()
					if err != nil {
						return outputError(errors.NewInternal(err))
					}
					if prompt == "" {
						return outputError(errors.NewInvalidRequest("prompt text is required"))
					}

					store, err := state.Open(cfg.StatePath)
					if err != nil {
						return outputError(err)
					}
					fp := c.Args().First()
					if err := store.SetPrompt(fp, prompt); err != nil {
						return outputError(err)
					}
					return outputJSON(map[string]any{"stored": true, "fingerprint": fp})
				},
			},
		},
	}
}

// outputJSON prints indented JSON to stdout.
func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	if syncErr, ok := err.(*errors.SyncError); ok {
		return cli.Exit(fmt.Sprintf("[%s] %s", syncErr.Code, syncErr.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}

// stdinHasData returns true if stdin has piped data (not a terminal).
func stdinHasData() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}

// readStdin reads all content from stdin.
func readStdin() (string, error) {
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
