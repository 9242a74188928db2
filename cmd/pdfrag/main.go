// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/poiesic/pdfrag"
	"github.com/poiesic/pdfrag/config"
	"github.com/poiesic/pdfrag/rag"
	"github.com/poiesic/pdfrag/server"
	"github.com/urfave/cli/v2"
)

const defaultServer = "http://127.0.0.1:8288"

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	serverFlag := &cli.StringFlag{
		Name:    "server",
		Aliases: []string{"s"},
		Usage:   "Base URL of a running pdfrag server",
		EnvVars: []string{"PDFRAG_SERVER"},
		Value:   defaultServer,
	}
	waitFlag := &cli.BoolFlag{
		Name:  "wait",
		Usage: "Poll until the run finishes and print the result",
		Value: true,
	}
	timeoutFlag := &cli.DurationFlag{
		Name:  "timeout",
		Usage: "Give up waiting after this long",
		Value: 10 * time.Minute,
	}

	return &cli.App{
		Name:  "pdfrag",
		Usage: "Ingest documents and answer questions about them",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the YAML config file (default ./pdfrag.yaml, then ~/.config/pdfrag/config.yaml)",
				EnvVars: []string{"PDFRAG_CONFIG"},
			},
		},
		Before: setup,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the pipeline server",
				Action: serveCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "data-dir",
						Usage: "Path to the BadgerDB data directory",
					},
					&cli.StringFlag{
						Name:  "listen",
						Usage: "Address to listen on",
					},
					&cli.StringFlag{
						Name:  "embedding-host",
						Usage: "Embedding service host URL",
					},
					&cli.StringFlag{
						Name:  "embedding-model",
						Usage: "Embedding model name",
					},
					&cli.StringFlag{
						Name:    "embedding-api-key",
						Usage:   "API key for the embedding service",
						EnvVars: []string{"EMBEDDING_API_KEY"},
					},
					&cli.StringFlag{
						Name:  "answer-host",
						Usage: "Chat completion service host URL",
					},
					&cli.StringFlag{
						Name:  "answer-model",
						Usage: "Chat model used to answer questions",
					},
					&cli.StringFlag{
						Name:    "answer-api-key",
						Usage:   "API key for the chat completion service",
						EnvVars: []string{"GEMINI_API_KEY", "ANSWER_API_KEY"},
					},
				},
			},
			{
				Name:      "ingest",
				Usage:     "Ingest a document",
				ArgsUsage: "<path>",
				Action:    ingestCommand,
				Flags: []cli.Flag{
					serverFlag,
					&cli.StringFlag{
						Name:  "source-id",
						Usage: "Source identifier (defaults to the document path)",
					},
					waitFlag,
					timeoutFlag,
				},
			},
			{
				Name:      "query",
				Usage:     "Ask a question about ingested documents",
				ArgsUsage: "<question>",
				Action:    queryCommand,
				Flags: []cli.Flag{
					serverFlag,
					&cli.IntFlag{
						Name:  "top-k",
						Usage: "Number of contexts to retrieve (server default when 0)",
					},
					&cli.StringFlag{
						Name:  "source-id",
						Usage: "Only search chunks from this source",
					},
					waitFlag,
					timeoutFlag,
				},
			},
			{
				Name:      "status",
				Usage:     "Show a run, or every run of an event",
				ArgsUsage: "<run-id>",
				Action:    statusCommand,
				Flags: []cli.Flag{
					serverFlag,
					&cli.StringFlag{
						Name:  "event",
						Usage: "List the runs triggered by this event instead",
					},
				},
			},
			{
				Name:      "cancel",
				Usage:     "Cancel a run at its next step boundary",
				ArgsUsage: "<run-id>",
				Action:    cancelCommand,
				Flags:     []cli.Flag{serverFlag},
			},
			{
				Name:      "retry",
				Usage:     "Retry a failed run from its first unfinished step",
				ArgsUsage: "<run-id>",
				Action:    retryCommand,
				Flags:     []cli.Flag{serverFlag, waitFlag, timeoutFlag},
			},
			{
				Name:   "reset-collection",
				Usage:  "Drop the collection and recreate it with the configured dimensions (server must be stopped)",
				Action: resetCollectionCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "data-dir",
						Usage: "Path to the BadgerDB data directory",
					},
					&cli.BoolFlag{
						Name:  "yes",
						Usage: "Do not ask for confirmation",
					},
				},
			},
			{
				Name:   "info",
				Usage:  "Show the collection and its point count (server must be stopped)",
				Action: infoCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "data-dir",
						Usage: "Path to the BadgerDB data directory",
					},
				},
			},
			{
				Name:      "init-config",
				Usage:     "Write the default configuration to a file",
				ArgsUsage: "[path]",
				Action:    initConfigCommand,
			},
		},
	}
}

func setup(c *cli.Context) error {
	// A missing .env file is not an error.
	_ = godotenv.Load()
	return setupLogger(c)
}

func setupLogger(c *cli.Context) error {
	levelStr := strings.ToLower(c.String("log-level"))

	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}

// loadConfig reads the config file and applies any flags set on the command line.
func loadConfig(c *cli.Context) (*config.Config, error) {
	var (
		cfg  *config.Config
		path string
		err  error
	)
	if path = c.String("config"); path != "" {
		cfg, err = config.Load(path)
	} else {
		cfg, path, err = config.LoadDefault()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if path != "" {
		slog.Debug("loaded config", "path", path)
	}

	overrides := map[string]*string{
		"data-dir":          &cfg.DataDir,
		"listen":            &cfg.Listen,
		"embedding-host":    &cfg.AI.EmbeddingHost,
		"embedding-model":   &cfg.AI.EmbeddingModel,
		"embedding-api-key": &cfg.AI.EmbeddingAPIKey,
		"answer-host":       &cfg.AI.AnswerHost,
		"answer-model":      &cfg.AI.AnswerModel,
		"answer-api-key":    &cfg.AI.AnswerAPIKey,
	}
	for name, dst := range overrides {
		if c.IsSet(name) {
			*dst = c.String(name)
		}
	}
	return cfg, nil
}

func serveCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	engine, err := pdfrag.NewEngine(cfg)
	if err != nil {
		return fmt.Errorf("failed to start engine: %w", err)
	}
	defer engine.Close()

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if _, err := engine.Resume(ctx); err != nil {
		return fmt.Errorf("failed to resume runs: %w", err)
	}

	srv, err := engine.NewServer()
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "Database: %s\n", cfg.DataDir)
	fmt.Fprintf(os.Stderr, "Collection: %s (%d dims)\n", cfg.Collection, cfg.AI.EmbeddingDims)
	fmt.Fprintf(os.Stderr, "Embedding: %s @ %s\n", cfg.AI.EmbeddingModel, cfg.AI.EmbeddingHost)
	fmt.Fprintf(os.Stderr, "Answering: %s @ %s\n", cfg.AI.AnswerModel, cfg.AI.AnswerHost)
	fmt.Fprintf(os.Stderr, "Listening: http://%s\n", cfg.Listen)
	fmt.Fprintln(os.Stderr)

	return srv.ListenAndServe(ctx, cfg.Listen)
}

func ingestCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("ingest expects exactly one document path")
	}
	// The server resolves paths against its own working directory.
	path, err := filepath.Abs(c.Args().First())
	if err != nil {
		return err
	}

	req := map[string]any{"pdf_path": path}
	if id := c.String("source-id"); id != "" {
		req["source_id"] = id
	}
	return submit(c, rag.IngestPipeline, req)
}

func queryCommand(c *cli.Context) error {
	question := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if question == "" {
		return fmt.Errorf("query expects a question")
	}

	req := map[string]any{"question": question}
	if k := c.Int("top-k"); k > 0 {
		req["top_k"] = k
	}
	if id := c.String("source-id"); id != "" {
		req["source_id"] = id
	}
	return submit(c, rag.QueryPipeline, req)
}

func submit(c *cli.Context, event string, data any) error {
	client := server.NewClient(c.String("server"))

	run, err := client.Send(c.Context, event, data)
	if err != nil {
		return fmt.Errorf("failed to send event: %w", err)
	}
	return finish(c, client, run)
}

// finish prints the run, first waiting for it to end when --wait is set.
func finish(c *cli.Context, client *server.Client, run *server.RunView) error {
	if !c.Bool("wait") || run.Status.Terminal() {
		return printJSON(c.App.Writer, run)
	}

	ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
	defer cancel()

	fmt.Fprintf(c.App.ErrWriter, "Waiting for run %s...\n", run.RunID)
	done, err := client.Wait(ctx, run.RunID, server.DefaultPollInterval)
	if err != nil {
		if done != nil {
			_ = printJSON(c.App.Writer, done)
		}
		return fmt.Errorf("failed waiting for run %s: %w", run.RunID, err)
	}
	if err := printJSON(c.App.Writer, done); err != nil {
		return err
	}
	if done.Failure != "" {
		return fmt.Errorf("run %s failed: %s", done.RunID, done.Reason)
	}
	return nil
}

func statusCommand(c *cli.Context) error {
	client := server.NewClient(c.String("server"))

	if event := c.String("event"); event != "" {
		runs, err := client.EventRuns(c.Context, event)
		if err != nil {
			return err
		}
		return printJSON(c.App.Writer, runs)
	}

	if c.NArg() != 1 {
		return fmt.Errorf("status expects a run id or --event")
	}
	run, err := client.Run(c.Context, c.Args().First())
	if err != nil {
		return err
	}
	return printJSON(c.App.Writer, run)
}

func cancelCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("cancel expects a run id")
	}
	run, err := server.NewClient(c.String("server")).Cancel(c.Context, c.Args().First())
	if err != nil {
		return err
	}
	return printJSON(c.App.Writer, run)
}

func retryCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("retry expects a run id")
	}
	client := server.NewClient(c.String("server"))
	run, err := client.Retry(c.Context, c.Args().First())
	if err != nil {
		return err
	}
	return finish(c, client, run)
}

func resetCollectionCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	if !c.Bool("yes") {
		fmt.Fprintf(c.App.ErrWriter, "This deletes every point in collection %q under %s. Continue? [y/N] ", cfg.Collection, cfg.DataDir)
		var answer string
		_, _ = fmt.Fscanln(c.App.Reader, &answer)
		if a := strings.ToLower(strings.TrimSpace(answer)); a != "y" && a != "yes" {
			return fmt.Errorf("aborted")
		}
	}

	engine, err := pdfrag.NewEngine(cfg)
	if err != nil {
		return fmt.Errorf("failed to open engine: %w", err)
	}
	defer engine.Close()

	collection, err := engine.ResetCollection(c.Context)
	if err != nil {
		return fmt.Errorf("failed to reset collection: %w", err)
	}
	fmt.Fprintf(c.App.Writer, "Recreated %q with %d dimensions (%s distance).\n",
		collection.Name, collection.Dims, collection.Metric)
	return nil
}

func infoCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	engine, err := pdfrag.NewEngine(cfg)
	if err != nil {
		return fmt.Errorf("failed to open engine: %w", err)
	}
	defer engine.Close()

	info, err := engine.Collection(c.Context)
	if err != nil {
		return fmt.Errorf("failed to read collection: %w", err)
	}
	fmt.Fprintf(c.App.Writer, "Database: %s\n", cfg.DataDir)
	fmt.Fprintf(c.App.Writer, "Collection: %s\n", info.Collection.Name)
	fmt.Fprintf(c.App.Writer, "Dimensions: %d\n", info.Collection.Dims)
	fmt.Fprintf(c.App.Writer, "Metric: %s\n", info.Collection.Metric)
	fmt.Fprintf(c.App.Writer, "Points: %d\n", info.Points)
	return nil
}

func initConfigCommand(c *cli.Context) error {
	path := c.Args().First()
	if path == "" {
		path = config.FileName
	}
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	}
	if err := config.Save(path, config.Default()); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "Wrote %s\n", path)
	return nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
