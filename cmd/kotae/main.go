// Package main is the kotae CLI entry point.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/cli"
	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/server"
	"github.com/hyperjump/kotae/internal/watcher"
	"github.com/hyperjump/kotae/pkg/utils"
)

var version = "dev"

const (
	defaultConfigPath = "/usr/local/etc/kotae/config.yaml"
	defaultServerURL  = "http://localhost:5000"
)

// loadConfig loads config from path. When path is the default, config.yaml in the
// current directory wins if it exists; when neither exists, defaults rooted at the
// current directory are used. Returns the config and the path that was loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		cwd, cwdErr := os.Getwd()
		if cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
		if _, statErr := os.Stat(path); errors.Is(statErr, os.ErrNotExist) && cwdErr == nil {
			return config.Default(cwd), "", nil
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

// loadEnv reads .env from the current directory so provider API keys can stay
// out of the YAML config.
func loadEnv() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Warning: failed to read .env: %v\n", err)
	}
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	loadEnv()
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "train":
		runTrain()
	case "ask":
		runAsk()
	case "search":
		runSearch()
	case "files":
		runFiles()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("kotae version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

// setup loads config, builds the logger and initializes all components.
func setup(ctx context.Context, configPath string, debugFlag bool) (*config.Config, *zap.Logger, *Components) {
	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || debugFlag
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	if resolved == "" {
		resolved = "(defaults)"
	}
	logger.Info("config loaded",
		zap.String("config_path", resolved),
		zap.Bool("debug", debugMode),
		zap.String("upload_dir", cfg.Storage.UploadDir),
	)
	components, err := initializeComponents(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	return cfg, logger, components
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, logger, components := setup(ctx, *configPath, *debug)
	defer logger.Sync()
	defer func() {
		if err := components.Close(); err != nil {
			logger.Warn("close failed", zap.Error(err))
		}
	}()

	if cfg.Watch.EnabledOrDefault() {
		sync := watcher.NewUploadSync(components.Store, components.Indexer, logger)
		watch := watcher.NewWatcher(
			components.Store.Dir(),
			[]string{".pdf"},
			sync.Added,
			sync.Removed,
			watcher.WithLogger(logger),
			watcher.WithDebounce(cfg.Watch.Debounce),
		)
		if err := watch.Start(ctx); err != nil {
			logger.Fatal("Failed to start watcher", zap.Error(err))
		}
		defer watch.Stop()
		if err := sync.Reconcile(ctx, components.Store.Dir(), watch.Match); err != nil {
			logger.Warn("upload directory reconcile failed", zap.Error(err))
		}
	}

	srv := server.NewServer(components.ServerDependencies(), &cfg.Server, logger)
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server failed", zap.Error(err))
		}
	}

	logger.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		logger.Warn("server shutdown", zap.Error(err))
	}
	if err := components.Indexer.Stop(shutdownCtx); err != nil {
		logger.Warn("training did not stop in time", zap.Error(err))
	}
	if err := components.Holder.Save(cfg.Storage.IndexPath); err != nil {
		logger.Warn("index save failed", zap.String("path", cfg.Storage.IndexPath), zap.Error(err))
	}
}

// runTrain indexes the upload directory without a server. PDFs copied into the
// directory by hand are registered first.
func runTrain() {
	fs := flag.NewFlagSet("train", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	_, logger, components := setup(ctx, *configPath, *debug)
	defer logger.Sync()
	defer func() { _ = components.Close() }()

	sync := watcher.NewUploadSync(components.Store, components.Indexer, logger)
	w := watcher.NewWatcher(components.Store.Dir(), []string{".pdf"}, nil, nil)
	if err := sync.Reconcile(ctx, components.Store.Dir(), w.Match); err != nil {
		logger.Warn("upload directory reconcile failed", zap.Error(err))
	}

	res, err := components.Indexer.Train(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Training failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Indexed %d passages from %d documents (%d skipped)\n", res.Passages, res.Documents, res.Skipped)
	for _, msg := range res.Warnings {
		fmt.Printf("  warning: %s\n", msg)
	}
}

// questionArgsReorder moves any flags (and their values) that appear after the
// question to the front so flag.Parse sees them; flag parsing stops at the first
// non-flag argument.
func questionArgsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

// buildQuestion joins positional args so quoting is optional.
func buildQuestion(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

func outputFormat(s string) cli.OutputFormat {
	f, err := cli.ParseOutputFormat(s)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	return f
}

func runAsk() {
	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	serverURL := fs.String("server", defaultServerURL, "server URL")
	clientID := fs.String("client-id", "cli", "conversation id; history is kept per id on the server")
	topK := fs.Int("top-k", 0, "passages to retrieve (0 = server default)")
	maxTokens := fs.Int("max-tokens", 0, "answer length limit (0 = server default)")
	temperature := fs.Float64("temperature", -1, "sampling temperature, 0 for deterministic (negative = server default)")
	raw := fs.Bool("raw", false, "show the raw model output")
	reset := fs.Bool("reset", false, "clear the conversation history before asking")
	output := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(questionArgsReorder(os.Args[2:]))

	question := buildQuestion(fs.Args())
	if question == "" {
		fmt.Println("Usage: kotae ask [flags] <question>")
		os.Exit(1)
	}
	format := outputFormat(*output)
	client := cli.NewClient(*serverURL, 0)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *reset {
		if err := client.Reset(ctx, *clientID); err != nil {
			fmt.Fprintf(os.Stderr, "Reset failed: %v\n", err)
			os.Exit(1)
		}
	}
	opts := models.ChatOptions{TopK: *topK, MaxTokens: *maxTokens, ShowRaw: *raw}
	if *temperature >= 0 {
		opts.Temperature = temperature
	}
	resp, err := client.Ask(ctx, models.ChatRequest{Question: question, ClientID: *clientID, ChatOptions: opts})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ask failed: %v\n", err)
		os.Exit(1)
	}
	_ = cli.WriteAnswer(os.Stdout, resp, format)
}

func runSearch() {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	serverURL := fs.String("server", defaultServerURL, "server URL")
	limit := fs.Int("limit", 0, "number of passages (0 = server default)")
	mode := fs.String("mode", "keyword", "keyword, semantic or hybrid")
	output := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(questionArgsReorder(os.Args[2:]))

	query := buildQuestion(fs.Args())
	if query == "" {
		fmt.Println("Usage: kotae search [flags] <query>")
		os.Exit(1)
	}
	format := outputFormat(*output)
	resp, err := cli.NewClient(*serverURL, 30*time.Second).Search(context.Background(), query, *limit, models.SearchMode(*mode))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
		os.Exit(1)
	}
	_ = cli.WriteSearchResults(os.Stdout, resp, format)
}

// runFiles lists, uploads or deletes documents. With --server "" it reads the
// local store directly (listing only).
func runFiles() {
	fs := flag.NewFlagSet("files", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (for direct mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = read the local store)")
	output := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])
	format := outputFormat(*output)
	ctx := context.Background()

	action := "list"
	if fs.NArg() > 0 {
		action = fs.Arg(0)
	}
	args := fs.Args()
	if len(args) > 0 {
		args = args[1:]
	}

	if *serverURL == "" {
		if action != "list" {
			fmt.Fprintln(os.Stderr, "Only listing is available without a server")
			os.Exit(1)
		}
		_, logger, components := setup(ctx, *configPath, false)
		defer logger.Sync()
		defer func() { _ = components.Close() }()
		docs, err := components.Store.List(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "List failed: %v\n", err)
			os.Exit(1)
		}
		files := make([]models.FileInfo, len(docs))
		for i, d := range docs {
			files[i] = localFileInfo(d)
		}
		_ = cli.WriteFiles(os.Stdout, files, format)
		return
	}

	client := cli.NewClient(*serverURL, 0)
	switch action {
	case "list":
		files, err := client.Files(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "List failed: %v\n", err)
			os.Exit(1)
		}
		_ = cli.WriteFiles(os.Stdout, files, format)
	case "upload":
		if len(args) == 0 {
			fmt.Println("Usage: kotae files upload <file.pdf>...")
			os.Exit(1)
		}
		files, err := client.Upload(ctx, args)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Upload failed: %v\n", err)
			os.Exit(1)
		}
		if len(files) < len(args) {
			fmt.Fprintf(os.Stderr, "%d of %d files were rejected (PDF only)\n", len(args)-len(files), len(args))
		}
		_ = cli.WriteFiles(os.Stdout, files, format)
	case "delete":
		if len(args) == 0 {
			fmt.Println("Usage: kotae files delete <filename>...")
			os.Exit(1)
		}
		for _, name := range args {
			if err := client.Delete(ctx, name); err != nil {
				fmt.Fprintf(os.Stderr, "Delete %s failed: %v\n", name, err)
				os.Exit(1)
			}
			fmt.Printf("deleted %s\n", name)
		}
	default:
		fmt.Printf("Unknown files action: %s (use list, upload or delete)\n", action)
		os.Exit(1)
	}
}

// runStatus shows /info. With --train it starts a run first and follows it until
// it finishes. With --server "" it reads the local store and index directly.
func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (for direct mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = read the local store and index)")
	train := fs.Bool("train", false, "start a training run on the server and wait for it")
	output := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])
	format := outputFormat(*output)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *serverURL == "" {
		_, logger, components := setup(ctx, *configPath, false)
		defer logger.Sync()
		defer func() { _ = components.Close() }()
		info, err := localInfo(ctx, components)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
			os.Exit(1)
		}
		_ = cli.WriteInfo(os.Stdout, info, format)
		return
	}

	client := cli.NewClient(*serverURL, 30*time.Second)
	if *train {
		if err := followTraining(ctx, client); err != nil {
			fmt.Fprintf(os.Stderr, "Training failed: %v\n", err)
			os.Exit(1)
		}
	}
	info, err := client.Info(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
		os.Exit(1)
	}
	_ = cli.WriteInfo(os.Stdout, info, format)
}

func followTraining(ctx context.Context, client *cli.Client) error {
	runID, err := client.Train(ctx)
	var apiErr *cli.APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusConflict {
		fmt.Fprintln(os.Stderr, "A training run is already active; following it")
	} else if err != nil {
		return err
	} else {
		fmt.Fprintf(os.Stderr, "Started run %s\n", runID)
	}
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	last := ""
	for {
		st, err := client.TrainStatus(ctx)
		if err != nil {
			return err
		}
		line := fmt.Sprintf("%-10s %3d%%  %s", st.Stage, st.Progress, st.Message)
		if line != last {
			fmt.Fprintln(os.Stderr, line)
			last = line
		}
		if !st.IsTraining {
			if st.Stage == models.StageFailed {
				return errors.New(st.Message)
			}
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func printUsage() {
	fmt.Println(`kotae - question answering over your PDF documents

Usage:
  kotae server [flags]                 Start the HTTP server
  kotae train [flags]                  Index the upload directory without a server
  kotae ask [flags] <question>         Ask a question (via the server)
  kotae search [flags] <query>         Search passages (via the server)
  kotae files [list|upload|delete]     Manage uploaded PDFs
  kotae status [flags]                 Show index and training status
  kotae version                        Show version
  kotae help                           Show this help

Server/Train Flags:
  --config string    Config file path (default: /usr/local/etc/kotae/config.yaml, or ./config.yaml)
  --debug            Enable debug logging

Ask Flags:
  --server string        Server URL (default: http://localhost:5000)
  --client-id string     Conversation id (default: cli)
  --top-k int            Passages to retrieve
  --max-tokens int       Answer length limit
  --temperature float    Sampling temperature (0 = deterministic)
  --raw                  Show raw model output
  --reset                Clear history before asking
  --output string        text or json

Files/Status Flags:
  --server string    Server URL. Use --server "" to read the local store directly.
  --output string    text or json
  --train            (status) start a training run and follow its progress

Examples:
  kotae server
  kotae files upload handbook.pdf report.pdf
  kotae status --train
  kotae ask "How many vacation days do employees get?"
  kotae ask --top-k 8 --raw what changed in the 2024 policy
  kotae search --mode hybrid remote work`)
}
