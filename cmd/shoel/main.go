// Package main is the shoel CLI entry point.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/hyperjump/shoel/internal/cli"
	"github.com/hyperjump/shoel/internal/config"
	"github.com/hyperjump/shoel/internal/extract"
	"github.com/hyperjump/shoel/internal/models"
	"github.com/hyperjump/shoel/internal/server"
	"github.com/hyperjump/shoel/internal/watcher"
	"github.com/hyperjump/shoel/pkg/utils"
	"go.uber.org/zap"
)

var version = "dev"

const (
	defaultConfigPath = "/usr/local/etc/shoel/config.yaml"
	defaultServerURL  = "http://localhost:8080"
	clientTimeout     = 5 * time.Minute
)

// loadConfig loads config from path. When path is the default, config.yaml in
// the current directory wins if present, and a missing default file yields the
// built-in defaults rooted at the current directory. Returns the config and the
// path that was loaded ("" for built-in defaults).
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, err := os.Getwd(); err == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
			if _, statErr := os.Stat(path); errors.Is(statErr, fs.ErrNotExist) {
				return config.Default(cwd), "", nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

// setup loads .env files and config and builds the logger.
func setup(configPath string, debugFlag bool) (*config.Config, string, *zap.Logger, error) {
	if err := config.LoadEnv(configPath); err != nil {
		return nil, "", nil, err
	}
	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		return nil, "", nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger, err := utils.NewLogger(cfg.Debug || debugFlag)
	if err != nil {
		return nil, "", nil, fmt.Errorf("failed to create logger: %w", err)
	}
	logger.Info("config loaded", zap.String("config_path", resolved), zap.Bool("debug", cfg.Debug || debugFlag))
	return cfg, resolved, logger, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	args := os.Args[2:]
	var err error
	switch command {
	case "server":
		err = runServer(args)
	case "ingest":
		err = runIngest(args)
	case "search":
		err = runSearch(args)
	case "chat":
		err = runChat(args)
	case "status":
		err = runStatus(args)
	case "delete":
		err = runDelete(args)
	case "watch":
		err = runWatch(args)
	case "version", "--version", "-v":
		fmt.Printf("shoel version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s failed: %v\n", command, err)
		os.Exit(1)
	}
}

func runServer(args []string) error {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(args)

	cfg, resolvedConfigPath, logger, err := setup(*configPath, *debug)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	components, err := initializeComponents(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer components.Close()

	var watchSvc server.WatchService
	if len(cfg.Watch.Directories) > 0 || resolvedConfigPath != "" {
		w := watcher.NewWatcher(
			cfg.Watch.Directories,
			cfg.Watch.Extensions,
			cfg.Watch.RecursiveOrDefault(),
			components.Indexer,
			watcher.WithLogger(logger),
		)
		if err := w.Start(ctx); err != nil {
			return fmt.Errorf("failed to start watcher: %w", err)
		}
		defer w.Stop()
		go w.SyncExistingFiles()
		watchSvc = w
	}

	go sweepSessions(ctx, components, cfg.Session, logger)

	srv := server.NewServer(components.Service, &cfg.Server, logger, watchSvc, resolvedConfigPath, cfg)
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(shutdownCtx)
	components.SaveVectors()
	return nil
}

// sweepSessions evicts idle chat sessions until ctx is done.
func sweepSessions(ctx context.Context, c *Components, cfg config.SessionConfig, logger *zap.Logger) {
	if cfg.SweepInterval() <= 0 || cfg.TTL() <= 0 {
		logger.Warn("session eviction disabled", zap.Duration("sweep_interval", cfg.SweepInterval()), zap.Duration("ttl", cfg.TTL()))
		return
	}
	ticker := time.NewTicker(cfg.SweepInterval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := c.Service.EvictSessions(cfg.TTL()); n > 0 {
				logger.Debug("sessions evicted", zap.Int("count", n), zap.Int("remaining", c.Sessions.Len()))
			}
		}
	}
}

// argsReorder moves flags that appear after positional arguments to the front
// so that flag.Parse sees them. Go's flag package stops at the first non-flag
// argument, so "shoel search \"query\" -top-k 3" would otherwise leave -top-k unparsed.
func argsReorder(args []string) []string {
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

// buildQuery joins positional args with spaces so multi-word questions work
// with or without shell quoting.
func buildQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// metadataFlag collects repeated key=value flags.
type metadataFlag map[string]string

func (m metadataFlag) String() string {
	parts := make([]string, 0, len(m))
	for k, v := range m {
		parts = append(parts, k+"="+v)
	}
	return strings.Join(parts, ",")
}

func (m metadataFlag) Set(s string) error {
	k, v, ok := strings.Cut(s, "=")
	if !ok || strings.TrimSpace(k) == "" {
		return fmt.Errorf("metadata must be key=value, got %q", s)
	}
	m[strings.TrimSpace(k)] = strings.TrimSpace(v)
	return nil
}

// collectPDFs expands directories into the PDFs beneath them.
func collectPDFs(paths []string) ([]string, error) {
	var out []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			out = append(out, p)
			continue
		}
		err = filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && extract.IsSupported(path) {
				out = append(out, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func runIngest(args []string) error {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = ingest directly into local storage)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	meta := metadataFlag{}
	fs.Var(meta, "meta", "document metadata as key=value (repeatable)")
	_ = fs.Parse(argsReorder(args))

	if fs.NArg() < 1 {
		fmt.Println("Usage: shoel ingest [flags] <pdf-or-directory>...")
		os.Exit(1)
	}
	format, err := cli.ParseFormat(*outputFormat)
	if err != nil {
		return err
	}
	files, err := collectPDFs(fs.Args())
	if err != nil {
		return err
	}
	ctx := context.Background()

	if *serverURL != "" {
		client := cli.NewClient(*serverURL, clientTimeout)
		failed := 0
		for _, f := range files {
			resp, err := client.UploadPDF(ctx, f, meta)
			if err != nil {
				fmt.Fprintf(os.Stderr, "%s: %v\n", f, err)
				failed++
				continue
			}
			_ = cli.WriteIngest(os.Stdout, f, resp, format)
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d file(s) failed", failed, len(files))
		}
		return nil
	}

	cfg, _, logger, err := setup(*configPath, false)
	if err != nil {
		return err
	}
	defer logger.Sync()
	if cfg.Storage.Backend != config.BackendSQLite {
		logger.Warn("storage backend is not durable; ingested documents are lost on exit",
			zap.String("backend", cfg.Storage.Backend))
	}
	components, err := initializeComponents(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer components.Close()
	defer components.SaveVectors()

	failed := 0
	for _, f := range files {
		doc, err := components.Indexer.IngestFile(ctx, f)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", f, err)
			failed++
			continue
		}
		resp := &models.IngestResponse{DocumentID: doc.ID, Status: doc.Status, TotalChunks: doc.ChunkCount}
		_ = cli.WriteIngest(os.Stdout, f, resp, format)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d file(s) failed", failed, len(files))
	}
	return nil
}

func runSearch(args []string) error {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = search local storage directly)")
	topK := fs.Int("top-k", 0, "number of passages to retrieve (0 = configured default)")
	noSources := fs.Bool("no-sources", false, "omit cited sources")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(argsReorder(args))

	query := buildQuery(fs.Args())
	if query == "" {
		fmt.Println("Usage: shoel search [flags] <question>")
		os.Exit(1)
	}
	format, err := cli.ParseFormat(*outputFormat)
	if err != nil {
		return err
	}
	includeSources := !*noSources
	req := models.SearchRequest{Query: query, TopK: *topK, IncludeSources: &includeSources}
	ctx := context.Background()

	var resp *models.SearchResponse
	if *serverURL != "" {
		resp, err = cli.NewClient(*serverURL, clientTimeout).Search(ctx, req)
	} else {
		err = withComponents(ctx, *configPath, func(c *Components) error {
			var searchErr error
			resp, searchErr = c.Service.Search(ctx, req)
			return searchErr
		})
	}
	if err != nil {
		return err
	}
	return cli.WriteAnswer(os.Stdout, resp, format)
}

// chatter sends one chat message.
type chatter func(ctx context.Context, req models.ChatRequest) (*models.ChatResponse, error)

func runChat(args []string) error {
	fs := flag.NewFlagSet("chat", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = chat against local storage directly)")
	sessionID := fs.String("session", "", "continue an existing session")
	topK := fs.Int("top-k", 0, "number of passages to retrieve (0 = configured default)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(argsReorder(args))

	format, err := cli.ParseFormat(*outputFormat)
	if err != nil {
		return err
	}
	ctx := context.Background()
	first := buildQuery(fs.Args())

	if *serverURL != "" {
		client := cli.NewClient(*serverURL, clientTimeout)
		return chatLoop(ctx, client.Chat, os.Stdin, os.Stdout, *sessionID, *topK, first, format)
	}
	return withComponents(ctx, *configPath, func(c *Components) error {
		return chatLoop(ctx, c.Service.Chat, os.Stdin, os.Stdout, *sessionID, *topK, first, format)
	})
}

// chatLoop sends first (when set) and returns, or else reads messages from in
// until EOF or /exit, keeping one session across turns.
func chatLoop(ctx context.Context, send chatter, in io.Reader, out io.Writer, sessionID string, topK int, first string, format cli.OutputFormat) error {
	ask := func(msg string) error {
		resp, err := send(ctx, models.ChatRequest{Message: msg, SessionID: sessionID, TopK: topK})
		if err != nil {
			return err
		}
		sessionID = resp.SessionID
		return cli.WriteChatTurn(out, resp, format)
	}
	if first != "" {
		return ask(first)
	}

	scanner := bufio.NewScanner(in)
	interactive := format == cli.OutputText
	for {
		if interactive {
			fmt.Fprint(out, "> ")
		}
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/exit", "/quit":
			return nil
		}
		if err := ask(line); err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
		}
	}
	if interactive && sessionID != "" {
		fmt.Fprintf(out, "\nsession: %s\n", sessionID)
	}
	return scanner.Err()
}

func runStatus(args []string) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = read local storage directly)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(args)

	format, err := cli.ParseFormat(*outputFormat)
	if err != nil {
		return err
	}
	ctx := context.Background()
	var st *models.StatusResponse
	if *serverURL != "" {
		st, err = cli.NewClient(*serverURL, clientTimeout).Status(ctx)
	} else {
		err = withComponents(ctx, *configPath, func(c *Components) error {
			var statusErr error
			st, statusErr = c.Service.Status(ctx)
			return statusErr
		})
	}
	if err != nil {
		return err
	}
	return cli.WriteStatus(os.Stdout, st, format)
}

func runDelete(args []string) error {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = delete from local storage directly)")
	_ = fs.Parse(argsReorder(args))

	if fs.NArg() < 1 {
		fmt.Println("Usage: shoel delete [flags] <document-id>")
		os.Exit(1)
	}
	docID := fs.Arg(0)
	ctx := context.Background()
	var err error
	if *serverURL != "" {
		err = cli.NewClient(*serverURL, clientTimeout).DeleteDocument(ctx, docID)
	} else {
		err = withComponents(ctx, *configPath, func(c *Components) error {
			if err := c.Service.DeleteDocument(ctx, docID); err != nil {
				return err
			}
			c.SaveVectors()
			return nil
		})
	}
	if err != nil {
		return err
	}
	fmt.Printf("Document deleted: %s\n", docID)
	return nil
}

func runWatch(args []string) error {
	if len(args) < 1 {
		fmt.Println("Usage: shoel watch <add|remove|list> [path]")
		fmt.Println("  shoel watch add <path>     Add an inbox directory")
		fmt.Println("  shoel watch remove <path>  Stop watching a directory")
		fmt.Println("  shoel watch list           List inbox directories")
		os.Exit(1)
	}
	sub := args[0]
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	serverURL := fs.String("server", defaultServerURL, "server URL")
	noSync := fs.Bool("no-sync", false, "do not ingest the PDFs already in an added directory")
	_ = fs.Parse(argsReorder(args[1:]))

	client := cli.NewClient(*serverURL, clientTimeout)
	ctx := context.Background()
	switch sub {
	case "add", "remove":
		if fs.NArg() < 1 {
			fmt.Printf("Usage: shoel watch %s <path>\n", sub)
			os.Exit(1)
		}
		path, err := filepath.Abs(fs.Arg(0))
		if err != nil {
			return err
		}
		if sub == "add" {
			if err := client.AddWatchDirectory(ctx, path, !*noSync); err != nil {
				return err
			}
			fmt.Printf("Added: %s\n", path)
			return nil
		}
		if err := client.RemoveWatchDirectory(ctx, path); err != nil {
			return err
		}
		fmt.Printf("Removed: %s\n", path)
		return nil
	case "list":
		dirs, err := client.WatchDirectories(ctx)
		if err != nil {
			return err
		}
		for _, d := range dirs {
			fmt.Println(d)
		}
		return nil
	default:
		return fmt.Errorf("unknown watch subcommand: %s", sub)
	}
}

// withComponents runs fn against locally initialized components.
func withComponents(ctx context.Context, configPath string, fn func(*Components) error) error {
	cfg, _, logger, err := setup(configPath, false)
	if err != nil {
		return err
	}
	defer logger.Sync()
	components, err := initializeComponents(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer components.Close()
	return fn(components)
}

func printUsage() {
	fmt.Println(`shoel - question answering over Hebrew PDF documents

Usage:
  shoel server [flags]                  Start the HTTP server (and inbox watcher)
  shoel ingest [flags] <pdf|dir>...     Ingest PDF files
  shoel search [flags] <question>       Ask a single question
  shoel chat [flags] [message]          Chat with history (interactive without a message)
  shoel status [flags]                  Show storage, index and provider status
  shoel delete [flags] <id>             Delete a document
  shoel watch <add|remove|list>         Manage inbox directories
  shoel version                         Show version
  shoel help                            Show this help

Common Flags:
  --config string    Config file path (default: /usr/local/etc/shoel/config.yaml, or ./config.yaml)
  --server string    Server URL (default: http://localhost:8080). Use --server "" to work on local storage directly.
  --output string    Output format: text or json (default: text)

Server Flags:
  --debug            Enable debug logging

Ingest Flags:
  --meta key=value   Document metadata (repeatable)

Search / Chat Flags:
  --top-k int        Passages to retrieve (default from config)
  --no-sources       Omit cited sources (search)
  --session string   Continue a chat session

API keys are read from the environment variables named in the config
(GOOGLE_API_KEY and GROQ_API_KEY by default) or from a .env file.

Examples:
  shoel server
  shoel ingest --meta course=psychometry ./guides
  shoel search "מתי נסגרת ההרשמה למבחן?"
  shoel chat
  shoel status --output json
  shoel watch add ~/inbox`)
}
