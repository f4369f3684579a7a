// Package main is the Alexandria CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/alexandria/internal/cli"
	"github.com/hyperjump/alexandria/internal/config"
	"github.com/hyperjump/alexandria/internal/models"
	"github.com/hyperjump/alexandria/internal/ranking"
	"github.com/hyperjump/alexandria/internal/server"
	"github.com/hyperjump/alexandria/internal/storage"
	"github.com/hyperjump/alexandria/internal/watcher"
	"github.com/hyperjump/alexandria/pkg/utils"
)

var version = "dev"

const (
	defaultConfigPath = "/usr/local/etc/alexandria/config.yaml"
	defaultServerURL  = "http://localhost:8080"
)

var httpClient = &http.Client{Timeout: 30 * time.Second}

// loadConfig loads config from path. When path is the default, it first looks for
// config.yaml in the current directory (for development); if that exists it is used.
// Returns the config and the path that was actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "list":
		runList()
	case "reorder":
		runReorder()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("alexandria version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.String("database_path", cfg.Storage.DatabasePath),
		zap.Bool("debug", debugMode),
	)
	if cfg.Server.APIKey == "" {
		logger.Warn("no api key configured; mutating routes will refuse every request",
			zap.String("env", config.EnvAdminKey))
	}

	components, err := initializeComponents(cfg)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	instanceLock, err := storage.AcquireInstanceLock(cfg.Storage.DatabasePath)
	if err != nil {
		logger.Fatal("Failed to lock database", zap.Error(err))
	}
	defer func() {
		if err := instanceLock.Release(); err != nil {
			logger.Warn("failed to release database lock", zap.Error(err))
		}
	}()

	srv := server.NewServer(components.Engine, components.Storage, &cfg.Server, logger)

	watchOpts := []watcher.WatcherOption{}
	if debugMode {
		watchOpts = append(watchOpts, watcher.WithLogger(logger))
	}
	watchSvc := watcher.NewWatcher(
		[]string{resolvedConfigPath},
		func(path string) { reloadAPIKey(path, srv, logger) },
		watchOpts...,
	)
	watchCtx, watchCancel := context.WithCancel(context.Background())
	defer watchCancel()
	if err := watchSvc.Start(watchCtx); err != nil {
		logger.Warn("config watcher disabled", zap.Error(err))
	}

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	watchCancel()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

// reloadAPIKey re-reads the config file and swaps in its api key. Other
// settings need a restart.
func reloadAPIKey(path string, srv *server.Server, logger *zap.Logger) {
	cfg, err := config.Load(path)
	if err != nil {
		logger.Warn("config reload failed", zap.String("path", path), zap.Error(err))
		return
	}
	srv.SetAPIKey(cfg.Server.APIKey)
	logger.Info("config reloaded", zap.String("path", path), zap.Bool("api_key_set", cfg.Server.APIKey != ""))
}

// argsReorder moves any flags (and their values) that appear after the positional
// arguments to the front of the slice so that flag.Parse() sees them. Go's flag
// package stops at the first non-flag argument. Negative numbers are positional
// (a reorder target may be below zero).
func argsReorder(args []string) []string {
	for i, a := range args {
		if isFlag(a) {
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

func isFlag(arg string) bool {
	if len(arg) < 2 || arg[0] != '-' {
		return false
	}
	_, err := strconv.ParseInt(arg, 10, 64)
	return err != nil
}

func runList() {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	serverURL := fs.String("server", defaultServerURL, "server URL")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(argsReorder(os.Args[2:]))

	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: alexandria list [flags] <book-id>")
		os.Exit(1)
	}
	book, err := uuid.Parse(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid book id %q: %v\n", fs.Arg(0), err)
		os.Exit(1)
	}

	list, err := listViaHTTP(*serverURL, book)
	if err != nil {
		fmt.Fprintf(os.Stderr, "List failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteFragmentList(os.Stdout, book, list, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func runReorder() {
	fs := flag.NewFlagSet("reorder", flag.ExitOnError)
	serverURL := fs.String("server", defaultServerURL, "server URL")
	key := fs.String("key", os.Getenv(config.EnvAdminKey), "admin api key (default from "+config.EnvAdminKey+")")
	_ = fs.Parse(argsReorder(os.Args[2:]))

	if fs.NArg() != 2 {
		fmt.Fprintln(os.Stderr, "Usage: alexandria reorder [flags] <fragment-id> <rank>")
		os.Exit(1)
	}
	id, to, err := parseReorderArgs(fs.Arg(0), fs.Arg(1))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	shifted, err := reorderViaHTTP(*serverURL, *key, id, to)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Reorder failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Moved %s to rank %d (%d other fragments shifted)\n", id, to, shifted)
}

func parseReorderArgs(idArg, rankArg string) (uuid.UUID, int32, error) {
	id, err := uuid.Parse(idArg)
	if err != nil {
		return uuid.Nil, 0, fmt.Errorf("invalid fragment id %q: %w", idArg, err)
	}
	rank, err := strconv.ParseInt(rankArg, 10, 32)
	if err != nil {
		return uuid.Nil, 0, fmt.Errorf("invalid rank %q: %w", rankArg, err)
	}
	return id, int32(rank), nil
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	serverURL := fs.String("server", defaultServerURL, "server URL")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	status, err := statusViaHTTP(*serverURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteStatus(os.Stdout, status, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func listViaHTTP(serverURL string, book uuid.UUID) ([]models.Simple, error) {
	resp, err := httpClient.Get(strings.TrimRight(serverURL, "/") + "/book/" + book.String() + "/fragments")
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if err := checkStatus(resp, http.StatusOK); err != nil {
		return nil, err
	}
	var list []models.Simple
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return list, nil
}

func reorderViaHTTP(serverURL, key string, id uuid.UUID, to int32) (int64, error) {
	body, err := json.Marshal(models.ReorderRequest{To: to})
	if err != nil {
		return 0, err
	}
	url := strings.TrimRight(serverURL, "/") + "/fragment/" + id.String() + "/reorder"
	req, err := http.NewRequest(http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(server.APIKeyHeader, key)
	resp, err := httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if err := checkStatus(resp, http.StatusOK); err != nil {
		return 0, err
	}
	var out struct {
		Shifted int64 `json:"shifted"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("decode response: %w", err)
	}
	return out.Shifted, nil
}

func statusViaHTTP(serverURL string) (*cli.Status, error) {
	resp, err := httpClient.Get(strings.TrimRight(serverURL, "/") + "/status")
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if err := checkStatus(resp, http.StatusOK); err != nil {
		return nil, err
	}
	var s cli.Status
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &s, nil
}

func checkStatus(resp *http.Response, want int) error {
	if resp.StatusCode == want {
		return nil
	}
	b, _ := io.ReadAll(resp.Body)
	return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
}

// Components holds the long-lived objects behind the server.
type Components struct {
	Storage *storage.SQLiteStorage
	Engine  *ranking.Engine
}

func (c *Components) Close() {
	if c.Storage != nil {
		_ = c.Storage.Close()
	}
}

func initializeComponents(cfg *config.Config) (*Components, error) {
	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath,
		storage.WithBusyRetries(cfg.Ranking.BusyRetries))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	engine := ranking.NewEngine(store, ranking.WithProjectionWorkers(cfg.Ranking.ProjectionWorkers))
	return &Components{
		Storage: store,
		Engine:  engine,
	}, nil
}

func printUsage() {
	fmt.Println(`alexandria - Ordered fragment catalog

Usage:
  alexandria server [flags]                       Start the HTTP server
  alexandria list [flags] <book-id>               List a book's fragments in rank order
  alexandria reorder [flags] <fragment-id> <rank> Move a fragment to a new rank
  alexandria status [flags]                       Show fragment counts and database size
  alexandria version                              Show version
  alexandria help                                 Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/alexandria/config.yaml)
  --debug            Enable debug logging

List / Status Flags:
  --server string    Server URL (default: http://localhost:8080)
  --output string    Output format: text or json (default: text)

Reorder Flags:
  --server string    Server URL (default: http://localhost:8080)
  --key string       Admin api key (default: $ALEXANDRIA_ADMIN_KEY)

Examples:
  alexandria server --debug
  alexandria list 3f1c9a52-6f0e-4a43-9b8e-0c6f6f0b7e21
  alexandria list --output json 3f1c9a52-6f0e-4a43-9b8e-0c6f6f0b7e21
  alexandria reorder 9d2b4e1a-1c3f-4f7e-8a6d-2b5e9c0d1f34 1
  alexandria status`)
}
