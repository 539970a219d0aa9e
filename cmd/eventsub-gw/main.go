package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"gopkg.in/yaml.v3"

	"github.com/mmattdonk/solrock-eventsub/internal/api"
	"github.com/mmattdonk/solrock-eventsub/internal/config"
	"github.com/mmattdonk/solrock-eventsub/internal/dispatch"
	"github.com/mmattdonk/solrock-eventsub/internal/events"
	"github.com/mmattdonk/solrock-eventsub/internal/helix"
	"github.com/mmattdonk/solrock-eventsub/internal/ledger"
	"github.com/mmattdonk/solrock-eventsub/internal/log"
	"github.com/mmattdonk/solrock-eventsub/internal/metrics"
	"github.com/mmattdonk/solrock-eventsub/internal/sink"
	"github.com/mmattdonk/solrock-eventsub/internal/streamer"
	"github.com/mmattdonk/solrock-eventsub/internal/tui/watch"
	"github.com/mmattdonk/solrock-eventsub/internal/webhook"
)

var (
	version   = "0.1.0-dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	os.Exit(runCLI(os.Args[1:]))
}

func runCLI(cliArgs []string) int {
	if len(cliArgs) < 1 {
		printUsage()
		return 1
	}

	cmd := cliArgs[0]
	args := cliArgs[1:]

	switch cmd {
	// --- NOUNS ---
	case "system":
		return runSystemNoun(args)
	case "config":
		return runConfigNoun(args)

	// --- ROOT ALIASES ---
	case "start":
		if hasHelpFlag(args) {
			printSystemStartHelp()
			return 0
		}
		return runStart(args)
	case "watch":
		if hasHelpFlag(args) {
			printSystemWatchHelp()
			return 0
		}
		return runWatch(args)
	case "version", "--version":
		return runVersion(args)
	case "help", "--help", "-h":
		printUsage()
		return 0

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		return 1
	}
}

// --- NOUN DISPATCHERS ---

func runSystemNoun(args []string) int {
	if len(args) < 1 {
		printSystemNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printSystemNounHelp(os.Stdout)
		return 0
	}

	action := args[0]
	actionArgs := args[1:]

	switch action {
	case "start":
		if hasHelpFlag(actionArgs) {
			printSystemStartHelp()
			return 0
		}
		return runStart(actionArgs)
	case "watch":
		if hasHelpFlag(actionArgs) {
			printSystemWatchHelp()
			return 0
		}
		return runWatch(actionArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown system action: %s\n", action)
		printSystemNounHelp(os.Stderr)
		return 1
	}
}

func runConfigNoun(args []string) int {
	if len(args) < 1 {
		printConfigNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printConfigNounHelp(os.Stdout)
		return 0
	}

	action := args[0]
	actionArgs := args[1:]

	switch action {
	case "check":
		return runConfigCheck(actionArgs)
	case "show":
		return runConfigShow(actionArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown config action: %s\n", action)
		printConfigNounHelp(os.Stderr)
		return 1
	}
}

// --- SYSTEM ---

func runStart(args []string) int {
	fs := flag.NewFlagSet("start", flag.ContinueOnError)
	configPath := fs.String("config", os.Getenv("CONFIG_FILE"), "Path to an optional YAML configuration file")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	log.Setup(cfg.Service.LogLevel)
	logger := log.WithComponent("main")
	logger.Info("eventsub-gw starting", "version", version, "config", cfg.SourceFile)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	deliveries, err := ledger.Open(ctx, cfg.Ledger)
	if err != nil {
		logger.Error("failed to open delivery ledger", "backend", cfg.Ledger.Backend, "error", err)
		return 1
	}
	var claims webhook.Ledger
	if deliveries != nil {
		defer deliveries.Close()
		claims = deliveries
		logger.Info("delivery ledger opened", "backend", cfg.Ledger.Backend, "ttl", cfg.Ledger.TTL)
	}

	httpClient := &http.Client{}
	disp := dispatch.New(
		dispatch.Config{
			LookupTimeout: cfg.Downstream.LookupTimeout,
			SinkTimeout:   cfg.Downstream.SinkTimeout,
		},
		streamer.NewClient(cfg.Downstream.APIURL, cfg.API.Secret, httpClient, m),
		sink.NewClient(cfg.Downstream.ProcessorURL, httpClient, m),
		log.WithComponent("dispatch"),
		m,
	)

	hub := events.NewHub(cfg.API.EventsBuffer)

	webhookConfig, err := webhook.FromGlobalConfig(cfg)
	if err != nil {
		logger.Error("failed to configure eventsub endpoint", "error", err)
		return 1
	}
	eventsub := webhook.New(webhookConfig, disp, claims, hub, m, log.WithComponent("webhook"))

	var registrar api.Registrar
	if cfg.RegistrationEnabled() {
		helixClient := helix.NewClient(
			cfg.Twitch.HelixURL,
			cfg.Twitch.ClientID,
			cfg.Twitch.AccessToken,
			&http.Client{Timeout: cfg.Twitch.Timeout},
			m,
		)
		registrar = helix.NewRegistrar(helixClient, cfg.EventSub.CallbackURL, cfg.EventSub.Secret, log.WithComponent("helix"))
		logger.Info("subscription registration enabled", "callback", cfg.EventSub.CallbackURL)
	} else {
		logger.Warn("subscription registration disabled; set CLIENT_ID, TWITCH_ACCESS_TOKEN and CALLBACK_URL to enable /newuser")
	}

	apiServer := api.New(api.Config{
		Listen:            fmt.Sprintf(":%d", cfg.Server.Port),
		APISecret:         cfg.API.Secret,
		LedgerBackend:     cfg.Ledger.Backend,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		ShutdownTimeout:   cfg.Server.ShutdownTimeout,
		RegistrationRate:  cfg.API.RegistrationRate,
		RegistrationBurst: cfg.API.RegistrationBurst,
		EventsKeepAlive:   cfg.API.EventsKeepAlive,
	}, eventsub, registrar, hub, reg, m, log.WithComponent("api"))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		if err := apiServer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- err
		}
		close(errCh)
	}()

	logger.Info("eventsub-gw running (press Ctrl+C to stop)", "port", cfg.Server.Port)

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
		// Wait for in-flight requests to drain.
		if err, ok := <-errCh; ok && err != nil {
			logger.Error("shutdown failed", "error", err)
			return 1
		}
	case err := <-errCh:
		logger.Error("server failed", "error", err)
		return 1
	}

	logger.Info("eventsub-gw stopped")
	return 0
}

func runWatch(args []string) int {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	apiURL := fs.String("api-url", "http://localhost:3000", "Gateway base URL")
	apiKey := fs.String("api-key", os.Getenv("API_SECRET"), "API bearer token (defaults to $API_SECRET)")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	if *apiKey == "" {
		fmt.Fprintln(os.Stderr, "Error: API key required. Use --api-key or the API_SECRET env var.")
		return 1
	}

	m := watch.New(strings.TrimRight(*apiURL, "/"), *apiKey)
	p := tea.NewProgram(m)
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "TUI error: %v\n", err)
		return 1
	}
	return 0
}

// --- CONFIG ---

func runConfigCheck(args []string) int {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	configPath := fs.String("config", os.Getenv("CONFIG_FILE"), "Path to an optional YAML configuration file")
	jsonOut := fs.Bool("json", false, "Output the result as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	_, err := config.Load(*configPath)
	if *jsonOut {
		result := struct {
			Valid bool   `json:"valid"`
			Error string `json:"error,omitempty"`
		}{Valid: err == nil}
		if err != nil {
			result.Error = err.Error()
		}
		data, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(data))
	} else if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration invalid: %v\n", err)
	} else {
		fmt.Println("Configuration valid.")
	}

	if err != nil {
		return 1
	}
	return 0
}

func runConfigShow(args []string) int {
	fs := flag.NewFlagSet("show", flag.ContinueOnError)
	configPath := fs.String("config", os.Getenv("CONFIG_FILE"), "Path to an optional YAML configuration file")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	out, err := yaml.Marshal(cfg.Redacted())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render config: %v\n", err)
		return 1
	}
	fmt.Print(string(out))
	return 0
}

// --- VERSION ---

type versionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

func runVersion(args []string) int {
	fs := flag.NewFlagSet("version", flag.ContinueOnError)
	jsonOut := fs.Bool("json", false, "Output version metadata as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if fs.NArg() > 0 {
		fmt.Fprintln(os.Stderr, "Usage: eventsub-gw version [--json]")
		return 1
	}

	info := currentVersionInfo()

	if *jsonOut {
		data, err := json.MarshalIndent(info, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render version JSON: %v\n", err)
			return 1
		}
		fmt.Println(string(data))
		return 0
	}

	fmt.Printf("eventsub-gw %s\n", info.Version)
	fmt.Printf("commit: %s\n", info.Commit)
	fmt.Printf("built_at: %s\n", info.BuildTime)
	return 0
}

func currentVersionInfo() versionInfo {
	info := versionInfo{
		Version:   strings.TrimSpace(version),
		Commit:    "unknown",
		BuildTime: "unknown",
	}
	if info.Version == "" {
		info.Version = "0.0.0-dev"
	}

	commit := strings.TrimSpace(gitCommit)
	if commit == "" || commit == "unknown" {
		commit = readBuildSetting("vcs.revision")
	}
	if commit != "" {
		info.Commit = shortenCommit(commit)
	}

	built := strings.TrimSpace(buildDate)
	if built == "" || built == "unknown" {
		built = readBuildSetting("vcs.time")
	}
	if t, err := time.Parse(time.RFC3339Nano, built); err == nil {
		info.BuildTime = t.UTC().Format(time.RFC3339)
	}

	return info
}

func shortenCommit(commit string) string {
	if len(commit) <= 12 {
		return commit
	}
	return commit[:12]
}

func readBuildSetting(key string) string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, setting := range info.Settings {
		if setting.Key == key {
			return strings.TrimSpace(setting.Value)
		}
	}
	return ""
}

// --- HELP ---

func isHelpToken(token string) bool {
	return token == "help" || token == "--help" || token == "-h"
}

func hasHelpFlag(args []string) bool {
	for _, arg := range args {
		if arg == "--help" || arg == "-h" {
			return true
		}
	}
	return false
}

func printUsage() {
	fmt.Print(`eventsub-gw - Twitch EventSub webhook gateway

Usage:
  eventsub-gw <noun> <action> [flags]

System Commands:
  system start      Start the gateway in the foreground
  system watch      Live activity TUI (reads /events and /healthz)

Config Commands:
  config check      Load and validate configuration
  config show       Print the effective configuration with secrets masked

Aliases:
  start             Same as 'system start'
  watch             Same as 'system watch'

General:
  version           Show version information
  help              Show this help message

Configuration is read from the environment (and a .env file if present),
optionally layered over a YAML file passed with --config or CONFIG_FILE.
`)
}

func printSystemNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: eventsub-gw system <action>")
	fmt.Fprintln(w, "Actions: start, watch")
}

func printConfigNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: eventsub-gw config <action> [flags]")
	fmt.Fprintln(w, "Actions: check, show")
}

func printSystemStartHelp() {
	fmt.Println("Usage: eventsub-gw system start [--config PATH]")
	fmt.Println()
	fmt.Println("Serves POST /eventsub, POST /newuser, GET /events, GET /healthz and GET /metrics")
	fmt.Println("on PORT (default 3000). EVENTSUB_SECRET and API_SECRET are required.")
}

func printSystemWatchHelp() {
	fmt.Println("Usage: eventsub-gw system watch [flags]")
	fmt.Println()
	fmt.Println("Live view of deliveries, per-broadcaster outcomes and gateway health.")
	fmt.Println()
	fmt.Println("Flags:")
	fmt.Println("  --api-url URL    Gateway base URL (default: http://localhost:3000)")
	fmt.Println("  --api-key KEY    API bearer token (default: $API_SECRET)")
}
