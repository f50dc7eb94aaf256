package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"reviewharvest/internal/browser"
	"reviewharvest/internal/config"
	"reviewharvest/internal/toolserver"
)

func main() {
	configPath := flag.String("config", "", "Path to a reviewharvest config file (optional)")
	noWorkspace := flag.Bool("no-workspace", false, "Skip .reviewharvest workspace discovery")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, _, err := config.LoadWithWorkspace(*configPath, config.WorkspaceOptions{Disable: *noWorkspace})
	if err != nil {
		// Before we can redirect logs, write to stderr as last resort
		log.Fatalf("failed to load config: %v", err)
	}

	// Redirect logging to file for stdio mode (stderr interferes with MCP protocol)
	if cfg.Server.LogFile != "" {
		logFile, err := os.OpenFile(cfg.Server.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err == nil {
			log.SetOutput(logFile)
			defer logFile.Close()
		} else {
			// If we can't open log file, disable logging to avoid stderr pollution
			log.SetOutput(io.Discard)
		}
	}

	driver := browser.NewDriver(cfg.Browser)
	if err := driver.Start(ctx); err != nil {
		log.Fatalf("failed to start browser: %v", err)
	}
	defer func() {
		if err := driver.Shutdown(context.Background()); err != nil {
			log.Printf("browser shutdown: %v", err)
		}
	}()

	server, err := toolserver.NewServer(cfg, driver)
	if err != nil {
		log.Fatalf("failed to initialize tool server: %v", err)
	}

	log.Printf("starting reviewharvest tool server (stdio)")
	if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("server exited with error: %v", err)
	}
}
