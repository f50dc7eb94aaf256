package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"reviewharvest/internal/artifacts"
	"reviewharvest/internal/config"
	"reviewharvest/internal/llm"
	"reviewharvest/internal/orchestrator"
	"reviewharvest/internal/session"
)

func main() {
	configPath := flag.String("config", "", "Path to a reviewharvest config file (optional)")
	noWorkspace := flag.Bool("no-workspace", false, "Skip .reviewharvest workspace discovery")
	initWorkspace := flag.Bool("init", false, "Create a .reviewharvest workspace in the current directory and exit")
	flag.Parse()

	if *initWorkspace {
		cwd, err := os.Getwd()
		if err != nil {
			log.Fatalf("failed to get working directory: %v", err)
		}
		if err := config.InitWorkspace(cwd); err != nil {
			log.Fatalf("failed to init workspace: %v", err)
		}
		fmt.Printf("created %s/%s\n", config.WorkspaceDirName, config.WorkspaceConfigFile)
		return
	}

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: reviewharvest [flags] <reviews-page-url>")
		flag.PrintDefaults()
		os.Exit(2)
	}
	url := flag.Arg(0)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, wsDir, err := config.LoadWithWorkspace(*configPath, config.WorkspaceOptions{Disable: *noWorkspace})
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if wsDir != "" {
		log.Printf("using workspace at %s", wsDir)
	}

	if err := cfg.LLM.Validate(); err != nil {
		log.Fatalf("completion service not configured: %v", err)
	}

	completer, err := llm.NewClient(cfg.LLM.APIURL, cfg.LLM.APIKey, cfg.LLM.Model)
	if err != nil {
		log.Fatalf("failed to build completion client: %v", err)
	}

	sess := session.NewManager(session.Config{
		ClientName:    cfg.Server.Name,
		ClientVersion: cfg.Server.Version,
		RequestedCapabilities: []string{
			cfg.Tool.Capabilities.Navigate,
			cfg.Tool.Capabilities.Click,
			cfg.Tool.Capabilities.Snapshot,
		},
		HandshakeTimeout: cfg.Tool.GetHandshakeTimeout(),
		ListTimeout:      cfg.Tool.GetListTimeout(),
		CloseTimeout:     cfg.Tool.GetCloseTimeout(),
	}, session.StdioFactory(cfg.Tool.Command, cfg.Tool.Env, cfg.Tool.Args...))

	var store *artifacts.Store
	if cfg.Artifacts.IsEnabled() {
		store, err = artifacts.NewStore(cfg.Artifacts.Dir, sess.ID())
		if err != nil {
			log.Printf("artifact store unavailable (%v); continuing without artifacts", err)
		}
	}

	orc := orchestrator.New(orchestrator.FromConfig(cfg), sess, completer, store)

	result, err := orc.Run(ctx, url)
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("workflow failed: %v", err)
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		log.Fatalf("failed to encode result: %v", err)
	}
	fmt.Println(string(out))
}
