package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// WorkspaceDirName is the directory name for project-level config.
	WorkspaceDirName = ".reviewharvest"
	// WorkspaceConfigFile is the config file name inside the workspace directory.
	WorkspaceConfigFile = "config.yaml"
	// MaxSearchDepth limits how many parent directories to walk when discovering a workspace.
	MaxSearchDepth = 10
)

// Environment variables that override the llm section.
const (
	EnvLLMAPIURL = "LLM_API_URL"
	EnvLLMAPIKey = "LLM_API_KEY"
	EnvLLMModel  = "LLM_MODEL"
)

// WorkspaceOptions controls workspace discovery behavior.
type WorkspaceOptions struct {
	// Disable skips workspace discovery entirely (--no-workspace flag).
	Disable bool
	// ExplicitDir uses this directory as workspace root instead of walking up (--workspace-dir flag).
	ExplicitDir string
}

// Config captures all tunable settings for the review harvester and the
// bundled tool server.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Tool      ToolConfig      `yaml:"tool"`
	LLM       LLMConfig       `yaml:"llm"`
	Workflow  WorkflowConfig  `yaml:"workflow"`
	Artifacts ArtifactsConfig `yaml:"artifacts"`
	Browser   BrowserConfig   `yaml:"browser"`
}

type ServerConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
	LogFile string `yaml:"log_file"`
}

// ToolConfig describes how to launch and talk to the automation tool.
type ToolConfig struct {
	// Command and Args launch the tool as an MCP stdio server.
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
	// Extra environment for the tool process (KEY=VALUE entries).
	Env []string `yaml:"env"`
	// Capability names the workflow invokes on the tool.
	Capabilities CapabilitiesConfig `yaml:"capabilities"`
	// Handshake timeout; a handshake outliving it is logged, not aborted.
	HandshakeTimeout string `yaml:"handshake_timeout"`
	// Capability-listing timeout; expiry falls back to assumed names.
	ListTimeout     string `yaml:"list_timeout"`
	CloseTimeout    string `yaml:"close_timeout"`
	NavigateTimeout string `yaml:"navigate_timeout"`
	ClickTimeout    string `yaml:"click_timeout"`
	SnapshotTimeout string `yaml:"snapshot_timeout"`
}

// CapabilitiesConfig names the tool operations the workflow depends on.
type CapabilitiesConfig struct {
	Navigate string `yaml:"navigate"`
	Click    string `yaml:"click"`
	Snapshot string `yaml:"snapshot"`
}

// LLMConfig configures the completion service endpoint. Each field can be
// overridden by its environment variable (LLM_API_URL, LLM_API_KEY,
// LLM_MODEL).
type LLMConfig struct {
	APIURL string `yaml:"api_url"`
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

// WorkflowConfig tunes the review-harvest workflow itself.
type WorkflowConfig struct {
	SortLabel       string `yaml:"sort_label"`
	SortOptionLabel string `yaml:"sort_option_label"`
	LoadMoreLabel   string `yaml:"load_more_label"`
	// ChunkSize is the snapshot chunk size in characters.
	ChunkSize        int `yaml:"chunk_size"`
	DiscoveryOverlap int `yaml:"discovery_overlap"`
	// ExtractionOverlap re-reads this many characters across chunk
	// boundaries so reviews straddling one are not lost.
	ExtractionOverlap int `yaml:"extraction_overlap"`
	// ChunkPacing is slept between completion calls to respect rate limits.
	ChunkPacing       string `yaml:"chunk_pacing"`
	AnalysisChunkSize int    `yaml:"analysis_chunk_size"`
	AnalysisOverlap   int    `yaml:"analysis_overlap"`
	MaxLoadMoreClicks int    `yaml:"max_load_more_clicks"`
	// SettleDelay is the wait after a pagination click before snapshotting.
	SettleDelay string `yaml:"settle_delay"`
}

// ArtifactsConfig controls best-effort persistence of intermediate results.
type ArtifactsConfig struct {
	Enabled *bool  `yaml:"enabled"`
	Dir     string `yaml:"dir"`
}

// BrowserConfig configures the bundled tool server's Chrome instance.
type BrowserConfig struct {
	// Control endpoint for an already-running Chrome (e.g., ws://localhost:9222).
	DebuggerURL string `yaml:"debugger_url"`
	// Optional launch command (binary plus flags) to start Chrome; when both
	// this and DebuggerURL are empty, the default launcher is used.
	Launch            []string `yaml:"launch"`
	Headless          *bool    `yaml:"headless"`
	NavigationTimeout string   `yaml:"navigation_timeout"`
	ViewportWidth     int      `yaml:"viewport_width"`
	ViewportHeight    int      `yaml:"viewport_height"`
}

// DefaultConfig provides reasonable defaults for local use.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Name:    "reviewharvest",
			Version: "0.1.0",
			LogFile: "reviewharvest.log",
		},
		Tool: ToolConfig{
			Command: "npx",
			Args:    []string{"@playwright/mcp@latest", "--headless", "--viewport-size=1720,920"},
			Capabilities: CapabilitiesConfig{
				Navigate: "browser_navigate",
				Click:    "browser_click",
				Snapshot: "browser_snapshot",
			},
			HandshakeTimeout: "30s",
			ListTimeout:      "10s",
			CloseTimeout:     "5s",
			NavigateTimeout:  "15s",
			ClickTimeout:     "30s",
			SnapshotTimeout:  "120s",
		},
		Workflow: WorkflowConfig{
			SortLabel:         "Sort by",
			SortOptionLabel:   "Lowest to highest rating",
			LoadMoreLabel:     "Load more",
			ChunkSize:         12000,
			DiscoveryOverlap:  0,
			ExtractionOverlap: 400,
			ChunkPacing:       "10s",
			AnalysisChunkSize: 30,
			AnalysisOverlap:   5,
			MaxLoadMoreClicks: 10,
			SettleDelay:       "5s",
		},
		Artifacts: ArtifactsConfig{
			Dir: "data/runs",
		},
		Browser: BrowserConfig{
			NavigationTimeout: "15s",
			ViewportWidth:     1720,
			ViewportHeight:    920,
		},
	}
}

// Load reads YAML config from disk and overlays defaults.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		return cfg, errors.New("config path is required")
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}

	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, err
	}

	return cfg, cfg.Validate()
}

// DiscoverWorkspace walks up from startDir looking for a .reviewharvest/config.yaml file.
// Returns the workspace root directory (parent of .reviewharvest/) or empty string if not found.
func DiscoverWorkspace(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("resolving start directory: %w", err)
	}

	for i := 0; i < MaxSearchDepth; i++ {
		candidate := filepath.Join(dir, WorkspaceDirName, WorkspaceConfigFile)
		if _, err := os.Stat(candidate); err == nil {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached filesystem root
			break
		}
		dir = parent
	}

	return "", nil
}

// LoadWithWorkspace implements multi-layer config merge:
//
//	DefaultConfig() <- .reviewharvest/config.yaml <- explicit --config <- env vars
//
// Returns the merged config and the workspace directory (empty if none found).
func LoadWithWorkspace(explicitConfig string, opts WorkspaceOptions) (Config, string, error) {
	cfg := DefaultConfig()
	wsDir := ""

	// Layer 1: Workspace config (if not disabled)
	if !opts.Disable {
		var err error
		if opts.ExplicitDir != "" {
			// Verify the explicit workspace dir has a config
			candidate := filepath.Join(opts.ExplicitDir, WorkspaceDirName, WorkspaceConfigFile)
			if _, statErr := os.Stat(candidate); statErr == nil {
				wsDir = opts.ExplicitDir
			}
		} else {
			cwd, cwdErr := os.Getwd()
			if cwdErr != nil {
				return cfg, "", fmt.Errorf("getting working directory: %w", cwdErr)
			}
			wsDir, err = DiscoverWorkspace(cwd)
			if err != nil {
				return cfg, "", fmt.Errorf("discovering workspace: %w", err)
			}
		}

		if wsDir != "" {
			wsConfigPath := filepath.Join(wsDir, WorkspaceDirName, WorkspaceConfigFile)
			raw, err := os.ReadFile(wsConfigPath)
			if err != nil {
				return cfg, "", fmt.Errorf("reading workspace config %s: %w", wsConfigPath, err)
			}
			if err := yaml.Unmarshal(raw, &cfg); err != nil {
				return cfg, "", fmt.Errorf("parsing workspace config %s: %w", wsConfigPath, err)
			}
			cfg = resolveWorkspacePaths(cfg, wsDir)
		}
	}

	// Layer 2: Explicit config file (--config flag)
	if explicitConfig != "" {
		raw, err := os.ReadFile(explicitConfig)
		if err != nil {
			return cfg, wsDir, fmt.Errorf("reading explicit config %s: %w", explicitConfig, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, wsDir, fmt.Errorf("parsing explicit config %s: %w", explicitConfig, err)
		}
	}

	// Layer 3: Environment overrides for the completion service
	cfg.LLM = cfg.LLM.WithEnv()

	return cfg, wsDir, cfg.Validate()
}

// InitWorkspace creates a .reviewharvest/ directory with template files at root.
func InitWorkspace(root string) error {
	wsDir := filepath.Join(root, WorkspaceDirName)

	// Check if already exists
	if _, err := os.Stat(wsDir); err == nil {
		return fmt.Errorf("workspace directory already exists: %s", wsDir)
	}

	// Create directory structure
	dirs := []string{
		wsDir,
		filepath.Join(wsDir, "data"),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0755); err != nil {
			return fmt.Errorf("creating directory %s: %w", d, err)
		}
	}

	// Write template config
	templateConfig := `# reviewharvest project-level configuration
# Values here override defaults but are overridden by --config and env vars.

# llm:
#   api_url: "https://api.example.com/v1"
#   model: "gpt-4o-mini"

# workflow:
#   max_load_more_clicks: 10
#   chunk_pacing: "10s"

# tool:
#   command: "npx"
#   args: ["@playwright/mcp@latest", "--headless", "--viewport-size=1720,920"]

# artifacts:
#   dir: ".reviewharvest/data/runs"
`
	configPath := filepath.Join(wsDir, WorkspaceConfigFile)
	if err := os.WriteFile(configPath, []byte(templateConfig), 0644); err != nil {
		return fmt.Errorf("writing config template: %w", err)
	}

	// Write .gitignore for data directory
	gitignoreContent := "# Runtime data (logs, run artifacts) - do not version control\ndata/\n"
	gitignorePath := filepath.Join(wsDir, ".gitignore")
	if err := os.WriteFile(gitignorePath, []byte(gitignoreContent), 0644); err != nil {
		return fmt.Errorf("writing .gitignore: %w", err)
	}

	return nil
}

// resolveWorkspacePaths resolves relative paths in the config against the workspace directory.
func resolveWorkspacePaths(cfg Config, wsDir string) Config {
	resolve := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(wsDir, p)
	}

	cfg.Server.LogFile = resolve(cfg.Server.LogFile)
	cfg.Artifacts.Dir = resolve(cfg.Artifacts.Dir)
	return cfg
}

// WithEnv returns the config with environment overrides applied.
func (l LLMConfig) WithEnv() LLMConfig {
	if v := os.Getenv(EnvLLMAPIURL); v != "" {
		l.APIURL = v
	}
	if v := os.Getenv(EnvLLMAPIKey); v != "" {
		l.APIKey = v
	}
	if v := os.Getenv(EnvLLMModel); v != "" {
		l.Model = v
	}
	return l
}

// Validate checks the fields the completion service cannot run without.
func (l LLMConfig) Validate() error {
	if l.APIURL == "" || l.APIKey == "" || l.Model == "" {
		return fmt.Errorf("llm.api_url, llm.api_key and llm.model are required (or set %s, %s, %s)",
			EnvLLMAPIURL, EnvLLMAPIKey, EnvLLMModel)
	}
	return nil
}

// Validate ensures required fields exist so both binaries can start
// deterministically. The llm section is validated separately, since the
// bundled tool server runs without it.
func (c *Config) Validate() error {
	if c.Server.Name == "" {
		return errors.New("server.name is required")
	}
	if c.Tool.Command == "" {
		return errors.New("tool.command is required")
	}
	if c.Tool.Capabilities.Navigate == "" || c.Tool.Capabilities.Click == "" || c.Tool.Capabilities.Snapshot == "" {
		return errors.New("tool.capabilities.navigate, .click and .snapshot are required")
	}
	if c.Workflow.ChunkSize <= 0 {
		return errors.New("workflow.chunk_size must be positive")
	}
	if c.Workflow.DiscoveryOverlap < 0 || c.Workflow.DiscoveryOverlap >= c.Workflow.ChunkSize {
		return errors.New("workflow.discovery_overlap must be smaller than workflow.chunk_size")
	}
	if c.Workflow.ExtractionOverlap < 0 || c.Workflow.ExtractionOverlap >= c.Workflow.ChunkSize {
		return errors.New("workflow.extraction_overlap must be smaller than workflow.chunk_size")
	}
	if c.Workflow.AnalysisOverlap < 0 || c.Workflow.AnalysisOverlap >= c.Workflow.AnalysisChunkSize {
		return errors.New("workflow.analysis_overlap must be smaller than workflow.analysis_chunk_size")
	}
	if c.Workflow.MaxLoadMoreClicks < 0 {
		return errors.New("workflow.max_load_more_clicks must not be negative")
	}
	return nil
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

// GetHandshakeTimeout returns the parsed handshake timeout with a sane default.
func (t ToolConfig) GetHandshakeTimeout() time.Duration {
	return parseDuration(t.HandshakeTimeout, 30*time.Second)
}

// GetListTimeout returns the parsed capability-listing timeout with a sane default.
func (t ToolConfig) GetListTimeout() time.Duration {
	return parseDuration(t.ListTimeout, 10*time.Second)
}

// GetCloseTimeout returns the parsed close timeout with a sane default.
func (t ToolConfig) GetCloseTimeout() time.Duration {
	return parseDuration(t.CloseTimeout, 5*time.Second)
}

// GetNavigateTimeout returns the parsed navigation timeout with a sane default.
func (t ToolConfig) GetNavigateTimeout() time.Duration {
	return parseDuration(t.NavigateTimeout, 15*time.Second)
}

// GetClickTimeout returns the parsed click timeout with a sane default.
func (t ToolConfig) GetClickTimeout() time.Duration {
	return parseDuration(t.ClickTimeout, 30*time.Second)
}

// GetSnapshotTimeout returns the parsed snapshot timeout with a sane default.
func (t ToolConfig) GetSnapshotTimeout() time.Duration {
	return parseDuration(t.SnapshotTimeout, 120*time.Second)
}

// GetChunkPacing returns the parsed inter-chunk pacing with a sane default.
func (w WorkflowConfig) GetChunkPacing() time.Duration {
	return parseDuration(w.ChunkPacing, 10*time.Second)
}

// GetSettleDelay returns the parsed post-click settle delay with a sane default.
func (w WorkflowConfig) GetSettleDelay() time.Duration {
	return parseDuration(w.SettleDelay, 5*time.Second)
}

// IsEnabled returns whether artifact persistence is on (default: true).
func (a ArtifactsConfig) IsEnabled() bool {
	if a.Enabled == nil {
		return true
	}
	return *a.Enabled
}

// GetNavigationTimeout returns the parsed navigation timeout with a sane default.
func (b BrowserConfig) GetNavigationTimeout() time.Duration {
	return parseDuration(b.NavigationTimeout, 15*time.Second)
}

// IsHeadless returns whether Chrome should run in headless mode (default: true).
func (b BrowserConfig) IsHeadless() bool {
	if b.Headless == nil {
		return true // default to headless
	}
	return *b.Headless
}

// GetViewportWidth returns the viewport width with a sane default.
func (b BrowserConfig) GetViewportWidth() int {
	if b.ViewportWidth <= 0 {
		return 1720
	}
	return b.ViewportWidth
}

// GetViewportHeight returns the viewport height with a sane default.
func (b BrowserConfig) GetViewportHeight() int {
	if b.ViewportHeight <= 0 {
		return 920
	}
	return b.ViewportHeight
}
