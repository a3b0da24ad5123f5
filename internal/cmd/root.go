// Package cmd provides the command-line interface for Offliner.
// It handles command parsing, configuration loading, and mirror execution.
package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/masahif/offliner/internal/config"
	"github.com/masahif/offliner/internal/crawler"
	"github.com/masahif/offliner/internal/fetcher/headless"
	"github.com/masahif/offliner/internal/logging"
	"github.com/masahif/offliner/internal/storage"
)

const (
	appName   = "offliner"
	envPrefix = "OFFLINER"
)

var (
	version   string
	buildTime string
)

// confirmRun asks the user to go ahead; replaced in tests
var confirmRun = promptConfirm

// rootCmd represents the base command when called without any subcommands
var rootCmd = newRootCmd()

// Execute runs the root command with ctx
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

// SetVersionInfo sets version information for the CLI
func SetVersionInfo(v, bt string) {
	version = v
	buildTime = bt
	rootCmd.Version = fmt.Sprintf("%s (built %s)", version, buildTime)
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "offliner [URL]",
		Short: "Mirror a website for offline browsing",
		Long: `Offliner downloads a web page, and optionally the pages it links to on the
same host, rewriting links and static resources so the copy can be browsed
offline.

Pages are written to <output-dir>/<host>/ and every distinct image,
stylesheet and script is saved once under <output-dir>/<host>/static/.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return initConfig(v, cfgFile, cmd.ErrOrStderr())
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMirror(cmd, v, args)
		},
	}

	defaults := config.DefaultConfig()

	// Configuration file flag
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./offliner.yml, then $XDG_CONFIG_HOME/offliner/offliner.yml)")

	// Configuration management flags
	cmd.Flags().Bool("show-config", false, "Display current configuration in YAML format and exit")

	// Target and output
	cmd.Flags().StringP("target", "t", "", "URL of the page to mirror (alternative to the positional argument)")
	cmd.Flags().StringP("output-dir", "o", "", "Directory the mirror is created in")

	// Traversal
	cmd.Flags().IntP("depth", "d", defaults.Depth, "Link layers to follow from the target page")
	cmd.Flags().Bool("just-this", false, "Only download the target page (same as --depth 0)")

	// Fetching
	cmd.Flags().BoolP("use-browser", "b", false, "Render pages with headless Chrome")
	cmd.Flags().Duration("timeout", defaults.RequestTimeout, "HTTP request timeout")
	cmd.Flags().Duration("nav-timeout", defaults.NavigationTimeout, "Browser navigation timeout")
	cmd.Flags().String("chrome-path", "", "Chrome binary used with --use-browser (default: found on PATH)")
	cmd.Flags().StringP("user-agent", "u", "", "HTTP User-Agent header (default Offliner/<version>)")
	cmd.Flags().StringArrayP("header", "H", []string{}, "Custom HTTP headers in 'Name: Value' format (use multiple times for multiple headers)")
	cmd.Flags().StringSlice("resource-rule", defaults.ResourceRules, "tag/attr pairs whose targets are saved as static files")

	// Run behaviour
	cmd.Flags().BoolP("yes", "y", false, "Do not ask for confirmation")
	cmd.Flags().Bool("resume", false, "Continue into an existing target directory, reusing saved static files")
	cmd.Flags().String("manifest", "", "Record the run in this SQLite database")

	// Logging
	cmd.Flags().String("log-level", defaults.Log.Level, "Log level: debug, info, warn or error")
	cmd.Flags().String("log-file", "", "Also write JSON logs to this file")

	v.SetDefault("log.max_size", defaults.Log.MaxSize)
	v.SetDefault("log.max_backups", defaults.Log.MaxBackups)

	if err := bindFlags(v, cmd.Flags()); err != nil {
		// Log the error but continue - non-critical for operation
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}

	return cmd
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	bindings := []struct {
		viperKey string
		flagName string
	}{
		{"target", "target"},
		{"output_dir", "output-dir"},
		{"depth", "depth"},
		{"just_this", "just-this"},
		{"use_browser", "use-browser"},
		{"request_timeout", "timeout"},
		{"navigation_timeout", "nav-timeout"},
		{"chrome_path", "chrome-path"},
		{"user_agent", "user-agent"},
		{"headers", "header"},
		{"resource_rules", "resource-rule"},
		{"assume_yes", "yes"},
		{"resume", "resume"},
		{"manifest_path", "manifest"},
		{"log.level", "log-level"},
		{"log.file", "log-file"},
	}

	for _, bind := range bindings {
		if err := v.BindPFlag(bind.viperKey, flags.Lookup(bind.flagName)); err != nil {
			return fmt.Errorf("failed to bind flag %s: %w", bind.flagName, err)
		}
	}
	return nil
}

// initConfig reads .env, the config file and environment variables.
func initConfig(v *viper.Viper, cfgFile string, stderr io.Writer) error {
	// .env never overrides variables already set in the environment
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to load .env: %w", err)
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath(filepath.Join(xdg.ConfigHome, appName))
		v.SetConfigType("yaml")
		v.SetConfigName(appName)
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); notFound && cfgFile == "" {
			return nil
		}
		return fmt.Errorf("failed to read config: %w", err)
	}
	fmt.Fprintf(stderr, "Using config file: %s\n", v.ConfigFileUsed())
	return nil
}

func generateUserAgent() string {
	if version != "" && version != "dev" {
		return fmt.Sprintf("Offliner/%s", version)
	}
	return "Offliner/dev"
}

// loadConfig layers flags, environment and config file over the defaults.
// A positional URL takes precedence over --target.
func loadConfig(v *viper.Viper, args []string) (*config.MirrorConfig, error) {
	cfg := config.DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if len(args) > 0 {
		cfg.TargetURL = args[0]
	}
	if strings.TrimSpace(cfg.UserAgent) == "" {
		cfg.UserAgent = generateUserAgent()
	}
	return cfg, nil
}

func showCurrentConfig(w io.Writer, cfg *config.MirrorConfig) error {
	if cfg == nil {
		return fmt.Errorf("configuration is nil")
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(w, "# Warning: configuration validation failed: %v\n", err)
	}

	yamlData, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal configuration to YAML: %w", err)
	}

	fmt.Fprintf(w, "# Current Offliner Configuration\n")
	fmt.Fprintf(w, "# Generated at: %s\n", time.Now().Format(time.RFC3339))
	fmt.Fprintf(w, "# Configuration file search paths: ./%s.yml, %s\n", appName, filepath.Join(xdg.ConfigHome, appName, appName+".yml"))
	fmt.Fprintf(w, "# Environment variables prefix: %s_\n\n", envPrefix)

	fmt.Fprint(w, string(yamlData))

	fmt.Fprintf(w, "\n# Configuration source priority:\n")
	fmt.Fprintf(w, "# 1. Command-line arguments (highest priority)\n")
	fmt.Fprintf(w, "# 2. Environment variables (%s_ prefix, .env supported)\n", envPrefix)
	fmt.Fprintf(w, "# 3. Configuration file (%s.yml)\n", appName)
	fmt.Fprintf(w, "# 4. Default values (lowest priority)\n")

	return nil
}

func runMirror(cmd *cobra.Command, v *viper.Viper, args []string) error {
	showConfig, _ := cmd.Flags().GetBool("show-config")

	cfg, err := loadConfig(v, args)
	if err != nil {
		return err
	}

	if showConfig {
		return showCurrentConfig(cmd.OutOrStdout(), cfg)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if err := logging.SetDefault(logging.Config{
		Level:      logging.ParseLevel(cfg.Log.Level),
		FilePath:   cfg.Log.File,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		Console:    true,
		Output:     cmd.ErrOrStderr(),
	}); err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}

	out := cmd.OutOrStdout()
	printPlan(out, cfg)

	if !cfg.AssumeYes {
		ok, err := confirmRun(cfg)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(out, "Aborted.")
			return nil
		}
	}

	mirror, cleanup, err := initializeCrawler(cfg, cmd.ErrOrStderr())
	if err != nil {
		return fmt.Errorf("failed to initialize crawler: %w", err)
	}
	defer cleanup()

	stats, err := mirror.Run(cmd.Context())
	if err != nil {
		return err
	}

	printSummary(out, stats)
	return nil
}

// initializeCrawler wires fetchers, manifest and progress display into a
// crawler. The returned cleanup releases all of them.
func initializeCrawler(cfg *config.MirrorConfig, progressOut io.Writer) (*crawler.DefaultCrawler, func(), error) {
	headers, err := cfg.ParsedHeaders()
	if err != nil {
		return nil, nil, err
	}

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	client := crawler.NewHTTPClient(cfg.UserAgent, cfg.RequestTimeout)
	client.SetCustomHeaders(headers)
	httpFetcher := crawler.NewHTTPFetcher(client, slog.Default())
	closers = append(closers, httpFetcher.Close)

	// static resources always go over plain HTTP
	var pages crawler.PageFetcher = httpFetcher
	if cfg.UseBrowser {
		browser, err := headless.NewChromedp(headless.Config{
			UserAgent:         cfg.UserAgent,
			NavigationTimeout: cfg.NavigationTimeout,
			Headers:           headers,
			ExecPath:          cfg.ChromePath,
		}, slog.Default())
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		closers = append(closers, browser.Close)
		pages = browser
	}

	opts := []crawler.Option{
		crawler.WithLogger(slog.Default()),
		crawler.WithProgress(newProgressBar(progressOut)),
	}

	if cfg.ManifestPath != "" {
		if manifest, err := openManifest(cfg.ManifestPath); err != nil {
			slog.Warn("Continuing without manifest", "path", cfg.ManifestPath, "error", err)
		} else {
			closers = append(closers, func() { _ = manifest.Close() })
			opts = append(opts, crawler.WithManifest(manifest))
		}
	}

	c, err := crawler.NewCrawler(cfg, pages, httpFetcher, opts...)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return c, cleanup, nil
}

func openManifest(path string) (*storage.SQLiteStorage, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("failed to create manifest directory: %w", err)
	}
	return storage.NewSQLiteStorage(path)
}
