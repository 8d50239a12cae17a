// propd is the privileged property service: it owns the writable mapping of
// the property area, preloads property files, and applies set requests
// arriving over a unix socket. Every other process maps the area read-only
// and sends writes here.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/syspropkit/sysprop/internal/propmem"
	"github.com/syspropkit/sysprop/internal/propsvc"
)

var (
	// Version information (set via ldflags during build)
	Version = "dev"
)

// Config is the propd configuration file format.
type Config struct {
	// AreaPath is the property area file readers map.
	AreaPath string `yaml:"area_path"`

	// AreaSize is the area capacity in bytes when creating a new area.
	AreaSize int `yaml:"area_size"`

	// SocketPath is the unix socket for set requests.
	SocketPath string `yaml:"socket_path"`

	// PropFiles are key=value files preloaded into the area at startup,
	// in order.
	PropFiles []string `yaml:"prop_files"`

	// ReadOnlyPrefixes lists name prefixes the service refuses to modify
	// after startup (e.g. "ro.").
	ReadOnlyPrefixes []string `yaml:"read_only_prefixes"`

	LogLevel string `yaml:"log_level"`
	LogJSON  bool   `yaml:"log_json"`
}

func defaultConfig() Config {
	return Config{
		AreaPath:         "/run/propd/properties",
		AreaSize:         propmem.DefaultAreaSize,
		SocketPath:       "/run/propd/propd.sock",
		ReadOnlyPrefixes: []string{"ro."},
		LogLevel:         "info",
	}
}

func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, nil
}

func newLogger(cfg Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	if cfg.LogJSON {
		return zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()
	}
	return zerolog.New(zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}).Level(level).With().Timestamp().Logger()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "propd",
	Short:   "Shared-memory system property service",
	Long:    `propd owns the writer side of a shared-memory property area and serves set requests from unprivileged clients over a unix socket.`,
	Version: Version,
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		cfg, err := loadConfig(configPath)
		if err != nil {
			return err
		}
		if v, _ := cmd.Flags().GetString("area"); v != "" {
			cfg.AreaPath = v
		}
		if v, _ := cmd.Flags().GetString("socket"); v != "" {
			cfg.SocketPath = v
		}
		return run(cfg)
	},
}

func init() {
	rootCmd.Flags().String("config", "", "Path to the propd YAML config")
	rootCmd.Flags().String("area", "", "Property area file (overrides config)")
	rootCmd.Flags().String("socket", "", "Request socket path (overrides config)")
}

func run(cfg Config) error {
	log := newLogger(cfg)

	area, err := openOrCreateArea(cfg, log)
	if err != nil {
		return err
	}
	defer area.Close()

	for _, path := range cfg.PropFiles {
		if _, err := propsvc.LoadPropFile(area, path, log); err != nil {
			return err
		}
	}

	srv := propsvc.NewServer(area, propsvc.ServerConfig{
		SocketPath: cfg.SocketPath,
		Allow:      allowFunc(cfg.ReadOnlyPrefixes),
		Logger:     log.With().Str("component", "propsvc").Logger(),
	})
	if err := srv.Listen(); err != nil {
		return err
	}
	defer srv.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info().Str("area", cfg.AreaPath).Str("version", Version).Msg("propd started")
	if err := srv.Serve(ctx); err != nil && err != context.Canceled {
		return err
	}
	log.Info().Msg("propd shutting down")
	return nil
}

// openOrCreateArea re-attaches to an existing area or creates a fresh one.
func openOrCreateArea(cfg Config, log zerolog.Logger) (*propmem.Writable, error) {
	if _, err := os.Stat(cfg.AreaPath); err == nil {
		log.Info().Str("path", cfg.AreaPath).Msg("re-attaching to existing property area")
		return propmem.OpenWritableArea(cfg.AreaPath)
	}
	log.Info().Str("path", cfg.AreaPath).Int("size", cfg.AreaSize).Msg("creating property area")
	return propmem.CreateArea(cfg.AreaPath, uint64(cfg.AreaSize))
}

// allowFunc builds the write policy: names under a read-only prefix can
// only be populated by the prop-file preload, never over the socket.
func allowFunc(prefixes []string) propsvc.AllowFunc {
	if len(prefixes) == 0 {
		return nil
	}
	return func(name string) bool {
		for _, p := range prefixes {
			if strings.HasPrefix(name, p) {
				return false
			}
		}
		return true
	}
}
