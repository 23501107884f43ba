package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/glabrego/canto-ng/internal/logging"
)

const (
	defaultDirName        = ".canto-ng"
	defaultConnectTimeout = 10 * time.Second
	defaultPingInterval   = time.Second
	defaultExitTimeout    = 5 * time.Second

	optionsFile = "curses.toml"
	socketName  = ".canto_socket"
	logName     = "curses-log"
)

// Config holds launch settings for the curses front-end. The live reader
// configuration is mirrored from the daemon and lives in internal/mirror.
type Config struct {
	Dir            string
	SocketPath     string
	LogPath        string
	LogLevel       string
	ConnectTimeout time.Duration
	PingInterval   time.Duration
	ExitTimeout    time.Duration
}

type fileOptions struct {
	Socket         string `toml:"socket"`
	LogLevel       string `toml:"log_level"`
	ConnectTimeout string `toml:"connect_timeout"`
	PingInterval   string `toml:"ping_interval"`
}

// Load resolves options from, in increasing precedence, defaults, the
// curses.toml file in the config dir, the environment, and args.
func Load(args []string, stderr io.Writer) (Config, error) {
	fs := flag.NewFlagSet("canto-curses", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var dir, socket, level string
	fs.StringVar(&dir, "D", "", "configuration directory")
	fs.StringVar(&dir, "dir", "", "configuration directory")
	fs.StringVar(&socket, "socket", "", "daemon socket path")
	fs.StringVar(&level, "log-level", "", "log level: debug, info, warn, error")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	cfg := Config{
		ConnectTimeout: defaultConnectTimeout,
		PingInterval:   defaultPingInterval,
		ExitTimeout:    defaultExitTimeout,
	}

	cfg.Dir = firstNonEmpty(dir, os.Getenv("CANTO_NG_DIR"))
	if cfg.Dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return Config{}, fmt.Errorf("resolve home directory: %w", err)
		}
		cfg.Dir = filepath.Join(home, defaultDirName)
	}
	cfg.Dir = expandHome(cfg.Dir)

	var file fileOptions
	if err := readTOML(filepath.Join(cfg.Dir, optionsFile), &file); err != nil {
		return Config{}, fmt.Errorf("read %s: %w", optionsFile, err)
	}
	if file.ConnectTimeout != "" {
		d, err := time.ParseDuration(file.ConnectTimeout)
		if err != nil {
			return Config{}, fmt.Errorf("connect_timeout: %w", err)
		}
		cfg.ConnectTimeout = d
	}
	if file.PingInterval != "" {
		d, err := time.ParseDuration(file.PingInterval)
		if err != nil {
			return Config{}, fmt.Errorf("ping_interval: %w", err)
		}
		cfg.PingInterval = d
	}

	cfg.SocketPath = expandHome(firstNonEmpty(socket, file.Socket))
	if cfg.SocketPath == "" {
		cfg.SocketPath = filepath.Join(cfg.Dir, socketName)
	}
	cfg.LogLevel = firstNonEmpty(level, os.Getenv("CANTO_NG_LOG_LEVEL"), file.LogLevel, "info")
	cfg.LogPath = filepath.Join(cfg.Dir, logName)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Dir) == "" {
		return errors.New("configuration directory is required")
	}
	if c.SocketPath == "" {
		return errors.New("socket path is required")
	}
	if !logging.ValidLevel(c.LogLevel) {
		return fmt.Errorf("log level must be debug, info, warn or error: %s", c.LogLevel)
	}
	if c.ConnectTimeout <= 0 {
		return fmt.Errorf("connect timeout must be positive: %s", c.ConnectTimeout)
	}
	if c.PingInterval <= 0 {
		return fmt.Errorf("ping interval must be positive: %s", c.PingInterval)
	}
	return nil
}

// EnsureDir creates the configuration directory if it is missing.
func (c Config) EnsureDir() error {
	info, err := os.Stat(c.Dir)
	if err == nil {
		if !info.IsDir() {
			return fmt.Errorf("%s is not a directory", c.Dir)
		}
		return nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat %s: %w", c.Dir, err)
	}
	if err := os.MkdirAll(c.Dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", c.Dir, err)
	}
	return nil
}

func readTOML(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil
	}
	return toml.Unmarshal(data, out)
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
