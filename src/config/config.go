package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DefaultTunnelBin          = "ngrok"
	DefaultTunnelAPI          = "http://localhost:4040"
	DefaultTunnelGrace        = 2 * time.Second
	DefaultTunnelPollInterval = 1 * time.Second
	DefaultTunnelTimeout      = 60 * time.Second
	DefaultStopTimeout        = 10 * time.Second
	DefaultBindAddr           = "0.0.0.0"

	// EnvFileVar points at an alternative .env file when none sits next to
	// the executable or in the working directory.
	EnvFileVar = "QSYNC_ENV_FILE"
)

// Display backends accepted by QSYNC_DISPLAY.
const (
	DisplayAuto     = "auto"
	DisplayWindow   = "window"
	DisplayTerminal = "terminal"
	DisplayNone     = "none"
)

type LoadOptions struct {
	// EnvFile overrides .env discovery (highest precedence).
	EnvFile string
	// ShareDirOverride replaces QSYNC_SHARE_DIR, e.g. from --dir.
	ShareDirOverride string
}

type Config struct {
	TunnelBin           string
	TunnelAPI           string
	TunnelGrace         time.Duration
	TunnelPollInterval  time.Duration
	// TunnelTimeout bounds the wait for a public URL. Zero waits forever.
	TunnelTimeout       time.Duration
	NgrokAuthToken      string
	ExitOnTunnelFailure bool
	BindAddr            string
	ShareDir            string
	Display             string
	CopyURL             bool
	StopTimeout         time.Duration
	EnableFileLogging   bool
}

func Load() (*Config, error) {
	return LoadWithOptions(LoadOptions{})
}

func LoadWithOptions(opts LoadOptions) (*Config, error) {
	// .env values never override variables already set in the environment.
	if envPath := resolveEnvPath(opts); envPath != "" {
		if err := godotenv.Load(envPath); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", envPath, err)
		}
	}

	cfg := &Config{
		TunnelBin:           getEnvWithDefault("QSYNC_TUNNEL_BIN", DefaultTunnelBin),
		TunnelAPI:           strings.TrimRight(getEnvWithDefault("QSYNC_TUNNEL_API", DefaultTunnelAPI), "/"),
		NgrokAuthToken:      strings.TrimSpace(os.Getenv("QSYNC_NGROK_AUTHTOKEN")),
		ExitOnTunnelFailure: envBool("QSYNC_EXIT_ON_TUNNEL_FAILURE"),
		BindAddr:            getEnvWithDefault("QSYNC_BIND_ADDR", DefaultBindAddr),
		ShareDir:            getEnvWithDefault("QSYNC_SHARE_DIR", "."),
		CopyURL:             envBool("QSYNC_COPY_URL"),
		EnableFileLogging:   envBool("ENABLE_FILE_LOGGING"),
	}
	if override := strings.TrimSpace(opts.ShareDirOverride); override != "" {
		cfg.ShareDir = override
	}

	var err error
	if cfg.TunnelGrace, err = envDuration("QSYNC_TUNNEL_GRACE", DefaultTunnelGrace); err != nil {
		return nil, err
	}
	if cfg.TunnelPollInterval, err = envDuration("QSYNC_TUNNEL_POLL_INTERVAL", DefaultTunnelPollInterval); err != nil {
		return nil, err
	}
	if cfg.TunnelPollInterval <= 0 {
		return nil, fmt.Errorf("QSYNC_TUNNEL_POLL_INTERVAL must be positive")
	}
	if cfg.TunnelTimeout, err = envDuration("QSYNC_TUNNEL_TIMEOUT", DefaultTunnelTimeout); err != nil {
		return nil, err
	}
	if cfg.StopTimeout, err = envDuration("QSYNC_STOP_TIMEOUT", DefaultStopTimeout); err != nil {
		return nil, err
	}

	cfg.Display, err = resolveDisplay(os.Getenv("QSYNC_DISPLAY"))
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

// resolveEnvPath picks the first existing .env in priority order:
// explicit option, QSYNC_ENV_FILE, working directory, executable directory.
func resolveEnvPath(opts LoadOptions) string {
	candidates := []string{opts.EnvFile, os.Getenv(EnvFileVar), ".env"}
	if execPath, err := os.Executable(); err == nil {
		candidates = append(candidates, filepath.Join(filepath.Dir(execPath), ".env"))
	}
	for _, p := range candidates {
		if p == "" {
			continue
		}
		if st, err := os.Stat(p); err == nil && !st.IsDir() {
			return p
		}
	}
	return ""
}

func resolveDisplay(value string) (string, error) {
	switch v := strings.ToLower(strings.TrimSpace(value)); v {
	case "":
		return DisplayAuto, nil
	case DisplayAuto, DisplayWindow, DisplayTerminal, DisplayNone:
		return v, nil
	default:
		return "", fmt.Errorf("QSYNC_DISPLAY: unknown display %q (want auto, window, terminal or none)", value)
	}
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: negative duration %s", key, v)
	}
	return d, nil
}

func envBool(key string) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

func getEnvWithDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}
