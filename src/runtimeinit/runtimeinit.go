package runtimeinit

import (
	"fmt"
	"log"

	"qsync/src/clipboard"
	"qsync/src/config"
	"qsync/src/logutil"
)

type Options struct {
	LoadOptions config.LoadOptions
	// Debug mirrors logs to stderr.
	Debug bool
	// ClipboardInit defaults to clipboard.Init.
	ClipboardInit func() error
}

// Bootstrap loads the configuration, sets up logging and prepares the
// clipboard when the URL is to be copied. An unusable clipboard only turns
// copying off.
func Bootstrap(opts Options) (*config.Config, error) {
	cfg, err := config.LoadWithOptions(opts.LoadOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logutil.Setup(logutil.Options{EnableFileLogging: cfg.EnableFileLogging, Stderr: opts.Debug})

	if cfg.CopyURL {
		initClipboard := opts.ClipboardInit
		if initClipboard == nil {
			initClipboard = clipboard.Init
		}
		if err := initClipboard(); err != nil {
			log.Printf("Clipboard disabled: %v", err)
			cfg.CopyURL = false
		}
	}

	log.Printf("Config: tunnel=%s api=%s timeout=%v display=%s dir=%s",
		cfg.TunnelBin, cfg.TunnelAPI, cfg.TunnelTimeout, cfg.Display, cfg.ShareDir)
	return cfg, nil
}
