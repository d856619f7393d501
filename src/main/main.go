package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"fyne.io/fyne/v2/app"
	"github.com/spf13/cobra"

	"qsync/src/clipboard"
	"qsync/src/config"
	"qsync/src/display"
	"qsync/src/fileserver"
	"qsync/src/logutil"
	"qsync/src/network"
	"qsync/src/runtimeinit"
	"qsync/src/share"
	"qsync/src/tunnel"
)

var version = "v1.1.0"

const appID = "io.github.qsync"

type mainOptions struct {
	local  uint16
	global uint16
	debug  bool
	dir    string
}

type startFunc func(cmd *cobra.Command, mode share.Mode, port uint16, opts mainOptions) error

func main() {
	if err := run(); err != nil {
		// The orchestrator already explained a busy port on stdout.
		if !errors.Is(err, share.ErrPortUnavailable) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

func run() error {
	opts := &mainOptions{}
	return newRootCmd(opts, startShare).Execute()
}

func newRootCmd(opts *mainOptions, start startFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "qsync",
		Short:         "Share a directory over HTTP on the LAN or through an ngrok tunnel",
		Version:       version,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, port := selectMode(cmd, *opts)
			if mode == share.ModeNone {
				fmt.Fprintln(cmd.OutOrStdout(), "Please specify either -l or -g with a port number.")
				return cmd.Help()
			}
			return start(cmd, mode, port, *opts)
		},
	}
	cmd.SetVersionTemplate("QSync: {{.Version}}\n")
	cmd.SetFlagErrorFunc(func(c *cobra.Command, err error) error {
		c.PrintErrln(c.UsageString())
		return err
	})

	cmd.Flags().Uint16VarP(&opts.local, "local", "l", 0, "Share on the local network at `PORT`")
	cmd.Flags().Uint16VarP(&opts.global, "global", "g", 0, "Share globally through ngrok at `PORT`")
	cmd.Flags().BoolVar(&opts.debug, "debug", false, "Write diagnostic logs to stderr")
	cmd.Flags().StringVar(&opts.dir, "dir", "", "Directory to share (default: QSYNC_SHARE_DIR or the current directory)")
	cmd.Flags().BoolP("version", "v", false, "Print the version and exit")

	cmd.AddCommand(newServeCmd())
	return cmd
}

// selectMode maps the flags to a share mode. -l wins over -g.
func selectMode(cmd *cobra.Command, opts mainOptions) (share.Mode, uint16) {
	local := cmd.Flags().Changed("local")
	global := cmd.Flags().Changed("global")
	switch {
	case local && global:
		fmt.Fprintf(cmd.ErrOrStderr(), "Warning: both -l and -g given; sharing locally on port %d.\n", opts.local)
		return share.ModeLocal, opts.local
	case local:
		return share.ModeLocal, opts.local
	case global:
		return share.ModeGlobal, opts.global
	}
	return share.ModeNone, 0
}

func startShare(cmd *cobra.Command, mode share.Mode, port uint16, opts mainOptions) error {
	cfg, err := runtimeinit.Bootstrap(runtimeinit.Options{
		LoadOptions: config.LoadOptions{ShareDirOverride: opts.dir},
		Debug:       opts.debug,
	})
	if err != nil {
		return err
	}
	log.Printf("QSync %s: %s share on port %d of %s", version, mode, port, cfg.ShareDir)

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locate executable: %w", err)
	}

	shareOpts := share.Options{
		Mode:    mode,
		Port:    port,
		Version: version,
		Server: &fileserver.Launcher{
			Executable:  exe,
			Dir:         cfg.ShareDir,
			BindAddr:    cfg.BindAddr,
			StopTimeout: cfg.StopTimeout,
		},
		Tunnel: &tunnel.Launcher{
			Bin:          cfg.TunnelBin,
			APIURL:       cfg.TunnelAPI,
			AuthToken:    cfg.NgrokAuthToken,
			Grace:        cfg.TunnelGrace,
			PollInterval: cfg.TunnelPollInterval,
			Timeout:      cfg.TunnelTimeout,
			StopTimeout:  cfg.StopTimeout,
		},
		Out:                 cmd.OutOrStdout(),
		LocalIP:             network.LocalIP,
		ExitOnTunnelFailure: cfg.ExitOnTunnelFailure,
	}
	if cfg.CopyURL {
		shareOpts.CopyURL = clipboard.Write
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend := display.ResolveCurrent(cfg.Display, os.Getenv)
	log.Printf("Display backend: %s", backend)
	switch backend {
	case config.DisplayWindow:
		return runWithWindow(ctx, shareOpts)
	case config.DisplayTerminal:
		shareOpts.Display = &display.Terminal{Writer: cmd.OutOrStdout()}
	default:
		shareOpts.Display = display.None{}
	}
	return share.New(shareOpts).Run(ctx)
}

// runWithWindow gives the main goroutine to fyne and runs the share beside
// it. Whichever ends first takes the other down: the share closes the app,
// and quitting the app from the tray cancels the share.
func runWithWindow(ctx context.Context, opts share.Options) error {
	enableDPIAwareness()

	win := display.NewWindow(app.NewWithID(appID))
	win.CopyURL = opts.CopyURL
	opts.Display = win

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errc := make(chan error, 1)
	go func() {
		err := share.New(opts).Run(ctx)
		_ = win.Close()
		errc <- err
	}()

	win.Run()
	cancel()
	return <-errc
}

func newServeCmd() *cobra.Command {
	var (
		port uint16
		dir  string
		bind string
	)
	cmd := &cobra.Command{
		Use:    "serve",
		Short:  "Serve a directory over HTTP (used internally)",
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logutil.Setup(logutil.Options{Stderr: true})
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return fileserver.Serve(ctx, fileserver.Options{Port: port, Dir: dir, BindAddr: bind})
		},
	}
	cmd.Flags().Uint16Var(&port, "port", 0, "Port to listen on")
	cmd.Flags().StringVar(&dir, "dir", ".", "Directory to serve")
	cmd.Flags().StringVar(&bind, "bind", config.DefaultBindAddr, "Address to bind")
	_ = cmd.MarkFlagRequired("port")
	return cmd
}

