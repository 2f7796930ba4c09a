package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/lazypower/memkeeper/internal/config"
	"github.com/lazypower/memkeeper/internal/probe"
)

var (
	probeURL          string
	keepAliveInterval time.Duration
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check a running server (exit status 1 when unhealthy)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()

		h, err := probe.NewClient(serverURL(cfg)).Health(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "ok: version %s, driver %s, up %s\n",
			h.Version, h.Driver, (time.Duration(h.Uptime) * time.Second).String())
		return nil
	},
}

var keepAliveCmd = &cobra.Command{
	Use:   "keepalive",
	Short: "Ping a hosted server periodically so it does not idle out",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger, err := newLogger(cfg)
		if err != nil {
			return err
		}
		if keepAliveInterval <= 0 {
			return fmt.Errorf("--interval must be positive")
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		url := serverURL(cfg)
		logger.Info("keep-alive started", "url", url, "interval", keepAliveInterval)
		probe.NewClient(url).KeepAlive(ctx, keepAliveInterval, logger)
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{healthCmd, keepAliveCmd} {
		c.Flags().StringVar(&probeURL, "url", "", "server URL (default $MEMKEEPER_URL or the configured listen address)")
	}
	keepAliveCmd.Flags().DurationVar(&keepAliveInterval, "interval", 10*time.Minute, "time between pings")
}

// serverURL picks the server to probe: --url, then MEMKEEPER_URL, then the
// local listen address.
func serverURL(cfg config.Config) string {
	if probeURL != "" {
		return probeURL
	}
	if u := os.Getenv("MEMKEEPER_URL"); u != "" {
		return u
	}
	host := cfg.Server.Bind
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return fmt.Sprintf("http://%s:%d", host, cfg.Server.Port)
}
