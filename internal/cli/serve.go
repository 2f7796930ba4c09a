package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/lazypower/memkeeper/internal/auth"
	"github.com/lazypower/memkeeper/internal/config"
	"github.com/lazypower/memkeeper/internal/images"
	"github.com/lazypower/memkeeper/internal/server"
	"github.com/lazypower/memkeeper/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE:  runServe,
}

// imageBackend is the configured image store plus what the server and
// janitor need to know about it.
type imageBackend struct {
	uploader  images.Uploader
	uploadDir string // empty unless files are stored locally
	janitor   *images.Janitor
}

func newImageBackend(cfg config.Config, st store.Store, logger *slog.Logger) (*imageBackend, error) {
	ic := cfg.Images
	if ic.Store == "cloudinary" {
		cld, err := images.NewCloudinary(ic.Cloudinary.CloudName, ic.Cloudinary.APIKey, ic.Cloudinary.APISecret,
			ic.Cloudinary.Folder, ic.MaxUploadBytes)
		if err != nil {
			return nil, err
		}
		return &imageBackend{uploader: cld}, nil
	}

	dir, err := uploadDir(cfg)
	if err != nil {
		return nil, err
	}
	local, err := images.NewLocal(dir, ic.PublicBaseURL, ic.MaxUploadBytes)
	if err != nil {
		return nil, err
	}
	return &imageBackend{
		uploader:  local,
		uploadDir: dir,
		janitor:   images.NewJanitor(local, st, ic.JanitorInterval, ic.JanitorGrace, logger.With("component", "janitor")),
	}, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	secret := cfg.Auth.SecretKey
	if secret == "" {
		if secret, err = auth.RandomSecret(); err != nil {
			return err
		}
		logger.Warn("no auth.secret_key configured, using a random key; tokens will not survive a restart")
	}
	tokens, err := auth.NewIssuer(secret, cfg.Auth.TokenTTL)
	if err != nil {
		return err
	}
	users, err := auth.NewUserCache(st, cfg.Auth.UserCacheTTL)
	if err != nil {
		return err
	}
	defer users.Close()

	img, err := newImageBackend(cfg, st, logger)
	if err != nil {
		return fmt.Errorf("image store: %w", err)
	}
	if img.janitor != nil {
		img.janitor.Start(ctx)
		defer img.janitor.Stop()
	}

	srv := server.New(server.Options{
		Store:          st,
		Tokens:         tokens,
		Users:          users,
		Hasher:         auth.NewHasher(cfg.Auth.BcryptCost),
		Images:         img.uploader,
		UploadDir:      img.uploadDir,
		MaxUploadBytes: cfg.Images.MaxUploadBytes,
		CORSOrigins:    cfg.CORS.AllowedOrigins,
		Logger:         logger,
		Version:        VersionString(),
	})

	addr := cfg.ListenAddr()
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("memkeeper serving",
			"addr", addr,
			"driver", st.Driver(),
			"images", img.uploader.Name(),
			"version", VersionString(),
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return httpServer.Shutdown(shutdownCtx)
}
