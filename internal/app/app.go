// Package app wires every component package into a running server:
// open the store, seed defaults, construct each service, bind routes,
// and run until the context is canceled.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iohzrd/echora/internal/auth"
	"github.com/iohzrd/echora/internal/config"
	"github.com/iohzrd/echora/internal/httpapi"
	"github.com/iohzrd/echora/internal/imageproxy"
	"github.com/iohzrd/echora/internal/linkpreview"
	"github.com/iohzrd/echora/internal/logging"
	"github.com/iohzrd/echora/internal/maintenance"
	"github.com/iohzrd/echora/internal/media"
	"github.com/iohzrd/echora/internal/message"
	"github.com/iohzrd/echora/internal/moderation"
	"github.com/iohzrd/echora/internal/sfu"
	"github.com/iohzrd/echora/internal/state"
	"github.com/iohzrd/echora/internal/store"
	"github.com/iohzrd/echora/internal/ws"
)

var log = logging.New("app")

const shutdownGrace = 10 * time.Second

func nowUnix() int64 { return time.Now().Unix() }

// App holds every long-lived dependency built at startup.
type App struct {
	cfg   *config.Config
	store *store.Store
	hub   *state.Hub
	echo  *echo.Echo
}

// New opens the store, seeds defaults, and wires every service and
// route onto a fresh echo.Echo. The returned App is ready for Run.
func New(cfg *config.Config) (*App, error) {
	st, err := store.New(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := st.Seed(context.Background(), nowUnix()); err != nil {
		st.Close()
		return nil, err
	}

	hub := state.New()
	issuer := auth.NewIssuer(cfg.JWTSecret)
	webAuthn, err := auth.NewWebAuthn(cfg.WebAuthnRPID, cfg.WebAuthnRPOrigin, "Echora")
	if err != nil {
		st.Close()
		return nil, err
	}

	previewer := linkpreview.NewWorker(st, hub, cfg.HMACSecret)
	pipeline := message.New(st, previewer)
	sfuSvc := sfu.NewService(hub, cfg.AnnouncedIP)
	moderationSvc := moderation.New(st, hub, sfuSvc)

	objects, err := newObjectStore(cfg)
	if err != nil {
		st.Close()
		return nil, err
	}
	mediaSvc := media.New(objects, st)
	proxy := imageproxy.NewHandler(cfg.HMACSecret, previewer.Guard)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	httpapi.New(httpapi.Deps{
		Store:      st,
		Hub:        hub,
		Issuer:     issuer,
		WebAuthn:   webAuthn,
		Pipeline:   pipeline,
		Moderation: moderationSvc,
		Media:      mediaSvc,
		SFU:        sfuSvc,
		ImageProxy: proxy,
		HMACSecret: cfg.HMACSecret,
	}).Register(e)

	ws.NewHandler(hub, issuer, st, pipeline, sfuSvc).Register(e)

	return &App{cfg: cfg, store: st, hub: hub, echo: e}, nil
}

func newObjectStore(cfg *config.Config) (media.ObjectStore, error) {
	if cfg.StorageBackend == "s3" {
		return &media.S3Stub{Bucket: cfg.S3Bucket, Region: cfg.S3Region}, nil
	}
	return media.NewLocalDisk(cfg.StoragePath)
}

// Run starts background maintenance and blocks serving HTTP until ctx
// is canceled, then shuts the server down gracefully.
func (a *App) Run(ctx context.Context) error {
	maintenance.Run(ctx, a.store, a.hub)

	srv := &http.Server{
		Addr:        a.cfg.BindAddr,
		Handler:     a.echo,
		IdleTimeout: a.cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", "addr", a.cfg.BindAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn("graceful shutdown failed", "err", err)
		}
		a.store.Close()
		return nil
	case err := <-errCh:
		a.store.Close()
		return err
	}
}
