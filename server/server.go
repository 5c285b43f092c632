package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/tensorops/regbot/chain"
	"github.com/tensorops/regbot/journal"
	"github.com/tensorops/regbot/logging"
	"github.com/tensorops/regbot/registration"
)

type Server struct {
	reg     *registration.Registration
	journal *journal.Journal
	cfg     Config

	metricsListener net.Listener
}

func New(ctx context.Context, cfg Config) (*Server, error) {
	if cfg.Coldkey == "" {
		return nil, errors.New("coldkey is required")
	}
	if cfg.Hotkey == "" {
		return nil, errors.New("hotkey is required")
	}
	coldkey, err := chain.ParseKeypair(cfg.Coldkey)
	if err != nil {
		return nil, fmt.Errorf("invalid coldkey: %w", err)
	}
	hotkey, err := chain.ParseKeypair(cfg.Hotkey)
	if err != nil {
		return nil, fmt.Errorf("invalid hotkey: %w", err)
	}

	client, err := chain.Dial(
		ctx,
		cfg.Chain.Endpoint,
		chain.Keys{Coldkey: coldkey, Hotkey: hotkey},
		cfg.Chain.MortalityPeriod,
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to chain: %w", err)
	}

	jrnl, err := journal.Open(filepath.Join(cfg.DbDir, "attempts"))
	if err != nil {
		return nil, fmt.Errorf("opening attempt journal: %w", err)
	}

	reg, err := registration.New(ctx, client, jrnl, registration.WithConfig(cfg.Registration))
	if err != nil {
		return nil, fmt.Errorf("creating registration service: %w", err)
	}

	var metricsListener net.Listener
	if cfg.MetricsPort != nil {
		metricsListener, err = net.Listen("tcp", fmt.Sprintf(":%d", *cfg.MetricsPort))
		if err != nil {
			return nil, fmt.Errorf("failed to listen: %v", err)
		}
	}

	return &Server{
		reg:             reg,
		journal:         jrnl,
		cfg:             cfg,
		metricsListener: metricsListener,
	}, nil
}

func (s *Server) Close() error {
	return s.journal.Close()
}

// MetricsAddr returns the address the metrics server is listening on, or
// nil if metrics are disabled.
func (s *Server) MetricsAddr() net.Addr {
	if s.metricsListener == nil {
		return nil
	}
	return s.metricsListener.Addr()
}

// Start runs the registration loop and the metrics server until the
// context is canceled.
func (s *Server) Start(ctx context.Context) error {
	ctx, stop := context.WithCancel(ctx)
	defer stop()
	serverGroup, ctx := errgroup.WithContext(ctx)

	logger := logging.FromContext(ctx)

	logger.Info("starting registration service")
	serverGroup.Go(func() error {
		return s.reg.Run(ctx)
	})

	var metricsServer *http.Server
	if s.metricsListener != nil {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{Handler: mux, ReadHeaderTimeout: time.Second * 5}
		serverGroup.Go(func() error {
			logger.Sugar().Infof("metrics server listening on %s", s.metricsListener.Addr())
			err := metricsServer.Serve(s.metricsListener)
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		})
	}

	// Wait for the server to shut down gracefully
	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Sugar().Errorf("failed to shutdown metrics server: %s", err)
		}
	}
	if err := serverGroup.Wait(); err != nil {
		logger.Sugar().Errorf("error when waiting to shutdown servers: %s", err)
	}
	return nil
}
