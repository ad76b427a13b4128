package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/reflection"

	grpcAdapter "github.com/chootka/sLLM/internal/adapters/grpc"
	"github.com/chootka/sLLM/internal/adapters/httpapi"
	"github.com/chootka/sLLM/internal/adapters/memory"
	"github.com/chootka/sLLM/internal/adapters/sqlite"
	"github.com/chootka/sLLM/internal/adapters/websocket"
	"github.com/chootka/sLLM/internal/capture"
	"github.com/chootka/sLLM/internal/config"
	"github.com/chootka/sLLM/internal/domain"
	"github.com/chootka/sLLM/internal/interlock"
	"github.com/chootka/sLLM/internal/ports"
	"github.com/chootka/sLLM/internal/publish"
	"github.com/chootka/sLLM/pkg/pb"
	"github.com/chootka/sLLM/pkg/tlsconfig"
)

const shutdownTimeout = 5 * time.Second

func main() {
	// Read configuration: defaults, YAML, .env, environment
	cfg, err := config.Load(os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		setupLogger(config.Default().Log)
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	// Initialize logger
	closeLog := setupLogger(cfg.Log)
	defer closeLog()

	log.Info().Bool("mock_mode", cfg.MockMode).Msg("starting slime monitor")

	// Initialize shared state
	state, err := domain.NewSharedState(cfg.Publish.HistoryCapacity, map[domain.LightName]domain.LightState{
		domain.RingLight:     {Pin: cfg.Lights.RingPin},
		domain.ExposureLight: {Pin: cfg.Lights.ExposurePin},
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create shared state")
	}

	// Initialize event repository
	var repo domain.EventRepository
	switch cfg.Journal.RepoType {
	case "sqlite":
		r, err := sqlite.NewEventRepository(cfg.Journal.DBPath)
		if err != nil {
			log.Fatal().Err(err).Str("db_path", cfg.Journal.DBPath).Msg("failed to open SQLite database")
		}
		defer r.Close()
		repo = r
		log.Info().Str("db_path", cfg.Journal.DBPath).Msg("initialized SQLite event journal")
	default:
		repo = memory.NewEventRepository()
		log.Info().Msg("initialized in-memory event journal")
	}
	journal := ports.NewJournal(repo, cfg.Journal.Buffer, cfg.Journal.Retention)

	// Push channel; new subscribers get the current values first
	hub := websocket.NewHub(func() []publish.Message {
		return publish.Messages(state.Snapshot(), time.Now())
	})

	// Lights and the interlock that owns them
	outputs, limits, gpioOK := openLights(cfg)
	lights := interlock.New(limits, state, outputs, hub, journal)
	defer func() {
		for name, out := range outputs {
			if err := out.Close(); err != nil {
				log.Warn().Err(err).Str("light", string(name)).Msg("failed to release light")
			}
		}
	}()

	// Camera and capture workflow
	cam := openCamera(cfg)
	if cam != nil {
		defer cam.Close()
	}
	capturer := capture.New(capture.Config{
		Dir:      cfg.Capture.Dir,
		Settle:   cfg.Capture.Settle,
		Warmup:   cfg.Capture.Warmup,
		Interval: cfg.Capture.Interval,
	}, cam, lights, hub, journal)

	// Acquisition loops
	electrical, electricalSource := openElectrical(cfg, state)
	environment, environmentSource := openEnvironment(cfg, state)

	state.SetSensors(domain.Sensors{
		Electrical:          electrical != nil,
		ElectricalSource:    electricalSource,
		TemperatureHumidity: environment != nil,
		EnvironmentSource:   environmentSource,
		Camera:              cam != nil,
		MockMode:            cfg.MockMode || !gpioOK,
	})

	// Configure TLS if certificates are provided
	tlsFiles := tlsconfig.Files{Cert: cfg.TLS.Cert, Key: cfg.TLS.Key, CA: cfg.TLS.CA}
	var serverOpts []grpc.ServerOption
	var httpTLS bool
	httpServer := &http.Server{
		Addr: cfg.HTTP.Addr,
		Handler: httpapi.NewServer(httpapi.Deps{
			State:  state,
			Lights: lights,
			Camera: capturer,
			Events: repo,
			Push:   hub,
			Info: httpapi.Info{
				MockMode:        cfg.MockMode,
				SampleRate:      cfg.Electrical.SampleRate,
				EmitInterval:    cfg.Publish.EmitInterval,
				HistoryCapacity: cfg.Publish.HistoryCapacity,
			},
		}).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	if tlsFiles.Enabled() {
		tlsCfg, err := tlsFiles.Server()
		if err != nil {
			log.Fatal().Err(err).Msg("failed to load TLS config")
		}
		serverOpts = append(serverOpts, grpc.Creds(credentials.NewTLS(tlsCfg)))
		httpServer.TLSConfig = tlsCfg
		httpTLS = true
		log.Info().Msg("mTLS enabled")
	} else {
		log.Warn().Msg("TLS_CERT not set, starting without TLS (dev mode only)")
	}

	// Create gRPC server
	grpcServer := grpc.NewServer(serverOpts...)
	pb.RegisterMonitorServiceServer(grpcServer, grpcAdapter.NewMonitorServiceHandler(state, lights, repo))

	// Enable gRPC reflection for grpcurl testing
	reflection.Register(grpcServer)

	grpcListener, err := net.Listen("tcp", fmt.Sprintf(":%s", cfg.GRPC.Port))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to listen")
	}
	httpListener, err := net.Listen("tcp", cfg.HTTP.Addr)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to listen")
	}

	// Cancelled on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		journal.Start(gctx)
		return nil
	})
	if electrical != nil {
		g.Go(func() error {
			electrical.Run(gctx)
			return nil
		})
	}
	if environment != nil {
		g.Go(func() error {
			environment.Run(gctx)
			return nil
		})
	}
	g.Go(func() error {
		publish.NewPublisher(state, hub, cfg.Publish.EmitInterval).Start(gctx)
		return nil
	})
	g.Go(func() error {
		capturer.Run(gctx)
		return nil
	})

	g.Go(func() error {
		log.Info().Str("port", cfg.GRPC.Port).Msg("gRPC server listening")
		if err := grpcServer.Serve(grpcListener); err != nil {
			return fmt.Errorf("grpc server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		log.Info().Str("addr", cfg.HTTP.Addr).Bool("tls", httpTLS).Msg("HTTP server listening")
		var err error
		if httpTLS {
			err = httpServer.ServeTLS(httpListener, "", "")
		} else {
			err = httpServer.Serve(httpListener)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	// Graceful shutdown once a signal arrives or a server fails
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down server...")
		shutdown(httpServer, grpcServer, lights, hub)
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("server stopped with error")
		return
	}
	log.Info().Msg("server stopped")
}

// shutdown stops both servers first so no request can switch a light back
// on, then turns every light off and closes the push channel.
func shutdown(httpServer *http.Server, grpcServer stopper, lights io.Closer, hub *websocket.Hub) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("http shutdown")
	}
	grpcServer.GracefulStop()

	if err := lights.Close(); err != nil {
		log.Warn().Err(err).Msg("failed to turn lights off")
	}
	hub.Close()
}

// stopper is the part of grpc.Server used by shutdown
type stopper interface {
	GracefulStop()
}
