package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/qrave1/voicegrid/internal/application/config"
	"github.com/qrave1/voicegrid/internal/application/constant"
	"github.com/qrave1/voicegrid/internal/application/metric"
	"github.com/qrave1/voicegrid/internal/application/scheduler"
	"github.com/qrave1/voicegrid/internal/infra/adapters/eventbus"
	"github.com/qrave1/voicegrid/internal/infra/adapters/janus"
	"github.com/qrave1/voicegrid/internal/infra/adapters/memory"
	"github.com/qrave1/voicegrid/internal/infra/adapters/postgres"
	"github.com/qrave1/voicegrid/internal/infra/adapters/postgres/repository"
	"github.com/qrave1/voicegrid/internal/infra/ports/http/handlers"
	"github.com/qrave1/voicegrid/internal/infra/ports/http/server"
	"github.com/qrave1/voicegrid/internal/usecase"
)

func runApp() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.New()
	if err != nil {
		slog.Error("parse config", slog.Any(constant.Error, err))
		os.Exit(1)
	}

	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}

	slog.SetDefault(
		slog.New(
			slog.NewJSONHandler(
				os.Stdout,
				&slog.HandlerOptions{Level: level},
			),
		),
	)

	dbConn, err := postgres.NewPostgres(ctx, cfg.Postgres.DSN())
	if err != nil {
		slog.Error("connect to postgres", slog.Any(constant.Error, err))
		os.Exit(1)
	}
	defer dbConn.Close()

	channelRepo := repository.NewChannelRepo(dbConn)
	workspaceRepo := repository.NewWorkspaceRepo(dbConn)

	var nodeSource janus.NodeSource
	if len(cfg.Janus.Nodes) > 0 {
		nodeSource = janus.NewStaticSource(cfg.Janus)
	} else {
		nodeSource = janus.NewDiscovery(cfg.Discovery, cfg.Janus, nil)
	}

	gateway := janus.NewGateway(cfg.Janus.RequestTimeout)
	nodeRepo := memory.NewJanusNodeRepository()
	connRepo := memory.NewConnectionRepository(cfg.ConnectionTTL, nil)
	hub := eventbus.NewHub()

	roomUsecase := usecase.NewRoomUsecase(nodeSource, gateway, nodeRepo)

	// без нод сервис не может выдать ни одной комнаты
	if err = roomUsecase.LoadNodes(ctx); err != nil {
		slog.Error("load janus nodes", slog.Any(constant.Error, err))
		os.Exit(1)
	}

	// после рестарта счетчики нод берутся из уже созданных каналов
	counts, err := channelRepo.CountByServer(ctx)
	if err != nil {
		slog.Error("count channels by janus node", slog.Any(constant.Error, err))
		os.Exit(1)
	}
	roomUsecase.RestoreLoad(counts)

	presenceUsecase := usecase.NewPresenceUsecase(connRepo, hub, cfg.ChannelLockTimeout)
	inviteUsecase := usecase.NewInviteUsecase(connRepo, channelRepo, workspaceRepo, hub, cfg.InviteTimeout, nil)
	sessionUsecase := usecase.NewSessionUsecase(
		connRepo,
		channelRepo,
		workspaceRepo,
		roomUsecase,
		presenceUsecase,
		inviteUsecase,
		hub,
		cfg.ChannelLockTimeout,
		[]webrtc.ICEServer{cfg.TurnUDPServer, cfg.TurnTCPServer},
		nil,
	)
	channelUsecase := usecase.NewChannelUsecase(channelRepo, workspaceRepo, roomUsecase, sessionUsecase, hub, nil)

	connRepo.SetExpiryHandler(sessionUsecase.HandleExpired)

	jobs, err := scheduler.New(ctx, scheduler.Job{
		Name:     "sweep expired connections",
		Schedule: cfg.SweepSchedule,
		Run: func(ctx context.Context) {
			if expired := connRepo.Sweep(ctx); len(expired) > 0 {
				slog.Info("expired connections swept", slog.Int(constant.Count, len(expired)))
			}
		},
	})
	if err != nil {
		slog.Error("create scheduler", slog.Any(constant.Error, err))
		os.Exit(1)
	}

	channelHandler := handlers.NewChannelHandler(channelUsecase, connRepo)
	presenceHandler := handlers.NewPresenceHandler(presenceUsecase, workspaceRepo)
	iceHandler := handlers.NewIceHandler(cfg)
	wsHandler := handlers.NewWebSocketHandler(cfg, hub, sessionUsecase, presenceUsecase, inviteUsecase)

	echoSrv := server.New(cfg, channelHandler, presenceHandler, iceHandler, wsHandler)

	metricsSrv := metric.NewServer(roomUsecase.Ready)

	echoSrvCh := make(chan error, 1)
	metricsSrvCh := make(chan error, 1)

	jobs.Start()

	go func() {
		echoSrvCh <- echoSrv.Start(":" + cfg.Port)
	}()

	go func() {
		metricsSrvCh <- metricsSrv.Start(":" + cfg.MetricPort)
	}()

	slog.Info("voicegrid started", slog.String("port", cfg.Port), slog.Int(constant.Count, len(roomUsecase.Nodes())))

	select {
	case <-ctx.Done():
		slog.Info("shutting down servers due to context cancel")
	case err := <-echoSrvCh:
		slog.Error(
			"http server failed",
			slog.Any(constant.Error, err),
		)
		os.Exit(1)
	case err := <-metricsSrvCh:
		slog.Error(
			"metrics server failed",
			slog.Any(constant.Error, err),
		)
		os.Exit(1)
	}

	// Graceful shutdown
	timeoutCtx, timeoutCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer timeoutCancel()

	jobs.Stop(timeoutCtx)

	if err := echoSrv.Shutdown(timeoutCtx); err != nil {
		slog.Error("failed to gracefully shutdown http server", slog.Any(constant.Error, err))
	}

	if err := metricsSrv.Shutdown(timeoutCtx); err != nil {
		slog.Error("failed to gracefully shutdown metric server", slog.Any(constant.Error, err))
	}
}
