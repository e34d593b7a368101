// server runs the meeting backend: the JSON API and room websockets on HTTP_ADDR, the gRPC health
// service on GRPC_ADDR, and the status and deadline sweeps.
package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"emeet/backend/internal/audit"
	"emeet/backend/internal/config"
	"emeet/backend/internal/health"
	meetinghandler "emeet/backend/internal/meeting/handler"
	"emeet/backend/internal/meeting/service"
	"emeet/backend/internal/notification"
	"emeet/backend/internal/policy/engine"
	"emeet/backend/internal/room"
	"emeet/backend/internal/room/gateway"
	"emeet/backend/internal/security"
	"emeet/backend/internal/server"
	"emeet/backend/internal/sweep"
	"emeet/backend/internal/telemetry"
	otelsetup "emeet/backend/internal/telemetry/otel"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	providers, err := otelsetup.NewProviders(ctx, cfg.OTelEndpoint, cfg.OTelServiceName, cfg.OTelInsecure)
	if err != nil {
		log.Fatalf("telemetry: %v", err)
	}
	providers.SetGlobal()
	events := otelsetup.NewEventEmitter(providers.LoggerProvider)

	st, err := openStores(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer st.close()

	priv, pub, err := security.LoadKeyPair(cfg.JWTPrivateKey, cfg.JWTPublicKey)
	if err != nil {
		log.Fatalf("jwt keys: %v (set JWT_PUBLIC_KEY, or run cmd/seed to generate a development key)", err)
	}
	tokens, err := security.NewTokenProvider(priv, pub, cfg.JWTIssuer, cfg.JWTAudience, cfg.AccessTTL())
	if err != nil {
		log.Fatalf("jwt: %v", err)
	}

	authz, err := engine.NewOPAEvaluator(ctx, st.policies)
	if err != nil {
		log.Fatalf("policy: %v", err)
	}
	if err := authz.Reload(ctx); err != nil {
		log.Printf("policy: initial reload: %v", err)
	}

	var notifier notification.Notifier = notification.LogNotifier{}
	if k := notification.NewKafkaNotifier(cfg.KafkaBrokersList(), cfg.NotificationTopic); k != nil {
		notifier = k
	}
	defer notifier.Close()

	auditLog := audit.NewLogger(st.audit)
	registry := room.NewRegistry(cfg.RoomSendBuffer)
	terminator := room.NewTerminator(st.meetings, registry, events, auditLog)
	meetings := sweep.NewMeetingJob(st.meetings, func(ctx context.Context, sessionID string) {
		if err := terminator.End(ctx, sessionID, room.TriggerSweep, ""); err != nil {
			log.Printf("sweep: end %s: %v", sessionID, err)
		}
	})
	svc := service.NewMeetingService(st.meetings, st.users, notifier, terminator)

	rooms := gateway.NewHandler(gateway.Deps{
		Sessions:   meetings,
		Requests:   st.meetings,
		Tokens:     tokens,
		Users:      st.users,
		Authorizer: authz,
		Registry:   registry,
		Terminator: terminator,
		Audit:      auditLog,
		Events:     events,
	}, gateway.Config{
		LivenessInterval:   cfg.RoomLivenessInterval(),
		MaxAuthAttempts:    cfg.RoomMaxAuthAttempts,
		AuthTimeout:        cfg.RoomAuthTimeout(),
		AllowedOrigins:     cfg.AllowedOrigins(),
		InsecureSkipVerify: !cfg.IsProduction() && len(cfg.AllowedOrigins()) == 0,
	})

	checker := health.NewChecker(st.pinger, authz)
	httpSrv := server.NewHTTPServer(cfg.HTTPAddr, server.NewHTTPHandler(server.HTTPDeps{
		API:    meetinghandler.NewHandler(svc, meetings),
		Rooms:  rooms,
		Health: checker,
		Tokens: tokens,
		Events: events,
	}))
	grpcSrv, healthSrv := server.NewGRPCServer()

	scheduler := sweep.NewScheduler(cfg.SweepInterval(),
		meetings,
		sweep.NewDeadlineJob(st.assignments),
		terminator,
		sweep.NewFuncJob("policies", func(ctx context.Context, _ time.Time) error { return authz.Reload(ctx) }),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Printf("server: HTTP listening on %s", cfg.HTTPAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			return err
		}
		log.Printf("server: gRPC health listening on %s", cfg.GRPCAddr)
		return grpcSrv.Serve(lis)
	})
	g.Go(func() error {
		checker.Watch(gctx, healthSrv, health.DefaultInterval)
		return nil
	})
	g.Go(func() error { return scheduler.Run(gctx) })
	g.Go(func() error {
		<-gctx.Done()
		log.Println("server: shutting down...")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpSrv.Shutdown(sctx); err != nil {
			log.Printf("server: http shutdown: %v", err)
		}
		grpcSrv.GracefulStop()
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Printf("server: %v", err)
	}

	// let async telemetry emits finish before the providers go away
	time.Sleep(telemetry.ShutdownDrainDuration)
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := providers.Shutdown(sctx); err != nil {
		log.Printf("telemetry: shutdown: %v", err)
	}
	log.Println("server: stopped")
}
