// Worker runs the status and deadline sweeps without the room server, and, when KAFKA_BROKERS is
// set, consumes participant notifications from NOTIFICATION_KAFKA_TOPIC and forwards each one to
// the OpenTelemetry log pipeline. Requires DATABASE_URL: in-memory stores are per process.
package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	assignmentrepo "emeet/backend/internal/assignment/repository"
	"emeet/backend/internal/config"
	"emeet/backend/internal/db"
	meetingrepo "emeet/backend/internal/meeting/repository"
	"emeet/backend/internal/notification"
	"emeet/backend/internal/sweep"
	"emeet/backend/internal/telemetry"
	otelsetup "emeet/backend/internal/telemetry/otel"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("worker: DATABASE_URL is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	providers, err := otelsetup.NewProviders(ctx, cfg.OTelEndpoint, cfg.OTelServiceName+"-worker", cfg.OTelInsecure)
	if err != nil {
		log.Fatalf("telemetry: %v", err)
	}
	providers.SetGlobal()
	events := otelsetup.NewEventEmitter(providers.LoggerProvider)

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer conn.Close()

	// Expiries found here are persisted only; the server's connections notice them on their
	// liveness check and end the room themselves.
	scheduler := sweep.NewScheduler(cfg.SweepInterval(),
		sweep.NewMeetingJob(meetingrepo.NewPostgresRepository(conn), nil),
		sweep.NewDeadlineJob(assignmentrepo.NewPostgresRepository(conn)),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return scheduler.Run(gctx) })

	if brokers := cfg.KafkaBrokersList(); len(brokers) > 0 {
		reader := notification.NewReader(brokers, cfg.NotificationTopic, cfg.KafkaGroupID)
		defer reader.Close()
		log.Printf("worker: consuming %s (group %s)", cfg.NotificationTopic, cfg.KafkaGroupID)
		g.Go(func() error {
			return notification.Consume(gctx, reader, forward(events))
		})
	} else {
		log.Println("worker: KAFKA_BROKERS not set; notification consumer disabled")
	}

	if err := g.Wait(); err != nil {
		log.Printf("worker: %v", err)
	}
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := providers.Shutdown(sctx); err != nil {
		log.Printf("telemetry: shutdown: %v", err)
	}
	log.Println("worker: stopped")
}

// forward records each consumed notification as a telemetry event.
func forward(events telemetry.EventEmitter) notification.Handler {
	return func(ctx context.Context, n *notification.Notification) error {
		meta, err := json.Marshal(n)
		if err != nil {
			return err
		}
		return events.Emit(ctx, &telemetry.Event{
			SessionID: n.SessionID,
			UserID:    n.UserID,
			Type:      n.Kind,
			Source:    "notification_worker",
			Metadata:  meta,
			At:        n.CreatedAt,
		})
	}
}
