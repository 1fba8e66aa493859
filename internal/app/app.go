package app

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/corray333/backend-labs/dispatcher/internal/config"
	"github.com/corray333/backend-labs/dispatcher/internal/dal/backlog"
	"github.com/corray333/backend-labs/dispatcher/internal/dal/grpc"
	"github.com/corray333/backend-labs/dispatcher/internal/dal/interfaces/ideadletterrepo"
	"github.com/corray333/backend-labs/dispatcher/internal/dal/postgres"
	deadletterrepo "github.com/corray333/backend-labs/dispatcher/internal/dal/repositories/deadletter/postgres"
	"github.com/corray333/backend-labs/dispatcher/internal/kafka"
	"github.com/corray333/backend-labs/dispatcher/internal/otel"
	"github.com/corray333/backend-labs/dispatcher/internal/rabbitmq"
	"github.com/corray333/backend-labs/dispatcher/internal/service/models/event"
	"github.com/corray333/backend-labs/dispatcher/internal/service/services/dispatchsvc"
	"github.com/corray333/backend-labs/dispatcher/internal/service/services/statussvc"
	"github.com/corray333/backend-labs/dispatcher/internal/transport/client"
	httptransport "github.com/corray333/backend-labs/dispatcher/internal/transport/http"
	amqpsender "github.com/corray333/backend-labs/dispatcher/internal/transport/sender/amqp"
	amqpsource "github.com/corray333/backend-labs/dispatcher/internal/transport/source/amqp"
	kafkasource "github.com/corray333/backend-labs/dispatcher/internal/transport/source/kafka"
	drainer "github.com/corray333/backend-labs/dispatcher/internal/worker/drainer"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

type eventSource interface {
	ReadEvent(ctx context.Context) (event.Event, error)
}

// App represents the application.
type App struct {
	backlog        *backlog.Backlog
	dispatchSvc    *dispatchsvc.DispatchService
	retryWorker    *drainer.Worker
	transport      *httptransport.HTTPTransport
	publisher      *rabbitmq.Client
	consumer       *rabbitmq.Client
	closers        []io.Closer
	postgresClient *postgres.Client
	otelController *otel.OtelController
}

// MustNewApp creates a new application.
func MustNewApp() *App {
	a := &App{}

	a.otelController = otel.MustInitOtel()

	retryInterval := config.RetryInterval()
	a.backlog = backlog.New(config.MaxBacklogSize())

	a.publisher = rabbitmq.MustNewClient()
	if err := a.publisher.EnableConfirms(); err != nil {
		panic(err)
	}
	exchange := viper.GetString("rabbitmq.exchange")
	if exchange != "" {
		if err := a.publisher.DeclareExchange(rabbitmq.DeclareExchangeConfig{Name: exchange, Durable: true}); err != nil {
			panic(err)
		}
	}
	sender := amqpsender.NewSender(
		a.publisher,
		exchange,
		time.Duration(viper.GetInt("rabbitmq.confirm_timeout_ms"))*time.Millisecond,
	)

	var source eventSource
	switch kind := config.SourceKind(); kind {
	case "amqp":
		a.consumer = rabbitmq.MustNewClient()
		source = amqpsource.MustNewSource(a.consumer)
	case "kafka":
		reader := kafka.MustNewReader()
		a.closers = append(a.closers, reader)
		source = kafkasource.NewSource(reader)
	default:
		panic("unknown source.kind: " + kind)
	}

	a.dispatchSvc = dispatchsvc.MustNewDispatchService(
		dispatchsvc.WithClient(client.NewClient(source, sender)),
		dispatchsvc.WithBacklog(a.backlog),
		dispatchsvc.WithRetryInterval(retryInterval),
	)

	var deadLetters ideadletterrepo.IDeadLetterRepository
	maxAttempts := config.MaxAttempts()
	if maxAttempts > 0 {
		a.postgresClient = postgres.MustNewClient()
		deadLetters = deadletterrepo.NewDeadLetterRepository(a.postgresClient.Pool())
	}

	a.retryWorker = drainer.NewWorker(a.backlog, sender, retryInterval, maxAttempts, deadLetters)

	if statusSvc := a.mustNewStatusService(); statusSvc != nil {
		a.transport = httptransport.NewHTTPTransport(a.backlog, statusSvc)
	} else {
		a.transport = httptransport.NewHTTPTransport(a.backlog, nil)
	}
	a.transport.RegisterRoutes()

	return a
}

// mustNewStatusService wires the status checker when both backends are configured.
func (a *App) mustNewStatusService() *statussvc.StatusService {
	primaryAddr := viper.GetString("status.primary_addr")
	secondaryAddr := viper.GetString("status.secondary_addr")
	if primaryAddr == "" || secondaryAddr == "" {
		slog.Info("Status backends are not configured, status checks disabled")

		return nil
	}

	primary := grpc.MustNewClient(primaryAddr)
	secondary := grpc.MustNewClient(secondaryAddr)
	a.closers = append(a.closers, primary, secondary)

	return statussvc.MustNewStatusService(
		statussvc.WithClients(primary, secondary),
		statussvc.WithTimeout(config.StatusTimeout()),
	)
}

// Run starts the application.
// Tracks interrupt signal to gracefully shut down the application.
func (a *App) Run() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("Starting HTTP server")
		if err := a.transport.Run(); err != nil {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("Starting retry worker")
		a.retryWorker.Start(gctx)

		return nil
	})

	g.Go(func() error {
		slog.Info("Starting dispatcher")

		return a.dispatchSvc.Run(gctx)
	})

	// The worker only returns once gctx is done, so Wait blocks until a
	// signal arrives or the dispatcher fails.
	if err := g.Wait(); err != nil {
		slog.Error("Dispatcher error", "error", err)
	} else {
		slog.Info("Shutdown signal received")
	}

	a.gracefulShutdown()
}

// gracefulShutdown performs graceful shutdown of all application components.
func (a *App) gracefulShutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	a.retryWorker.Stop()
	if size := a.backlog.Len(); size > 0 {
		slog.Warn("Retry backlog not empty at shutdown", "size", size)
	}

	if err := a.transport.Shutdown(ctx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	} else {
		slog.Info("HTTP server stopped gracefully")
	}

	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			slog.Error("Close error", "error", err)
		}
	}

	if a.consumer != nil {
		if err := a.consumer.Close(); err != nil {
			slog.Error("RabbitMQ consumer connection close error", "error", err)
		}
	}

	if err := a.publisher.Close(); err != nil {
		slog.Error("RabbitMQ connection close error", "error", err)
	} else {
		slog.Info("RabbitMQ connection closed gracefully")
	}

	if a.postgresClient != nil {
		a.postgresClient.Close()
	}

	if err := a.otelController.Shutdown(ctx); err != nil {
		slog.Error("Otel trace provider connection close error", "error", err)
	} else {
		slog.Info("Otel trace provider connection closed gracefully")
	}

	select {
	case <-ctx.Done():
		slog.Warn("Shutdown timeout exceeded")
	default:
		slog.Info("Application shutdown complete")
	}
}
