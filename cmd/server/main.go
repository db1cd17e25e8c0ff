package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"golang.org/x/sync/errgroup"

	"lnbridge/internal/events"
	"lnbridge/internal/events/consumer"
	"lnbridge/internal/events/kafka"
	"lnbridge/internal/lightning"
	"lnbridge/internal/lightning/rpc"
	"lnbridge/internal/platform/config"
	"lnbridge/internal/platform/httpserver"
	"lnbridge/internal/platform/logger"
	"lnbridge/internal/platform/metrics"
	"lnbridge/internal/platform/redis"
	httptransport "lnbridge/internal/transport/http"
)

// main wires high-level dependencies and keeps the process lifecycle
// small. Business logic lives in the internal packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()
	m := metrics.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// lightningd RPC socket.
	socket, err := net.Dial("unix", cfg.RPCSocketPath)
	if err != nil {
		log.Error("connect lightningd socket", "path", cfg.RPCSocketPath, "error", err)
		os.Exit(1)
	}
	defer socket.Close()

	transport := rpc.New(socket, rpc.WithLogger(log))
	client, err := lightning.New(transport, lightning.Config{
		RequestPolicy: lightning.Policy{Enabled: cfg.RequestEnabled, Minimum: cfg.RequestMinimum},
		SendPolicy:    lightning.Policy{Enabled: cfg.SendEnabled, Minimum: cfg.SendMinimum},
		MaxFeePercent: cfg.MaxFeePercent,
		ExemptFee:     cfg.ExemptFee,
		RiskFactor:    cfg.RiskFactor,
		SendTimeout:   cfg.SendTimeout,
	}, lightning.WithLogger(log), lightning.WithMetrics(m))
	if err != nil {
		log.Error("build lightning client", "error", err)
		os.Exit(1)
	}

	// Event bus: Kafka when brokers are configured, in-process otherwise.
	var bus events.Bus
	if len(cfg.KafkaBrokers) > 0 {
		publisher, err := kafka.New(cfg.KafkaBrokers, kafka.WithLogger(log))
		if err != nil {
			log.Error("connect kafka", "error", err)
			os.Exit(1)
		}
		defer publisher.Close()
		bus = publisher
	} else {
		inproc := events.NewInProcessBus(log)
		inproc.Subscribe(events.InvoiceSettled{}.Name(), logEvent(log))
		inproc.Subscribe(events.PaymentSucceeded{}.Name(), logEvent(log))
		bus = inproc
	}

	// Broker subscription for daemon plugin events.
	brokerConn, err := amqp.Dial(cfg.AMQPURL)
	if err != nil {
		log.Error("connect broker", "error", err)
		os.Exit(1)
	}
	defer brokerConn.Close()
	channel, err := brokerConn.Channel()
	if err != nil {
		log.Error("open broker channel", "error", err)
		os.Exit(1)
	}
	defer channel.Close()

	consumerOpts := []consumer.Option{
		consumer.WithLogger(log),
		consumer.WithMetrics(m),
	}
	redisClient, err := redis.New(cfg.RedisURL)
	if err != nil {
		log.Error("connect redis", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
		consumerOpts = append(consumerOpts,
			consumer.WithProcessedStore(consumer.NewRedisStore(redisClient, cfg.DedupeRetention)))
	} else {
		consumerOpts = append(consumerOpts,
			consumer.WithProcessedStore(consumer.NewMemoryStore(cfg.DedupeRetention)))
	}

	loop, err := consumer.New(channel, events.NewTranslator(), bus, consumerOpts...)
	if err != nil {
		log.Error("build consumer", "error", err)
		os.Exit(1)
	}

	handler := httptransport.New(client, log)
	srv := httpserver.New(cfg.HTTPAddr, httptransport.NewRouter(handler))

	log.Info("starting lnbridge",
		"addr", cfg.HTTPAddr,
		"socket", cfg.RPCSocketPath,
		"queue", cfg.ConsumerQueue,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return loop.Run(gctx, cfg.ConsumerQueue)
	})
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("lnbridge stopped", "error", err)
		os.Exit(1)
	}
	log.Info("lnbridge stopped")
}

// logEvent is the default in-process subscriber; platform deployments
// attach real consumers or configure Kafka instead.
func logEvent(log *slog.Logger) events.Handler {
	return func(_ context.Context, e events.Event) error {
		log.Info("domain event", "event", e.Name(), "key", e.Key())
		return nil
	}
}
