package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/segmentio/kafka-go"

	"example.com/account/internal/auth"
	"example.com/account/internal/config"
	"example.com/account/internal/consumer"
	"example.com/account/internal/domain"
	"example.com/account/internal/persistence/postgres"
	"example.com/account/internal/publisher"
	httptransport "example.com/account/internal/transport/http"
)

func main() {
	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer pool.Close()

	if err := postgres.EnsureSchema(ctx, pool); err != nil {
		log.Fatalf("failed to provision schema: %v", err)
	}

	repo := postgres.NewRepository(pool)
	hasher := auth.NewBcryptHasher(cfg.BcryptCost)
	tokens := auth.NewTokenIssuer(auth.Config{
		Secret: cfg.JWTSecret,
		Issuer: cfg.JWTIssuer,
		TTL:    cfg.TokenTTL,
	})
	service := domain.NewService(repo, hasher, tokens)

	writer := publisher.NewWriter(cfg.KafkaBrokers, cfg.ResponseTopic)
	defer writer.Close()
	responses := publisher.New(writer)

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:         cfg.KafkaBrokers,
		GroupID:         cfg.ConsumerGroupID,
		Topic:           cfg.RequestTopic,
		MinBytes:        1e3,
		MaxBytes:        10e6,
		CommitInterval:  0, // synchronous commits; a message is never redelivered once handled
		ReadLagInterval: -1,
	})
	defer reader.Close()

	dispatcher := consumer.NewDispatcher(reader, consumer.NewHandlers(service), responses,
		consumer.WithHandlerTimeout(cfg.HandlerTimeout))

	ready := func() error {
		pingCtx, pingCancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer pingCancel()
		return pool.Ping(pingCtx)
	}
	metricsSrv := &http.Server{Addr: cfg.MetricsAddress, Handler: httptransport.NewMux(ready)}
	go func() {
		log.Printf("worker metrics listening on %s", cfg.MetricsAddress)
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics server error: %v", err)
		}
	}()

	done := make(chan struct{})
	go func() {
		defer close(done)
		log.Printf("dispatcher started (topic=%s, group=%s)", cfg.RequestTopic, cfg.ConsumerGroupID)
		if err := dispatcher.RunSupervised(ctx); err != nil && err != context.Canceled {
			log.Printf("dispatcher stopped with error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Println("worker shutdown requested")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		log.Printf("metrics server shutdown error: %v", err)
	}

	<-done
}
