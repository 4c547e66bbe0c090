package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/relaychat/server/internal/archive"
	"github.com/relaychat/server/internal/coldstore"
	"github.com/relaychat/server/internal/config"
	"github.com/relaychat/server/internal/dispatcher"
	"github.com/relaychat/server/internal/email"
	"github.com/relaychat/server/internal/heartbeat"
	"github.com/relaychat/server/internal/hotstore"
	"github.com/relaychat/server/internal/messaging"
	"github.com/relaychat/server/internal/metrics"
	"github.com/relaychat/server/internal/migrations"
	"github.com/relaychat/server/internal/server"
	"github.com/relaychat/server/internal/session"
	"github.com/relaychat/server/internal/verification"
)

// defaultPort and defaultBindIP back the CLI `server [port] [bind-ip]`. An
// omitted bind-ip falls back to 0.0.0.0. An omitted port falls back to the
// configured server.http_port (8080 unless set); defaultPort 8888 is used
// only when that value is not positive, which config validation rejects, so
// a server started through config.Load never falls back to 8888.
const (
	defaultPort   = "8888"
	defaultBindIP = "0.0.0.0"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(logrus.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}

	port, bindIP := parseArgs(os.Args[1:], cfg)

	if err := migrations.Up(cfg.Database.URL()); err != nil {
		logger.Fatalf("failed to apply migrations: %v", err)
	}

	pg, err := coldstore.NewPostgres(coldstore.Config{
		DSN:             cfg.Database.DSN(),
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
	})
	if err != nil {
		logger.Fatalf("failed to connect to database: %v", err)
	}
	defer pg.Close()

	redisClient := redis.NewClusterClient(&redis.ClusterOptions{
		Addrs:    cfg.Redis.Addrs,
		Password: cfg.Redis.Password,
	})
	defer redisClient.Close()
	hot := hotstore.NewRedis(redisClient)

	kafkaWriter := &kafka.Writer{
		Addr:     kafka.TCP(cfg.Kafka.Brokers...),
		Topic:    cfg.Kafka.Topic,
		Balancer: &kafka.LeastBytes{},
	}
	defer kafkaWriter.Close()
	events := messaging.NewKafkaPublisher(kafkaWriter, logger)

	mailer := email.New(email.Config{
		SMTPServer: cfg.SMTP.Server,
		Port:       cfg.SMTP.Port,
		Username:   cfg.SMTP.Username,
		Password:   cfg.SMTP.Password,
		SenderName: cfg.SMTP.SenderName,
		Sender:     cfg.SMTP.Sender,
	}, logger)

	reg := metrics.New(prometheus.DefaultRegisterer)

	core := messaging.New(hot, pg, pg, events, logger)
	sessions := session.New(logger)
	verif := verification.New(logger)
	d := dispatcher.New(core, pg, verif, mailer, sessions, logger)
	hb := heartbeat.New(sessions, logger)
	aw := archive.New(hot, pg, logger)
	aw.Metrics = reg

	srv := server.New(server.Config{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		MaxConnections: int64(cfg.Server.MaxConnections),
	}, d, sessions, hb, aw, verif, reg, logger)
	srv.Database = pg
	srv.Redis = hot

	addr := fmt.Sprintf("%s:%s", bindIP, port)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(addr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			logger.Fatalf("server exited: %v", err)
		}
	case <-quit:
		logger.Info("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownGrace)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Errorf("shutdown error: %v", err)
		}
		logger.Info("stopped")
	}
}

// parseArgs implements `server [port] [bind-ip]`: either, both, or neither
// may be given positionally; config-file/env values are the fallback, and
// the hardcoded defaults below are the last resort, per spec.md §6.3.
func parseArgs(args []string, cfg *config.Config) (port, bindIP string) {
	port = defaultPort
	if cfg.Server.HTTPPort > 0 {
		port = fmt.Sprintf("%d", cfg.Server.HTTPPort)
	}
	bindIP = defaultBindIP

	if len(args) > 0 && args[0] != "" {
		port = args[0]
	}
	if len(args) > 1 && args[1] != "" {
		bindIP = args[1]
	}
	return port, bindIP
}
