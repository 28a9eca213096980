package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	goredis "github.com/redis/go-redis/v9"

	"github.com/mahaddinnagiyev/connectify-messenger/internal/api"
	"github.com/mahaddinnagiyev/connectify-messenger/internal/config"
	"github.com/mahaddinnagiyev/connectify-messenger/internal/identity"
	"github.com/mahaddinnagiyev/connectify-messenger/internal/logger"
	"github.com/mahaddinnagiyev/connectify-messenger/internal/media"
	"github.com/mahaddinnagiyev/connectify-messenger/internal/messenger"
	"github.com/mahaddinnagiyev/connectify-messenger/internal/notify"
	"github.com/mahaddinnagiyev/connectify-messenger/internal/presence"
	"github.com/mahaddinnagiyev/connectify-messenger/internal/store"
	"github.com/mahaddinnagiyev/connectify-messenger/internal/ws"
)

func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config load: %v", err)
	}

	zlog, err := logger.New(logger.Config{Development: cfg.App.Env != "production"})
	if err != nil {
		log.Fatalf("logger init: %v", err)
	}
	defer zlog.Sync()

	ctx := context.Background()

	mongoClient, err := store.Connect(ctx, cfg.Mongo.URI)
	if err != nil {
		zlog.Fatalw("mongo connect", "err", err)
	}
	defer mongoClient.Disconnect(ctx)
	db := mongoClient.Database(cfg.Mongo.Database)
	if err := store.EnsureIndexes(ctx, db); err != nil {
		zlog.Fatalw("mongo indexes", "err", err)
	}

	redisClient := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	rooms := store.NewMongoRoomStore(db)
	messages := store.NewMongoMessageStore(db)
	resolver := identity.NewMongoResolver(db, cfg.JWT.Secret)
	registry := presence.NewRegistry()
	tracker := presence.NewTracker(redisClient, cfg.Redis.Prefix, 0)

	dispatcher := notify.NewKafkaDispatcher(cfg.Kafka.Brokers, cfg.Kafka.TopicPush, zlog)
	defer dispatcher.Close()

	hub := ws.NewHub()
	core := messenger.NewService(rooms, messages, hub, registry, dispatcher, zlog)

	gateway := ws.NewGateway(hub, core, resolver, registry, tracker, ws.Options{
		PingInterval:     cfg.PingInterval,
		WriteDeadline:    cfg.WriteDeadline,
		HandshakeTimeout: cfg.HandshakeTimeout,
		MaxMessageSize:   cfg.WS.MaxMessageSizeBytes,
		EventsPerSecond:  cfg.WS.EventsPerSecond,
		EventBurst:       cfg.WS.EventBurst,
	}, zlog)

	s3Store, err := media.NewS3Store(ctx, cfg.AWS.Region, cfg.AWS.Bucket, cfg.AWS.Endpoint, cfg.AWS.PublicRead)
	if err != nil {
		zlog.Fatalw("s3 init", "err", err)
	}
	mediaSvc := media.NewService(s3Store, cfg.PresignTTL, zlog)

	app := api.New(core, mediaSvc, gateway, api.JWTAuth(resolver), zlog)

	errs := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.App.Port)
		zlog.Infow("starting messenger service", "addr", addr)
		errs <- app.Listen(addr)
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case e := <-errs:
		zlog.Fatalw("server error", "err", e)
	case s := <-sig:
		zlog.Infow("signal received", "signal", s.String())
	}

	if err := app.ShutdownWithTimeout(cfg.ShutdownTimeout); err != nil {
		zlog.Warnw("shutdown", "err", err)
	}
	zlog.Info("shutting down")
}
