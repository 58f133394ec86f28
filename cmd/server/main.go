package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"anoa.com/marketchat/internal/bootstrap"
	"anoa.com/marketchat/internal/config"
	"anoa.com/marketchat/internal/jobs"
	chatService "anoa.com/marketchat/internal/modules/chat/service"
	"anoa.com/marketchat/internal/realtime"
	"anoa.com/marketchat/internal/server"
	"anoa.com/marketchat/pkg/database"
	"anoa.com/marketchat/pkg/logger"
	"anoa.com/marketchat/pkg/queue"
	"github.com/meilisearch/meilisearch-go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	zlog, err := logger.New(cfg.AppEnv)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer func() { _ = zlog.Sync() }()

	if err := run(cfg, zlog); err != nil {
		zlog.Fatal("server exited with error", zap.Error(err))
	}
}

func run(cfg *config.Config, zlog *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	if err := bootstrap.Migrate(db); err != nil {
		return err
	}
	if cfg.AppEnv == "development" {
		if err := bootstrap.MigrateListings(db); err != nil {
			return err
		}
		if err := bootstrap.SeedDemoListings(db, zlog); err != nil {
			return err
		}
	}

	// Without Redis the process runs single-node: in-process fan-out and no
	// thread creation cooldown.
	var redisClient *redis.Client
	var broker realtime.Broker
	if cfg.RedisURL != "" {
		redisClient, err = database.ConnectRedis(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer redisClient.Close()
		broker = realtime.NewRedisBroker(redisClient, zlog.Named("broker"))
		zlog.Info("redis connected, using redis pub/sub broker")
	} else {
		broker = realtime.NewMemoryBroker(zlog.Named("broker"))
		zlog.Warn("REDIS_URL not set, using in-process broker")
	}

	var producer queue.Producer
	if len(cfg.KafkaBrokers) > 0 {
		producer = queue.NewKafkaProducer(cfg.KafkaBrokers, cfg.NotificationTopic, zlog.Named("queue"))
		defer producer.Close()
		zlog.Info("kafka delivery queue enabled", zap.Strings("brokers", cfg.KafkaBrokers), zap.String("topic", cfg.NotificationTopic))
	}

	var search chatService.MessageSearch
	if cfg.MeiliSearchHost != "" {
		meiliClient := meilisearch.New(cfg.MeiliSearchHost, meilisearch.WithAPIKey(cfg.MeiliMasterKey))
		search = chatService.NewMessageSearch(meiliClient, cfg.MeiliSearchHost, zlog.Named("search"))
	}

	srv := server.NewServer(server.Deps{
		Config:      cfg,
		DB:          db,
		RedisClient: redisClient,
		Broker:      broker,
		Producer:    producer,
		Search:      search,
		Logger:      zlog,
	})

	scheduler := jobs.NewScheduler(zlog.Named("jobs"), 10*time.Minute)
	if err := scheduler.Register(jobs.NewIdempotencyPurgeJob(srv.Chat, zlog.Named("jobs"))); err != nil {
		return err
	}
	if producer != nil {
		for _, job := range jobs.NewDigestJobs(srv.Notifications, zlog.Named("jobs")) {
			if err := scheduler.Register(job); err != nil {
				return err
			}
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		zlog.Info("http server listening", zap.String("port", cfg.Port))
		return srv.Run(gctx, ":"+cfg.Port)
	})
	g.Go(func() error {
		scheduler.Start()
		<-gctx.Done()
		stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return scheduler.Stop(stopCtx)
	})

	return g.Wait()
}
