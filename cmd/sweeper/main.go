package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"docassist/internal/app"
	"docassist/internal/config"
	"docassist/internal/util"
	"docassist/pkg/ai"
	"docassist/pkg/convstore"
	"docassist/pkg/storage"
	"docassist/pkg/store"
	"docassist/pkg/taskqueue"
)

func main() {
	once := flag.Bool("once", false, "run a single sweep and exit")
	flag.Parse()

	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: failed to load config: %v\n", err)
		os.Exit(1)
	}

	util.InitLogger(cfg.LogLevel)

	meta, err := store.NewGormStore(cfg.DatabaseURL)
	if err != nil {
		util.Fatal("failed to init metadata store", "err", err)
	}
	conv, err := convstore.NewMongoStore(cfg.MongoURI, cfg.MongoDatabase)
	if err != nil {
		util.Fatal("failed to init conversation store", "err", err)
	}
	objects, err := storage.NewMinioStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.Bucket, cfg.MinioUseSSL)
	if err != nil {
		util.Fatal("failed to init object store", "err", err)
	}
	provider := ai.NewOpenAIClient(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.OpenAIModel)

	status, err := taskqueue.NewStatusStore(cfg.RedisAddr, cfg.RedisPassword, 0)
	if err != nil {
		util.Fatal("failed to init task status store", "err", err)
	}
	dispatcher, err := taskqueue.NewRabbitDispatcher(cfg.AMQPURL, cfg.TaskQueue, status)
	if err != nil {
		util.Fatal("failed to init task dispatcher", "err", err)
	}

	appCore, err := app.New(app.Config{
		Meta:          meta,
		Conv:          conv,
		Objects:       objects,
		Provider:      provider,
		Tasks:         dispatcher,
		Bucket:        cfg.Bucket,
		AssistantTTL:  time.Duration(cfg.AssistantTTLMinutes) * time.Minute,
		SummaryWindow: cfg.SummaryWindow,
		ScratchDir:    cfg.ScratchDir,
	})
	if err != nil {
		util.Fatal("failed to init app", "err", err)
	}

	if *once {
		runSweep(appCore)
		return
	}

	schedule := cfg.SweepSchedule
	if schedule == "" {
		schedule = "*/15 * * * *"
	}
	scheduler := cron.New()
	if _, err := scheduler.AddFunc(schedule, func() { runSweep(appCore) }); err != nil {
		util.Fatal("invalid sweep schedule", "schedule", schedule, "err", err)
	}
	scheduler.Start()
	slog.Info("sweeper running", "schedule", schedule)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx := scheduler.Stop()
	<-ctx.Done()
	slog.Info("sweeper stopped")
}

func runSweep(appCore *app.App) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	expired, err := appCore.SweepExpired(ctx)
	if err != nil {
		slog.Error("sweep failed", "err", err)
		return
	}
	slog.Info("sweep finished", "expired", expired)
}
