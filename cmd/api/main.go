package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"docassist/internal/app"
	"docassist/internal/config"
	"docassist/internal/server"
	"docassist/internal/util"
	"docassist/pkg/ai"
	"docassist/pkg/convstore"
	"docassist/pkg/storage"
	"docassist/pkg/store"
	"docassist/pkg/taskqueue"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := util.InitLogger(cfg.LogLevel)

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
	signer, err := taskqueue.NewTokenSigner(cfg.TaskSecret)
	if err != nil {
		util.Fatal("failed to init task token signer", "err", err)
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

	httpServer, err := server.New(server.Config{
		App:    appCore,
		Status: status,
		Signer: signer,
	})
	if err != nil {
		util.Fatal("failed to init server", "err", err)
	}

	worker, err := taskqueue.NewPushWorker(taskqueue.PushWorkerConfig{
		Dispatcher: dispatcher,
		BaseURL:    cfg.WorkerBaseURL,
		Signer:     signer,
	})
	if err != nil {
		util.Fatal("failed to init push worker", "err", err)
	}
	if err := worker.Start(context.Background()); err != nil {
		util.Fatal("failed to start push worker", "err", err)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("api server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "err", err)
	}
}
