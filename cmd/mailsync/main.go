package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/brandon/mailsync/internal/archive"
	"github.com/brandon/mailsync/internal/classifier"
	"github.com/brandon/mailsync/internal/config"
	"github.com/brandon/mailsync/internal/email"
	"github.com/brandon/mailsync/internal/notify"
	"github.com/brandon/mailsync/internal/processor"
	"github.com/brandon/mailsync/internal/report"
	"github.com/brandon/mailsync/internal/store"
	"github.com/brandon/mailsync/internal/sync"
)

const shutdownTimeout = 30 * time.Second

var (
	version     = "dev"
	showVersion = flag.Bool("version", false, "Show version information")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("mailsync version %s\n", version)
		os.Exit(0)
	}
	// Set up logging
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		logger.WithError(err).Fatal("Invalid configuration")
	}

	// Set log level
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	logger.WithFields(logrus.Fields{
		"version":  version,
		"accounts": cfg.AccountIDs(),
	}).Info("Starting mailsync")

	reporter, err := report.New(cfg.SentryDSN, version, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize error reporting")
	}
	defer reporter.Flush(2 * time.Second)

	// Initialize document store
	db, err := store.OpenDB(cfg.StorePath, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to open document store")
	}
	docStore := store.NewStore(db, logger)
	defer docStore.Close()

	archiver, err := archive.New(cfg.Archive)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize archive")
	}

	dispatcher := notify.FromConfig(cfg.Notify, logger)
	defer dispatcher.Close()

	proc := processor.New(processor.Deps{
		Store:        docStore,
		Oracle:       classifier.New(cfg.Classifier, logger),
		Notifier:     dispatcher,
		Archiver:     archiver,
		Reporter:     reporter,
		Logger:       logger,
		MaxBodyChars: cfg.Classifier.MaxBodyChars,
	})

	sessions := email.NewAccountManager(email.IMAPDialer(logger), logger)
	defer sessions.Close()

	manager := sync.NewManager(cfg, sessions, proc, reporter, logger)

	// Set up signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		manager.Run(ctx)
		close(done)
	}()

	// Wait for shutdown signal or for every account to stop
	select {
	case sig := <-sigChan:
		logger.WithField("signal", sig).Info("Received shutdown signal")
		cancel()
		// Logging out unblocks sessions waiting on the server.
		go sessions.Close()
		select {
		case <-done:
		case <-time.After(shutdownTimeout):
			logger.Warn("Timed out waiting for accounts to stop")
		}
	case <-done:
		logger.Warn("All accounts stopped")
	}

	manager.LogStatuses()
	logger.Info("Shutting down mailsync")
}
