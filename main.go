package main

import (
	"context"
	"log"
	"time"

	"mailsync/internal/ai"
	"mailsync/internal/columns"
	"mailsync/internal/domain"
	"mailsync/internal/enrichment"
	"mailsync/internal/httpapi"
	"mailsync/internal/movecoordinator"
	"mailsync/internal/provider/gmail"
	"mailsync/internal/search"
	"mailsync/internal/secretbox"
	"mailsync/internal/snooze"
	"mailsync/internal/store"
	"mailsync/internal/sync"
	"mailsync/pkg/config"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	cfg := config.Load()

	db, err := gorm.Open(postgres.Open(cfg.DatabaseDSN), &gorm.Config{})
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	if err := db.AutoMigrate(&domain.User{}, &domain.Mailbox{}, &domain.Message{}, &domain.Attachment{}, &domain.Column{}); err != nil {
		log.Fatal("Failed to migrate database:", err)
	}

	users := store.NewUserStore(db)
	mailboxes := store.NewMailboxStore(db)
	messages := store.NewMessageStore(db)
	attachments := store.NewAttachmentStore(db)
	columnStore := store.NewColumnStore(db)

	box, err := secretbox.New(cfg.EncryptionKey, "mailsync-tokens")
	if err != nil {
		log.Fatal("Failed to initialize secret box:", err)
	}

	mailProvider := gmail.New(cfg.GoogleClientID, cfg.GoogleClientSecret)

	var aiAdapter ai.Adapter
	switch cfg.AIProvider {
	case "ollama":
		aiAdapter = ai.NewOllamaAdapter(cfg.OllamaBaseURL, cfg.OllamaModel, cfg.OllamaEmbeddingModel)
	default:
		primary := ai.NewGeminiAdapter(cfg.GeminiAPIKey, cfg.AIModel)
		if cfg.OllamaBaseURL != "" {
			secondary := ai.NewOllamaAdapter(cfg.OllamaBaseURL, cfg.OllamaModel, cfg.OllamaEmbeddingModel)
			aiAdapter = ai.NewFallbackAdapter(primary, secondary)
		} else {
			aiAdapter = primary
		}
	}

	defaults := sync.DefaultConfig()
	syncCfg := sync.Config{
		FullSyncMaxMessages: cfg.SyncMaxMessagesPerFullSync,
		PageSize:            defaults.PageSize,
		HydrateConcurrency:  defaults.HydrateConcurrency,
		WatchdogThreshold:   time.Duration(cfg.SyncWatchdogMinutes) * time.Minute,
		TokenNearExpiry:     time.Duration(cfg.SyncNearExpiryMinutes) * time.Minute,
		OnDemandNearExpiry:  time.Duration(cfg.SyncOnDemandNearExpiryMinutes) * time.Minute,
		RetryBackoff:        cfg.RetryBackoffSchedule,
		MaxRetries:          defaults.MaxRetries,
	}
	engine := sync.NewEngine(mailboxes, messages, attachments, mailProvider, box, syncCfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	engine.RunLoops(ctx, cfg.SyncTokenRefreshTickInterval, cfg.SyncIncrementalTickInterval, cfg.SyncRetryTickInterval)

	mover := movecoordinator.NewCoordinator(messages, columnStore, mailboxes, mailProvider, box, engine)
	columnMgr := columns.NewManager(columnStore)
	fuzzy := search.NewService(messages)
	semantic := search.NewSemanticService(messages, aiAdapter)
	suggest := search.NewSuggestionService(messages)

	snoozeScheduler := snooze.NewScheduler(messages, cfg.SnoozeTickInterval)
	snoozeScheduler.Start()

	enrichmentWorker := enrichment.NewWorker(mailboxes, messages, aiAdapter, cfg.EnrichmentTickInterval, cfg.EnrichmentBatchSize)
	enrichmentWorker.Start(ctx)

	server := httpapi.NewServer(httpapi.Deps{
		Users:             users,
		Mailboxes:         mailboxes,
		Messages:          messages,
		Attachments:       attachments,
		Columns:           columnStore,
		Provider:          mailProvider,
		Box:               box,
		AI:                aiAdapter,
		Engine:            engine,
		Mover:             mover,
		ColumnMgr:         columnMgr,
		Fuzzy:             fuzzy,
		Semantic:          semantic,
		Suggest:           suggest,
		GoogleRedirectURI: cfg.GoogleRedirectURI,
	})

	log.Printf("Server starting on port %s", cfg.Port)
	if err := server.Start(":" + cfg.Port); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}
