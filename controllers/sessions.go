package controllers

import (
	"context"
	"fmt"
	"time"

	"tryonapp/capture"
	"tryonapp/config"
	"tryonapp/models"
	"tryonapp/services"
	"tryonapp/tryon"

	"github.com/rs/zerolog"
)

const notifyTimeout = 10 * time.Second

// SessionFactory builds the per-user controller options for the gateway.
// Catalog is shared between users; processing and history go through an
// API client carrying the user's own token unless Processor is set.
type SessionFactory struct {
	APIURL     string
	APITimeout time.Duration
	Catalog    services.CatalogServiceProvider
	// Processor replaces the per-user processing client when set.
	Processor services.TryOnServiceProvider

	Storage       services.AWSServiceProvider
	Bucket        string
	GalleryPrefix string

	Notifier     services.Notifier
	HistoryLimit int
	Logger       zerolog.Logger
}

// NewSessionFactory wires storage, the cached catalog and the configured
// processing backend. cleanup releases the catalog cache.
func NewSessionFactory(ctx context.Context, cfg *config.Config, notifier services.Notifier, logger zerolog.Logger) (factory *SessionFactory, cleanup func(), err error) {
	factory = &SessionFactory{
		APIURL:        cfg.APIURL,
		APITimeout:    cfg.APITimeout,
		GalleryPrefix: cfg.GalleryPrefix,
		Notifier:      notifier,
		HistoryLimit:  cfg.HistoryLimit,
		Logger:        logger,
	}

	if cfg.StorageEnabled() {
		awsService := &services.AWSService{}
		if err := awsService.InitClient(ctx, cfg.R2AccountID, cfg.R2AccessKeyID, cfg.R2AccessKeySecret); err != nil {
			return nil, nil, fmt.Errorf("failed to initialize storage: %w", err)
		}
		factory.Storage = awsService
		factory.Bucket = cfg.R2BucketName
	}

	// the catalog is public, so one anonymous client serves every user
	catalogClient := services.NewAPIClient(cfg.APIURL, cfg.APITimeout, services.NewStaticToken(""), logger)
	catalogCache, err := services.NewCatalogCache(services.NewCatalogService(catalogClient), cfg.CatalogTTL, logger)
	if err != nil {
		return nil, nil, err
	}
	factory.Catalog = catalogCache

	if cfg.ProcessingBackend == config.BackendGemini {
		client, err := services.NewGeminiClient(ctx, cfg.GoogleAPIKey)
		if err != nil {
			catalogCache.Close()
			return nil, nil, fmt.Errorf("failed to create gemini client: %w", err)
		}
		factory.Processor = &services.GeminiTryOnService{
			Generator:  client.Models,
			Model:      cfg.GeminiModel,
			Catalog:    catalogCache,
			Storage:    factory.Storage,
			BucketName: cfg.R2BucketName,
			Prefix:     cfg.GalleryPrefix + "/results",
			Logger:     logger.With().Str("backend", config.BackendGemini).Logger(),
		}
	}
	return factory, func() { catalogCache.Close() }, nil
}

func (f *SessionFactory) Build(userID string, tokens *services.StaticToken) (tryon.Options, *capture.Inbox, error) {
	logger := f.Logger.With().Str("user_id", userID).Logger()
	client := services.NewAPIClient(f.APIURL, f.APITimeout, tokens, logger)

	var processor services.TryOnServiceProvider = services.NewTryOnService(client)
	if f.Processor != nil {
		processor = f.Processor
	}

	inbox := capture.NewInbox()
	mux := &capture.Mux{Camera: inbox, Gallery: inbox}
	if f.Storage != nil && f.Bucket != "" {
		mux.Gallery = &capture.BucketGallery{
			Storage: f.Storage,
			Bucket:  f.Bucket,
			Prefix:  f.GalleryPrefix,
			UserID:  userID,
		}
	}

	opts := tryon.Options{
		Capture:      mux,
		Catalog:      f.Catalog,
		Processor:    processor,
		History:      services.NewHistoryService(client),
		HistoryLimit: f.HistoryLimit,
		Logger:       logger,
		OnNotice: func(err error) {
			logger.Info().Err(err).Msg("session notice")
		},
	}
	if f.Notifier != nil {
		notifier := f.Notifier
		opts.OnSettle = func(s models.TryOnSession) {
			notifySettled(notifier, logger, userID, s)
		}
	}
	return opts, inbox, nil
}

// SettleMessage is the push title and body for a finished submission.
func SettleMessage(s models.TryOnSession) (string, string, map[string]string) {
	data := map[string]string{
		"session_id": s.ID,
		"phase":      string(s.Phase),
	}
	if s.Phase == models.PhaseResultReady && s.Result != nil {
		data["result_id"] = s.Result.ID
		data["result_image_url"] = s.Result.ResultImageURL
		return "Your try-on is ready", s.Result.ProductName, data
	}
	message := "Something went wrong, please try again"
	if s.LastError != nil && s.LastError.Message != "" {
		message = s.LastError.Message
	}
	return "Try-on failed", message, data
}

func notifySettled(notifier services.Notifier, logger zerolog.Logger, userID string, s models.TryOnSession) {
	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()
	title, body, data := SettleMessage(s)
	if err := notifier.Notify(ctx, userID, title, body, data); err != nil {
		logger.Warn().Err(err).Msg("failed to push try-on result")
	}
}
