// Package telegram runs the try-on flow from a Telegram chat.
package telegram

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"tryonapp/capture"
	"tryonapp/models"
	"tryonapp/services"
	"tryonapp/tryon"

	"github.com/getsentry/sentry-go"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

const sessionIdleTTL = 2 * time.Hour

// BotAPI is the part of *tgbotapi.BotAPI the bot uses.
type BotAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetFileDirectURL(fileID string) (string, error)
}

// TokenMinter returns a backend bearer token for a chat user.
type TokenMinter func(userID string) (string, error)

type Bot struct {
	api       BotAPI
	build     tryon.Factory
	mint      TokenMinter
	admins    []string
	registry  *tryon.Registry
	logger    zerolog.Logger
	FetchFile func(ctx context.Context, url string) ([]byte, error)

	mu       sync.Mutex
	captures map[int64]*CaptureProvider
	wg       sync.WaitGroup
}

// NewBot keeps one try-on session per chat. build supplies the catalog,
// processing and history wiring; the bot adds the chat capture provider
// and result delivery.
func NewBot(api BotAPI, build tryon.Factory, mint TokenMinter, admins []string, logger zerolog.Logger) *Bot {
	b := &Bot{
		api:       api,
		build:     build,
		mint:      mint,
		admins:    admins,
		logger:    logger,
		FetchFile: services.ReadFileFromUrl,
		captures:  make(map[int64]*CaptureProvider),
	}
	b.registry = tryon.NewRegistry(b.factory)
	b.registry.OnDrop(b.forget)
	return b
}

// forget drops the capture provider of a chat whose session is gone.
func (b *Bot) forget(userID string) {
	chatID, err := ParseChatUserID(userID)
	if err != nil {
		return
	}
	b.mu.Lock()
	delete(b.captures, chatID)
	b.mu.Unlock()
}

func (b *Bot) Registry() *tryon.Registry {
	return b.registry
}

func (b *Bot) factory(userID string, tokens *services.StaticToken) (tryon.Options, *capture.Inbox, error) {
	chatID, err := ParseChatUserID(userID)
	if err != nil {
		return tryon.Options{}, nil, err
	}
	opts, _, err := b.build(userID, tokens)
	if err != nil {
		return tryon.Options{}, nil, err
	}
	provider := NewCaptureProvider(b.admins)
	b.mu.Lock()
	b.captures[chatID] = provider
	b.mu.Unlock()

	opts.Capture = provider
	logger := b.logger.With().Int64("chat_id", chatID).Logger()
	opts.OnNotice = func(err error) {
		logger.Info().Err(err).Msg("session notice")
	}
	previous := opts.OnSettle
	opts.OnSettle = func(s models.TryOnSession) {
		if previous != nil {
			previous(s)
		}
		b.deliverResult(chatID, s)
	}
	return opts, provider.Inbox, nil
}

func (b *Bot) captureFor(chatID int64) *CaptureProvider {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.captures[chatID]
}

// Run handles updates until ctx ends or the channel closes.
func (b *Bot) Run(ctx context.Context, updates <-chan tgbotapi.Update) {
	evict := time.NewTicker(10 * time.Minute)
	defer evict.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-evict.C:
			if n := b.registry.Evict(sessionIdleTTL); n > 0 {
				b.logger.Debug().Int("sessions", n).Msg("evicted idle chat sessions")
			}
		case update, ok := <-updates:
			if !ok {
				return
			}
			b.HandleUpdate(ctx, update)
		}
	}
}

// Wait blocks until background captures started by the bot have returned.
func (b *Bot) Wait() {
	b.wg.Wait()
}

func (b *Bot) Close() {
	b.registry.Close()
	b.wg.Wait()
}

func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	msg := update.Message
	if msg == nil || msg.Chat == nil {
		return
	}
	chatID := msg.Chat.ID
	username := ""
	if msg.From != nil {
		username = msg.From.UserName
	}
	logger := b.logger.With().Int64("chat_id", chatID).Str("username", username).Logger()

	userID := ChatUserID(chatID)
	token, err := b.mint(userID)
	if err != nil {
		logger.Error().Err(err).Msg("failed to mint backend token")
		sentry.CaptureException(err)
		b.reply(chatID, "Service is not available, please try again a bit later")
		return
	}
	session, err := b.registry.Get(userID, token)
	if err != nil {
		logger.Error().Err(err).Msg("failed to open session")
		sentry.CaptureException(err)
		b.reply(chatID, "Service is not available, please try again a bit later")
		return
	}
	if provider := b.captureFor(chatID); provider != nil {
		provider.SetSender(username)
	}

	if len(msg.Photo) > 0 {
		b.handlePhoto(ctx, chatID, session, msg.Photo)
		return
	}

	args := strings.TrimSpace(msg.CommandArguments())
	ctrl := session.Controller
	switch msg.Command() {
	case "start", "help":
		b.reply(chatID, helpText)
	case "catalog":
		filter, err := models.ParseCategoryFilter(args)
		if err != nil {
			b.reply(chatID, "Unknown category. Try Top, Bottom, Dress or Jewelry.")
			return
		}
		if err := ctrl.LoadCatalog(ctx, filter); err != nil {
			b.reply(chatID, "Could not load the catalog: "+FormatError(err))
			return
		}
		b.reply(chatID, FormatProducts(ctrl.Category(), ctrl.Products()))
	case "product":
		if args == "" {
			b.reply(chatID, "Usage: /product <id>")
			return
		}
		if _, err := ctrl.SelectProductByID(args); err != nil {
			b.reply(chatID, "Cannot select that product: "+FormatError(err)+"\nLoad the list with /catalog first.")
			return
		}
		b.reply(chatID, FormatSession(ctrl.Snapshot()))
	case "camera":
		b.startCapture(chatID, session, models.SourceCamera)
	case "gallery":
		b.startCapture(chatID, session, models.SourceGallery)
	case "cancel":
		if !session.Inbox.Cancel() {
			b.reply(chatID, "Nothing to cancel.")
		}
	case "tryon":
		if err := ctrl.Submit(); err != nil {
			b.reply(chatID, "Cannot start yet: "+FormatError(err)+"\n"+FormatSession(ctrl.Snapshot()))
			return
		}
		b.reply(chatID, "Working on your try-on...")
	case "reset":
		ctrl.Reset()
		b.reply(chatID, FormatSession(ctrl.Snapshot()))
	case "history":
		if err := ctrl.LoadHistory(ctx, ctrl.HistoryLimit()); err != nil {
			b.reply(chatID, "Could not load history: "+FormatError(err))
			return
		}
		b.reply(chatID, FormatHistory(ctrl.History(), ctrl.HistoryTotal()))
	case "":
		b.reply(chatID, FormatSession(ctrl.Snapshot()))
	default:
		b.reply(chatID, "Unknown command.\n"+helpText)
	}
}

func (b *Bot) startCapture(chatID int64, session *tryon.Session, source models.CaptureSource) {
	if _, pending := session.Inbox.Pending(); pending {
		b.reply(chatID, "Already waiting for a photo. Send it or /cancel.")
		return
	}
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		err := session.Controller.SelectCaptureSource(context.Background(), source)
		switch models.KindOf(err) {
		case "":
			b.reply(chatID, FormatSession(session.Controller.Snapshot()))
		case models.KindCancelled:
			b.reply(chatID, "Capture cancelled.")
		case models.KindPermissionDenied:
			b.reply(chatID, "You are not allowed to send photos to this bot.")
		case models.KindStaleResponse:
			// the session was reset while waiting
		default:
			b.reply(chatID, "Capture failed: "+FormatError(err))
		}
	}()
	if source == models.SourceCamera {
		b.reply(chatID, "Take a photo and send it here, or /cancel.")
	} else {
		b.reply(chatID, "Send a photo from your gallery, or /cancel.")
	}
}

func (b *Bot) handlePhoto(ctx context.Context, chatID int64, session *tryon.Session, sizes []tgbotapi.PhotoSize) {
	photo, _ := LargestPhoto(sizes)
	url, err := b.api.GetFileDirectURL(photo.FileID)
	if err != nil {
		b.logger.Warn().Err(err).Int64("chat_id", chatID).Msg("failed to resolve photo")
		b.reply(chatID, "Could not read that photo, please send it again.")
		return
	}
	data, err := b.FetchFile(ctx, url)
	if err != nil {
		b.logger.Warn().Err(err).Int64("chat_id", chatID).Msg("failed to download photo")
		b.reply(chatID, "Could not read that photo, please send it again.")
		return
	}
	img := &models.CapturedImage{
		URI:      "tg://photo/" + photo.FileUniqueID,
		FileName: "photo.jpg",
		Data:     data,
	}
	if session.Inbox.Deliver(img) {
		return
	}

	// a photo without a pending capture replaces the image directly
	if provider := b.captureFor(chatID); provider != nil && !provider.Allowed() {
		b.reply(chatID, "You are not allowed to send photos to this bot.")
		return
	}
	img.Source = models.SourceGallery
	normalized, err := capture.Normalize(img, nil)
	if err != nil {
		b.reply(chatID, "That file is not a supported image.")
		return
	}
	if err := session.Controller.OnImageCaptured(*normalized); err != nil {
		b.reply(chatID, "Cannot take a photo right now: "+FormatError(err))
		return
	}
	b.reply(chatID, FormatSession(session.Controller.Snapshot()))
}

func (b *Bot) deliverResult(chatID int64, s models.TryOnSession) {
	if s.Phase == models.PhaseResultReady && s.Result != nil {
		photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileURL(s.Result.ResultImageURL))
		photo.Caption = ResultCaption(*s.Result)
		photo.ParseMode = tgbotapi.ModeMarkdown
		if _, err := b.api.Send(photo); err != nil {
			b.logger.Warn().Err(err).Int64("chat_id", chatID).Msg("failed to send result photo")
			b.reply(chatID, fmt.Sprintf("%s\n%s", ResultCaption(*s.Result), s.Result.ResultImageURL))
		}
		return
	}
	b.reply(chatID, FormatSession(s))
}

func (b *Bot) reply(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Warn().Err(err).Int64("chat_id", chatID).Msg("failed to send message")
	}
}
