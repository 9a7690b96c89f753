// Package telegram is the chat front end of the diagnosis feature.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"wheatleaf_backend/internal/feature/diagnosis/domain"
	"wheatleaf_backend/internal/feature/diagnosis/domain/entity"
	"wheatleaf_backend/internal/feature/diagnosis/usecase"
)

const (
	msgStart = `👋 Hi! I diagnose wheat leaf diseases from photos.

📸 Send me a photo of a single wheat leaf and I will tell you what I see.

📋 Commands:
/check — diagnose a leaf
/labels — list the conditions I recognise
/help — how to take a good photo
/cancel — cancel the current operation`

	msgHelp = `ℹ️ How to use the bot:

1️⃣ Send a photo of one wheat leaf
2️⃣ Wait a few seconds while it is analysed
3️⃣ You get the diagnosis and a recommendation

💡 Tips:
• Shoot in daylight
• Fill the frame with the leaf
• Send uncompressed images as a file for best results`

	msgAwaitingPhoto   = "📸 Send a photo of the wheat leaf."
	msgCancelled       = "❌ Cancelled. Send /check to diagnose another leaf."
	msgSendPhoto       = "📸 Please send a photo of a wheat leaf."
	msgUnknownCommand  = "❓ Unknown command. Use /help."
	msgProcessing      = "⏳ Analysing the image..."
	msgBusy            = "⏳ Still working on your previous image."
	msgNotAPlant       = "🤔 This does not look like a plant leaf. Try another photo."
	msgUnreadable      = "⚠️ I could not read that image. Try sending it as a JPEG or PNG."
	msgTooLarge        = "⚠️ The image is too large. Please send one under 10 MB."
	msgProcessingError = "⚠️ Something went wrong while analysing the image. Please try again later."
)

// BotAPI is the subset of *tgbotapi.BotAPI the bot needs.
type BotAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetFileDirectURL(fileID string) (string, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Diagnoser is the usecase surface the bot drives.
type Diagnoser interface {
	Diagnose(ctx context.Context, imageData []byte, source entity.InputSource) (*entity.Diagnosis, error)
	Labels() []entity.LabelInfo
}

// Bot answers Telegram updates.
type Bot struct {
	api           BotAPI
	uc            Diagnoser
	states        StateStore
	httpClient    *http.Client
	updateTimeout int
	logger        *zap.Logger

	// inflight holds the cancel func of the diagnosis running in each chat on this process.
	mu       sync.Mutex
	inflight map[int64]context.CancelFunc
}

func NewBot(api BotAPI, uc Diagnoser, states StateStore, httpClient *http.Client, updateTimeout int, logger *zap.Logger) *Bot {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if updateTimeout <= 0 {
		updateTimeout = 60
	}
	return &Bot{
		api:           api,
		uc:            uc,
		states:        states,
		httpClient:    httpClient,
		updateTimeout: updateTimeout,
		logger:        logger,
		inflight:      make(map[int64]context.CancelFunc),
	}
}

// Run long-polls for updates until ctx is cancelled, then waits for in-flight messages.
func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = b.updateTimeout

	updates := b.api.GetUpdatesChan(u)

	// in-flight messages finish after shutdown starts
	msgCtx := context.WithoutCancel(ctx)

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil {
				continue
			}
			msg := update.Message
			wg.Go(func() { b.handleMessage(msgCtx, msg) })
		}
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.Chat == nil {
		return
	}

	if msg.IsCommand() {
		b.handleCommand(ctx, msg)
		return
	}

	if len(msg.Photo) > 0 {
		// Telegram sends several sizes; the last is the largest.
		photo := msg.Photo[len(msg.Photo)-1]
		b.handleImage(ctx, msg, photo.FileID, photo.FileSize, entity.SourceCamera)
		return
	}

	if msg.Document != nil && strings.HasPrefix(msg.Document.MimeType, "image/") {
		b.handleImage(ctx, msg, msg.Document.FileID, msg.Document.FileSize, entity.SourceGallery)
		return
	}

	b.reply(msg, msgSendPhoto)
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID

	switch msg.Command() {
	case "start":
		b.cancelInflight(chatID)
		b.setState(ctx, chatID, StateMainMenu)
		b.reply(msg, msgStart)

	case "help":
		b.reply(msg, msgHelp)

	case "check":
		b.setState(ctx, chatID, StateAwaitingPhoto)
		b.reply(msg, msgAwaitingPhoto)

	case "labels":
		b.reply(msg, formatLabels(b.uc.Labels()))

	case "cancel":
		b.cancelInflight(chatID)
		b.setState(ctx, chatID, StateMainMenu)
		b.reply(msg, msgCancelled)

	default:
		b.reply(msg, msgUnknownCommand)
	}
}

func (b *Bot) handleImage(ctx context.Context, msg *tgbotapi.Message, fileID string, fileSize int, source entity.InputSource) {
	chatID := msg.Chat.ID

	ok, err := b.states.BeginProcessing(ctx, chatID)
	if err != nil {
		b.logger.Error("failed to update chat state", zap.Int64("chat_id", chatID), zap.Error(err))
		b.reply(msg, msgProcessingError)
		return
	}
	if !ok {
		b.reply(msg, msgBusy)
		return
	}

	// /cancel cancels runCtx; the lock is held until this handler returns.
	runCtx, cancel := context.WithCancel(ctx)
	b.trackInflight(chatID, cancel)
	defer func() {
		b.untrackInflight(chatID)
		cancel()
		b.setState(ctx, chatID, StateMainMenu)
		if err := b.states.EndProcessing(ctx, chatID); err != nil {
			b.logger.Error("failed to release processing lock", zap.Int64("chat_id", chatID), zap.Error(err))
		}
	}()

	if fileSize > usecase.MaxImageSize {
		b.reply(msg, msgTooLarge)
		return
	}

	b.reply(msg, msgProcessing)

	imageData, err := b.download(runCtx, fileID)
	if runCtx.Err() != nil {
		b.logger.Info("diagnosis cancelled by user", zap.Int64("chat_id", chatID))
		return
	}
	if err != nil {
		b.logger.Error("failed to download image", zap.Int64("chat_id", chatID), zap.Error(err))
		b.reply(msg, msgProcessingError)
		return
	}

	d, err := b.uc.Diagnose(runCtx, imageData, source)
	if runCtx.Err() != nil {
		b.logger.Info("diagnosis cancelled by user", zap.Int64("chat_id", chatID))
		return
	}
	if err != nil {
		b.logger.Warn("diagnosis failed", zap.Int64("chat_id", chatID), zap.Error(err))
		b.reply(msg, errorMessage(err))
		return
	}

	b.logger.Info("leaf diagnosed",
		zap.Int64("chat_id", chatID),
		zap.String("label", d.Prediction.Label.String()),
		zap.Float32("confidence", d.Prediction.Confidence),
		zap.String("source", string(source)),
	)
	b.reply(msg, formatDiagnosis(d))
}

func (b *Bot) download(ctx context.Context, fileID string) ([]byte, error) {
	url, err := b.api.GetFileDirectURL(fileID)
	if err != nil {
		return nil, fmt.Errorf("get file: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download file: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			b.logger.Warn("failed to close download body", zap.Error(err))
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download file: status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, usecase.MaxImageSize+1))
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return data, nil
}

func (b *Bot) trackInflight(chatID int64, cancel context.CancelFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.inflight[chatID] = cancel
}

func (b *Bot) untrackInflight(chatID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.inflight, chatID)
}

func (b *Bot) cancelInflight(chatID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if cancel, ok := b.inflight[chatID]; ok {
		cancel()
	}
}

func (b *Bot) setState(ctx context.Context, chatID int64, state ChatState) {
	if err := b.states.Set(ctx, chatID, state); err != nil {
		b.logger.Error("failed to update chat state", zap.Int64("chat_id", chatID), zap.String("state", string(state)), zap.Error(err))
	}
}

func (b *Bot) reply(to *tgbotapi.Message, text string) {
	msg := tgbotapi.NewMessage(to.Chat.ID, text)
	msg.ReplyToMessageID = to.MessageID
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Error("failed to send message", zap.Int64("chat_id", to.Chat.ID), zap.Error(err))
	}
}

func errorMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrNotAPlant):
		return msgNotAPlant
	case errors.Is(err, domain.ErrEmptyImage), errors.Is(err, domain.ErrInvalidImage):
		return msgUnreadable
	case errors.Is(err, domain.ErrImageTooLarge):
		return msgTooLarge
	default:
		return msgProcessingError
	}
}

func formatDiagnosis(d *entity.Diagnosis) string {
	icon := "🦠"
	if d.Prediction.Label.IsHealthy() {
		icon = "✅"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %s\n", icon, d.Prediction.Label)
	fmt.Fprintf(&sb, "Confidence: %.1f%%\n\n", d.Prediction.Confidence*100)
	sb.WriteString(d.Advice)
	return sb.String()
}

func formatLabels(labels []entity.LabelInfo) string {
	var sb strings.Builder
	sb.WriteString("📋 Conditions I recognise:\n")
	for _, l := range labels {
		fmt.Fprintf(&sb, "\n%d. %s", l.Index+1, l.Label)
	}
	return sb.String()
}
