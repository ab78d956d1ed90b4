package telegram

import (
	"fmt"
	"strconv"
	"strings"

	"tryonapp/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const chatUserPrefix = "tg:"

const helpText = `Virtual try-on
/catalog <category> list products (Top, Bottom, Dress, Jewelry)
/product <id> pick a product
/camera or /gallery then send a photo
/tryon render the try-on
/history your past try-ons
/reset start over
/cancel stop waiting for a photo`

func EscapeMessage(message string) string {
	r := strings.NewReplacer(
		"_", "\\_",
		"*", "\\*",
		"[", "\\[",
		"`", "\\`",
	)
	return r.Replace(message)
}

// ChatUserID is the session key of a chat.
func ChatUserID(chatID int64) string {
	return chatUserPrefix + strconv.FormatInt(chatID, 10)
}

func ParseChatUserID(userID string) (int64, error) {
	raw, ok := strings.CutPrefix(userID, chatUserPrefix)
	if !ok {
		return 0, fmt.Errorf("not a chat user id: %q", userID)
	}
	return strconv.ParseInt(raw, 10, 64)
}

// IsAllowed reports whether username may send photos. An empty allow-list
// admits everyone.
func IsAllowed(admins []string, username string) bool {
	if len(admins) == 0 {
		return true
	}
	username = strings.TrimPrefix(username, "@")
	if username == "" {
		return false
	}
	for _, admin := range admins {
		if strings.EqualFold(strings.TrimPrefix(admin, "@"), username) {
			return true
		}
	}
	return false
}

// LargestPhoto picks the biggest rendition Telegram sent.
func LargestPhoto(sizes []tgbotapi.PhotoSize) (tgbotapi.PhotoSize, bool) {
	if len(sizes) == 0 {
		return tgbotapi.PhotoSize{}, false
	}
	best := sizes[0]
	for _, size := range sizes[1:] {
		if size.Width*size.Height > best.Width*best.Height {
			best = size
		}
	}
	return best, true
}

func FormatProducts(filter models.CategoryFilter, products []models.Product) string {
	if len(products) == 0 {
		return fmt.Sprintf("No products in %s.", filter.Key())
	}
	var b strings.Builder
	fmt.Fprintf(&b, "*%s* (%d)\n", filter.Key(), len(products))
	for _, p := range products {
		fmt.Fprintf(&b, "`%s` %s, %s\n", p.ID, EscapeMessage(p.Name), p.Category)
	}
	b.WriteString("Pick one with /product <id>")
	return b.String()
}

func FormatHistory(entries []models.HistoryEntry, total int) string {
	if len(entries) == 0 {
		return "No try-ons yet."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Last %d of %d try-ons:\n", len(entries), total)
	for _, e := range entries {
		fmt.Fprintf(&b, "🕐 %s %s\n%s\n", e.CreatedAt.Format("2006-01-02 15:04"), EscapeMessage(e.ProductName), e.ResultImageURL)
	}
	return b.String()
}

// FormatSession tells the user what the session still needs.
func FormatSession(s models.TryOnSession) string {
	switch s.Phase {
	case models.PhaseCapturingViaCamera:
		return "Waiting for your photo. Send it now or /cancel."
	case models.PhaseReadyToSubmit:
		return fmt.Sprintf("Ready: %s. Send /tryon to render it.", EscapeMessage(s.SelectedProduct.Name))
	case models.PhaseSubmitting:
		return "Working on your try-on..."
	case models.PhaseResultReady:
		return ResultCaption(*s.Result)
	case models.PhaseFailed:
		return "Try-on failed: " + FormatError(s.LastError) + "\nSend /tryon to retry or /reset."
	}
	switch {
	case s.CapturedImage == nil && s.SelectedProduct == nil:
		return "Pick a product with /catalog and send a photo with /camera or /gallery."
	case s.CapturedImage == nil:
		return fmt.Sprintf("Selected %s. Now send a photo with /camera or /gallery.", EscapeMessage(s.SelectedProduct.Name))
	default:
		return "Photo received. Now pick a product with /catalog."
	}
}

func ResultCaption(r models.TryOnResult) string {
	return fmt.Sprintf("%s is ready (%.1fs)", EscapeMessage(r.ProductName), r.ProcessingDuration)
}

func FormatError(err error) string {
	if err == nil {
		return "unknown error"
	}
	e := models.AsError("", err)
	if e.Message != "" {
		return EscapeMessage(e.Message)
	}
	return EscapeMessage(e.Error())
}
