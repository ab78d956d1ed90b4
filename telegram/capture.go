package telegram

import (
	"context"
	"sync"

	"tryonapp/capture"
	"tryonapp/models"
)

// CaptureProvider takes photos sent to the chat. Only allow-listed users may
// capture; /cancel ends the wait.
type CaptureProvider struct {
	*capture.Inbox

	mu       sync.Mutex
	admins   []string
	username string
}

func NewCaptureProvider(admins []string) *CaptureProvider {
	return &CaptureProvider{Inbox: capture.NewInbox(), admins: admins}
}

// SetSender records who wrote last in the chat.
func (p *CaptureProvider) SetSender(username string) {
	p.mu.Lock()
	p.username = username
	p.mu.Unlock()
}

func (p *CaptureProvider) Allowed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return IsAllowed(p.admins, p.username)
}

func (p *CaptureProvider) RequestPermission(ctx context.Context, source models.CaptureSource) (bool, error) {
	return p.Allowed(), nil
}
