package capture

import (
	"context"
	"sync"

	"tryonapp/models"
)

type delivery struct {
	image     *models.CapturedImage
	cancelled bool
}

type pendingCapture struct {
	source models.CaptureSource
	aspect *models.AspectRatio
	ch     chan delivery
}

// Inbox is a Provider fed by a remote device: a capture call blocks until
// the device uploads an image with Deliver or gives up with Cancel.
type Inbox struct {
	mu      sync.Mutex
	denied  bool
	pending *pendingCapture
}

func NewInbox() *Inbox {
	return &Inbox{}
}

// SetPermission records the device's answer to the permission prompt.
func (i *Inbox) SetPermission(granted bool) {
	i.mu.Lock()
	i.denied = !granted
	i.mu.Unlock()
}

func (i *Inbox) RequestPermission(ctx context.Context, source models.CaptureSource) (bool, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	return !i.denied, nil
}

func (i *Inbox) CaptureViaCamera(ctx context.Context) (*models.CapturedImage, error) {
	return i.wait(ctx, models.SourceCamera, nil)
}

func (i *Inbox) PickFromGallery(ctx context.Context, aspect *models.AspectRatio) (*models.CapturedImage, error) {
	return i.wait(ctx, models.SourceGallery, aspect)
}

// Pending reports the source of the capture currently waiting for an upload.
func (i *Inbox) Pending() (models.CaptureSource, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.pending == nil {
		return "", false
	}
	return i.pending.source, true
}

// Deliver hands img to the waiting capture. It reports false when nothing
// is waiting.
func (i *Inbox) Deliver(img *models.CapturedImage) bool {
	return i.resolve(delivery{image: img})
}

// Cancel ends the waiting capture as a user cancel.
func (i *Inbox) Cancel() bool {
	return i.resolve(delivery{cancelled: true})
}

func (i *Inbox) resolve(d delivery) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.pending == nil {
		return false
	}
	i.pending.ch <- d
	i.pending = nil
	return true
}

func (i *Inbox) wait(ctx context.Context, source models.CaptureSource, aspect *models.AspectRatio) (*models.CapturedImage, error) {
	const op = "capture.inbox"
	i.mu.Lock()
	if i.pending != nil {
		// a newer request supersedes the one still waiting
		i.pending.ch <- delivery{cancelled: true}
	}
	p := &pendingCapture{source: source, aspect: aspect, ch: make(chan delivery, 1)}
	i.pending = p
	i.mu.Unlock()

	select {
	case d := <-p.ch:
		if d.cancelled || d.image == nil {
			return nil, cancelled(op)
		}
		img := *d.image
		img.Source = source
		return Normalize(&img, aspect)
	case <-ctx.Done():
		i.mu.Lock()
		if i.pending == p {
			i.pending = nil
		}
		i.mu.Unlock()
		return nil, cancelled(op)
	}
}
