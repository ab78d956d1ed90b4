// Package tryon drives one user's try-on from image capture to a rendered
// result.
package tryon

import (
	"context"
	"errors"
	"slices"
	"sync"

	"tryonapp/capture"
	"tryonapp/models"
	"tryonapp/services"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const DefaultHistoryLimit = 10

// ErrUnknownProduct is returned when a product id is not in the loaded catalog.
var ErrUnknownProduct = errors.New("product not in catalog")

type Options struct {
	Capture   capture.Provider
	Catalog   services.CatalogServiceProvider
	Processor services.TryOnServiceProvider
	History   services.HistoryServiceProvider

	HistoryLimit  int
	GalleryAspect models.AspectRatio
	Logger        zerolog.Logger

	// OnChange receives a copy of the session after every state change.
	OnChange func(models.TryOnSession)
	// OnNotice receives transient errors that do not change the phase.
	OnNotice func(error)
	// OnSettle is called once per submission that ends in ResultReady or
	// Failed for the current generation.
	OnSettle func(models.TryOnSession)
}

// SessionController owns the try-on state machine. All methods are safe for
// concurrent use. Submissions and history refreshes run in the background
// and are dropped when their generation is no longer current.
type SessionController struct {
	opts Options
	log  zerolog.Logger

	ctx  context.Context
	stop context.CancelFunc
	wg   sync.WaitGroup

	mu         sync.Mutex
	id         string
	generation uint64
	phase      models.Phase
	image      *models.CapturedImage
	product    *models.Product
	lastError  *models.Error
	result     *models.TryOnResult

	// phase to return to when a camera capture ends
	priorPhase    models.Phase
	capturing     bool
	cancelCapture context.CancelFunc
	cancelSubmit  context.CancelFunc

	products       []models.Product
	category       models.CategoryFilter
	catalogSeq     uint64
	catalogApplied uint64

	history        []models.HistoryEntry
	historyTotal   int
	historySeq     uint64
	historyApplied uint64
}

func NewSessionController(opts Options) *SessionController {
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = DefaultHistoryLimit
	}
	if !opts.GalleryAspect.Valid() {
		opts.GalleryAspect = models.DefaultGalleryAspect
	}
	ctx, stop := context.WithCancel(context.Background())
	id := uuid.NewString()
	return &SessionController{
		opts:  opts,
		log:   opts.Logger.With().Str("session_id", id).Logger(),
		ctx:   ctx,
		stop:  stop,
		id:    id,
		phase: models.PhaseIdle,
	}
}

// snapshot must be called with mu held.
func (c *SessionController) snapshot() models.TryOnSession {
	s := models.TryOnSession{
		ID:         c.id,
		Generation: c.generation,
		Phase:      c.phase,
		LastError:  c.lastError,
	}
	if c.image != nil {
		img := *c.image
		s.CapturedImage = &img
	}
	if c.product != nil {
		p := *c.product
		s.SelectedProduct = &p
	}
	// a result kept across a camera capture is hidden until the phase returns
	if c.result != nil && c.phase == models.PhaseResultReady {
		r := *c.result
		s.Result = &r
	}
	return s
}

func (c *SessionController) Snapshot() models.TryOnSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot()
}

func (c *SessionController) Products() []models.Product {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.products)
}

func (c *SessionController) Category() models.CategoryFilter {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.category
}

func (c *SessionController) History() []models.HistoryEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.history)
}

// HistoryTotal is the backend's total count from the last applied page.
func (c *SessionController) HistoryTotal() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.historyTotal
}

func (c *SessionController) HistoryLimit() int {
	return c.opts.HistoryLimit
}

// Wait blocks until background submissions and refreshes have finished.
func (c *SessionController) Wait() {
	c.wg.Wait()
}

// Close orphans all background work and waits for it to return. A capture
// still waiting on its provider is cancelled as well.
func (c *SessionController) Close() {
	c.mu.Lock()
	c.generation++
	if c.cancelSubmit != nil {
		c.cancelSubmit()
		c.cancelSubmit = nil
	}
	if c.cancelCapture != nil {
		c.cancelCapture()
		c.cancelCapture = nil
	}
	c.capturing = false
	if c.phase == models.PhaseCapturingViaCamera {
		c.phase = c.priorPhase
	}
	c.mu.Unlock()
	c.stop()
	c.wg.Wait()
}

func (c *SessionController) changed(s models.TryOnSession) {
	if c.opts.OnChange != nil {
		c.opts.OnChange(s)
	}
}

func (c *SessionController) notice(err error) {
	c.log.Warn().Err(err).Msg("try-on notice")
	if c.opts.OnNotice != nil {
		c.opts.OnNotice(err)
	}
}

// invalid reports a call that the current phase does not allow. These are
// caller bugs and never reach the user.
func (c *SessionController) invalid(op, message string) error {
	err := models.NewError(models.KindInvalidState, op, message)
	c.log.Error().Err(err).Msg("invalid state")
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("session_id", c.id)
		scope.SetTag("op", op)
		sentry.CaptureException(err)
	})
	return err
}

// inputsChanged recomputes the phase after a new image or product. Callers
// hold mu and have ruled out PhaseSubmitting.
func (c *SessionController) inputsChanged() {
	c.result = nil
	c.lastError = nil
	next := models.PhaseFor(c.image != nil, c.product != nil)
	if c.phase == models.PhaseCapturingViaCamera {
		c.priorPhase = next
		return
	}
	c.phase = next
}

// SelectCaptureSource asks the capture provider for an image and blocks
// until the user delivers, cancels or is denied. A cancel leaves the session
// as it was. A denial moves it to Failed with an empty image slot.
func (c *SessionController) SelectCaptureSource(ctx context.Context, source models.CaptureSource) error {
	const op = "tryon.select_capture_source"
	source, err := models.ParseCaptureSource(string(source))
	if err != nil {
		return c.invalid(op, err.Error())
	}

	c.mu.Lock()
	if c.phase == models.PhaseSubmitting {
		c.mu.Unlock()
		return c.invalid(op, "inputs are locked while submitting")
	}
	if c.capturing {
		c.mu.Unlock()
		return models.NewError(models.KindAlreadyInProgress, op, "a capture is already in progress")
	}
	gen := c.generation
	captureCtx, cancel := context.WithCancel(ctx)
	c.capturing = true
	c.cancelCapture = cancel
	c.mu.Unlock()
	defer cancel()

	granted, err := c.opts.Capture.RequestPermission(captureCtx, source)
	if err != nil {
		c.endCapture(gen)
		return c.captureFailed(op, err)
	}
	if !granted {
		return c.permissionDenied(op, gen, source)
	}

	var img *models.CapturedImage
	if source == models.SourceCamera {
		c.mu.Lock()
		if gen != c.generation || c.phase == models.PhaseSubmitting {
			c.mu.Unlock()
			c.endCapture(gen)
			return models.NewError(models.KindStaleResponse, op, "session changed before the camera opened")
		}
		c.priorPhase = c.phase
		c.phase = models.PhaseCapturingViaCamera
		s := c.snapshot()
		c.mu.Unlock()
		c.changed(s)

		img, err = c.opts.Capture.CaptureViaCamera(captureCtx)
	} else {
		aspect := c.opts.GalleryAspect
		img, err = c.opts.Capture.PickFromGallery(captureCtx, &aspect)
	}

	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		c.log.Debug().Str("source", string(source)).Msg("dropping capture from an old generation")
		return models.NewError(models.KindStaleResponse, op, "session was reset during capture")
	}
	c.capturing = false
	c.cancelCapture = nil
	restored := false
	if c.phase == models.PhaseCapturingViaCamera {
		c.phase = c.priorPhase
		restored = true
	}
	if err == nil && img == nil {
		err = models.NewError(models.KindCancelled, op, "capture returned no image")
	}
	if err == nil {
		err = img.Validate()
	}
	if err == nil && c.phase == models.PhaseSubmitting {
		c.mu.Unlock()
		return c.invalid(op, "image arrived while submitting")
	}
	if err != nil {
		s := c.snapshot()
		c.mu.Unlock()
		if restored {
			c.changed(s)
		}
		if models.KindOf(err) == models.KindCancelled {
			return err
		}
		return c.captureFailed(op, err)
	}
	c.image = img
	c.inputsChanged()
	s := c.snapshot()
	c.mu.Unlock()
	c.changed(s)
	return nil
}

func (c *SessionController) endCapture(gen uint64) {
	c.mu.Lock()
	if gen == c.generation {
		c.capturing = false
		c.cancelCapture = nil
	}
	c.mu.Unlock()
}

func (c *SessionController) captureFailed(op string, err error) error {
	if kind := models.KindOf(err); kind == models.KindCancelled || kind == models.KindPermissionDenied {
		return err
	}
	wrapped := &models.Error{Kind: models.KindServiceError, Op: op, Message: err.Error(), Err: err}
	c.notice(wrapped)
	return wrapped
}

func (c *SessionController) permissionDenied(op string, gen uint64, source models.CaptureSource) error {
	denied := models.NewError(models.KindPermissionDenied, op, string(source)+" permission denied")
	c.mu.Lock()
	if gen != c.generation || c.phase == models.PhaseSubmitting {
		c.mu.Unlock()
		c.endCapture(gen)
		return denied
	}
	c.capturing = false
	c.cancelCapture = nil
	c.image = nil
	c.result = nil
	c.lastError = denied
	c.phase = models.PhaseFailed
	s := c.snapshot()
	c.mu.Unlock()
	c.changed(s)
	return denied
}

// OnImageCaptured replaces the captured image.
func (c *SessionController) OnImageCaptured(img models.CapturedImage) error {
	const op = "tryon.image_captured"
	if err := img.Validate(); err != nil {
		return c.invalid(op, err.Error())
	}
	c.mu.Lock()
	if c.phase == models.PhaseSubmitting {
		c.mu.Unlock()
		return c.invalid(op, "inputs are locked while submitting")
	}
	c.image = &img
	c.inputsChanged()
	s := c.snapshot()
	c.mu.Unlock()
	c.changed(s)
	return nil
}

// SelectProduct sets the product. Selecting the product that is already
// selected changes nothing.
func (c *SessionController) SelectProduct(product models.Product) error {
	const op = "tryon.select_product"
	if product.ID == "" {
		return c.invalid(op, "product has no id")
	}
	c.mu.Lock()
	if c.phase == models.PhaseSubmitting {
		c.mu.Unlock()
		return c.invalid(op, "inputs are locked while submitting")
	}
	if c.product != nil && c.product.ID == product.ID {
		c.mu.Unlock()
		return nil
	}
	c.product = &product
	c.inputsChanged()
	s := c.snapshot()
	c.mu.Unlock()
	c.changed(s)
	return nil
}

// SelectProductByID selects a product from the loaded catalog.
func (c *SessionController) SelectProductByID(id string) (models.Product, error) {
	c.mu.Lock()
	product, ok := models.FindProduct(c.products, id)
	c.mu.Unlock()
	if !ok {
		return models.Product{}, ErrUnknownProduct
	}
	return product, c.SelectProduct(product)
}

// Submit starts processing the current inputs and returns without waiting.
// It is accepted from ReadyToSubmit and from Failed while both inputs are
// still selected.
func (c *SessionController) Submit() error {
	const op = "tryon.submit"
	c.mu.Lock()
	if c.phase == models.PhaseSubmitting {
		c.mu.Unlock()
		return models.NewError(models.KindAlreadyInProgress, op, "a submission is already in flight")
	}
	retry := c.phase == models.PhaseFailed && c.image != nil && c.product != nil
	if c.phase != models.PhaseReadyToSubmit && !retry {
		phase := c.phase
		c.mu.Unlock()
		return c.invalid(op, "cannot submit in phase "+string(phase))
	}

	gen := c.generation
	image := *c.image
	product := *c.product
	ctx, cancel := context.WithCancel(c.ctx)
	c.cancelSubmit = cancel
	c.phase = models.PhaseSubmitting
	c.lastError = nil
	c.result = nil
	s := c.snapshot()
	c.wg.Add(1)
	c.mu.Unlock()

	c.log.Info().Str("product_id", product.ID).Uint64("generation", gen).Msg("submitting try-on")
	c.changed(s)
	go c.process(ctx, cancel, gen, image, product)
	return nil
}

func (c *SessionController) process(ctx context.Context, cancel context.CancelFunc, gen uint64, image models.CapturedImage, product models.Product) {
	defer c.wg.Done()
	defer cancel()

	result, err := c.opts.Processor.Process(ctx, image, product.ID)

	c.mu.Lock()
	if gen != c.generation || c.phase != models.PhaseSubmitting {
		c.mu.Unlock()
		c.log.Debug().Uint64("generation", gen).Msg("dropping stale try-on response")
		return
	}
	c.cancelSubmit = nil
	if err != nil {
		e := models.AsError("tryon.process", err)
		if e.Kind != models.KindServiceError {
			e = &models.Error{Kind: models.KindServiceError, Op: e.Op, Status: e.Status, Message: e.Message, Err: err}
		}
		c.lastError = e
		c.phase = models.PhaseFailed
		s := c.snapshot()
		c.mu.Unlock()

		c.log.Warn().Err(e).Str("product_id", product.ID).Msg("try-on failed")
		c.changed(s)
		c.settle(gen, s)
		return
	}

	if result.OriginalImageURL == "" {
		result.OriginalImageURL = image.URI
	}
	if result.ProductCategory == "" {
		result.ProductCategory = product.Category.String()
	}
	c.result = &result
	c.phase = models.PhaseResultReady
	c.history = models.PrependHistory(c.history, result.HistoryEntry(), c.opts.HistoryLimit)
	c.historySeq++
	c.historyApplied = c.historySeq
	limit := c.opts.HistoryLimit
	if c.opts.History != nil {
		c.wg.Add(1)
	}
	s := c.snapshot()
	c.mu.Unlock()

	c.log.Info().Str("result_id", result.ID).Float64("processing_time", result.ProcessingDuration).Msg("try-on ready")
	c.changed(s)
	c.settle(gen, s)
	if c.opts.History != nil {
		go func() {
			defer c.wg.Done()
			// best effort, failures only produce a notice
			_ = c.LoadHistory(c.ctx, limit)
		}()
	}
}

// settle skips delivery when the session was reset or closed after the
// outcome was recorded, including from an OnChange hook. A reset racing the
// hook call itself can still see one delivery.
func (c *SessionController) settle(gen uint64, s models.TryOnSession) {
	if c.opts.OnSettle == nil {
		return
	}
	c.mu.Lock()
	current := gen == c.generation
	c.mu.Unlock()
	if !current {
		c.log.Debug().Uint64("generation", gen).Msg("skipping settle of an orphaned submission")
		return
	}
	c.opts.OnSettle(s)
}

// Reset clears the session and orphans any capture or submission in flight.
func (c *SessionController) Reset() {
	c.mu.Lock()
	c.generation++
	if c.cancelSubmit != nil {
		c.cancelSubmit()
		c.cancelSubmit = nil
	}
	if c.cancelCapture != nil {
		c.cancelCapture()
		c.cancelCapture = nil
	}
	c.capturing = false
	c.image = nil
	c.product = nil
	c.result = nil
	c.lastError = nil
	c.phase = models.PhaseIdle
	c.priorPhase = models.PhaseIdle
	s := c.snapshot()
	c.mu.Unlock()

	c.log.Debug().Uint64("generation", s.Generation).Msg("session reset")
	c.changed(s)
}

// LoadCatalog replaces the product list. On failure the previous list is
// kept and the error is reported as a notice.
func (c *SessionController) LoadCatalog(ctx context.Context, filter models.CategoryFilter) error {
	c.mu.Lock()
	c.catalogSeq++
	seq := c.catalogSeq
	c.mu.Unlock()

	products, err := c.opts.Catalog.ListProducts(ctx, filter)
	if err != nil {
		e := models.AsError("catalog.list", err)
		c.notice(e)
		return e
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if seq < c.catalogApplied {
		c.log.Debug().Str("category", filter.Key()).Msg("dropping out of order catalog response")
		return nil
	}
	c.products = products
	c.category = filter
	c.catalogApplied = seq
	return nil
}

// LoadHistory replaces the cached history with the newest limit entries.
// On failure the previous list is kept.
func (c *SessionController) LoadHistory(ctx context.Context, limit int) error {
	const op = "history.list"
	if limit <= 0 {
		return c.invalid(op, "history limit must be positive")
	}
	if c.opts.History == nil {
		return c.invalid(op, "no history service configured")
	}
	c.mu.Lock()
	c.historySeq++
	seq := c.historySeq
	c.mu.Unlock()

	page, err := c.opts.History.List(ctx, limit, 0)
	if err != nil {
		e := models.AsError(op, err)
		c.notice(e)
		return e
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if seq < c.historyApplied {
		c.log.Debug().Msg("dropping out of order history response")
		return nil
	}
	items := page.Items
	if len(items) > limit {
		items = items[:limit]
	}
	c.history = slices.Clone(items)
	c.historyTotal = page.TotalCount
	c.historyApplied = seq
	return nil
}

// DeleteHistoryEntry deletes a past result and drops it from the cached
// history. Failures are notices.
func (c *SessionController) DeleteHistoryEntry(ctx context.Context, id string) error {
	const op = "history.delete"
	if id == "" {
		return c.invalid(op, "empty history id")
	}
	if c.opts.History == nil {
		return c.invalid(op, "no history service configured")
	}
	if err := c.opts.History.Delete(ctx, id); err != nil {
		e := models.AsError(op, err)
		c.notice(e)
		return e
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	var removed bool
	c.history, removed = models.RemoveHistory(c.history, id)
	if removed && c.historyTotal > 0 {
		c.historyTotal--
	}
	// responses to loads issued before the delete may still list the entry
	c.historySeq++
	c.historyApplied = c.historySeq
	return nil
}
