package embed

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/feedbackflow/internal/model"
)

const keyEscape = "Escape"

// State is the open/closed state of one loader instance.
type State string

const (
	StateClosed State = "closed"
	StateOpen   State = "open"
)

// Host is the page the loader is embedded in.
type Host interface {
	BodyReady() bool
	Inject(config Config, frameURL string, size FrameSize)
	SetFrameVisible(visible bool)
	SetFrameSize(size FrameSize)
	SetFrameHeight(height int)
	Viewport() (width int, height int)
	PageURL() string
}

// TelemetrySink receives outbound telemetry. Delivery is never confirmed.
type TelemetrySink interface {
	Emit(message TelemetryMessage) error
}

// Timer is a pending callback scheduled by a Clock.
type Timer interface {
	Stop() bool
}

// Clock abstracts time so the auto-close delay and body polling can be driven in tests.
type Clock interface {
	Now() time.Time
	AfterFunc(delay time.Duration, callback func()) Timer
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now()
}

func (systemClock) AfterFunc(delay time.Duration, callback func()) Timer {
	return time.AfterFunc(delay, callback)
}

// LoaderOption customizes a Loader.
type LoaderOption func(*Loader)

// WithClock replaces the system clock.
func WithClock(clock Clock) LoaderOption {
	return func(loader *Loader) {
		if clock != nil {
			loader.clock = clock
		}
	}
}

// WithLogger sets the logger used for swallowed telemetry failures.
func WithLogger(logger *zap.Logger) LoaderOption {
	return func(loader *Loader) {
		if logger != nil {
			loader.logger = logger
		}
	}
}

// Loader drives one embedded widget: a trigger button and a frame that opens and closes.
type Loader struct {
	mutex       sync.Mutex
	config      Config
	frameOrigin string
	host        Host
	sink        TelemetrySink
	clock       Clock
	logger      *zap.Logger
	state       State
	mounted     bool
	pollPending bool
}

// NewLoader creates a closed, not yet mounted loader.
func NewLoader(config Config, host Host, sink TelemetrySink, options ...LoaderOption) *Loader {
	loader := &Loader{
		config:      config,
		frameOrigin: OriginOf(config.BaseURL),
		host:        host,
		sink:        sink,
		clock:       systemClock{},
		logger:      zap.NewNop(),
		state:       StateClosed,
	}
	for _, option := range options {
		option(loader)
	}
	return loader
}

// State reports whether the widget is open.
func (loader *Loader) State() State {
	loader.mutex.Lock()
	defer loader.mutex.Unlock()
	return loader.state
}

// Mounted reports whether the trigger and frame were injected.
func (loader *Loader) Mounted() bool {
	loader.mutex.Lock()
	defer loader.mutex.Unlock()
	return loader.mounted
}

// Mount injects the widget once the host body exists, polling until it does.
func (loader *Loader) Mount() {
	loader.mutex.Lock()
	defer loader.mutex.Unlock()
	loader.mountLocked()
}

func (loader *Loader) mountLocked() {
	if loader.mounted || loader.pollPending {
		return
	}
	if !loader.host.BodyReady() {
		loader.pollPending = true
		loader.clock.AfterFunc(BodyPollInterval, func() {
			loader.mutex.Lock()
			defer loader.mutex.Unlock()
			loader.pollPending = false
			loader.mountLocked()
		})
		return
	}
	width, height := loader.host.Viewport()
	loader.host.Inject(loader.config, loader.config.FrameURL(loader.host.PageURL()), ComputeFrameSize(width, height))
	loader.mounted = true
	loader.emitLocked(model.EventTypeWidgetLoaded)
}

// Click handles a press of the trigger button.
func (loader *Loader) Click() {
	loader.mutex.Lock()
	defer loader.mutex.Unlock()
	if loader.state == StateOpen {
		loader.closeLocked()
		return
	}
	loader.openLocked()
}

// KeyDown handles a key press on the host document.
func (loader *Loader) KeyDown(key string) {
	loader.mutex.Lock()
	defer loader.mutex.Unlock()
	if key == keyEscape && loader.state == StateOpen {
		loader.closeLocked()
	}
}

// Resize recomputes the frame size for the current viewport.
func (loader *Loader) Resize() {
	loader.mutex.Lock()
	defer loader.mutex.Unlock()
	if !loader.mounted {
		return
	}
	width, height := loader.host.Viewport()
	loader.host.SetFrameSize(ComputeFrameSize(width, height))
}

// Receive handles a cross-window message. Messages from any origin other than the
// frame's own are ignored. It reports whether the message was acted upon.
func (loader *Loader) Receive(origin string, payload []byte) bool {
	loader.mutex.Lock()
	defer loader.mutex.Unlock()

	if loader.frameOrigin == "" || origin != loader.frameOrigin {
		return false
	}

	message, decodeErr := DecodeMessage(payload)
	if decodeErr != nil {
		loader.logger.Debug("embed_message_ignored", zap.String("origin", origin), zap.Error(decodeErr))
		return false
	}

	switch typed := message.(type) {
	case CloseMessage:
		if loader.state == StateOpen {
			loader.closeLocked()
		}
	case SubmittedMessage:
		loader.emitLocked(model.EventTypeFeedbackSubmitted)
		loader.clock.AfterFunc(AutoCloseDelay, func() {
			loader.mutex.Lock()
			defer loader.mutex.Unlock()
			if loader.state == StateOpen {
				loader.closeLocked()
			}
		})
	case ErrorMessage:
		loader.emitLocked(model.EventTypeWidgetError)
		loader.logger.Warn("embed_widget_error", zap.String("widget_id", loader.config.WidgetID), zap.ByteString("data", typed.Data))
	case ResizeMessage:
		if typed.Height <= 0 {
			return false
		}
		_, viewportHeight := loader.host.Viewport()
		loader.host.SetFrameHeight(ClampFrameHeight(typed.Height, viewportHeight))
	}
	return true
}

func (loader *Loader) openLocked() {
	loader.state = StateOpen
	loader.host.SetFrameVisible(true)
	loader.emitLocked(model.EventTypeWidgetOpened)
}

func (loader *Loader) closeLocked() {
	loader.state = StateClosed
	loader.host.SetFrameVisible(false)
}

func (loader *Loader) emitLocked(event string) {
	if loader.sink == nil {
		return
	}
	message := NewTelemetryMessage(event, loader.config.WidgetID, loader.host.PageURL(), loader.clock.Now())
	if err := loader.sink.Emit(message); err != nil {
		loader.logger.Warn("embed_telemetry_failed", zap.String("event", event), zap.Error(err))
	}
}
