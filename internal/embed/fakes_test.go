package embed

import (
	"errors"
	"sort"
	"sync"
	"time"
)

type fakeHost struct {
	mutex          sync.Mutex
	bodyReady      bool
	viewportWidth  int
	viewportHeight int
	pageURL        string
	injections     int
	injectedConfig Config
	injectedURL    string
	frameVisible   bool
	frameSize      FrameSize
	frameHeight    int
}

func newFakeHost() *fakeHost {
	return &fakeHost{
		bodyReady:      true,
		viewportWidth:  1280,
		viewportHeight: 800,
		pageURL:        "https://host.example/pricing",
	}
}

func (host *fakeHost) BodyReady() bool {
	host.mutex.Lock()
	defer host.mutex.Unlock()
	return host.bodyReady
}

func (host *fakeHost) setBodyReady(ready bool) {
	host.mutex.Lock()
	defer host.mutex.Unlock()
	host.bodyReady = ready
}

func (host *fakeHost) Inject(config Config, frameURL string, size FrameSize) {
	host.mutex.Lock()
	defer host.mutex.Unlock()
	host.injections++
	host.injectedConfig = config
	host.injectedURL = frameURL
	host.frameSize = size
}

func (host *fakeHost) SetFrameVisible(visible bool) {
	host.mutex.Lock()
	defer host.mutex.Unlock()
	host.frameVisible = visible
}

func (host *fakeHost) SetFrameSize(size FrameSize) {
	host.mutex.Lock()
	defer host.mutex.Unlock()
	host.frameSize = size
}

func (host *fakeHost) SetFrameHeight(height int) {
	host.mutex.Lock()
	defer host.mutex.Unlock()
	host.frameHeight = height
}

func (host *fakeHost) Viewport() (int, int) {
	host.mutex.Lock()
	defer host.mutex.Unlock()
	return host.viewportWidth, host.viewportHeight
}

func (host *fakeHost) setViewport(width int, height int) {
	host.mutex.Lock()
	defer host.mutex.Unlock()
	host.viewportWidth = width
	host.viewportHeight = height
}

func (host *fakeHost) PageURL() string {
	return host.pageURL
}

type recordingSink struct {
	mutex    sync.Mutex
	messages []TelemetryMessage
	failWith error
}

func (sink *recordingSink) Emit(message TelemetryMessage) error {
	sink.mutex.Lock()
	defer sink.mutex.Unlock()
	sink.messages = append(sink.messages, message)
	return sink.failWith
}

func (sink *recordingSink) count(event string) int {
	sink.mutex.Lock()
	defer sink.mutex.Unlock()
	total := 0
	for _, message := range sink.messages {
		if message.Event == event {
			total++
		}
	}
	return total
}

var errSinkUnavailable = errors.New("sink unavailable")

type fakeTimer struct {
	clock    *fakeClock
	deadline time.Time
	callback func()
	stopped  bool
	fired    bool
}

func (timer *fakeTimer) Stop() bool {
	timer.clock.mutex.Lock()
	defer timer.clock.mutex.Unlock()
	if timer.stopped || timer.fired {
		return false
	}
	timer.stopped = true
	return true
}

type fakeClock struct {
	mutex  sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)}
}

func (clock *fakeClock) Now() time.Time {
	clock.mutex.Lock()
	defer clock.mutex.Unlock()
	return clock.now
}

func (clock *fakeClock) AfterFunc(delay time.Duration, callback func()) Timer {
	clock.mutex.Lock()
	defer clock.mutex.Unlock()
	timer := &fakeTimer{clock: clock, deadline: clock.now.Add(delay), callback: callback}
	clock.timers = append(clock.timers, timer)
	return timer
}

// Advance moves time forward and runs due callbacks in deadline order outside the clock lock.
func (clock *fakeClock) Advance(delta time.Duration) {
	clock.mutex.Lock()
	target := clock.now.Add(delta)
	clock.mutex.Unlock()

	for {
		clock.mutex.Lock()
		sort.SliceStable(clock.timers, func(left, right int) bool {
			return clock.timers[left].deadline.Before(clock.timers[right].deadline)
		})
		var due *fakeTimer
		for _, timer := range clock.timers {
			if !timer.fired && !timer.stopped && !timer.deadline.After(target) {
				due = timer
				break
			}
		}
		if due == nil {
			clock.now = target
			clock.mutex.Unlock()
			return
		}
		due.fired = true
		clock.now = due.deadline
		clock.mutex.Unlock()
		due.callback()
	}
}
