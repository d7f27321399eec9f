package embed

import (
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/MarkoPoloResearchLab/feedbackflow/internal/model"
)

const (
	testBaseURL       = "https://feedback.example"
	testForeignOrigin = "https://evil.example"
	testWidgetID      = "w1"
)

type loaderFixture struct {
	host   *fakeHost
	sink   *recordingSink
	clock  *fakeClock
	loader *Loader
}

func newLoaderFixture() loaderFixture {
	host := newFakeHost()
	sink := &recordingSink{}
	clock := newFakeClock()
	config := ConfigFromAttributes(map[string]string{AttributeWidgetID: testWidgetID}, testBaseURL+ScriptPath)
	loader := NewLoader(config, host, sink, WithClock(clock))
	return loaderFixture{host: host, sink: sink, clock: clock, loader: loader}
}

func mustEncode(message Message) []byte {
	encoded, err := EncodeMessage(message)
	if err != nil {
		panic(err)
	}
	return encoded
}

func TestLoaderInjection(testingT *testing.T) {
	Convey("Given a host page whose body is not ready yet", testingT, func() {
		fixture := newLoaderFixture()
		fixture.host.setBodyReady(false)

		Convey("Mount does not inject until the body appears", func() {
			fixture.loader.Mount()
			So(fixture.loader.Mounted(), ShouldBeFalse)
			fixture.clock.Advance(BodyPollInterval)
			So(fixture.host.injections, ShouldEqual, 0)

			fixture.host.setBodyReady(true)
			fixture.clock.Advance(BodyPollInterval)

			So(fixture.loader.Mounted(), ShouldBeTrue)
			So(fixture.host.injections, ShouldEqual, 1)
			So(fixture.sink.count(model.EventTypeWidgetLoaded), ShouldEqual, 1)
		})

		Convey("Repeated Mount calls inject exactly once", func() {
			fixture.host.setBodyReady(true)
			fixture.loader.Mount()
			fixture.loader.Mount()
			fixture.clock.Advance(time.Second)
			So(fixture.host.injections, ShouldEqual, 1)
			So(fixture.host.injectedConfig.WidgetID, ShouldEqual, testWidgetID)
			So(fixture.host.injectedURL, ShouldStartWith, testBaseURL+WidgetPagePath+"?")
			So(fixture.host.frameSize, ShouldResemble, FrameSize{Width: DesktopFrameWidthPx, Height: DesktopFrameHeightPx})
		})
	})
}

func TestLoaderStateMachine(testingT *testing.T) {
	Convey("Given a mounted loader", testingT, func() {
		fixture := newLoaderFixture()
		fixture.loader.Mount()
		So(fixture.loader.State(), ShouldEqual, StateClosed)

		Convey("Clicking the trigger opens the widget and emits widget_opened once", func() {
			fixture.loader.Click()
			So(fixture.loader.State(), ShouldEqual, StateOpen)
			So(fixture.host.frameVisible, ShouldBeTrue)
			So(fixture.sink.count(model.EventTypeWidgetOpened), ShouldEqual, 1)

			Convey("Clicking again closes it without more telemetry", func() {
				fixture.loader.Click()
				So(fixture.loader.State(), ShouldEqual, StateClosed)
				So(fixture.host.frameVisible, ShouldBeFalse)
				So(fixture.sink.count(model.EventTypeWidgetOpened), ShouldEqual, 1)
			})

			Convey("Escape closes it", func() {
				fixture.loader.KeyDown("Escape")
				So(fixture.loader.State(), ShouldEqual, StateClosed)
			})

			Convey("Other keys are ignored", func() {
				fixture.loader.KeyDown("Enter")
				So(fixture.loader.State(), ShouldEqual, StateOpen)
			})

			Convey("A close message from the frame closes it", func() {
				acted := fixture.loader.Receive(testBaseURL, mustEncode(CloseMessage{}))
				So(acted, ShouldBeTrue)
				So(fixture.loader.State(), ShouldEqual, StateClosed)
			})

			Convey("Reopening emits widget_opened again", func() {
				fixture.loader.Click()
				fixture.loader.Click()
				So(fixture.sink.count(model.EventTypeWidgetOpened), ShouldEqual, 2)
			})
		})

		Convey("Escape while closed does nothing", func() {
			fixture.loader.KeyDown("Escape")
			So(fixture.loader.State(), ShouldEqual, StateClosed)
			So(fixture.sink.count(model.EventTypeWidgetOpened), ShouldEqual, 0)
		})
	})
}

func TestLoaderMessages(testingT *testing.T) {
	Convey("Given an open loader", testingT, func() {
		fixture := newLoaderFixture()
		fixture.loader.Mount()
		fixture.loader.Click()

		Convey("A submitted message emits telemetry and auto-closes after the delay", func() {
			acted := fixture.loader.Receive(testBaseURL, mustEncode(SubmittedMessage{Message: "thanks"}))
			So(acted, ShouldBeTrue)
			So(fixture.sink.count(model.EventTypeFeedbackSubmitted), ShouldEqual, 1)

			fixture.clock.Advance(AutoCloseDelay - time.Millisecond)
			So(fixture.loader.State(), ShouldEqual, StateOpen)

			fixture.clock.Advance(time.Millisecond)
			So(fixture.loader.State(), ShouldEqual, StateClosed)
		})

		Convey("An error message only emits telemetry", func() {
			acted := fixture.loader.Receive(testBaseURL, []byte(`{"type":"feedbackflow_error","data":{"reason":"boom"}}`))
			So(acted, ShouldBeTrue)
			So(fixture.sink.count(model.EventTypeWidgetError), ShouldEqual, 1)
			So(fixture.loader.State(), ShouldEqual, StateOpen)
		})

		Convey("A resize message clamps the height to the viewport minus the margin", func() {
			fixture.host.setViewport(1280, 800)
			acted := fixture.loader.Receive(testBaseURL, mustEncode(ResizeMessage{Height: 10000}))
			So(acted, ShouldBeTrue)
			So(fixture.host.frameHeight, ShouldEqual, 760)
		})

		Convey("A resize message with an out of range height still clamps to the viewport", func() {
			fixture.host.setViewport(1280, 800)
			acted := fixture.loader.Receive(testBaseURL, []byte(`{"type":"feedbackflow_resize","data":{"height":1e20}}`))
			So(acted, ShouldBeTrue)
			So(fixture.host.frameHeight, ShouldEqual, 760)
		})

		Convey("A resize message without a height is ignored", func() {
			acted := fixture.loader.Receive(testBaseURL, []byte(`{"type":"feedbackflow_resize"}`))
			So(acted, ShouldBeFalse)
			So(fixture.host.frameHeight, ShouldEqual, 0)
		})

		Convey("Messages from a foreign origin are ignored whatever their type", func() {
			for _, message := range []Message{CloseMessage{}, SubmittedMessage{}, ErrorMessage{}, ResizeMessage{Height: 100}} {
				So(fixture.loader.Receive(testForeignOrigin, mustEncode(message)), ShouldBeFalse)
			}
			fixture.clock.Advance(AutoCloseDelay * 2)
			So(fixture.loader.State(), ShouldEqual, StateOpen)
			So(fixture.sink.count(model.EventTypeFeedbackSubmitted), ShouldEqual, 0)
			So(fixture.sink.count(model.EventTypeWidgetError), ShouldEqual, 0)
			So(fixture.host.frameHeight, ShouldEqual, 0)
		})

		Convey("Unknown and malformed messages are ignored", func() {
			So(fixture.loader.Receive(testBaseURL, []byte(`{"type":"feedbackflow_dance"}`)), ShouldBeFalse)
			So(fixture.loader.Receive(testBaseURL, []byte(`not json`)), ShouldBeFalse)
			So(fixture.loader.State(), ShouldEqual, StateOpen)
		})
	})
}

func TestLoaderTelemetryFailures(testingT *testing.T) {
	Convey("Given a telemetry sink that always fails", testingT, func() {
		fixture := newLoaderFixture()
		fixture.sink.failWith = errSinkUnavailable
		fixture.loader.Mount()

		Convey("State transitions still happen and nothing is retried", func() {
			fixture.loader.Click()
			So(fixture.loader.State(), ShouldEqual, StateOpen)
			So(fixture.sink.count(model.EventTypeWidgetOpened), ShouldEqual, 1)
		})
	})
}

func TestLoaderResize(testingT *testing.T) {
	Convey("Given a mounted loader on a desktop viewport", testingT, func() {
		fixture := newLoaderFixture()
		fixture.loader.Mount()

		Convey("Shrinking below the breakpoint switches to the near-fullscreen frame", func() {
			fixture.host.setViewport(375, 667)
			fixture.loader.Resize()
			So(fixture.host.frameSize, ShouldResemble, FrameSize{Width: 335, Height: 627})

			fixture.host.setViewport(1024, 768)
			fixture.loader.Resize()
			So(fixture.host.frameSize, ShouldResemble, FrameSize{Width: DesktopFrameWidthPx, Height: DesktopFrameHeightPx})
		})
	})
}
