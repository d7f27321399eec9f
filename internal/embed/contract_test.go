package embed

import (
	"encoding/json"
	"errors"
	"math"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPositionOffsetsMatchCornerMargin(testingT *testing.T) {
	testCases := []struct {
		position Position
		expected map[string]string
	}{
		{position: PositionBottomRight, expected: map[string]string{"bottom": "20px", "right": "20px"}},
		{position: PositionBottomLeft, expected: map[string]string{"bottom": "20px", "left": "20px"}},
		{position: PositionTopRight, expected: map[string]string{"top": "20px", "right": "20px"}},
		{position: PositionTopLeft, expected: map[string]string{"top": "20px", "left": "20px"}},
	}

	for _, testCase := range testCases {
		testCase := testCase
		testingT.Run(string(testCase.position), func(testingT *testing.T) {
			require.Equal(testingT, testCase.expected, testCase.position.Offsets())
		})
	}
	require.Len(testingT, Positions(), len(testCases))
}

func TestConfigFromAttributesDefaults(testingT *testing.T) {
	config := ConfigFromAttributes(map[string]string{}, "https://cdn.example:8443/embed.js?v=2")
	require.Equal(testingT, DefaultWidgetID, config.WidgetID)
	require.Equal(testingT, PositionBottomRight, config.Position)
	require.Equal(testingT, ThemeAuto, config.Theme)
	require.Equal(testingT, "https://cdn.example:8443", config.BaseURL)
	require.Equal(testingT, "feedbackflow-default", config.ContainerID())
}

func TestConfigFromAttributesFallsBackForUnknownValues(testingT *testing.T) {
	config := ConfigFromAttributes(map[string]string{
		AttributeWidgetID: "w1",
		AttributePosition: "middle",
		AttributeTheme:    "neon",
	}, "https://cdn.example/embed.js")
	require.Equal(testingT, "w1", config.WidgetID)
	require.Equal(testingT, PositionBottomRight, config.Position)
	require.Equal(testingT, ThemeAuto, config.Theme)

	config = ConfigFromAttributes(map[string]string{
		AttributePosition: "top-left",
		AttributeTheme:    "dark",
	}, "https://cdn.example/embed.js")
	require.Equal(testingT, PositionTopLeft, config.Position)
	require.Equal(testingT, ThemeDark, config.Theme)
}

func TestFrameURLCarriesQueryParameters(testingT *testing.T) {
	config := ConfigFromAttributes(map[string]string{AttributeWidgetID: "w 1", AttributeTheme: "light"}, "https://cdn.example/embed.js")
	frameURL, parseErr := url.Parse(config.FrameURL("https://host.example/a?b=c"))
	require.NoError(testingT, parseErr)
	require.Equal(testingT, WidgetPagePath, frameURL.Path)
	require.Equal(testingT, "w 1", frameURL.Query().Get(QueryParameterWidgetID))
	require.Equal(testingT, "light", frameURL.Query().Get(QueryParameterTheme))
	require.Equal(testingT, "https://host.example/a?b=c", frameURL.Query().Get(QueryParameterParentURL))
}

func TestOriginOf(testingT *testing.T) {
	require.Equal(testingT, "http://localhost:8080", OriginOf("http://localhost:8080/embed.js"))
	require.Empty(testingT, OriginOf("/embed.js"))
	require.Empty(testingT, OriginOf("::"))
}

func TestComputeFrameSize(testingT *testing.T) {
	testCases := []struct {
		name     string
		width    int
		height   int
		expected FrameSize
	}{
		{name: "desktop", width: 1280, height: 800, expected: FrameSize{Width: 400, Height: 550}},
		{name: "at breakpoint", width: 480, height: 800, expected: FrameSize{Width: 400, Height: 550}},
		{name: "below breakpoint", width: 479, height: 800, expected: FrameSize{Width: 439, Height: 760}},
		{name: "tiny viewport", width: 20, height: 30, expected: FrameSize{Width: 0, Height: 0}},
	}

	for _, testCase := range testCases {
		testCase := testCase
		testingT.Run(testCase.name, func(testingT *testing.T) {
			require.Equal(testingT, testCase.expected, ComputeFrameSize(testCase.width, testCase.height))
		})
	}
}

func TestClampFrameHeight(testingT *testing.T) {
	require.Equal(testingT, 760, ClampFrameHeight(10000, 800))
	require.Equal(testingT, 300, ClampFrameHeight(300, 800))
	require.Equal(testingT, 0, ClampFrameHeight(-5, 800))
}

func TestDecodeMessageVariants(testingT *testing.T) {
	message, err := DecodeMessage([]byte(`{"type":"feedbackflow_submitted","data":{"message":"Feedback submitted successfully"}}`))
	require.NoError(testingT, err)
	require.Equal(testingT, SubmittedMessage{Message: "Feedback submitted successfully"}, message)

	message, err = DecodeMessage([]byte(`{"type":"feedbackflow_resize","data":{"height":612.5}}`))
	require.NoError(testingT, err)
	require.Equal(testingT, ResizeMessage{Height: 612}, message)

	message, err = DecodeMessage([]byte(`{"type":"feedbackflow_resize","data":{"height":1e20}}`))
	require.NoError(testingT, err)
	require.Equal(testingT, ResizeMessage{Height: math.MaxInt32}, message)

	message, err = DecodeMessage([]byte(`{"type":"feedbackflow_resize","data":{"height":-1e20}}`))
	require.NoError(testingT, err)
	require.Equal(testingT, ResizeMessage{Height: 0}, message)

	message, err = DecodeMessage([]byte(`{"type":"feedbackflow_close"}`))
	require.NoError(testingT, err)
	require.Equal(testingT, MessageTypeClose, message.Type())

	_, err = DecodeMessage([]byte(`{"type":"feedbackflow_other"}`))
	require.True(testingT, errors.Is(err, ErrUnknownMessageType))

	_, err = DecodeMessage([]byte(`{"type":"feedbackflow_resize","data":"tall"}`))
	require.True(testingT, errors.Is(err, ErrMalformedMessage))
}

func TestEncodeMessageRoundTripsThroughEnvelope(testingT *testing.T) {
	encoded, err := EncodeMessage(ResizeMessage{Height: 420})
	require.NoError(testingT, err)
	var raw map[string]any
	require.NoError(testingT, json.Unmarshal(encoded, &raw))
	require.Equal(testingT, MessageTypeResize, raw["type"])
	require.Equal(testingT, map[string]any{"height": float64(420)}, raw["data"])

	closeEncoded, err := EncodeMessage(CloseMessage{})
	require.NoError(testingT, err)
	require.JSONEq(testingT, `{"type":"feedbackflow_close"}`, string(closeEncoded))
}

func TestNewTelemetryMessage(testingT *testing.T) {
	at := time.Date(2025, 5, 1, 9, 30, 15, 123000000, time.FixedZone("CEST", 2*3600))
	message := NewTelemetryMessage("widget_opened", "w1", "https://host.example", at)
	encoded, err := json.Marshal(message)
	require.NoError(testingT, err)
	require.JSONEq(testingT, `{"type":"feedbackflow_event","event":"widget_opened","widgetId":"w1","url":"https://host.example","timestamp":"2025-05-01T07:30:15.123Z"}`, string(encoded))
}

func TestRenderScriptEmbedsContractConstants(testingT *testing.T) {
	script, err := RenderScript()
	require.NoError(testingT, err)
	body := string(script)
	require.NotContains(testingT, body, "{{")
	require.Contains(testingT, body, `"bottom-right":{"bottom":"20px","right":"20px"}`)
	require.Contains(testingT, body, "window.innerWidth < 480")
	require.Contains(testingT, body, `frame.style.width = "400px"`)
	require.Contains(testingT, body, `frame.style.height = "550px"`)
	require.Contains(testingT, body, "window.innerHeight - 40")
	require.Contains(testingT, body, "}, 2000);")
	require.Contains(testingT, body, "setTimeout(injectWidget, 100)")
	require.Contains(testingT, body, `event.origin !== baseURL`)
	require.Contains(testingT, body, `"feedbackflow_event"`)
	require.Contains(testingT, body, `"/api/events"`)
	require.True(testingT, strings.HasPrefix(strings.TrimSpace(body), "(function () {"))
}

func TestEmbedCode(testingT *testing.T) {
	code := EmbedCode("https://feedback.example/", "w1", "top-left", "dark")
	require.Equal(testingT, `<script src="https://feedback.example/embed.js" data-widget-id="w1" data-position="top-left" data-theme="dark" defer></script>`, code)

	defaulted := EmbedCode("https://feedback.example", "w2", "", "")
	require.Contains(testingT, defaulted, `data-position="bottom-right"`)
	require.Contains(testingT, defaulted, `data-theme="auto"`)
}
