package embed

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"html"
	"strings"
	"text/template"

	"github.com/MarkoPoloResearchLab/feedbackflow/internal/model"
)

// EventsPath is the public endpoint the loader beacons widget_opened events to.
const EventsPath = "/api/events"

const embedCodeTemplate = `<script src="%s%s" data-widget-id="%s" data-position="%s" data-theme="%s" defer></script>`

//go:embed assets/embed.js
var loaderScriptSource string

var loaderScriptTemplate = template.Must(template.New("embed.js").Parse(loaderScriptSource))

type loaderScriptData struct {
	DefaultWidgetID      string
	DefaultPosition      string
	DefaultTheme         string
	PositionOffsetsJSON  string
	WidgetPagePath       string
	EventsPath           string
	ContainerIDPrefix    string
	ZIndex               int
	TriggerSizePx        int
	MobileBreakpointPx   int
	DesktopFrameWidthPx  int
	DesktopFrameHeightPx int
	ViewportMarginPx     int
	BodyPollIntervalMs   int64
	AutoCloseDelayMs     int64
	MessageClose         string
	MessageSubmitted     string
	MessageError         string
	MessageResize        string
	MessageTelemetry     string
	EventLoaded          string
	EventOpened          string
	EventSubmitted       string
	EventError           string
}

// RenderScript renders the loader script served at ScriptPath.
func RenderScript() ([]byte, error) {
	offsets := make(map[string]map[string]string, len(Positions()))
	for _, position := range Positions() {
		offsets[string(position)] = position.Offsets()
	}
	offsetsJSON, marshalErr := json.Marshal(offsets)
	if marshalErr != nil {
		return nil, fmt.Errorf("embed: encode offsets: %w", marshalErr)
	}

	data := loaderScriptData{
		DefaultWidgetID:      DefaultWidgetID,
		DefaultPosition:      string(PositionBottomRight),
		DefaultTheme:         string(ThemeAuto),
		PositionOffsetsJSON:  string(offsetsJSON),
		WidgetPagePath:       WidgetPagePath,
		EventsPath:           EventsPath,
		ContainerIDPrefix:    ContainerIDPrefix,
		ZIndex:               ContainerZIndex,
		TriggerSizePx:        TriggerSizePx,
		MobileBreakpointPx:   MobileBreakpointPx,
		DesktopFrameWidthPx:  DesktopFrameWidthPx,
		DesktopFrameHeightPx: DesktopFrameHeightPx,
		ViewportMarginPx:     ViewportMarginPx,
		BodyPollIntervalMs:   BodyPollInterval.Milliseconds(),
		AutoCloseDelayMs:     AutoCloseDelay.Milliseconds(),
		MessageClose:         MessageTypeClose,
		MessageSubmitted:     MessageTypeSubmitted,
		MessageError:         MessageTypeError,
		MessageResize:        MessageTypeResize,
		MessageTelemetry:     MessageTypeTelemetry,
		EventLoaded:          model.EventTypeWidgetLoaded,
		EventOpened:          model.EventTypeWidgetOpened,
		EventSubmitted:       model.EventTypeFeedbackSubmitted,
		EventError:           model.EventTypeWidgetError,
	}

	var buffer bytes.Buffer
	if executeErr := loaderScriptTemplate.Execute(&buffer, data); executeErr != nil {
		return nil, fmt.Errorf("embed: render script: %w", executeErr)
	}
	return buffer.Bytes(), nil
}

// EmbedCode returns the script tag a site owner pastes into their page.
func EmbedCode(baseURL string, widgetID string, position string, theme string) string {
	normalizedBase := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	return fmt.Sprintf(
		embedCodeTemplate,
		html.EscapeString(normalizedBase),
		ScriptPath,
		html.EscapeString(widgetID),
		html.EscapeString(string(PositionOrDefault(position))),
		html.EscapeString(string(ThemeOrDefault(theme))),
	)
}
