// Package embed describes the floating widget a host page embeds: where it sits,
// how big its frame is, which cross-window messages it understands, and how the
// loader script that implements it is rendered.
package embed

import (
	"net/url"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/feedbackflow/internal/model"
)

const (
	AttributeWidgetID = "data-widget-id"
	AttributePosition = "data-position"
	AttributeTheme    = "data-theme"

	DefaultWidgetID = "default"

	QueryParameterWidgetID  = "widgetId"
	QueryParameterTheme     = "theme"
	QueryParameterParentURL = "parentUrl"

	WidgetPagePath = "/widget.html"
	ScriptPath     = "/embed.js"

	CornerMarginPx    = 20
	ContainerZIndex   = 999999
	TriggerSizePx     = 60
	ContainerIDPrefix = "feedbackflow-"

	BodyPollInterval = 100 * time.Millisecond
	AutoCloseDelay   = 2000 * time.Millisecond
)

// Position names the screen corner the widget is anchored to.
type Position string

const (
	PositionBottomRight Position = model.PositionBottomRight
	PositionBottomLeft  Position = model.PositionBottomLeft
	PositionTopRight    Position = model.PositionTopRight
	PositionTopLeft     Position = model.PositionTopLeft
)

// Positions lists every supported corner.
func Positions() []Position {
	return []Position{PositionBottomRight, PositionBottomLeft, PositionTopRight, PositionTopLeft}
}

// PositionOrDefault returns the named corner, falling back to bottom-right for unknown input.
func PositionOrDefault(raw string) Position {
	normalized, err := model.NormalizePosition(raw)
	if err != nil {
		return PositionBottomRight
	}
	return Position(normalized)
}

// Offsets returns the CSS properties anchoring the container to its corner.
func (position Position) Offsets() map[string]string {
	margin := cornerMargin()
	switch position {
	case PositionBottomLeft:
		return map[string]string{"bottom": margin, "left": margin}
	case PositionTopRight:
		return map[string]string{"top": margin, "right": margin}
	case PositionTopLeft:
		return map[string]string{"top": margin, "left": margin}
	default:
		return map[string]string{"bottom": margin, "right": margin}
	}
}

func cornerMargin() string {
	return pixels(CornerMarginPx)
}

// Theme is the visual theme hint passed to the widget page.
type Theme string

const (
	ThemeLight Theme = model.ThemeLight
	ThemeDark  Theme = model.ThemeDark
	ThemeAuto  Theme = model.ThemeAuto
)

// ThemeOrDefault returns the named theme, falling back to auto for unknown input.
func ThemeOrDefault(raw string) Theme {
	normalized, err := model.NormalizeTheme(raw)
	if err != nil {
		return ThemeAuto
	}
	return Theme(normalized)
}

// Config is the loader configuration read from the script tag at load time.
type Config struct {
	WidgetID string
	Position Position
	Theme    Theme
	BaseURL  string
}

// ConfigFromAttributes reads the script tag attributes and derives the base URL from the script source.
func ConfigFromAttributes(attributes map[string]string, scriptSource string) Config {
	widgetID := strings.TrimSpace(attributes[AttributeWidgetID])
	if widgetID == "" {
		widgetID = DefaultWidgetID
	}
	return Config{
		WidgetID: widgetID,
		Position: PositionOrDefault(attributes[AttributePosition]),
		Theme:    ThemeOrDefault(attributes[AttributeTheme]),
		BaseURL:  OriginOf(scriptSource),
	}
}

// OriginOf returns scheme://host of a URL, or an empty string when it has neither.
func OriginOf(rawURL string) string {
	parsed, parseErr := url.Parse(strings.TrimSpace(rawURL))
	if parseErr != nil || parsed.Scheme == "" || parsed.Host == "" {
		return ""
	}
	return parsed.Scheme + "://" + parsed.Host
}

// FrameURL is the widget page address loaded into the iframe.
func (config Config) FrameURL(parentURL string) string {
	query := url.Values{}
	query.Set(QueryParameterWidgetID, config.WidgetID)
	query.Set(QueryParameterTheme, string(config.Theme))
	query.Set(QueryParameterParentURL, parentURL)
	return config.BaseURL + WidgetPagePath + "?" + query.Encode()
}

// ContainerID is the DOM id of the injected container.
func (config Config) ContainerID() string {
	return ContainerIDPrefix + config.WidgetID
}
