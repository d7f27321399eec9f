package model

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	ThemeLight = "light"
	ThemeDark  = "dark"
	ThemeAuto  = "auto"

	PositionBottomRight = "bottom-right"
	PositionBottomLeft  = "bottom-left"
	PositionTopRight    = "top-right"
	PositionTopLeft     = "top-left"

	DefaultWidgetTheme    = ThemeAuto
	DefaultWidgetPosition = PositionBottomRight

	widgetSiteURLMaxLength = 500
)

var (
	ErrInvalidWidgetAdmin    = errors.New("invalid_widget_admin")
	ErrInvalidWidgetSiteURL  = errors.New("invalid_site_url")
	ErrInvalidWidgetTheme    = errors.New("invalid_theme")
	ErrInvalidWidgetPosition = errors.New("invalid_position")
)

// Widget is a configured feedback collection instance owned by one admin.
type Widget struct {
	ID        string    `gorm:"primaryKey;size:36"`
	AdminID   string    `gorm:"not null;size:36;index"`
	SiteURL   string    `gorm:"not null;size:500"`
	Theme     string    `gorm:"not null;size:8"`
	Position  string    `gorm:"not null;size:16"`
	IsActive  bool      `gorm:"not null"`
	CreatedAt time.Time `gorm:"autoCreateTime;index"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

// WidgetInput holds the raw values used to construct a Widget.
type WidgetInput struct {
	AdminID  string
	SiteURL  string
	Theme    string
	Position string
}

// NewWidget constructs an active Widget with validated, normalized fields.
func NewWidget(input WidgetInput) (Widget, error) {
	adminID := strings.TrimSpace(input.AdminID)
	if adminID == "" {
		return Widget{}, ErrInvalidWidgetAdmin
	}

	siteURL, siteURLErr := normalizeSiteURL(input.SiteURL)
	if siteURLErr != nil {
		return Widget{}, siteURLErr
	}

	theme, themeErr := NormalizeTheme(input.Theme)
	if themeErr != nil {
		return Widget{}, themeErr
	}

	position, positionErr := NormalizePosition(input.Position)
	if positionErr != nil {
		return Widget{}, positionErr
	}

	return Widget{
		ID:       uuid.NewString(),
		AdminID:  adminID,
		SiteURL:  siteURL,
		Theme:    theme,
		Position: position,
		IsActive: true,
	}, nil
}

// NormalizeTheme lower-cases the theme and substitutes the default for an empty value.
func NormalizeTheme(raw string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	if normalized == "" {
		return DefaultWidgetTheme, nil
	}
	switch normalized {
	case ThemeLight, ThemeDark, ThemeAuto:
		return normalized, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidWidgetTheme, raw)
	}
}

// NormalizePosition lower-cases the position and substitutes the default for an empty value.
func NormalizePosition(raw string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	if normalized == "" {
		return DefaultWidgetPosition, nil
	}
	switch normalized {
	case PositionBottomRight, PositionBottomLeft, PositionTopRight, PositionTopLeft:
		return normalized, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidWidgetPosition, raw)
	}
}

func normalizeSiteURL(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || len(trimmed) > widgetSiteURLMaxLength {
		return "", ErrInvalidWidgetSiteURL
	}
	parsed, parseErr := url.Parse(trimmed)
	if parseErr != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidWidgetSiteURL, parseErr)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", fmt.Errorf("%w: unsupported scheme", ErrInvalidWidgetSiteURL)
	}
	if parsed.Host == "" {
		return "", fmt.Errorf("%w: missing host", ErrInvalidWidgetSiteURL)
	}
	return trimmed, nil
}
