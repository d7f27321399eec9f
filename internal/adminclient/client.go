// Package adminclient talks to the admin API with a bearer token. It
// implements dashboard.Backend so the dashboard loader and controller run
// unchanged against a remote server.
package adminclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/feedbackflow/internal/dashboard"
	"github.com/MarkoPoloResearchLab/feedbackflow/internal/model"
)

const (
	defaultRequestTimeout = 15 * time.Second
	maxErrorBodyBytes     = 4096

	pathLogin     = "/auth/login"
	pathMe        = "/api/me"
	pathWidgets   = "/api/widgets"
	pathFeedback  = "/api/feedback"
	activityDate  = time.DateOnly
	headerAuth    = "Authorization"
	bearerPrefix  = "Bearer "
	contentType   = "application/json"
	unknownErrorC = "unknown_error"
)

var (
	ErrMissingBaseURL = errors.New("adminclient: base url is required")
	ErrMissingToken   = errors.New("adminclient: not signed in")
)

var _ dashboard.Backend = (*Client)(nil)

// APIError is a non-2xx answer from the server.
type APIError struct {
	StatusCode int
	Code       string
}

func (apiError *APIError) Error() string {
	return fmt.Sprintf("adminclient: %d %s", apiError.StatusCode, apiError.Code)
}

// IsStatus reports whether err is an APIError with the given status code.
func IsStatus(err error, statusCode int) bool {
	var apiError *APIError
	return errors.As(err, &apiError) && apiError.StatusCode == statusCode
}

// Session is the result of a successful login.
type Session struct {
	Token    string
	Redirect string
	Admin    model.Admin
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(client *Client) {
		if httpClient != nil {
			client.httpClient = httpClient
		}
	}
}

// WithToken sets the bearer token sent with admin requests.
func WithToken(token string) Option {
	return func(client *Client) {
		client.token = strings.TrimSpace(token)
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(client *Client) {
		if logger != nil {
			client.logger = logger
		}
	}
}

// Client is an admin API client.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *zap.Logger
}

// New creates a Client for the server at baseURL.
func New(baseURL string, options ...Option) (*Client, error) {
	normalized := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if normalized == "" {
		return nil, ErrMissingBaseURL
	}
	if _, parseErr := url.ParseRequestURI(normalized); parseErr != nil {
		return nil, fmt.Errorf("adminclient: parse base url: %w", parseErr)
	}
	client := &Client{
		baseURL:    normalized,
		httpClient: &http.Client{Timeout: defaultRequestTimeout},
		logger:     zap.NewNop(),
	}
	for _, option := range options {
		option(client)
	}
	return client, nil
}

// Token returns the bearer token in use.
func (client *Client) Token() string {
	return client.token
}

// Login exchanges credentials for a token and keeps it for later requests.
func (client *Client) Login(ctx context.Context, email string, password string) (Session, error) {
	var payload authPayload
	requestBody := map[string]string{"email": email, "password": password}
	if err := client.do(ctx, http.MethodPost, pathLogin, requestBody, &payload, false); err != nil {
		return Session{}, err
	}
	client.token = payload.Token
	return Session{Token: payload.Token, Redirect: payload.Redirect, Admin: payload.Admin.toModel()}, nil
}

// Me returns the signed-in admin.
func (client *Client) Me(ctx context.Context) (model.Admin, error) {
	var payload adminPayload
	if err := client.do(ctx, http.MethodGet, pathMe, nil, &payload, true); err != nil {
		return model.Admin{}, err
	}
	return payload.toModel(), nil
}

// ListWidgets returns the signed-in admin's widgets. The server scopes by the
// token; adminID is only stamped onto the results.
func (client *Client) ListWidgets(ctx context.Context, adminID string) ([]model.Widget, error) {
	var payload struct {
		Widgets []widgetPayload `json:"widgets"`
	}
	if err := client.do(ctx, http.MethodGet, pathWidgets, nil, &payload, true); err != nil {
		return nil, err
	}
	widgets := make([]model.Widget, 0, len(payload.Widgets))
	for _, item := range payload.Widgets {
		widget := item.toModel()
		widget.AdminID = adminID
		widgets = append(widgets, widget)
	}
	return widgets, nil
}

// RecentFeedback returns up to limit newest feedback entries for the given widgets.
func (client *Client) RecentFeedback(ctx context.Context, widgetIDs []string, limit int) ([]model.Feedback, error) {
	return client.SearchFeedback(ctx, FeedbackQuery{WidgetIDs: widgetIDs, Limit: limit})
}

// FeedbackQuery narrows a feedback listing.
type FeedbackQuery struct {
	WidgetIDs []string
	Limit     int
	Search    string
	Window    dashboard.Window
}

// SearchFeedback lists feedback filtered on the server by search text and time window.
func (client *Client) SearchFeedback(ctx context.Context, query FeedbackQuery) ([]model.Feedback, error) {
	values := url.Values{}
	if query.Limit > 0 {
		values.Set("limit", strconv.Itoa(query.Limit))
	}
	if strings.TrimSpace(query.Search) != "" {
		values.Set("q", query.Search)
	}
	if query.Window != "" {
		values.Set("window", string(query.Window))
	}
	path := pathFeedback
	if encoded := values.Encode(); encoded != "" {
		path += "?" + encoded
	}

	var payload struct {
		Feedback []feedbackPayload `json:"feedback"`
	}
	if err := client.do(ctx, http.MethodGet, path, nil, &payload, true); err != nil {
		return nil, err
	}

	var allowed map[string]struct{}
	if query.WidgetIDs != nil {
		allowed = make(map[string]struct{}, len(query.WidgetIDs))
		for _, widgetID := range query.WidgetIDs {
			allowed[widgetID] = struct{}{}
		}
	}
	feedback := make([]model.Feedback, 0, len(payload.Feedback))
	for _, item := range payload.Feedback {
		if allowed != nil {
			if _, ok := allowed[item.WidgetID]; !ok {
				continue
			}
		}
		feedback = append(feedback, item.toModel())
	}
	return feedback, nil
}

// WidgetStats returns feedback and view counts for a widget.
func (client *Client) WidgetStats(ctx context.Context, widgetID string) (dashboard.WidgetStats, error) {
	var stats dashboard.WidgetStats
	if err := client.do(ctx, http.MethodGet, widgetPath(widgetID, "stats"), nil, &stats, true); err != nil {
		return dashboard.WidgetStats{}, err
	}
	return stats, nil
}

// CreateWidget registers a widget for the signed-in admin.
func (client *Client) CreateWidget(ctx context.Context, adminID string, input model.WidgetInput) (model.Widget, error) {
	requestBody := map[string]string{
		"site_url": input.SiteURL,
		"theme":    input.Theme,
		"position": input.Position,
	}
	var payload widgetPayload
	if err := client.do(ctx, http.MethodPost, pathWidgets, requestBody, &payload, true); err != nil {
		return model.Widget{}, err
	}
	widget := payload.toModel()
	widget.AdminID = adminID
	return widget, nil
}

// SetWidgetActive pauses or activates a widget.
func (client *Client) SetWidgetActive(ctx context.Context, widgetID string, isActive bool) (model.Widget, error) {
	var payload widgetPayload
	if err := client.do(ctx, http.MethodPatch, widgetPath(widgetID, ""), map[string]bool{"is_active": isActive}, &payload, true); err != nil {
		return model.Widget{}, err
	}
	return payload.toModel(), nil
}

// DeleteWidget removes a widget.
func (client *Client) DeleteWidget(ctx context.Context, widgetID string) error {
	return client.do(ctx, http.MethodDelete, widgetPath(widgetID, ""), nil, nil, true)
}

// EmbedCode returns the script tag for a widget as the server renders it.
func (client *Client) EmbedCode(ctx context.Context, widgetID string) (string, error) {
	var payload struct {
		EmbedCode string `json:"embed_code"`
	}
	if err := client.do(ctx, http.MethodGet, widgetPath(widgetID, "embed"), nil, &payload, true); err != nil {
		return "", err
	}
	return payload.EmbedCode, nil
}

// Activity returns the daily event rollups for the last days days.
func (client *Client) Activity(ctx context.Context, widgetID string, days int) ([]model.EventRollup, error) {
	path := widgetPath(widgetID, "activity")
	if days > 0 {
		path += "?days=" + strconv.Itoa(days)
	}
	var payload struct {
		Rollups []struct {
			Date      string `json:"date"`
			EventType string `json:"event_type"`
			Count     int64  `json:"count"`
		} `json:"rollups"`
	}
	if err := client.do(ctx, http.MethodGet, path, nil, &payload, true); err != nil {
		return nil, err
	}
	rollups := make([]model.EventRollup, 0, len(payload.Rollups))
	for _, entry := range payload.Rollups {
		date, parseErr := time.Parse(activityDate, entry.Date)
		if parseErr != nil {
			return nil, fmt.Errorf("adminclient: parse rollup date %q: %w", entry.Date, parseErr)
		}
		rollups = append(rollups, model.EventRollup{WidgetID: widgetID, Date: date, EventType: entry.EventType, Count: entry.Count})
	}
	return rollups, nil
}

func (client *Client) do(ctx context.Context, method string, path string, requestBody any, target any, authenticated bool) error {
	if authenticated && client.token == "" {
		return ErrMissingToken
	}

	var body io.Reader
	if requestBody != nil {
		encoded, encodeErr := json.Marshal(requestBody)
		if encodeErr != nil {
			return fmt.Errorf("adminclient: encode request: %w", encodeErr)
		}
		body = bytes.NewReader(encoded)
	}
	request, requestErr := http.NewRequestWithContext(ctx, method, client.baseURL+path, body)
	if requestErr != nil {
		return fmt.Errorf("adminclient: build request: %w", requestErr)
	}
	request.Header.Set("Accept", contentType)
	if requestBody != nil {
		request.Header.Set("Content-Type", contentType)
	}
	if authenticated {
		request.Header.Set(headerAuth, bearerPrefix+client.token)
	}

	response, responseErr := client.httpClient.Do(request)
	if responseErr != nil {
		return fmt.Errorf("adminclient: %s %s: %w", method, path, responseErr)
	}
	defer response.Body.Close()

	client.logger.Debug("admin_api", zap.String("method", method), zap.String("path", path), zap.Int("status", response.StatusCode))

	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		return decodeAPIError(response)
	}
	if target == nil || response.StatusCode == http.StatusNoContent {
		return nil
	}
	if decodeErr := json.NewDecoder(response.Body).Decode(target); decodeErr != nil {
		return fmt.Errorf("adminclient: decode %s %s: %w", method, path, decodeErr)
	}
	return nil
}

func decodeAPIError(response *http.Response) error {
	var payload struct {
		Error string `json:"error"`
	}
	raw, _ := io.ReadAll(io.LimitReader(response.Body, maxErrorBodyBytes))
	code := unknownErrorC
	if json.Unmarshal(raw, &payload) == nil && payload.Error != "" {
		code = payload.Error
	}
	return &APIError{StatusCode: response.StatusCode, Code: code}
}

func widgetPath(widgetID string, suffix string) string {
	path := pathWidgets + "/" + url.PathEscape(widgetID)
	if suffix != "" {
		path += "/" + suffix
	}
	return path
}
