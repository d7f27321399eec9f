package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

const (
	fakeAdminEmail    = "owner@example.com"
	fakeAdminPassword = "correct horse battery"
	fakeToken         = "fake-jwt"
)

type fakeWidget struct {
	ID        string `json:"id"`
	SiteURL   string `json:"site_url"`
	Theme     string `json:"theme"`
	Position  string `json:"position"`
	IsActive  bool   `json:"is_active"`
	CreatedAt int64  `json:"created_at"`
}

type fakeFeedback struct {
	ID        string `json:"id"`
	WidgetID  string `json:"widget_id"`
	Message   string `json:"message"`
	UserEmail string `json:"user_email,omitempty"`
	PageURL   string `json:"page_url,omitempty"`
	Browser   string `json:"browser"`
	Device    string `json:"device"`
	CreatedAt int64  `json:"created_at"`
}

// fakeAdminAPI serves the admin routes feedbackctl uses from memory.
type fakeAdminAPI struct {
	mutex       sync.Mutex
	widgets     []fakeWidget
	feedback    []fakeFeedback
	views       map[string]int64
	updateCalls int
	nextID      int
}

func newFakeAdminAPI(testingT *testing.T, now time.Time) (*fakeAdminAPI, *httptest.Server) {
	testingT.Helper()
	api := &fakeAdminAPI{
		widgets: []fakeWidget{
			{ID: "widget-1", SiteURL: "https://shop.example", Theme: "auto", Position: "bottom-right", IsActive: true, CreatedAt: now.Add(-48 * time.Hour).Unix()},
		},
		feedback: []fakeFeedback{
			{ID: "f1", WidgetID: "widget-1", Message: "Checkout button broken", UserEmail: "buyer@example.com", Browser: "Chrome", Device: "Desktop", CreatedAt: now.Add(-2 * time.Hour).Unix()},
			{ID: "f2", WidgetID: "widget-1", Message: "Love the docs", Browser: "Safari", Device: "Mobile", CreatedAt: now.Add(-10 * 24 * time.Hour).Unix()},
		},
		views: map[string]int64{"widget-1": 8},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/login", api.login)
	mux.HandleFunc("GET /api/me", api.authenticated(api.me))
	mux.HandleFunc("GET /api/widgets", api.authenticated(api.listWidgets))
	mux.HandleFunc("POST /api/widgets", api.authenticated(api.createWidget))
	mux.HandleFunc("PATCH /api/widgets/{id}", api.authenticated(api.updateWidget))
	mux.HandleFunc("DELETE /api/widgets/{id}", api.authenticated(api.deleteWidget))
	mux.HandleFunc("GET /api/widgets/{id}/stats", api.authenticated(api.widgetStats))
	mux.HandleFunc("GET /api/widgets/{id}/embed", api.authenticated(api.widgetEmbed))
	mux.HandleFunc("GET /api/widgets/{id}/activity", api.authenticated(api.widgetActivity))
	mux.HandleFunc("GET /api/feedback", api.authenticated(api.listFeedback))

	server := httptest.NewServer(mux)
	testingT.Cleanup(server.Close)
	return api, server
}

func respond(writer http.ResponseWriter, status int, payload any) {
	writer.Header().Set("Content-Type", "application/json")
	writer.WriteHeader(status)
	_ = json.NewEncoder(writer).Encode(payload)
}

func (api *fakeAdminAPI) authenticated(next http.HandlerFunc) http.HandlerFunc {
	return func(writer http.ResponseWriter, request *http.Request) {
		if request.Header.Get("Authorization") != "Bearer "+fakeToken {
			respond(writer, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		api.mutex.Lock()
		defer api.mutex.Unlock()
		next(writer, request)
	}
}

func (api *fakeAdminAPI) login(writer http.ResponseWriter, request *http.Request) {
	var payload struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	_ = json.NewDecoder(request.Body).Decode(&payload)
	if payload.Email != fakeAdminEmail || payload.Password != fakeAdminPassword {
		respond(writer, http.StatusUnauthorized, map[string]string{"error": "invalid_credentials"})
		return
	}
	respond(writer, http.StatusOK, map[string]any{
		"token":    fakeToken,
		"redirect": "/dashboard",
		"admin":    map[string]any{"id": "admin-1", "email": fakeAdminEmail, "created_at": 1_700_000_000},
	})
}

func (api *fakeAdminAPI) me(writer http.ResponseWriter, _ *http.Request) {
	respond(writer, http.StatusOK, map[string]any{"id": "admin-1", "email": fakeAdminEmail, "created_at": 1_700_000_000})
}

func (api *fakeAdminAPI) listWidgets(writer http.ResponseWriter, _ *http.Request) {
	respond(writer, http.StatusOK, map[string]any{"widgets": api.widgets})
}

func (api *fakeAdminAPI) createWidget(writer http.ResponseWriter, request *http.Request) {
	var payload fakeWidget
	_ = json.NewDecoder(request.Body).Decode(&payload)
	if !strings.HasPrefix(payload.SiteURL, "http") {
		respond(writer, http.StatusBadRequest, map[string]string{"error": "invalid_site_url"})
		return
	}
	api.nextID++
	payload.ID = fmt.Sprintf("widget-new-%d", api.nextID)
	payload.IsActive = true
	payload.CreatedAt = time.Now().Unix()
	api.widgets = append([]fakeWidget{payload}, api.widgets...)
	respond(writer, http.StatusCreated, payload)
}

func (api *fakeAdminAPI) findWidget(widgetID string) (int, bool) {
	for index, widget := range api.widgets {
		if widget.ID == widgetID {
			return index, true
		}
	}
	return 0, false
}

func (api *fakeAdminAPI) updateWidget(writer http.ResponseWriter, request *http.Request) {
	index, found := api.findWidget(request.PathValue("id"))
	if !found {
		respond(writer, http.StatusNotFound, map[string]string{"error": "unknown_widget"})
		return
	}
	var payload struct {
		IsActive *bool `json:"is_active"`
	}
	_ = json.NewDecoder(request.Body).Decode(&payload)
	if payload.IsActive == nil {
		respond(writer, http.StatusBadRequest, map[string]string{"error": "nothing_to_update"})
		return
	}
	api.updateCalls++
	api.widgets[index].IsActive = *payload.IsActive
	respond(writer, http.StatusOK, api.widgets[index])
}

func (api *fakeAdminAPI) deleteWidget(writer http.ResponseWriter, request *http.Request) {
	index, found := api.findWidget(request.PathValue("id"))
	if !found {
		respond(writer, http.StatusNotFound, map[string]string{"error": "unknown_widget"})
		return
	}
	api.widgets = append(api.widgets[:index], api.widgets[index+1:]...)
	writer.WriteHeader(http.StatusNoContent)
}

func (api *fakeAdminAPI) widgetStats(writer http.ResponseWriter, request *http.Request) {
	widgetID := request.PathValue("id")
	var feedbackCount int64
	for _, item := range api.feedback {
		if item.WidgetID == widgetID {
			feedbackCount++
		}
	}
	respond(writer, http.StatusOK, map[string]int64{"feedback_count": feedbackCount, "view_count": api.views[widgetID]})
}

func (api *fakeAdminAPI) widgetEmbed(writer http.ResponseWriter, request *http.Request) {
	widgetID := request.PathValue("id")
	if _, found := api.findWidget(widgetID); !found {
		respond(writer, http.StatusNotFound, map[string]string{"error": "unknown_widget"})
		return
	}
	respond(writer, http.StatusOK, map[string]string{"embed_code": `<script src="https://feedback.example.com/embed.js" data-widget-id="` + widgetID + `"></script>`})
}

func (api *fakeAdminAPI) widgetActivity(writer http.ResponseWriter, request *http.Request) {
	respond(writer, http.StatusOK, map[string]any{
		"widget_id": request.PathValue("id"),
		"days":      request.URL.Query().Get("days"),
		"rollups": []any{
			map[string]any{"date": "2025-05-09", "event_type": "widget_opened", "count": 5},
			map[string]any{"date": "2025-05-10", "event_type": "widget_opened", "count": 3},
		},
	})
}

func (api *fakeAdminAPI) listFeedback(writer http.ResponseWriter, _ *http.Request) {
	respond(writer, http.StatusOK, map[string]any{"feedback": api.feedback})
}
