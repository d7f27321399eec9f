package adminclient

import (
	"time"

	"github.com/MarkoPoloResearchLab/feedbackflow/internal/model"
)

type adminPayload struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	CreatedAt int64  `json:"created_at"`
}

type authPayload struct {
	Token    string       `json:"token"`
	Redirect string       `json:"redirect"`
	Admin    adminPayload `json:"admin"`
}

type widgetPayload struct {
	ID        string `json:"id"`
	SiteURL   string `json:"site_url"`
	Theme     string `json:"theme"`
	Position  string `json:"position"`
	IsActive  bool   `json:"is_active"`
	CreatedAt int64  `json:"created_at"`
}

type feedbackPayload struct {
	ID        string `json:"id"`
	WidgetID  string `json:"widget_id"`
	Message   string `json:"message"`
	UserEmail string `json:"user_email"`
	PageURL   string `json:"page_url"`
	Browser   string `json:"browser"`
	Device    string `json:"device"`
	CreatedAt int64  `json:"created_at"`
}

func (payload adminPayload) toModel() model.Admin {
	return model.Admin{ID: payload.ID, Email: payload.Email, CreatedAt: fromUnix(payload.CreatedAt)}
}

func (payload widgetPayload) toModel() model.Widget {
	return model.Widget{
		ID:        payload.ID,
		SiteURL:   payload.SiteURL,
		Theme:     payload.Theme,
		Position:  payload.Position,
		IsActive:  payload.IsActive,
		CreatedAt: fromUnix(payload.CreatedAt),
	}
}

func (payload feedbackPayload) toModel() model.Feedback {
	return model.Feedback{
		ID:        payload.ID,
		WidgetID:  payload.WidgetID,
		Message:   payload.Message,
		UserEmail: payload.UserEmail,
		PageURL:   payload.PageURL,
		Browser:   payload.Browser,
		Device:    payload.Device,
		CreatedAt: fromUnix(payload.CreatedAt),
	}
}

func fromUnix(seconds int64) time.Time {
	if seconds <= 0 {
		return time.Time{}
	}
	return time.Unix(seconds, 0).UTC()
}
