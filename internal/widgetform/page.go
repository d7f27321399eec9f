package widgetform

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"net/url"
	"strings"

	"github.com/MarkoPoloResearchLab/feedbackflow/internal/embed"
	"github.com/MarkoPoloResearchLab/feedbackflow/internal/model"
)

const (
	pageTitle          = "Send Feedback"
	pageHeading        = "Share your feedback"
	pageSubheading     = "We read every message."
	messagePlaceholder = "Tell us what you think..."
	emailPlaceholder   = "Email (optional)"
	submitLabel        = "Send feedback"
	sendingLabel       = "Sending..."
	successHeading     = "Thank you!"
	successText        = "Your feedback has been received."
	sendAnotherLabel   = "Send another"
	closeLabel         = "Close"
	submittedMessage   = "Feedback submitted successfully"

	// FeedbackPath is the endpoint the form posts submissions to.
	FeedbackPath = "/api/feedback"
)

//go:embed assets/widget.html
var pageTemplateSource string

var pageTemplate = template.Must(template.New("widget.html").Parse(pageTemplateSource))

// PageQuery holds the query parameters the loader passes to the widget frame.
type PageQuery struct {
	WidgetID  string
	ParentURL string
	Theme     string
}

// ParsePageQuery reads the widget frame query once.
func ParsePageQuery(values url.Values) PageQuery {
	return PageQuery{
		WidgetID:  strings.TrimSpace(values.Get(embed.QueryParameterWidgetID)),
		ParentURL: strings.TrimSpace(values.Get(embed.QueryParameterParentURL)),
		Theme:     string(embed.ThemeOrDefault(values.Get(embed.QueryParameterTheme))),
	}
}

// ParentOrigin is the target origin for messages posted to the embedding page.
func (query PageQuery) ParentOrigin() string {
	if origin := embed.OriginOf(query.ParentURL); origin != "" {
		return origin
	}
	return "*"
}

type pageClientConfig struct {
	WidgetID           string `json:"widgetId"`
	ParentURL          string `json:"parentUrl"`
	ParentOrigin       string `json:"parentOrigin"`
	FeedbackEndpoint   string `json:"feedbackEndpoint"`
	EventsEndpoint     string `json:"eventsEndpoint"`
	MaxLength          int    `json:"maxLength"`
	WarningThreshold   int    `json:"warningThreshold"`
	EmptyMessageText   string `json:"emptyMessageText"`
	TooLongMessageText string `json:"tooLongMessageText"`
	FailureMessageText string `json:"failureMessageText"`
	SubmittedText      string `json:"submittedText"`
	SubmitLabel        string `json:"submitLabel"`
	SendingLabel       string `json:"sendingLabel"`
	MessageClose       string `json:"messageClose"`
	MessageSubmitted   string `json:"messageSubmitted"`
	MessageError       string `json:"messageError"`
	MessageResize      string `json:"messageResize"`
	EventWidgetLoaded  string `json:"eventWidgetLoaded"`
	MetadataParentURL  string `json:"metadataParentUrl"`
	MetadataTimestamp  string `json:"metadataTimestamp"`
}

type pageTemplateData struct {
	PageTitle          string
	Heading            string
	Subheading         string
	Theme              string
	MessagePlaceholder string
	EmailPlaceholder   string
	SubmitLabel        string
	SuccessHeading     string
	SuccessText        string
	SendAnotherLabel   string
	CloseLabel         string
	MaxLength          int
	ClientConfigJSON   template.JS
}

// RenderPage writes the widget form page for the given query.
func RenderPage(writer io.Writer, query PageQuery) error {
	clientConfig := pageClientConfig{
		WidgetID:           query.WidgetID,
		ParentURL:          query.ParentURL,
		ParentOrigin:       query.ParentOrigin(),
		FeedbackEndpoint:   FeedbackPath,
		EventsEndpoint:     embed.EventsPath,
		MaxLength:          model.FeedbackMessageMaxLength,
		WarningThreshold:   CounterWarningThreshold,
		EmptyMessageText:   messageEmptyText,
		TooLongMessageText: messageTooLongText,
		FailureMessageText: messageSubmitFailed,
		SubmittedText:      submittedMessage,
		SubmitLabel:        submitLabel,
		SendingLabel:       sendingLabel,
		MessageClose:       embed.MessageTypeClose,
		MessageSubmitted:   embed.MessageTypeSubmitted,
		MessageError:       embed.MessageTypeError,
		MessageResize:      embed.MessageTypeResize,
		EventWidgetLoaded:  model.EventTypeWidgetLoaded,
		MetadataParentURL:  model.EventMetadataParentURL,
		MetadataTimestamp:  model.EventMetadataTimestamp,
	}
	configJSON, marshalErr := json.Marshal(clientConfig)
	if marshalErr != nil {
		return fmt.Errorf("widgetform: encode client config: %w", marshalErr)
	}

	data := pageTemplateData{
		PageTitle:          pageTitle,
		Heading:            pageHeading,
		Subheading:         pageSubheading,
		Theme:              query.Theme,
		MessagePlaceholder: messagePlaceholder,
		EmailPlaceholder:   emailPlaceholder,
		SubmitLabel:        submitLabel,
		SuccessHeading:     successHeading,
		SuccessText:        successText,
		SendAnotherLabel:   sendAnotherLabel,
		CloseLabel:         closeLabel,
		MaxLength:          model.FeedbackMessageMaxLength,
		ClientConfigJSON:   template.JS(configJSON),
	}
	if executeErr := pageTemplate.Execute(writer, data); executeErr != nil {
		return fmt.Errorf("widgetform: render page: %w", executeErr)
	}
	return nil
}
