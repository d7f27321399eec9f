package embed

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"
)

const (
	MessageTypeClose     = "feedbackflow_close"
	MessageTypeSubmitted = "feedbackflow_submitted"
	MessageTypeError     = "feedbackflow_error"
	MessageTypeResize    = "feedbackflow_resize"
	MessageTypeTelemetry = "feedbackflow_event"

	telemetryTimestampLayout = "2006-01-02T15:04:05.000Z"
)

var (
	ErrMalformedMessage   = errors.New("malformed_message")
	ErrUnknownMessageType = errors.New("unknown_message_type")
)

// Message is one of the variants the widget frame posts to the loader.
type Message interface {
	Type() string
	isMessage()
}

// CloseMessage asks the loader to close the widget.
type CloseMessage struct{}

// SubmittedMessage reports a successful submission.
type SubmittedMessage struct {
	Message string `json:"message"`
}

// ErrorMessage reports a failure inside the widget frame. Data is passed through untouched.
type ErrorMessage struct {
	Data json.RawMessage
}

// ResizeMessage asks the loader to change the frame height.
type ResizeMessage struct {
	Height int
}

func (CloseMessage) Type() string     { return MessageTypeClose }
func (SubmittedMessage) Type() string { return MessageTypeSubmitted }
func (ErrorMessage) Type() string     { return MessageTypeError }
func (ResizeMessage) Type() string    { return MessageTypeResize }

func (CloseMessage) isMessage()     {}
func (SubmittedMessage) isMessage() {}
func (ErrorMessage) isMessage()     {}
func (ResizeMessage) isMessage()    {}

type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type resizePayload struct {
	Height float64 `json:"height"`
}

// frameHeightFromFloat bounds the height to [0, MaxInt32] before converting.
func frameHeightFromFloat(height float64) int {
	if math.IsNaN(height) || height <= 0 {
		return 0
	}
	return int(math.Min(height, math.MaxInt32))
}

// DecodeMessage parses the {type, data?} envelope into a typed message.
func DecodeMessage(payload []byte) (Message, error) {
	var decoded envelope
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	switch decoded.Type {
	case MessageTypeClose:
		return CloseMessage{}, nil
	case MessageTypeSubmitted:
		var submitted SubmittedMessage
		if len(decoded.Data) > 0 {
			if err := json.Unmarshal(decoded.Data, &submitted); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
			}
		}
		return submitted, nil
	case MessageTypeError:
		return ErrorMessage{Data: decoded.Data}, nil
	case MessageTypeResize:
		var resize resizePayload
		if len(decoded.Data) > 0 {
			if err := json.Unmarshal(decoded.Data, &resize); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
			}
		}
		return ResizeMessage{Height: frameHeightFromFloat(resize.Height)}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessageType, decoded.Type)
	}
}

// EncodeMessage serializes a message into the envelope posted by the widget frame.
func EncodeMessage(message Message) ([]byte, error) {
	encoded := envelope{Type: message.Type()}
	var data any
	switch typed := message.(type) {
	case SubmittedMessage:
		data = typed
	case ResizeMessage:
		data = resizePayload{Height: float64(typed.Height)}
	case ErrorMessage:
		encoded.Data = typed.Data
	}
	if data != nil {
		marshaled, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		encoded.Data = marshaled
	}
	return json.Marshal(encoded)
}

// TelemetryMessage is posted to the host window for host-page analytics.
type TelemetryMessage struct {
	Type      string `json:"type"`
	Event     string `json:"event"`
	WidgetID  string `json:"widgetId"`
	URL       string `json:"url"`
	Timestamp string `json:"timestamp"`
}

// NewTelemetryMessage builds a telemetry message with an ISO-8601 millisecond timestamp.
func NewTelemetryMessage(event string, widgetID string, pageURL string, at time.Time) TelemetryMessage {
	return TelemetryMessage{
		Type:      MessageTypeTelemetry,
		Event:     event,
		WidgetID:  widgetID,
		URL:       pageURL,
		Timestamp: at.UTC().Format(telemetryTimestampLayout),
	}
}
