package httpapi

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/feedbackflow/internal/model"
)

const feedbackEventDefaultBuffer = 8

// FeedbackEvent announces a newly stored feedback entry to dashboard streams.
type FeedbackEvent struct {
	WidgetID      string
	AdminID       string
	Feedback      model.Feedback
	FeedbackCount int64
}

// FeedbackEventBroadcaster fans feedback events out to subscribed streams.
type FeedbackEventBroadcaster struct {
	mutex        sync.Mutex
	nextID       int64
	subscribers  map[int64]chan FeedbackEvent
	closed       bool
	bufferLength int
}

// NewFeedbackEventBroadcaster constructs a broadcaster for feedback events.
func NewFeedbackEventBroadcaster() *FeedbackEventBroadcaster {
	return &FeedbackEventBroadcaster{
		subscribers:  make(map[int64]chan FeedbackEvent),
		bufferLength: feedbackEventDefaultBuffer,
	}
}

// Subscribe returns a subscription, or nil once the broadcaster is closed.
func (broadcaster *FeedbackEventBroadcaster) Subscribe() *FeedbackEventSubscription {
	broadcaster.mutex.Lock()
	defer broadcaster.mutex.Unlock()
	if broadcaster.closed {
		return nil
	}
	subscriptionID := broadcaster.nextID
	broadcaster.nextID++
	eventChannel := make(chan FeedbackEvent, broadcaster.bufferLength)
	broadcaster.subscribers[subscriptionID] = eventChannel
	return &FeedbackEventSubscription{
		broadcaster: broadcaster,
		identifier:  subscriptionID,
		events:      eventChannel,
	}
}

// Broadcast delivers the event to every subscriber with buffer room. Slow subscribers miss it.
func (broadcaster *FeedbackEventBroadcaster) Broadcast(event FeedbackEvent) {
	broadcaster.mutex.Lock()
	defer broadcaster.mutex.Unlock()
	if broadcaster.closed {
		return
	}
	for _, channel := range broadcaster.subscribers {
		select {
		case channel <- event:
		default:
		}
	}
}

// Close stops the broadcaster and closes all subscriber channels.
func (broadcaster *FeedbackEventBroadcaster) Close() {
	broadcaster.mutex.Lock()
	defer broadcaster.mutex.Unlock()
	if broadcaster.closed {
		return
	}
	broadcaster.closed = true
	for identifier, channel := range broadcaster.subscribers {
		close(channel)
		delete(broadcaster.subscribers, identifier)
	}
}

func (broadcaster *FeedbackEventBroadcaster) remove(identifier int64) {
	broadcaster.mutex.Lock()
	defer broadcaster.mutex.Unlock()
	if channel, exists := broadcaster.subscribers[identifier]; exists {
		delete(broadcaster.subscribers, identifier)
		close(channel)
	}
}

// FeedbackEventSubscription is a single subscriber to feedback events.
type FeedbackEventSubscription struct {
	broadcaster *FeedbackEventBroadcaster
	identifier  int64
	events      chan FeedbackEvent
	once        sync.Once
}

// Events exposes the receive-only event channel.
func (subscription *FeedbackEventSubscription) Events() <-chan FeedbackEvent {
	if subscription == nil {
		return nil
	}
	return subscription.events
}

// Close unregisters the subscription and closes its channel.
func (subscription *FeedbackEventSubscription) Close() {
	if subscription == nil {
		return
	}
	subscription.once.Do(func() {
		subscription.broadcaster.remove(subscription.identifier)
	})
}

type feedbackCounter interface {
	CountFeedback(ctx context.Context, widgetID string) (int64, error)
}

func broadcastFeedbackEvent(ctx context.Context, counter feedbackCounter, logger *zap.Logger, broadcaster *FeedbackEventBroadcaster, widget model.Widget, feedback model.Feedback) {
	if broadcaster == nil {
		return
	}
	if feedback.CreatedAt.IsZero() {
		feedback.CreatedAt = time.Now().UTC()
	}
	totalCount, countErr := counter.CountFeedback(ctx, widget.ID)
	if countErr != nil {
		logger.Debug("count_feedback_event_failed", zap.Error(countErr))
		totalCount = 0
	}
	broadcaster.Broadcast(FeedbackEvent{
		WidgetID:      widget.ID,
		AdminID:       widget.AdminID,
		Feedback:      feedback,
		FeedbackCount: totalCount,
	})
}
