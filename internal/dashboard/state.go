// Package dashboard holds the admin dashboard application state and the operations
// that load and mutate it. Every change goes through Store.Apply so a slow load
// can never overwrite the result of a newer one.
package dashboard

import (
	"sync"

	"github.com/MarkoPoloResearchLab/feedbackflow/internal/model"
)

// MaxFeedbackItems bounds the feedback list kept in memory.
const MaxFeedbackItems = 100

const (
	SliceWidgets  = "widgets"
	SliceFeedback = "feedback"

	sliceStatsPrefix  = "stats:"
	sliceWidgetPrefix = "widget:"
)

// WidgetSlice names the state slice versioning point changes to one widget.
func WidgetSlice(widgetID string) string {
	return sliceWidgetPrefix + widgetID
}

// StatsSlice names the state slice holding one widget's stats.
func StatsSlice(widgetID string) string {
	return sliceStatsPrefix + widgetID
}

// WidgetStats are the per-widget counters shown on widget cards.
type WidgetStats struct {
	Feedback int64 `json:"feedback_count"`
	Views    int64 `json:"view_count"`
}

// State is an immutable snapshot of everything the dashboard renders.
type State struct {
	Widgets     []model.Widget
	Feedback    []model.Feedback
	WidgetStats map[string]WidgetStats
	generations map[string]uint64
}

// Generation reports the generation last applied to a slice.
func (state State) Generation(slice string) uint64 {
	return state.generations[slice]
}

// Widget returns the widget with the given id.
func (state State) Widget(widgetID string) (model.Widget, bool) {
	for _, widget := range state.Widgets {
		if widget.ID == widgetID {
			return widget, true
		}
	}
	return model.Widget{}, false
}

// WidgetIDs lists the ids of every widget in the snapshot.
func (state State) WidgetIDs() []string {
	identifiers := make([]string, 0, len(state.Widgets))
	for _, widget := range state.Widgets {
		identifiers = append(identifiers, widget.ID)
	}
	return identifiers
}

func (state State) clone() State {
	cloned := State{
		Widgets:     append([]model.Widget(nil), state.Widgets...),
		Feedback:    append([]model.Feedback(nil), state.Feedback...),
		WidgetStats: make(map[string]WidgetStats, len(state.WidgetStats)),
		generations: make(map[string]uint64, len(state.generations)),
	}
	for widgetID, stats := range state.WidgetStats {
		cloned.WidgetStats[widgetID] = stats
	}
	for slice, generation := range state.generations {
		cloned.generations[slice] = generation
	}
	return cloned
}

// Update is a change to one slice of the state, stamped with the generation
// returned by Store.Begin when the change was started.
type Update struct {
	Slice      string
	Generation uint64
	mutate     func(*State)
}

// ReplaceWidgets replaces the widget list. Widgets created, updated or removed
// locally after the load began keep their local version.
func ReplaceWidgets(generation uint64, widgets []model.Widget) Update {
	replacement := append([]model.Widget(nil), widgets...)
	return Update{Slice: SliceWidgets, Generation: generation, mutate: func(state *State) {
		merged := make([]model.Widget, 0, len(replacement))
		for _, widget := range state.Widgets {
			if state.generations[WidgetSlice(widget.ID)] > generation && !containsWidget(replacement, widget.ID) {
				merged = append(merged, widget)
			}
		}
		for _, widget := range replacement {
			if state.generations[WidgetSlice(widget.ID)] <= generation {
				merged = append(merged, widget)
				continue
			}
			if local, found := state.Widget(widget.ID); found {
				merged = append(merged, local)
			}
		}
		state.Widgets = merged
	}}
}

func containsWidget(widgets []model.Widget, widgetID string) bool {
	for _, widget := range widgets {
		if widget.ID == widgetID {
			return true
		}
	}
	return false
}

// ReplaceFeedback replaces the feedback list, keeping at most MaxFeedbackItems.
func ReplaceFeedback(generation uint64, feedback []model.Feedback) Update {
	if len(feedback) > MaxFeedbackItems {
		feedback = feedback[:MaxFeedbackItems]
	}
	replacement := append([]model.Feedback(nil), feedback...)
	return Update{Slice: SliceFeedback, Generation: generation, mutate: func(state *State) {
		state.Feedback = replacement
	}}
}

// SetWidgetStats replaces one widget's stats.
func SetWidgetStats(generation uint64, widgetID string, stats WidgetStats) Update {
	return Update{Slice: StatsSlice(widgetID), Generation: generation, mutate: func(state *State) {
		state.WidgetStats[widgetID] = stats
	}}
}

// UpsertWidget replaces a widget in place or prepends it when it is new.
func UpsertWidget(generation uint64, widget model.Widget) Update {
	return Update{Slice: WidgetSlice(widget.ID), Generation: generation, mutate: func(state *State) {
		for index := range state.Widgets {
			if state.Widgets[index].ID == widget.ID {
				state.Widgets[index] = widget
				return
			}
		}
		state.Widgets = append([]model.Widget{widget}, state.Widgets...)
	}}
}

// RemoveWidget drops a widget together with its feedback and stats.
func RemoveWidget(generation uint64, widgetID string) Update {
	return Update{Slice: WidgetSlice(widgetID), Generation: generation, mutate: func(state *State) {
		widgets := state.Widgets[:0]
		for _, widget := range state.Widgets {
			if widget.ID != widgetID {
				widgets = append(widgets, widget)
			}
		}
		state.Widgets = widgets

		feedback := state.Feedback[:0]
		for _, item := range state.Feedback {
			if item.WidgetID != widgetID {
				feedback = append(feedback, item)
			}
		}
		state.Feedback = feedback
		delete(state.WidgetStats, widgetID)
	}}
}

// PrependFeedback adds a newly created feedback item to the top of the list.
func PrependFeedback(generation uint64, item model.Feedback) Update {
	return Update{Slice: SliceFeedback, Generation: generation, mutate: func(state *State) {
		for _, existing := range state.Feedback {
			if existing.ID == item.ID {
				return
			}
		}
		state.Feedback = append([]model.Feedback{item}, state.Feedback...)
		if len(state.Feedback) > MaxFeedbackItems {
			state.Feedback = state.Feedback[:MaxFeedbackItems]
		}
	}}
}

// Store owns the current State. It is safe for concurrent use.
type Store struct {
	mutex    sync.Mutex
	state    State
	sequence uint64
}

// NewStore creates a store holding an empty state.
func NewStore() *Store {
	return &Store{
		state: State{
			WidgetStats: map[string]WidgetStats{},
			generations: map[string]uint64{},
		},
	}
}

// Begin issues the next generation. Generations increase across all slices,
// so a full widget load can tell which point changes happened after it began.
// Call it before starting the request whose result will be applied.
func (store *Store) Begin() uint64 {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	store.sequence++
	return store.sequence
}

// Apply merges an update into the state. Updates older than the generation
// already applied to their slice are discarded; Apply reports whether the
// update was merged.
func (store *Store) Apply(update Update) bool {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	if update.mutate == nil || update.Generation < store.state.generations[update.Slice] {
		return false
	}
	next := store.state.clone()
	update.mutate(&next)
	next.generations[update.Slice] = update.Generation
	store.state = next
	return true
}

// Snapshot returns the current state. Callers must not modify the returned slices.
func (store *Store) Snapshot() State {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	return store.state
}
