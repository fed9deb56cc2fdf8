package consistency

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func makeEvents(sequences ...int64) []Event {
	base := time.Date(2026, 8, 31, 9, 0, 0, 0, time.UTC)
	events := make([]Event, 0, len(sequences))
	for i, seq := range sequences {
		events = append(events, Event{
			ID:             fmt.Sprintf("e-%d", i),
			AggregateID:    "agg-1",
			AggregateType:  "order",
			Type:           "updated",
			SequenceNumber: seq,
			Timestamp:      base.Add(time.Duration(i) * time.Minute),
		})
	}
	return events
}

func TestValidateEventSequence(t *testing.T) {
	v := NewEventSourcingValidator(zap.NewNop())

	t.Run("contiguous sequence passes", func(t *testing.T) {
		result := v.ValidateEventSequence("agg-1", "order", makeEvents(1, 2, 3))
		assert.True(t, result.IsValid)
		assert.Equal(t, 3, result.Metadata["event_count"])
	})

	t.Run("gap is an error", func(t *testing.T) {
		result := v.ValidateEventSequence("agg-1", "order", makeEvents(1, 2, 4))
		assert.False(t, result.IsValid)
		assert.Contains(t, result.Errors[0], "expected 3 got 4")
	})

	t.Run("empty stream is a warning", func(t *testing.T) {
		result := v.ValidateEventSequence("agg-1", "order", nil)
		assert.True(t, result.IsValid)
		assert.Len(t, result.Warnings, 1)
	})

	t.Run("reducer errors fail reconstruction", func(t *testing.T) {
		v := NewEventSourcingValidator(zap.NewNop())
		v.RegisterReducer("order", func(state map[string]interface{}, event Event) (map[string]interface{}, error) {
			if event.SequenceNumber == 2 {
				return nil, errors.New("unexpected transition")
			}
			return state, nil
		})
		result := v.ValidateEventSequence("agg-1", "order", makeEvents(1, 2))
		assert.False(t, result.IsValid)
		assert.Contains(t, result.Errors[0], "state reconstruction failed")
	})

	t.Run("panicking reducer is contained", func(t *testing.T) {
		v := NewEventSourcingValidator(zap.NewNop())
		v.RegisterReducer("order", func(map[string]interface{}, Event) (map[string]interface{}, error) {
			panic("bad reducer")
		})
		result := v.ValidateEventSequence("agg-1", "order", makeEvents(1))
		assert.False(t, result.IsValid)
	})

	t.Run("per event type validators run", func(t *testing.T) {
		v := NewEventSourcingValidator(zap.NewNop())
		v.RegisterEventValidator("updated", func(event Event) error {
			if event.Data == nil {
				return errors.New("updated events need a payload")
			}
			return nil
		})
		result := v.ValidateEventSequence("agg-1", "order", makeEvents(1))
		assert.False(t, result.IsValid)
	})
}

func TestValidateEventCausality(t *testing.T) {
	v := NewEventSourcingValidator(zap.NewNop())
	base := time.Date(2026, 8, 31, 9, 0, 0, 0, time.UTC)

	t.Run("effect after cause passes", func(t *testing.T) {
		events := []Event{
			{ID: "cause", Timestamp: base},
			{ID: "effect", CausedBy: "cause", Timestamp: base.Add(time.Second)},
		}
		assert.True(t, v.ValidateEventCausality(events).IsValid)
	})

	t.Run("effect before cause is an error", func(t *testing.T) {
		events := []Event{
			{ID: "cause", Timestamp: base},
			{ID: "effect", CausedBy: "cause", Timestamp: base.Add(-time.Second)},
		}
		result := v.ValidateEventCausality(events)
		assert.False(t, result.IsValid)
		assert.Contains(t, result.Errors[0], "before its cause")
	})

	t.Run("cause outside the batch is ignored", func(t *testing.T) {
		events := []Event{
			{ID: "effect", CausedBy: "elsewhere", Timestamp: base},
		}
		assert.True(t, v.ValidateEventCausality(events).IsValid)
	})
}
