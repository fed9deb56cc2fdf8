package consistency

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/veridata/quality-engine/internal/models"
)

// Event represents one entry of an aggregate's ordered event stream
type Event struct {
	ID             string                 `json:"id"`
	AggregateID    string                 `json:"aggregate_id"`
	AggregateType  string                 `json:"aggregate_type"`
	Type           string                 `json:"type"`
	SequenceNumber int64                  `json:"sequence_number"`
	Timestamp      time.Time              `json:"timestamp"`
	CausedBy       string                 `json:"caused_by,omitempty"`
	Data           map[string]interface{} `json:"data,omitempty"`
}

// Reducer folds one event into an aggregate's reconstructed state
type Reducer func(state map[string]interface{}, event Event) (map[string]interface{}, error)

// EventValidator checks a single event of a given type
type EventValidator func(event Event) error

// EventSourcingValidator verifies event stream integrity: contiguous
// sequence numbers, reconstructable state and causal ordering.
type EventSourcingValidator struct {
	logger     *zap.Logger
	mu         sync.RWMutex
	reducers   map[string]Reducer
	validators map[string][]EventValidator
}

// NewEventSourcingValidator creates an event sourcing validator
func NewEventSourcingValidator(logger *zap.Logger) *EventSourcingValidator {
	return &EventSourcingValidator{
		logger:     logger,
		reducers:   make(map[string]Reducer),
		validators: make(map[string][]EventValidator),
	}
}

// RegisterReducer registers the state reducer for an aggregate type
func (v *EventSourcingValidator) RegisterReducer(aggregateType string, reducer Reducer) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.reducers[aggregateType] = reducer
}

// RegisterEventValidator registers a per-event-type validator
func (v *EventSourcingValidator) RegisterEventValidator(eventType string, validator EventValidator) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.validators[eventType] = append(v.validators[eventType], validator)
}

// ValidateEventSequence verifies that sequence numbers increase by exactly
// one with no gaps, optionally reconstructs the aggregate state through the
// registered reducer, and runs per-event-type validators.
func (v *EventSourcingValidator) ValidateEventSequence(aggregateID, aggregateType string, events []Event) *models.ValidationResult {
	result := models.NewValidationResult()
	result.SetMetadata("aggregate_id", aggregateID)
	result.SetMetadata("event_count", len(events))

	if len(events) == 0 {
		result.AddWarning(fmt.Sprintf("aggregate %s has no events", aggregateID))
		return result
	}

	for i := 1; i < len(events); i++ {
		expected := events[i-1].SequenceNumber + 1
		actual := events[i].SequenceNumber
		if actual != expected {
			result.AddError(fmt.Sprintf(
				"aggregate %s: sequence gap at position %d, expected %d got %d",
				aggregateID, i, expected, actual))
		}
	}

	v.mu.RLock()
	reducer := v.reducers[aggregateType]
	v.mu.RUnlock()

	if reducer != nil {
		if err := v.reconstruct(reducer, events); err != nil {
			result.AddError(fmt.Sprintf("aggregate %s: state reconstruction failed: %v", aggregateID, err))
		}
	}

	for _, event := range events {
		v.mu.RLock()
		validators := v.validators[event.Type]
		v.mu.RUnlock()

		for _, validator := range validators {
			if err := v.runEventValidator(validator, event); err != nil {
				result.AddError(fmt.Sprintf("event %s (%s): %v", event.ID, event.Type, err))
			}
		}
	}

	return result
}

// ValidateEventCausality checks that no event in the batch precedes the
// event that caused it
func (v *EventSourcingValidator) ValidateEventCausality(events []Event) *models.ValidationResult {
	result := models.NewValidationResult()

	byID := make(map[string]Event, len(events))
	for _, event := range events {
		byID[event.ID] = event
	}

	for _, event := range events {
		if event.CausedBy == "" {
			continue
		}
		cause, exists := byID[event.CausedBy]
		if !exists {
			continue
		}
		if event.Timestamp.Before(cause.Timestamp) {
			result.AddError(fmt.Sprintf(
				"event %s occurred at %s before its cause %s at %s",
				event.ID, event.Timestamp.Format(time.RFC3339),
				cause.ID, cause.Timestamp.Format(time.RFC3339)))
		}
	}

	return result
}

func (v *EventSourcingValidator) reconstruct(reducer Reducer, events []Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			v.logger.Warn("Reducer panicked", zap.Any("panic", r))
			err = fmt.Errorf("reducer panicked: %v", r)
		}
	}()

	state := make(map[string]interface{})
	for _, event := range events {
		state, err = reducer(state, event)
		if err != nil {
			return fmt.Errorf("at sequence %d: %w", event.SequenceNumber, err)
		}
	}
	return nil
}

func (v *EventSourcingValidator) runEventValidator(validator EventValidator, event Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			v.logger.Warn("Event validator panicked", zap.Any("panic", r))
			err = fmt.Errorf("validator panicked: %v", r)
		}
	}()
	return validator(event)
}
