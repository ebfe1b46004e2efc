package validation

import (
	stderrors "errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devrev/facet/internal/errors"
	"github.com/devrev/facet/internal/model"
)

func validEvent() model.Event {
	return model.Event{
		TenantID:    "acme",
		EntityID:    "ticket-1",
		AttributeID: "status",
		Value:       "open",
		OccurredAt:  time.Now(),
	}
}

func TestValidator_ValidateEvents_AcceptsWellFormedBatch(t *testing.T) {
	v := NewValidator()

	assert.NoError(t, v.ValidateEvents([]model.Event{validEvent(), validEvent()}))
}

func TestValidator_ValidateEvents_RejectsEmptyBatch(t *testing.T) {
	v := NewValidator()

	err := v.ValidateEvents(nil)
	require.Error(t, err)
	assert.Equal(t, errors.CodeInvalidArgument, errors.CodeOf(err))
}

func TestValidator_ValidateEvents_RejectsOversizeBatch(t *testing.T) {
	v := NewValidatorWithLimits(MaxIDSize, MaxAttrsPerEntry, 2)

	err := v.ValidateEvents([]model.Event{validEvent(), validEvent(), validEvent()})
	require.Error(t, err)
	assert.Equal(t, errors.CodeInvalidArgument, errors.CodeOf(err))
}

func TestValidator_ValidateEvents_ReportsOffendingIndex(t *testing.T) {
	v := NewValidator()

	bad := validEvent()
	bad.AttributeID = ""

	err := v.ValidateEvents([]model.Event{validEvent(), bad})
	require.Error(t, err)

	var e *errors.Error
	require.True(t, stderrors.As(err, &e))
	assert.Equal(t, 1, e.Details["index"])
}

func TestValidator_ValidateEvent_ChecksOccurredAt(t *testing.T) {
	v := NewValidator()

	e := validEvent()
	e.OccurredAt = time.Time{}
	assert.Error(t, v.ValidateEvent(e))

	e.OccurredAt = time.Now().Add(25 * time.Hour)
	assert.Error(t, v.ValidateEvent(e))

	// A slightly future timestamp tolerates producer clock skew.
	e.OccurredAt = time.Now().Add(time.Hour)
	assert.NoError(t, v.ValidateEvent(e))
}

func TestValidator_ValidateID(t *testing.T) {
	v := NewValidatorWithLimits(16, MaxAttrsPerEntry, MaxBatchSize)

	tests := []struct {
		name    string
		id      string
		wantErr bool
	}{
		{"simple", "acme", false},
		{"with separators", "tenant-7.env_a", false},
		{"empty", "", true},
		{"too long", strings.Repeat("a", 17), true},
		{"colon", "acme:prod", true},
		{"null byte", "acme\x00", true},
		{"control character", "acme\n", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.ValidateID("tenant_id", tt.id)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, errors.CodeInvalidArgument, errors.CodeOf(err))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidator_ValidateAttrs(t *testing.T) {
	v := NewValidatorWithLimits(MaxIDSize, 2, MaxBatchSize)

	assert.Error(t, v.ValidateAttrs(nil))
	assert.Error(t, v.ValidateAttrs(map[string]interface{}{}))

	assert.NoError(t, v.ValidateAttrs(map[string]interface{}{
		"status":   "open",
		"priority": 2,
	}))

	assert.Error(t, v.ValidateAttrs(map[string]interface{}{
		"a": 1, "b": 2, "c": 3,
	}))

	assert.Error(t, v.ValidateAttrs(map[string]interface{}{
		"bad:key": 1,
	}))
}

func TestSanitizeID(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		expected string
	}{
		{"passthrough", "ticket-1", "ticket-1"},
		{"strips colons", "acme:prod", "acmeprod"},
		{"strips control characters", "ack\nnowledged", "acknowledged"},
		{"trims whitespace", "  padded  ", "padded"},
		{"truncates oversize", strings.Repeat("a", MaxIDSize+10), strings.Repeat("a", MaxIDSize)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, SanitizeID(tt.in))
		})
	}
}
