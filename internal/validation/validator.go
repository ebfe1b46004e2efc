package validation

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/devrev/facet/internal/errors"
	"github.com/devrev/facet/internal/model"
)

const (
	// Size limits
	MaxIDSize        = 256
	MaxAttrsPerEntry = 256
	MaxBatchSize     = 10000
)

// Validator validates ingest and upsert input
type Validator struct {
	maxIDSize        int
	maxAttrsPerEntry int
	maxBatchSize     int
}

// NewValidator creates a validator with default limits
func NewValidator() *Validator {
	return &Validator{
		maxIDSize:        MaxIDSize,
		maxAttrsPerEntry: MaxAttrsPerEntry,
		maxBatchSize:     MaxBatchSize,
	}
}

// NewValidatorWithLimits creates a validator with custom limits
func NewValidatorWithLimits(maxIDSize, maxAttrsPerEntry, maxBatchSize int) *Validator {
	return &Validator{
		maxIDSize:        maxIDSize,
		maxAttrsPerEntry: maxAttrsPerEntry,
		maxBatchSize:     maxBatchSize,
	}
}

// ValidateEvents validates an ingest batch
func (v *Validator) ValidateEvents(events []model.Event) error {
	if len(events) == 0 {
		return errors.InvalidArgument("event batch cannot be empty")
	}
	if len(events) > v.maxBatchSize {
		return errors.Newf(errors.CodeInvalidArgument,
			"event batch size %d exceeds maximum %d", len(events), v.maxBatchSize).
			WithDetail("size", len(events)).
			WithDetail("max_size", v.maxBatchSize)
	}
	for i, e := range events {
		if err := v.ValidateEvent(e); err != nil {
			return errors.New(errors.CodeInvalidArgument,
				fmt.Sprintf("event %d invalid", i), err).
				WithDetail("index", i)
		}
	}
	return nil
}

// ValidateEvent validates a single event
func (v *Validator) ValidateEvent(e model.Event) error {
	if err := v.ValidateID("tenant_id", e.TenantID); err != nil {
		return err
	}
	if err := v.ValidateID("entity_id", e.EntityID); err != nil {
		return err
	}
	if err := v.ValidateID("attribute_id", e.AttributeID); err != nil {
		return err
	}
	if e.OccurredAt.IsZero() {
		return errors.InvalidArgument("occurred_at is required")
	}
	if e.OccurredAt.After(time.Now().Add(24 * time.Hour)) {
		return errors.InvalidArgument("occurred_at is too far in the future")
	}
	return nil
}

// ValidateID validates a tenant, entity, or attribute identifier
func (v *Validator) ValidateID(field, id string) error {
	if id == "" {
		return errors.InvalidArgument(field + " cannot be empty")
	}
	if len(id) > v.maxIDSize {
		return errors.Newf(errors.CodeInvalidArgument,
			"%s exceeds maximum size of %d bytes", field, v.maxIDSize).
			WithDetail("field", field).
			WithDetail("size", len(id))
	}
	// ':' separates segments in cache keys built from identifiers
	if strings.Contains(id, ":") {
		return errors.InvalidArgument(field + " cannot contain ':' character")
	}
	if strings.Contains(id, "\x00") {
		return errors.InvalidArgument(field + " cannot contain null bytes")
	}
	for _, r := range id {
		if unicode.IsControl(r) {
			return errors.InvalidArgument(field + " cannot contain control characters")
		}
	}
	return nil
}

// ValidateAttrs validates a hot upsert attribute map
func (v *Validator) ValidateAttrs(attrs map[string]interface{}) error {
	if len(attrs) == 0 {
		return errors.InvalidArgument("attrs cannot be empty")
	}
	if len(attrs) > v.maxAttrsPerEntry {
		return errors.Newf(errors.CodeInvalidArgument,
			"attrs has %d keys, maximum is %d", len(attrs), v.maxAttrsPerEntry).
			WithDetail("keys", len(attrs)).
			WithDetail("max_keys", v.maxAttrsPerEntry)
	}
	for k := range attrs {
		if err := v.ValidateID("attribute key", k); err != nil {
			return err
		}
	}
	return nil
}

// SanitizeID strips forbidden characters from an identifier.
// Useful for building cache keys from externally supplied values.
func SanitizeID(id string) string {
	sanitized := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) || r == ':' {
			return -1
		}
		return r
	}, id)

	sanitized = strings.TrimSpace(sanitized)

	if len(sanitized) > MaxIDSize {
		sanitized = sanitized[:MaxIDSize]
	}

	return sanitized
}
