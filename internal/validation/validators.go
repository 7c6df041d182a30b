package validation

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/benvon/zentask/internal/models"
	"github.com/go-playground/validator/v10"
)

// MaxTitleLength is the maximum task title length, in characters after sanitization
const MaxTitleLength = 500

// DeadlineLocalLayout is the layout produced by HTML datetime-local inputs
const DeadlineLocalLayout = "2006-01-02T15:04"

// ErrInvalidDeadline is returned when a deadline matches no accepted layout
var ErrInvalidDeadline = errors.New("invalid deadline")

var (
	// Validate is a shared validator instance
	Validate *validator.Validate
)

func init() {
	Validate = validator.New()

	if err := Validate.RegisterValidation("priority", validatePriority); err != nil {
		panic(fmt.Sprintf("failed to register priority validator: %v", err))
	}
	if err := Validate.RegisterValidation("title", validateTitle); err != nil {
		panic(fmt.Sprintf("failed to register title validator: %v", err))
	}
}

// validatePriority accepts whatever ParsePriority accepts: a known priority
// or blank, ignoring surrounding whitespace
func validatePriority(fl validator.FieldLevel) bool {
	value := strings.TrimSpace(fl.Field().String())
	return value == "" || models.Priority(value).Valid()
}

// validateTitle measures the title as it will be stored
func validateTitle(fl validator.FieldLevel) bool {
	return utf8.RuneCountInString(SanitizeText(fl.Field().String())) <= MaxTitleLength
}

// SanitizeText sanitizes text input by trimming whitespace and removing control characters
func SanitizeText(text string) string {
	text = strings.TrimSpace(text)

	// Remove control characters except newline and tab
	var sanitized strings.Builder
	for _, r := range text {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			continue
		}
		sanitized.WriteRune(r)
	}

	return sanitized.String()
}

// ValidatePriority validates a Priority string value
func ValidatePriority(value string) error {
	if models.Priority(value).Valid() {
		return nil
	}
	return fmt.Errorf("invalid priority: %s (must be 'High', 'Medium', or 'Low')", value)
}

// ParsePriority returns the priority for value, defaulting to Medium when empty
func ParsePriority(value string) (models.Priority, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return models.PriorityMedium, nil
	}
	if err := ValidatePriority(value); err != nil {
		return "", err
	}
	return models.Priority(value), nil
}

// ParseDeadline parses an optional deadline. Empty input yields nil.
// RFC3339 timestamps keep their offset; datetime-local values are read as UTC.
func ParseDeadline(value string) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return &t, nil
	}
	t, err := time.ParseInLocation(DeadlineLocalLayout, value, time.UTC)
	if err != nil {
		return nil, fmt.Errorf("%w: %q (use RFC3339 or %s)", ErrInvalidDeadline, value, DeadlineLocalLayout)
	}
	return &t, nil
}
