package types

import "fmt"

// Validation constraint constants.
const (
	MinLat = -90.0
	MaxLat = 90.0
	MinLon = -180.0
	MaxLon = 180.0

	// MaxImageBytes bounds the multipart image accepted for inference.
	MaxImageBytes = 10 << 20
)

// ActivityWindows lists the day counts the activity series supports.
var ActivityWindows = []int{7, 14}

// ValidateActivityWindow rejects anything other than a 7 or 14 day window.
func ValidateActivityWindow(days int) error {
	for _, w := range ActivityWindows {
		if days == w {
			return nil
		}
	}
	return NewAppErrorWithDetails(ErrCodeValidationInvalidWindow,
		fmt.Sprintf("activity window must be 7 or 14 days, got %d", days), nil,
		map[string]any{"allowed": ActivityWindows})
}

// ValidateConfidence checks an inference confidence is a probability.
func ValidateConfidence(c float64) error {
	if c < 0 || c > 1 || c != c {
		return fmt.Errorf("confidence %v outside [0, 1]", c)
	}
	return nil
}

// ValidateImage checks the inference payload is non-empty and within the
// size ceiling.
func ValidateImage(img []byte) error {
	if len(img) == 0 {
		return NewAppError(ErrCodeValidationInvalidImage, "image is empty", nil)
	}
	if len(img) > MaxImageBytes {
		return NewAppErrorWithDetails(ErrCodeValidationInvalidImage, "image exceeds size limit", nil,
			map[string]any{"max_bytes": MaxImageBytes})
	}
	return nil
}
