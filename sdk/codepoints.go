package sdk

import (
	"encoding/json"
	"fmt"
	"unicode/utf8"
)

// CodePoints is text sent as an array of Unicode code points, the wire
// representation the controller expects for policy and certificate payloads.
// "AB" is sent as [65,66].
type CodePoints []rune

// EncodeCodePoints converts text into its code points.
func EncodeCodePoints(s string) CodePoints {
	return CodePoints([]rune(s))
}

// String returns the text the code points represent.
func (c CodePoints) String() string {
	return string([]rune(c))
}

// MarshalJSON always emits an array, so empty input is [] rather than null.
func (c CodePoints) MarshalJSON() ([]byte, error) {
	if c == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]rune(c))
}

// UnmarshalJSON accepts an array of integers and rejects values that are not
// valid code points.
func (c *CodePoints) UnmarshalJSON(data []byte) error {
	var points []int64
	if err := json.Unmarshal(data, &points); err != nil {
		return fmt.Errorf("code points: %w", err)
	}

	out := make(CodePoints, len(points))
	for i, p := range points {
		if p < 0 || p > utf8.MaxRune {
			return fmt.Errorf("code points: value %d at index %d out of range", p, i)
		}
		out[i] = rune(p)
	}
	*c = out
	return nil
}
