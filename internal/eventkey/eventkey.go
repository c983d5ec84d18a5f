// Package eventkey derives stable deduplication keys from send payloads.
package eventkey

import (
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/sha3"
)

// separator keeps adjacent field values from colliding ("ab"+"c" vs "a"+"bc").
const separator = "\x1f"

// Compute hashes the ordered values of fields pulled from payload into a
// stable key. A field missing from the payload contributes an empty segment.
// Identical (payload, fields) inputs always produce identical keys; fields
// outside the list never affect the result.
func Compute(payload map[string]any, fields []string) string {
	segments := make([]string, 0, len(fields))
	for _, f := range fields {
		v, ok := payload[f]
		if !ok || v == nil {
			segments = append(segments, "")
			continue
		}
		segments = append(segments, canonical(v))
	}

	sum := sha3.Sum256([]byte(strings.Join(segments, separator)))
	return hex.EncodeToString(sum[:])
}

// canonical renders a payload value deterministically. JSON numbers decode as
// float64, so integral floats are printed without a fraction to keep keys
// stable across encoders.
func canonical(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		if x == float64(int64(x)) {
			return fmt.Sprintf("%d", int64(x))
		}
		return fmt.Sprintf("%g", x)
	case bool:
		return fmt.Sprintf("%t", x)
	default:
		return fmt.Sprintf("%v", x)
	}
}
