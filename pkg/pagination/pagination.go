package pagination

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
)

const (
	// DefaultLimit is the standard page size when a limit is not provided.
	DefaultLimit = 25
	// MaxLimit caps how many rows any paged query can request.
	MaxLimit = 100
)

// NormalizeLimit enforces the configured default and maximum limits.
func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

// EncodeSequenceCursor builds a base64 cursor from a movement sequence
// number. The page after the cursor starts at sequence+1.
func EncodeSequenceCursor(sequence int64) string {
	payload := fmt.Sprintf("seq|%d", sequence)
	return base64.StdEncoding.EncodeToString([]byte(payload))
}

// DecodeSequenceCursor parses a cursor produced by EncodeSequenceCursor.
func DecodeSequenceCursor(cursor string) (int64, error) {
	raw, err := base64.StdEncoding.DecodeString(cursor)
	if err != nil {
		return 0, fmt.Errorf("invalid cursor encoding: %w", err)
	}
	parts := strings.SplitN(string(raw), "|", 2)
	if len(parts) != 2 || parts[0] != "seq" {
		return 0, fmt.Errorf("invalid cursor payload")
	}
	sequence, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil || sequence < 0 {
		return 0, fmt.Errorf("invalid cursor sequence")
	}
	return sequence, nil
}
