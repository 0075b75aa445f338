package ledger

import (
	"fmt"
	"time"
)

// PartitionKey identifies one monthly partition of the ledger.
type PartitionKey struct {
	Year  int
	Month time.Month
}

// KeyForDate maps a transaction date to the partition that must hold it.
// The partition is fixed at creation time; moving a transaction to a
// different month is delete + save, not update.
func KeyForDate(date time.Time) PartitionKey {
	return PartitionKey{Year: date.Year(), Month: date.Month()}
}

// String renders the key in the on-disk form, e.g. "2024-01".
func (k PartitionKey) String() string {
	return fmt.Sprintf("%04d-%02d", k.Year, int(k.Month))
}

// ParsePartitionKey parses a "YYYY-MM" key back into its parts.
func ParsePartitionKey(s string) (PartitionKey, error) {
	var year, month int
	if _, err := fmt.Sscanf(s, "%4d-%2d", &year, &month); err != nil {
		return PartitionKey{}, fmt.Errorf("invalid partition key %q: %w", s, err)
	}
	if month < 1 || month > 12 {
		return PartitionKey{}, fmt.Errorf("invalid partition key %q: month out of range", s)
	}
	return PartitionKey{Year: year, Month: time.Month(month)}, nil
}

// Before reports whether k sorts earlier than other in calendar order.
func (k PartitionKey) Before(other PartitionKey) bool {
	if k.Year != other.Year {
		return k.Year < other.Year
	}
	return k.Month < other.Month
}
