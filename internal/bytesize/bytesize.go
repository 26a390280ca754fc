// Package bytesize parses and prints human-readable byte sizes used in the
// dittoserve configuration (cache budgets, buffer sizes, admission limits).
package bytesize

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
)

// ByteSize represents a size in bytes that can be unmarshaled from human-readable
// strings like "2Mi", "512KiB", "10MB", or plain numbers.
//
// Supported formats:
//   - Plain numbers: 512, 2097152
//   - Binary units (×1024): Ki/KiB, Mi/MiB, Gi/GiB, Ti/TiB
//   - Decimal units (×1000): K/KB, M/MB, G/GB, T/TB
//   - Bytes: B
type ByteSize uint64

// Common byte size constants
const (
	B  ByteSize = 1
	KB ByteSize = 1000
	MB ByteSize = 1000 * KB
	GB ByteSize = 1000 * MB

	KiB ByteSize = 1024
	MiB ByteSize = 1024 * KiB
	GiB ByteSize = 1024 * MiB
)

// ParseByteSize parses a human-readable byte size string into a ByteSize value.
func ParseByteSize(s string) (ByteSize, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty byte size string")
	}
	if s[0] < '0' || s[0] > '9' {
		return 0, fmt.Errorf("invalid byte size format: %q", s)
	}

	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("invalid byte size %q: %w", s, err)
	}
	return ByteSize(n), nil
}

// UnmarshalText implements encoding.TextUnmarshaler so ByteSize can be decoded
// by mapstructure and yaml.
func (b *ByteSize) UnmarshalText(text []byte) error {
	size, err := ParseByteSize(string(text))
	if err != nil {
		return err
	}
	*b = size
	return nil
}

// MarshalText renders the size in the largest IEC unit that divides it
// exactly, so saved configs round-trip without rounding.
func (b ByteSize) MarshalText() ([]byte, error) {
	for _, u := range []struct {
		size ByteSize
		name string
	}{{GiB, "GiB"}, {MiB, "MiB"}, {KiB, "KiB"}} {
		if b >= u.size && b%u.size == 0 {
			return []byte(fmt.Sprintf("%d%s", uint64(b/u.size), u.name)), nil
		}
	}
	return []byte(fmt.Sprintf("%dB", uint64(b))), nil
}

// String returns a human-readable representation of the byte size.
func (b ByteSize) String() string {
	if b < KiB {
		return fmt.Sprintf("%dB", uint64(b))
	}
	return strings.ReplaceAll(humanize.IBytes(uint64(b)), " ", "")
}

// Uint64 returns the ByteSize as a uint64.
func (b ByteSize) Uint64() uint64 {
	return uint64(b)
}

// Int64 returns the ByteSize as an int64.
func (b ByteSize) Int64() int64 {
	return int64(b)
}

// Int returns the ByteSize as an int, for buffer and slice sizing.
func (b ByteSize) Int() int {
	return int(b)
}
