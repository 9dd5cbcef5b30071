package config

import (
	"fmt"

	"github.com/docker/go-units"
)

// Secret variables are not shown in the printed output.
type Secret string

const secret = "*****"

// String implements fmt.Stringer.String.
// When a Secret is printed, it's masking the underlying string with asterisks.
func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return secret
}

// ByteSize is a size in bytes read from human readable values such as
// "256KB", "1.5MiB" or "65536". Decimal and binary suffixes both mean
// powers of 1024.
type ByteSize int64

// ParseByteSize ...
func ParseByteSize(value string) (ByteSize, error) {
	size, err := units.RAMInBytes(value)
	if err != nil {
		return 0, fmt.Errorf("invalid byte size: %w", err)
	}
	if size < 0 {
		return 0, fmt.Errorf("invalid byte size: %s", value)
	}
	return ByteSize(size), nil
}

// String implements fmt.Stringer.String.
func (s ByteSize) String() string {
	return units.BytesSize(float64(s))
}
