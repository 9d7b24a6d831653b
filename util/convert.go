// Package util holds small, dependency-light helpers shared across the
// storage layers: page (de)serialization and the error types callers match
// against.
package util

import (
	"fmt"

	"github.com/vmihailenco/msgpack"
)

// MarshalInto msgpack-encodes v and copies it into dst, zeroing any
// trailing bytes. It errors if the encoding does not fit.
func MarshalInto(dst []byte, v any) error {
	data, err := msgpack.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal page: %w", err)
	}
	if len(data) > len(dst) {
		return fmt.Errorf("encoded value occupies %d bytes, destination holds %d", len(data), len(dst))
	}
	n := copy(dst, data)
	for i := n; i < len(dst); i++ {
		dst[i] = 0
	}
	return nil
}

// ToStruct msgpack-decodes data (which may carry zero-padded trailing
// bytes) into a T. msgpack streams are self-delimiting, so the padding
// after the encoded value is simply never read.
func ToStruct[T any](data []byte) (T, error) {
	var res T
	if err := msgpack.Unmarshal(data, &res); err != nil {
		return res, fmt.Errorf("decode page: %w", err)
	}
	return res, nil
}
