// Package bitfield provides functionality to pack and unpack struct fields into integers.
// This is a simplified version based on golang.org/x/text/internal/gen/bitfield, adapted
// from page-table flag packing to the on-flash sector header flags used by package store.
package bitfield

import (
	"fmt"
	"reflect"
)

// Config determines settings for packing.
type Config struct {
	// NumBits fixes the maximum allowed bits for the integer representation:
	// Pack rejects a struct whose tagged fields need more. Zero means no
	// limit. Pack always returns the packed value as a uint64.
	NumBits uint
}

// Pack packs annotated bit ranges of struct x into an integer.
// Only fields that have a "bitfield" tag are compacted.
// Returns the packed value as uint64 and any error encountered.
func Pack(x interface{}, c *Config) (packed uint64, err error) {
	if c == nil {
		c = &Config{NumBits: 64}
	}

	v := reflect.ValueOf(x)
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}

	if v.Kind() != reflect.Struct {
		return 0, fmt.Errorf("Pack: expected struct, got %v", v.Kind())
	}

	t := v.Type()
	var bitOffset uint

	for i := 0; i < v.NumField(); i++ {
		field := t.Field(i)
		tag := field.Tag.Get("bitfield")
		if tag == "" {
			continue // Skip fields without bitfield tag
		}

		var bits uint
		if _, err := fmt.Sscanf(tag, "%d", &bits); err != nil {
			return 0, fmt.Errorf("Pack: invalid bitfield tag %q on field %s", tag, field.Name)
		}

		if bits == 0 {
			continue
		}

		fieldValue := v.Field(i)
		var fieldBits uint64

		switch fieldValue.Kind() {
		case reflect.Bool:
			if fieldValue.Bool() {
				fieldBits = 1
			}
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			fieldBits = fieldValue.Uint()
		default:
			return 0, fmt.Errorf("Pack: unsupported field type %v for field %s", fieldValue.Kind(), field.Name)
		}

		maxValue := uint64((1 << bits) - 1)
		if fieldBits > maxValue {
			return 0, fmt.Errorf("Pack: value %d exceeds %d bits for field %s", fieldBits, bits, field.Name)
		}

		packed |= fieldBits << bitOffset
		bitOffset += bits
	}

	if c.NumBits > 0 && bitOffset > c.NumBits {
		return 0, fmt.Errorf("Pack: total bits %d exceeds NumBits %d", bitOffset, c.NumBits)
	}

	return packed, nil
}
