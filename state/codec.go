package state

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/iansmith/swapboot/slot"
)

// MaxSerializedSize bounds the wire encoding of any State value; Marshal
// refuses to produce anything larger. The persistent store writes the
// encoded bytes as a variable-length record value, not a fixed-size slot.
const MaxSerializedSize = 64

// ErrInvalidFormat is returned by Unmarshal when the tag byte names an
// unknown variant, or a field decodes to a value outside its type's
// range (for example a Slot field whose varint exceeds uint8).
var ErrInvalidFormat = errors.New("state: invalid format")

// ErrBufferTooSmall is returned by Unmarshal when data ends before a
// required field has been fully read.
var ErrBufferTooSmall = errors.New("state: buffer too small")

// Marshal encodes s as a tag byte followed by its variant's fields, each
// as a little-endian base-128 variable-length unsigned integer. The
// result never exceeds MaxSerializedSize.
func Marshal(s State) ([]byte, error) {
	buf := make([]byte, 0, 1+5*binary.MaxVarintLen64)
	buf = append(buf, byte(s.tag))

	switch s.tag {
	case TagInitial:
		// no fields
	case TagRequest:
		buf = appendVarint(buf, uint64(s.current))
		buf = appendVarint(buf, uint64(s.target))
	case TagSwapping:
		buf = appendVarint(buf, uint64(s.target))
		buf = appendVarint(buf, uint64(s.old))
		buf = appendVarint(buf, uint64(s.step))
	case TagTrialing:
		buf = appendVarint(buf, uint64(s.target))
		buf = appendVarint(buf, uint64(s.old))
	case TagReturning:
		buf = appendVarint(buf, uint64(s.failed))
		buf = appendVarint(buf, uint64(s.old))
		buf = appendVarint(buf, uint64(s.step))
	case TagFailed:
		buf = appendVarint(buf, uint64(s.current))
		buf = appendVarint(buf, uint64(s.failed))
	case TagConfirmed:
		buf = appendVarint(buf, uint64(s.target))
	default:
		return nil, fmt.Errorf("state: marshal: %w: tag %d", ErrInvalidFormat, s.tag)
	}

	if len(buf) > MaxSerializedSize {
		return nil, fmt.Errorf("state: marshal: encoded length %d exceeds MaxSerializedSize %d", len(buf), MaxSerializedSize)
	}
	return buf, nil
}

// Unmarshal decodes a State previously produced by Marshal. It satisfies
// the round-trip law: Unmarshal(Marshal(x)) == x for every valid x.
func Unmarshal(data []byte) (State, error) {
	if len(data) < 1 {
		return State{}, fmt.Errorf("state: unmarshal: %w", ErrBufferTooSmall)
	}
	tag := Tag(data[0])
	r := varintReader{buf: data[1:]}

	switch tag {
	case TagInitial:
		return Initial(), nil

	case TagRequest:
		current, err := r.slot()
		if err != nil {
			return State{}, err
		}
		target, err := r.slot()
		if err != nil {
			return State{}, err
		}
		return NewRequest(current, target), nil

	case TagSwapping:
		target, err := r.slot()
		if err != nil {
			return State{}, err
		}
		old, err := r.slot()
		if err != nil {
			return State{}, err
		}
		step, err := r.step()
		if err != nil {
			return State{}, err
		}
		return NewSwapping(target, old, step), nil

	case TagTrialing:
		target, err := r.slot()
		if err != nil {
			return State{}, err
		}
		old, err := r.slot()
		if err != nil {
			return State{}, err
		}
		return NewTrialing(target, old), nil

	case TagReturning:
		failed, err := r.slot()
		if err != nil {
			return State{}, err
		}
		old, err := r.slot()
		if err != nil {
			return State{}, err
		}
		step, err := r.step()
		if err != nil {
			return State{}, err
		}
		return NewReturning(failed, old, step), nil

	case TagFailed:
		current, err := r.slot()
		if err != nil {
			return State{}, err
		}
		failed, err := r.slot()
		if err != nil {
			return State{}, err
		}
		return NewFailed(current, failed), nil

	case TagConfirmed:
		target, err := r.slot()
		if err != nil {
			return State{}, err
		}
		return NewConfirmed(target), nil

	default:
		return State{}, fmt.Errorf("state: unmarshal: %w: tag %d", ErrInvalidFormat, tag)
	}
}

// MarshalBinary implements encoding.BinaryMarshaler so State values can be
// handed directly to the persistent store and to test helpers that diff
// wire-encoded bytes.
func (s State) MarshalBinary() ([]byte, error) {
	return Marshal(s)
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (s *State) UnmarshalBinary(data []byte) error {
	decoded, err := Unmarshal(data)
	if err != nil {
		return err
	}
	*s = decoded
	return nil
}

func appendVarint(buf []byte, v uint64) []byte {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	return append(buf, tmp[:n]...)
}

// varintReader walks a byte slice pulling out varint-encoded Slot and Step
// fields in order, reporting ErrBufferTooSmall on truncation and
// ErrInvalidFormat on a field value too large for its target type.
type varintReader struct {
	buf []byte
}

func (r *varintReader) uvarint() (uint64, error) {
	v, n := binary.Uvarint(r.buf)
	if n == 0 {
		return 0, fmt.Errorf("state: unmarshal: %w", ErrBufferTooSmall)
	}
	if n < 0 {
		return 0, fmt.Errorf("state: unmarshal: %w: varint overflow", ErrInvalidFormat)
	}
	r.buf = r.buf[n:]
	return v, nil
}

func (r *varintReader) slot() (slot.Slot, error) {
	v, err := r.uvarint()
	if err != nil {
		return 0, err
	}
	if v > 0xFF {
		return 0, fmt.Errorf("state: unmarshal: %w: slot value %d out of range", ErrInvalidFormat, v)
	}
	return slot.Slot(v), nil
}

func (r *varintReader) step() (slot.Step, error) {
	v, err := r.uvarint()
	if err != nil {
		return 0, err
	}
	if v > 0xFFFF {
		return 0, fmt.Errorf("state: unmarshal: %w: step value %d out of range", ErrInvalidFormat, v)
	}
	return slot.Step(v), nil
}
