package state

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/iansmith/swapboot/slot"
)

func TestRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		in   State
	}{
		{"initial", Initial()},
		{"request", NewRequest(1, 2)},
		{"swapping", NewSwapping(2, 1, 5)},
		{"swapping zero step", NewSwapping(2, 1, 0)},
		{"trialing", NewTrialing(2, 1)},
		{"returning", NewReturning(2, 1, 3)},
		{"failed", NewFailed(1, 2)},
		{"confirmed", NewConfirmed(2)},
		{"large slot and step", NewSwapping(slot.Slot(200), slot.Slot(201), slot.Step(60000))},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			encoded, err := Marshal(c.in)
			if err != nil {
				t.Fatalf("Marshal failed: %v", err)
			}
			if len(encoded) > MaxSerializedSize {
				t.Fatalf("encoded length %d exceeds MaxSerializedSize %d", len(encoded), MaxSerializedSize)
			}
			decoded, err := Unmarshal(encoded)
			if err != nil {
				t.Fatalf("Unmarshal failed: %v", err)
			}
			if diff := cmp.Diff(c.in, decoded, cmp.AllowUnexported(State{})); diff != "" {
				t.Errorf("round trip mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestUnmarshalBufferTooSmall(t *testing.T) {
	if _, err := Unmarshal(nil); !errors.Is(err, ErrBufferTooSmall) {
		t.Errorf("Unmarshal(nil) error = %v, want ErrBufferTooSmall", err)
	}

	encoded, err := Marshal(NewSwapping(2, 1, 5))
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	truncated := encoded[:len(encoded)-1]
	if _, err := Unmarshal(truncated); !errors.Is(err, ErrBufferTooSmall) {
		t.Errorf("Unmarshal(truncated) error = %v, want ErrBufferTooSmall", err)
	}
}

func TestUnmarshalInvalidFormat(t *testing.T) {
	if _, err := Unmarshal([]byte{0xFF}); !errors.Is(err, ErrInvalidFormat) {
		t.Errorf("Unmarshal(unknown tag) error = %v, want ErrInvalidFormat", err)
	}

	// A Request record whose second field claims a slot value beyond
	// uint8's range.
	encoded := []byte{byte(TagRequest), 0x01, 0x80, 0x80, 0x80, 0x80, 0x80, 0x01}
	if _, err := Unmarshal(encoded); !errors.Is(err, ErrInvalidFormat) {
		t.Errorf("Unmarshal(oversized slot) error = %v, want ErrInvalidFormat", err)
	}
}

func TestAccessorsRejectWrongTag(t *testing.T) {
	s := NewConfirmed(3)
	if _, _, ok := s.Request(); ok {
		t.Errorf("Request() ok = true on a Confirmed state, want false")
	}
	if _, _, _, ok := s.Swapping(); ok {
		t.Errorf("Swapping() ok = true on a Confirmed state, want false")
	}
	if target, ok := s.Confirmed(); !ok || target != 3 {
		t.Errorf("Confirmed() = (%v, %v), want (3, true)", target, ok)
	}
}

func TestZeroValueIsInitial(t *testing.T) {
	var s State
	if s.Tag() != TagInitial {
		t.Errorf("zero value Tag() = %v, want TagInitial", s.Tag())
	}
	if diff := cmp.Diff(Initial(), s, cmp.AllowUnexported(State{})); diff != "" {
		t.Errorf("zero value differs from Initial() (-want +got):\n%s", diff)
	}
}

func TestTagString(t *testing.T) {
	if got, want := TagSwapping.String(), "Swapping"; got != want {
		t.Errorf("TagSwapping.String() = %q, want %q", got, want)
	}
	if got := Tag(99).String(); got == "" {
		t.Errorf("Tag(99).String() returned empty string")
	}
}
