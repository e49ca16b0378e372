package store

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
)

// recordKey is the only key this store ever writes. The on-flash record
// format is a general key/value log; this store has exactly one logical
// value (the current state.State), so the key is fixed rather than
// threaded through the API.
var recordKey = []byte("state")

// record is one length-prefixed, CRC-protected entry in a sector's append
// log: `[sequence:u32 | key_length:u16 | value_length:u16 | key_bytes |
// value_bytes | crc:u32]`, little-endian throughout (matching the
// teacher's tools/imageconvert binary.LittleEndian convention). sequence
// is a monotonically increasing counter across the whole store's
// lifetime, used to pick the newest record when more than one sector is
// marked active during a crash window (see NorStore.Store).
type record struct {
	sequence uint32
	value    []byte
}

// encode serializes r into a fresh byte slice.
func (r record) encode() []byte {
	buf := make([]byte, 0, 4+2+2+len(recordKey)+len(r.value)+4)
	var tmp4 [4]byte
	var tmp2 [2]byte

	binary.LittleEndian.PutUint32(tmp4[:], r.sequence)
	buf = append(buf, tmp4[:]...)

	binary.LittleEndian.PutUint16(tmp2[:], uint16(len(recordKey)))
	buf = append(buf, tmp2[:]...)
	binary.LittleEndian.PutUint16(tmp2[:], uint16(len(r.value)))
	buf = append(buf, tmp2[:]...)

	buf = append(buf, recordKey...)
	buf = append(buf, r.value...)

	crc := crc32.ChecksumIEEE(buf)
	binary.LittleEndian.PutUint32(tmp4[:], crc)
	buf = append(buf, tmp4[:]...)
	return buf
}

// decodeRecord reads one record from the front of buf, returning the
// record and the number of bytes it occupied. It returns errRecordBlank
// if buf begins with the flash's erased value (no record was ever written
// here), and errRecordCorrupt if the header is present but the CRC does
// not match or lengths run past the end of buf.
func decodeRecord(buf []byte, erasedByte byte) (record, int, error) {
	const headerSize = 4 + 2 + 2
	if len(buf) < headerSize {
		return record{}, 0, errRecordBlank
	}
	if isBlank(buf[:headerSize], erasedByte) {
		return record{}, 0, errRecordBlank
	}

	sequence := binary.LittleEndian.Uint32(buf[0:4])
	keyLen := int(binary.LittleEndian.Uint16(buf[4:6]))
	valueLen := int(binary.LittleEndian.Uint16(buf[6:8]))

	total := headerSize + keyLen + valueLen + 4
	if total > len(buf) {
		return record{}, 0, errRecordCorrupt
	}

	body := buf[:headerSize+keyLen+valueLen]
	wantCRC := binary.LittleEndian.Uint32(buf[headerSize+keyLen+valueLen : total])
	gotCRC := crc32.ChecksumIEEE(body)
	if gotCRC != wantCRC {
		return record{}, 0, fmt.Errorf("store: %w: crc mismatch", errRecordCorrupt)
	}

	key := buf[headerSize : headerSize+keyLen]
	if string(key) != string(recordKey) {
		return record{}, 0, fmt.Errorf("store: %w: unexpected key %q", errRecordCorrupt, key)
	}

	value := append([]byte(nil), buf[headerSize+keyLen:headerSize+keyLen+valueLen]...)
	return record{sequence: sequence, value: value}, total, nil
}

func isBlank(buf []byte, erasedByte byte) bool {
	for _, b := range buf {
		if b != erasedByte {
			return false
		}
	}
	return true
}
