package store

import (
	"errors"

	"github.com/iansmith/swapboot/bitfield"
)

var (
	errRecordBlank   = errors.New("store: blank record")
	errRecordCorrupt = errors.New("store: corrupt record")
)

// erasedByte is the byte value a NorFlash region reads back as after
// Erase, matching the conventional NOR-flash erased state. FileNorFlash
// formats new regions to this value so scans can distinguish "never
// written" from "written".
const erasedByte = 0xFF

// sectorScan is the result of reading one sector's header and walking its
// append log once.
type sectorScan struct {
	blank       bool    // sector has never been formatted (header is all erasedByte)
	active      bool    // sector's header flags.Active
	best        *record // last valid record found, nil if none
	bestOffset  uint32  // offset of best within the sector, meaningful iff best != nil
	writeOffset uint32  // offset the next record would start at
	full        bool    // true if a corrupt (torn-write) record blocks further appends
}

// scanSector reads sector i in full and walks its append log, returning
// the newest valid record it finds and where the log currently ends.
func (s *NorStore) scanSector(i uint32) (sectorScan, error) {
	buf := make([]byte, s.sectorSize)
	if err := s.flash.Read(s.sectorOffset(i), buf); err != nil {
		return sectorScan{}, err
	}

	header := buf[:s.headerSize]
	if isBlank(header, erasedByte) {
		return sectorScan{blank: true, writeOffset: s.headerSize}, nil
	}
	flags := bitfield.UnpackSectorFlags(header[0])

	scan := sectorScan{active: flags.Active, writeOffset: s.headerSize}
	offset := s.headerSize
	for offset < uint32(len(buf)) {
		rec, n, err := decodeRecord(buf[offset:], erasedByte)
		if err != nil {
			if errors.Is(err, errRecordBlank) {
				scan.writeOffset = offset
				return scan, nil
			}
			// A torn write: the bytes here are neither blank nor a valid
			// record. This sector can accept no further appends until it
			// is erased again - see NorStore.Store's rollover path.
			scan.full = true
			scan.writeOffset = offset
			return scan, nil
		}
		recCopy := rec
		scan.best = &recCopy
		scan.bestOffset = offset
		offset += alignUp(uint32(n), s.writeSize())
	}
	scan.writeOffset = offset
	return scan, nil
}

func alignUp(n, align uint32) uint32 {
	if align <= 1 || n%align == 0 {
		return n
	}
	return n + (align - n%align)
}
