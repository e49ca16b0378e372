// Package store implements the persistent state store (C4): a
// log-structured, append-only layout over a device.NorFlash region
// holding at most one logical state.State record, with crash-safe
// replacement semantics, plus two host-facing helpers
// (FileNorFlash, FileStore) used by cmd/swapbootsim.
package store

import (
	"errors"
	"fmt"

	"github.com/iansmith/swapboot/bitfield"
	"github.com/iansmith/swapboot/bootlog"
	"github.com/iansmith/swapboot/device"
	"github.com/iansmith/swapboot/state"
)

// ErrRegionTooSmall is returned by NewNorStore when the flash region
// cannot hold at least two sectors; a single sector could never be
// garbage-collected without losing crash safety during rollover.
var ErrRegionTooSmall = errors.New("store: region must hold at least two sectors")

// pointerCache is a bounded in-memory index that need not survive reset -
// a full scan rebuilds it. It names exactly one location: the most
// recently committed record, so Fetch can usually avoid rescanning every
// sector.
type pointerCache struct {
	valid    bool
	sector   uint32
	offset   uint32
	sequence uint32
}

// NorStore is the C4 persistent state store over a NorFlash region:
// fixed-size sectors, each an append log of
// `[sequence|key_length|value_length|key|value|crc]` records, with a
// one-byte header (package bitfield) whose Active flag marks the sector
// currently being appended to. The store never sets the Sealed flag: a
// superseded sector is erased as soon as its successor holds a record.
type NorStore struct {
	flash       device.NorFlash
	sectorSize  uint32
	sectorCount uint32
	headerSize  uint32
	log         bootlog.Logger
	cache       pointerCache
}

// NewNorStore builds a NorStore over flash, using flash.EraseSize() as
// the sector size. logger may be nil.
func NewNorStore(flash device.NorFlash, logger bootlog.Logger) (*NorStore, error) {
	sectorSize := flash.EraseSize()
	capacity := flash.Capacity()
	if sectorSize == 0 || capacity < sectorSize*2 {
		return nil, ErrRegionTooSmall
	}
	headerSize := flash.WriteSize()
	if headerSize == 0 {
		headerSize = 1
	}
	return &NorStore{
		flash:       flash,
		sectorSize:  sectorSize,
		sectorCount: capacity / sectorSize,
		headerSize:  headerSize,
		log:         bootlog.OrNop(logger),
	}, nil
}

func (s *NorStore) sectorOffset(i uint32) uint32 { return i * s.sectorSize }
func (s *NorStore) writeSize() uint32            { return s.flash.WriteSize() }

// Fetch returns the most recently committed State, or ok=false if nothing
// has ever been stored. A corrupt state payload (a valid record whose
// value fails state.Unmarshal) is treated as a soft failure: logged and
// reported as Initial rather than propagated as an error.
func (s *NorStore) Fetch() (st state.State, ok bool, err error) {
	if s.cache.valid {
		if rec, hit, err := s.tryCachedRecord(); err != nil {
			return state.State{}, false, err
		} else if hit {
			return s.decodeState(rec)
		}
	}

	best, sector, offset, err := s.findLatest()
	if err != nil {
		return state.State{}, false, err
	}
	if best == nil {
		return state.State{}, false, nil
	}
	s.cache = pointerCache{valid: true, sector: sector, offset: offset, sequence: best.sequence}
	return s.decodeState(*best)
}

func (s *NorStore) decodeState(rec record) (state.State, bool, error) {
	st, err := state.Unmarshal(rec.value)
	if err != nil {
		s.log.Warnf("fetch: corrupt state payload, falling back to Initial: %v", err)
		return state.Initial(), true, nil
	}
	return st, true, nil
}

// tryCachedRecord re-reads only the cached sector and checks whether the
// record at the cached offset still carries the cached sequence number.
// It is always correct within the lifetime of one NorStore, because the
// cache is only ever set by this same NorStore's own Fetch/Store calls.
func (s *NorStore) tryCachedRecord() (record, bool, error) {
	buf := make([]byte, s.sectorSize)
	if err := s.flash.Read(s.sectorOffset(s.cache.sector), buf); err != nil {
		return record{}, false, fmt.Errorf("store: read cached sector %d: %w", s.cache.sector, err)
	}
	if s.cache.offset >= uint32(len(buf)) {
		return record{}, false, nil
	}
	rec, _, err := decodeRecord(buf[s.cache.offset:], erasedByte)
	if err != nil || rec.sequence != s.cache.sequence {
		return record{}, false, nil
	}
	return rec, true, nil
}

// findLatest scans every sector and returns the valid record with the
// highest sequence number among sectors whose header marks them active.
// More than one sector can be marked active only in the window of a
// crash mid-rollover (see Store); the higher sequence number always
// names the true current value.
func (s *NorStore) findLatest() (best *record, sector uint32, offset uint32, err error) {
	for i := uint32(0); i < s.sectorCount; i++ {
		scan, err := s.scanSector(i)
		if err != nil {
			return nil, 0, 0, fmt.Errorf("store: scan sector %d: %w", i, err)
		}
		if scan.blank || !scan.active || scan.best == nil {
			continue
		}
		if best == nil || scan.best.sequence > best.sequence {
			recCopy := *scan.best
			best = &recCopy
			sector = i
			offset = scan.bestOffset
		}
	}
	return best, sector, offset, nil
}

// activeSector finds the sector (if any) whose header marks it active,
// preferring the one with the highest record sequence number if more
// than one is so marked.
func (s *NorStore) activeSector() (sector uint32, scan sectorScan, found bool, err error) {
	var bestSeq uint32
	for i := uint32(0); i < s.sectorCount; i++ {
		sc, err := s.scanSector(i)
		if err != nil {
			return 0, sectorScan{}, false, fmt.Errorf("store: scan sector %d: %w", i, err)
		}
		if sc.blank || !sc.active {
			continue
		}
		seq := uint32(0)
		if sc.best != nil {
			seq = sc.best.sequence
		}
		if !found || seq > bestSeq {
			found = true
			bestSeq = seq
			sector = i
			scan = sc
		}
	}
	return sector, scan, found, nil
}

// Store atomically replaces the current State: it appends a new record
// to the active sector if there is room, rolling over to a fresh sector
// (and reclaiming the old one) otherwise. A power cut at any point during
// Store leaves Fetch able to return either the previous value or the new
// one - never a torn one, because the new record is only trusted once its
// own CRC and sequence number are intact, and a half-written record
// fails that check.
func (s *NorStore) Store(st state.State) error {
	value, err := state.Marshal(st)
	if err != nil {
		return fmt.Errorf("store: marshal state: %w", err)
	}
	active, scan, found, err := s.activeSector()
	if err != nil {
		return err
	}

	if !found {
		return s.formatAndWrite(0, 1, value)
	}

	nextSeq := uint32(1)
	if scan.best != nil {
		nextSeq = scan.best.sequence + 1
	}
	rec := record{sequence: nextSeq, value: value}
	encoded := rec.encode()
	padded := alignUp(uint32(len(encoded)), s.writeSize())

	if !scan.full && scan.writeOffset+padded <= s.sectorSize {
		if err := s.writeRecord(active, scan.writeOffset, encoded, padded); err != nil {
			return err
		}
		s.cache = pointerCache{valid: true, sector: active, offset: scan.writeOffset, sequence: nextSeq}
		return nil
	}

	next := (active + 1) % s.sectorCount
	if err := s.formatAndWrite(next, nextSeq, value); err != nil {
		return err
	}

	// Reclaim the old sector now that the new one durably holds a record
	// with a higher sequence number. A crash before this erase leaves two
	// active-flagged sectors; findLatest/activeSector always pick the one
	// with the higher sequence, so no data is lost either way.
	if err := s.flash.Erase(s.sectorOffset(active), s.sectorOffset(active)+s.sectorSize); err != nil {
		return fmt.Errorf("store: reclaim sector %d: %w", active, err)
	}
	return nil
}

// formatAndWrite erases sector, marks it active, and writes the first
// record (sequence, value) into it.
func (s *NorStore) formatAndWrite(sector, sequence uint32, value []byte) error {
	if err := s.flash.Erase(s.sectorOffset(sector), s.sectorOffset(sector)+s.sectorSize); err != nil {
		return fmt.Errorf("store: erase sector %d: %w", sector, err)
	}
	if err := s.writeHeader(sector, bitfield.SectorFlags{Active: true}); err != nil {
		return err
	}
	rec := record{sequence: sequence, value: value}
	encoded := rec.encode()
	padded := alignUp(uint32(len(encoded)), s.writeSize())
	if err := s.writeRecord(sector, s.headerSize, encoded, padded); err != nil {
		return err
	}
	s.cache = pointerCache{valid: true, sector: sector, offset: s.headerSize, sequence: sequence}
	return nil
}

func (s *NorStore) writeHeader(sector uint32, flags bitfield.SectorFlags) error {
	packed, err := bitfield.PackSectorFlags(flags)
	if err != nil {
		return fmt.Errorf("store: pack sector %d header: %w", sector, err)
	}
	buf := make([]byte, s.headerSize)
	buf[0] = packed
	if err := s.flash.Write(s.sectorOffset(sector), buf); err != nil {
		return fmt.Errorf("store: write sector %d header: %w", sector, err)
	}
	return nil
}

func (s *NorStore) writeRecord(sector, offset uint32, encoded []byte, padded uint32) error {
	buf := make([]byte, padded)
	copy(buf, encoded)
	for i := len(encoded); i < len(buf); i++ {
		buf[i] = erasedByte
	}
	if err := s.flash.Write(s.sectorOffset(sector)+offset, buf); err != nil {
		return fmt.Errorf("store: write record at sector %d offset %d: %w", sector, offset, err)
	}
	return nil
}
