// Package storage implements IO-Link Data Storage: a versioned,
// checksummed, lockable non-volatile parameter set that can be uploaded
// from the device to a master for safekeeping and downloaded back as an
// atomic whole-set replace (e.g. after a device swap).
//
// The record layout and explicit field-by-field marshal/unmarshal below
// are grounded on this codebase's fixed-layout wire-struct codec idiom
// (offset constants, encoding/binary.LittleEndian Put/Get helpers, no
// reflect/unsafe shortcut) — deliberately not the reflect+unsafe fallback
// used elsewhere in this codebase for transient in-process structs, since
// this format must be stable on disk across architectures. The CRC-16
// here is hand-rolled because the Go standard library ships hash/crc32 and
// hash/crc64 but no CRC-16, and IO-Link's Data Storage footer is specified
// as CRC-16; crc16 below is a plain bitwise function over a byte slice
// (no hash.Hash interface, no lookup table) rather than an ecosystem
// checksum package, since no pack example carries a CRC-16
// implementation either.
package storage

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/go-iolink/iolink/internal/constants"
	"github.com/go-iolink/iolink/internal/param"
)

const (
	magic         uint32 = 0x494F4C4B // "IOLK"
	formatVersion uint32 = 1
	headerSize           = 4 + 4 + 2 + 2 // Magic, Version, Length, CRC
)

// State is the Data Storage subsystem's overall condition.
type State int

const (
	Empty State = iota
	Valid
	Corrupt
	Locked
)

func (s State) String() string {
	switch s {
	case Empty:
		return "Empty"
	case Valid:
		return "Valid"
	case Corrupt:
		return "Corrupt"
	case Locked:
		return "Locked"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// entry is one packed (index, sub, len, bytes) tuple within a record.
type entry struct {
	Key  param.Key
	Data []byte
}

// Store owns the persisted record for one device. Reads and writes go
// through shard-like per-operation locking the way the sharded in-memory
// backing store elsewhere in this codebase protects concurrent ranges;
// here there is only one shard (Data Storage is a single record), but the
// lock-around-the-whole-record technique is kept since Upload and Download
// must never interleave.
type Store struct {
	mu      sync.Mutex
	mgr     *param.Manager
	locked  bool
	state   State
	version uint32
}

// New constructs a Store bound to mgr's persistent parameter slots. It
// starts Empty until Load is called with a record read from the physical
// medium (or stays Empty if there is none).
func New(mgr *param.Manager) *Store {
	return &Store{mgr: mgr, state: Empty}
}

// State reports the current Data Storage condition.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Lock forbids local application writes to persistent parameters (but not
// a master Download, which always wins).
func (s *Store) Lock() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.locked = true
}

// Unlock re-permits local application writes.
func (s *Store) Unlock() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.locked = false
}

// Locked reports whether local writes are currently forbidden.
func (s *Store) Locked() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.locked
}

// CheckLocalWrite returns an error if a local (application-originated)
// write should be refused because the store is locked. Master downloads
// never call this; they bypass the lock by design.
func (s *Store) CheckLocalWrite() error {
	if s.Locked() {
		return fmt.Errorf("storage: locked")
	}
	return nil
}

// Upload serializes every persistent parameter into dst and returns the
// record bytes, growing dst only if its capacity is insufficient.
func (s *Store) Upload(dst []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := s.mgr.PersistentKeys()
	entries := make([]entry, 0, len(keys))
	total := 0
	var buf [constants.MaxISDULength]byte
	for _, k := range keys {
		n, err := s.mgr.Read(param.FromMaster, k, buf[:])
		if err != nil {
			return nil, fmt.Errorf("storage: reading %s for upload: %w", k, err)
		}
		data := make([]byte, n)
		copy(data, buf[:n])
		entries = append(entries, entry{Key: k, Data: data})
		total += 2 + 1 + 1 + n // index, sub, len, bytes
	}

	recordLen := total
	want := headerSize + recordLen
	if cap(dst) < want {
		dst = make([]byte, want)
	}
	dst = dst[:want]

	off := headerSize
	for _, e := range entries {
		binary.LittleEndian.PutUint16(dst[off:], e.Key.Index)
		dst[off+2] = e.Key.Sub
		dst[off+3] = byte(len(e.Data))
		copy(dst[off+4:], e.Data)
		off += 4 + len(e.Data)
	}

	binary.LittleEndian.PutUint32(dst[0:], magic)
	binary.LittleEndian.PutUint32(dst[4:], formatVersion)
	binary.LittleEndian.PutUint16(dst[8:], uint16(recordLen))
	crc := crc16(dst[headerSize:want])
	binary.LittleEndian.PutUint16(dst[10:], crc)

	s.version++
	return dst, nil
}

// Download atomically replaces every persistent parameter from record,
// ignoring the local lock (a master download always wins). On a CRC or
// magic/version mismatch the store transitions to Corrupt and no
// parameter is modified.
func (s *Store) Download(record []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := parseRecord(record)
	if err != nil {
		s.state = Corrupt
		return err
	}

	// Validate every key before writing any of them, and restore the
	// earlier values if a later write fails, so a partially invalid
	// record never leaves the parameter set half-replaced.
	for _, e := range entries {
		if !s.mgr.Persistent(e.Key) {
			return fmt.Errorf("storage: %s is not a persistent parameter", e.Key)
		}
	}
	var buf [constants.MaxISDULength]byte
	prev := make([][]byte, len(entries))
	for i, e := range entries {
		n, _ := s.mgr.Read(param.FromMaster, e.Key, buf[:])
		prev[i] = append([]byte(nil), buf[:n]...)
	}
	for i, e := range entries {
		if err := s.mgr.Write(param.FromMaster, e.Key, e.Data); err != nil {
			for j := i - 1; j >= 0; j-- {
				_ = s.mgr.Write(param.FromMaster, entries[j].Key, prev[j])
			}
			return fmt.Errorf("storage: writing %s from download: %w", e.Key, err)
		}
	}

	s.state = Valid
	s.version++
	return nil
}

// Load validates a record read back from the physical medium at boot and
// writes each of its entries into the matching parameter slot; Download
// is used for an explicit master-initiated replace.
func (s *Store) Load(record []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(record) == 0 {
		s.state = Empty
		return nil
	}
	entries, err := parseRecord(record)
	if err != nil {
		s.state = Corrupt
		return err
	}
	for _, e := range entries {
		if err := s.mgr.Write(param.FromMaster, e.Key, e.Data); err != nil {
			s.state = Corrupt
			return err
		}
	}
	s.state = Valid
	return nil
}

func parseRecord(record []byte) ([]entry, error) {
	if len(record) < headerSize {
		return nil, fmt.Errorf("storage: record too short (%d bytes)", len(record))
	}
	gotMagic := binary.LittleEndian.Uint32(record[0:])
	gotVersion := binary.LittleEndian.Uint32(record[4:])
	recordLen := binary.LittleEndian.Uint16(record[8:])
	gotCRC := binary.LittleEndian.Uint16(record[10:])

	if gotMagic != magic {
		return nil, fmt.Errorf("storage: bad magic %#08x", gotMagic)
	}
	if gotVersion != formatVersion {
		return nil, fmt.Errorf("storage: unsupported format version %d", gotVersion)
	}
	if len(record) < headerSize+int(recordLen) {
		return nil, fmt.Errorf("storage: truncated record: want %d bytes, got %d", headerSize+int(recordLen), len(record))
	}
	body := record[headerSize : headerSize+int(recordLen)]
	if crc16(body) != gotCRC {
		return nil, fmt.Errorf("storage: CRC mismatch")
	}

	var entries []entry
	off := 0
	for off < len(body) {
		if off+4 > len(body) {
			return nil, fmt.Errorf("storage: truncated entry header at offset %d", off)
		}
		index := binary.LittleEndian.Uint16(body[off:])
		sub := body[off+2]
		n := int(body[off+3])
		off += 4
		if off+n > len(body) {
			return nil, fmt.Errorf("storage: truncated entry payload at offset %d", off)
		}
		data := make([]byte, n)
		copy(data, body[off:off+n])
		entries = append(entries, entry{Key: param.Key{Index: index, Sub: sub}, Data: data})
		off += n
	}
	return entries, nil
}

// crc16 computes the CRC-16/CCITT-FALSE variant over p: polynomial 0x1021,
// initial value 0xFFFF, no reflection, no final XOR. IO-Link Annex C
// specifies this variant for Data Storage records.
func crc16(p []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range p {
		crc ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}
