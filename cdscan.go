package remotezip

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sort"
)

// scanCentralDirectory recovers each entry's local-header offset, in
// central-directory order, by walking the raw central directory
// ourselves. archive/zip parses the very same records internally but
// does not export zip.File's local header offset, so there is no way to
// get that value out of the standard library's own parse, and the
// position-to-size map RemoteIO needs to bound member reads is keyed on
// exactly that offset. The records are fixed-width little-endian,
// read straight off an io.ReaderAt with binary.Read.
//
// r must support ReadAt (RemoteIO does); size is the total logical file
// length, already known from the suffix-range bootstrap fetch. The
// returned cdStart is the absolute offset of the central directory
// itself, used by the facade as the sentinel upper bound for the last
// member's position-to-size entry.
func scanCentralDirectory(r io.ReaderAt, size int64) (offsets []int64, cdStart int64, err error) {
	eocd, err := findEndOfCentralDirectory(r, size)
	if err != nil {
		return nil, 0, err
	}

	offsets = make([]int64, 0, eocd.entryCount)
	sr := io.NewSectionReader(r, eocd.cdOffset, eocd.cdSize)
	br := bufio.NewReader(sr)

	var sig uint32
	for i := uint64(0); i < eocd.entryCount; i++ {
		if err := binary.Read(br, binary.LittleEndian, &sig); err != nil {
			return nil, 0, fmt.Errorf("%w: reading central directory entry %d: %v", ErrRemoteIO, i, err)
		}
		if sig != centralDirectorySignature {
			return nil, 0, fmt.Errorf("%w: bad central directory signature at entry %d", ErrRemoteIO, i)
		}

		var hdr cdFixedHeader
		if err := binary.Read(br, binary.LittleEndian, &hdr); err != nil {
			return nil, 0, fmt.Errorf("%w: reading central directory entry %d: %v", ErrRemoteIO, i, err)
		}

		offsets = append(offsets, int64(hdr.LocalHeaderOffset))

		skip := int64(hdr.NameLen) + int64(hdr.ExtraLen) + int64(hdr.CommentLen)
		if _, err := io.CopyN(io.Discard, br, skip); err != nil {
			return nil, 0, fmt.Errorf("%w: skipping entry %d metadata: %v", ErrRemoteIO, i, err)
		}
	}

	return offsets, eocd.cdOffset, nil
}

// buildPositionToSize builds the deterministic construction:
// sort member header offsets ascending, append the central-directory
// start offset as a sentinel, and emit {offsets[i] -> offsets[i+1]-offsets[i]}.
// Entries may be listed out of order in the directory; sorting first
// means an unordered directory still produces a correct map.
func buildPositionToSize(offsets []int64, cdStart int64) map[int64]int64 {
	sorted := append([]int64(nil), offsets...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	sorted = append(sorted, cdStart)

	m := make(map[int64]int64, len(sorted)-1)
	for i := 0; i < len(sorted)-1; i++ {
		m[sorted[i]] = sorted[i+1] - sorted[i]
	}
	return m
}

// cdFixedHeader is the fixed-size portion of a central directory file
// header that follows its 4-byte signature, per the ZIP format's
// central directory structure. Every field is declared, so binary.Read
// consumes exactly the 42 fixed bytes; this package only uses the three
// length fields and LocalHeaderOffset.
type cdFixedHeader struct {
	VersionMadeBy     uint16
	VersionNeeded     uint16
	Flags             uint16
	Method            uint16
	ModTime           uint16
	ModDate           uint16
	CRC32             uint32
	CompressedSize    uint32
	UncompressedSize  uint32
	NameLen           uint16
	ExtraLen          uint16
	CommentLen        uint16
	DiskNumberStart   uint16
	InternalAttrs     uint16
	ExternalAttrs     uint32
	LocalHeaderOffset uint32
}

const (
	centralDirectorySignature = 0x02014b50
	eocdSignature             = 0x06054b50
	zip64EOCDLocatorSig       = 0x07064b50
	zip64EOCDSignature        = 0x06064b50

	eocdFixedLen      = 22 // signature..comment length, including the signature's 4 bytes
	maxEOCDCommentLen = 1 << 16
	zip64LocatorFixed = 20
)

type eocdRecord struct {
	entryCount uint64
	cdSize     int64
	cdOffset   int64
}

// findEndOfCentralDirectory locates and parses the end-of-central-
// directory record by scanning backwards from the end of the archive
// for its signature, exactly the way every ZIP reader (including
// archive/zip) must, since the EOCD is only found by trailing comment
// length, never by a forward scan. Falls back to the zip64 EOCD locator
// when the plain EOCD reports the 0xFFFF/0xFFFFFFFF sentinels.
func findEndOfCentralDirectory(r io.ReaderAt, size int64) (*eocdRecord, error) {
	searchLen := int64(eocdFixedLen + maxEOCDCommentLen)
	if searchLen > size {
		searchLen = size
	}

	buf := make([]byte, searchLen)
	if _, err := r.ReadAt(buf, size-searchLen); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: locating end of central directory: %v", ErrRemoteIO, err)
	}

	idx := lastIndexSignature(buf, eocdSignature)
	if idx < 0 {
		return nil, fmt.Errorf("%w: end of central directory record not found", ErrRemoteIO)
	}

	eocd := buf[idx:]
	entryCount := uint64(binary.LittleEndian.Uint16(eocd[10:12]))
	cdSize := int64(binary.LittleEndian.Uint32(eocd[12:16]))
	cdOffset := int64(binary.LittleEndian.Uint32(eocd[16:20]))

	if entryCount != 0xffff && cdSize != 0xffffffff && cdOffset != 0xffffffff {
		return &eocdRecord{entryCount: entryCount, cdSize: cdSize, cdOffset: cdOffset}, nil
	}

	return findZip64EndOfCentralDirectory(r, size-searchLen+int64(idx))
}

// findZip64EndOfCentralDirectory handles archives with more than 65535
// entries or a central directory larger than 4GiB: the plain EOCD only
// carries sentinel values, and the real counts live in the zip64 EOCD
// record, reached via the locator that immediately precedes the plain
// EOCD.
func findZip64EndOfCentralDirectory(r io.ReaderAt, eocdPos int64) (*eocdRecord, error) {
	locatorPos := eocdPos - zip64LocatorFixed
	if locatorPos < 0 {
		return nil, fmt.Errorf("%w: zip64 end of central directory locator not found", ErrRemoteIO)
	}

	loc := make([]byte, zip64LocatorFixed)
	if _, err := r.ReadAt(loc, locatorPos); err != nil {
		return nil, fmt.Errorf("%w: reading zip64 locator: %v", ErrRemoteIO, err)
	}
	if binary.LittleEndian.Uint32(loc[0:4]) != zip64EOCDLocatorSig {
		return nil, fmt.Errorf("%w: zip64 end of central directory locator not found", ErrRemoteIO)
	}
	zip64Pos := int64(binary.LittleEndian.Uint64(loc[8:16]))

	const zip64EOCDFixedLen = 56
	rec := make([]byte, zip64EOCDFixedLen)
	if _, err := r.ReadAt(rec, zip64Pos); err != nil {
		return nil, fmt.Errorf("%w: reading zip64 end of central directory: %v", ErrRemoteIO, err)
	}
	if binary.LittleEndian.Uint32(rec[0:4]) != zip64EOCDSignature {
		return nil, fmt.Errorf("%w: bad zip64 end of central directory signature", ErrRemoteIO)
	}

	entryCount := binary.LittleEndian.Uint64(rec[32:40])
	cdSize := int64(binary.LittleEndian.Uint64(rec[40:48]))
	cdOffset := int64(binary.LittleEndian.Uint64(rec[48:56]))

	return &eocdRecord{entryCount: entryCount, cdSize: cdSize, cdOffset: cdOffset}, nil
}

// lastIndexSignature finds the last occurrence of the little-endian
// encoding of sig in buf, matching how a trailing archive comment could
// itself happen to contain the signature bytes earlier in the buffer.
func lastIndexSignature(buf []byte, sig uint32) int {
	var want [4]byte
	binary.LittleEndian.PutUint32(want[:], sig)
	for i := len(buf) - 4; i >= 0; i-- {
		if buf[i] == want[0] && buf[i+1] == want[1] && buf[i+2] == want[2] && buf[i+3] == want[3] {
			return i
		}
	}
	return -1
}
