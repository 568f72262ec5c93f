// Copyright (c) 2020-2023 Ozan Hacıbekiroğlu.
// Use of this source code is governed by a MIT License
// that can be found in the LICENSE file.

package encoder

import (
	"bytes"
	"encoding"
	"encoding/binary"
	"fmt"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/minipyc/minipyc"
)

// FormatVersion is the version of the artifact layout written by this
// package.
const FormatVersion uint16 = 1

// Magic is written at the start of each artifact, byte 2 is the format
// version.
var Magic = [4]byte{'m', 'p', byte(FormatVersion), '\n'}

// HeaderSize is the size of the artifact header preceding the code unit.
const HeaderSize = 4 + 2 + 2 + 8 + 8 + blake2b.Size256

// KeyMode selects how an artifact is checked against its source.
type KeyMode uint16

const (
	// TimestampKey checks source modification time and size.
	TimestampKey KeyMode = 0
	// HashKey checks source size and BLAKE2b-256 hash.
	HashKey KeyMode = 1
)

func (m KeyMode) String() string {
	if m == HashKey {
		return "hash"
	}
	return "timestamp"
}

// InvalidationKey identifies the source an artifact was compiled from.
type InvalidationKey struct {
	Mode  KeyMode
	Mtime int64
	Size  uint64
	Hash  [blake2b.Size256]byte
}

// NewInvalidationKey creates the key of src. Hash is only computed in
// HashKey mode, Mtime is only set in TimestampKey mode.
func NewInvalidationKey(src []byte, mtime time.Time, mode KeyMode) InvalidationKey {
	key := InvalidationKey{Mode: mode, Size: uint64(len(src))}
	switch mode {
	case HashKey:
		key.Hash = blake2b.Sum256(src)
	default:
		key.Mode = TimestampKey
		key.Mtime = mtime.Unix()
	}
	return key
}

// Matches reports whether an artifact with key k is fresh for the source
// that other was computed from.
func (k InvalidationKey) Matches(other InvalidationKey) bool {
	if k.Mode != other.Mode || k.Size != other.Size {
		return false
	}
	if k.Mode == HashKey {
		return k.Hash == other.Hash
	}
	return k.Mtime == other.Mtime
}

func (k InvalidationKey) String() string {
	if k.Mode == HashKey {
		return fmt.Sprintf("hash:%x size:%d", k.Hash[:8], k.Size)
	}
	return fmt.Sprintf("mtime:%d size:%d", k.Mtime, k.Size)
}

// Artifact is a compiled module with the key of its source.
type Artifact struct {
	Version uint16
	Key     InvalidationKey
	Main    *minipyc.CodeUnit
}

var (
	_ encoding.BinaryMarshaler   = (*Artifact)(nil)
	_ encoding.BinaryUnmarshaler = (*Artifact)(nil)
)

// MarshalBinary implements encoding.BinaryMarshaler. Artifacts are always
// written with the current FormatVersion.
func (a *Artifact) MarshalBinary() ([]byte, error) {
	if a.Main == nil {
		return nil, &minipyc.Error{
			Name:    "encoder.Artifact.MarshalBinary",
			Message: "nil code unit",
		}
	}

	var buf bytes.Buffer
	buf.Grow(HeaderSize + 64 + len(a.Main.Instructions))
	putHeader(&buf, a.Key)

	e := encodeState{buf: &buf}
	if err := e.codeUnit(a.Main, 0); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (a *Artifact) UnmarshalBinary(data []byte) error {
	key, version, err := decodeHeader(data)
	if err != nil {
		return err
	}

	d := decodeState{data: data, off: HeaderSize}
	unit, err := d.codeUnit(0)
	if err != nil {
		return err
	}
	if d.off != len(data) {
		return d.errorf("%d trailing bytes", len(data)-d.off)
	}

	a.Version = version
	a.Key = key
	a.Main = unit
	return nil
}

func putHeader(buf *bytes.Buffer, key InvalidationKey) {
	var hdr [HeaderSize]byte
	copy(hdr[0:4], Magic[:])
	binary.BigEndian.PutUint16(hdr[4:6], FormatVersion)
	binary.BigEndian.PutUint16(hdr[6:8], uint16(key.Mode))
	binary.BigEndian.PutUint64(hdr[8:16], uint64(key.Mtime))
	binary.BigEndian.PutUint64(hdr[16:24], key.Size)
	copy(hdr[24:], key.Hash[:])
	buf.Write(hdr[:])
}

func decodeHeader(data []byte) (key InvalidationKey, version uint16, err error) {
	if len(data) < 4 ||
		data[0] != Magic[0] || data[1] != Magic[1] || data[3] != Magic[3] {
		err = &FormatError{Offset: 0, Msg: "bad magic number"}
		return
	}
	if data[2] != Magic[2] {
		err = &UnsupportedVersionError{Version: uint16(data[2])}
		return
	}
	if len(data) < HeaderSize {
		err = &FormatError{Offset: len(data), Msg: "truncated header"}
		return
	}

	version = binary.BigEndian.Uint16(data[4:6])
	if version != FormatVersion {
		err = &UnsupportedVersionError{Version: version}
		return
	}

	flags := binary.BigEndian.Uint16(data[6:8])
	if flags&^uint16(HashKey) != 0 {
		err = &FormatError{Offset: 6, Msg: fmt.Sprintf("unknown key flags %#04x", flags)}
		return
	}
	key.Mode = KeyMode(flags)
	key.Mtime = int64(binary.BigEndian.Uint64(data[8:16]))
	key.Size = binary.BigEndian.Uint64(data[16:24])
	copy(key.Hash[:], data[24:HeaderSize])
	return
}

// UnsupportedVersionError is returned when an artifact was written with a
// format version this package cannot read.
type UnsupportedVersionError struct {
	Version uint16
}

func (e *UnsupportedVersionError) Error() string {
	return fmt.Sprintf("unsupported artifact version %d (want %d)",
		e.Version, FormatVersion)
}

// FormatError is returned for malformed artifacts.
type FormatError struct {
	Offset int
	Msg    string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("malformed artifact at offset %d: %s", e.Offset, e.Msg)
}
