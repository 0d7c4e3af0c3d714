/*
Package scale implements the subset of the SCALE codec needed to build and
read the storage entries and calls used by msigproxy.

Only fixed width little endian integers, compact integers, byte vectors,
options and account vectors are supported. Anything that requires runtime
metadata is out of reach on purpose.
*/
package scale

import (
	"encoding/binary"
	"math/big"

	"github.com/iov-one/msigproxy/errors"
)

// AppendCompact appends the compact encoding of v to dst.
func AppendCompact(dst []byte, v uint64) []byte {
	switch {
	case v < 1<<6:
		return append(dst, byte(v)<<2)
	case v < 1<<14:
		return append(dst, byte(v<<2)|0b01, byte(v>>6))
	case v < 1<<30:
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], uint32(v<<2)|0b10)
		return append(dst, b[:]...)
	}
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	n := 8
	for n > 4 && b[n-1] == 0 {
		n--
	}
	dst = append(dst, byte(n-4)<<2|0b11)
	return append(dst, b[:n]...)
}

// AppendU16 appends v as two little endian bytes.
func AppendU16(dst []byte, v uint16) []byte {
	return append(dst, byte(v), byte(v>>8))
}

// AppendU32 appends v as four little endian bytes.
func AppendU32(dst []byte, v uint32) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return append(dst, b[:]...)
}

// AppendBytes appends a length prefixed byte vector.
func AppendBytes(dst, v []byte) []byte {
	dst = AppendCompact(dst, uint64(len(v)))
	return append(dst, v...)
}

// Decoder reads SCALE values from a byte slice. The first failure is
// remembered and all following reads become no-ops, so that a caller can
// check Err once after reading a whole structure.
type Decoder struct {
	buf []byte
	off int
	err error
}

// NewDecoder returns a decoder reading from b.
func NewDecoder(b []byte) *Decoder {
	return &Decoder{buf: b}
}

// Err returns the first error encountered.
func (d *Decoder) Err() error {
	return d.err
}

// Remaining returns the number of unread bytes.
func (d *Decoder) Remaining() int {
	return len(d.buf) - d.off
}

// Offset returns the number of bytes consumed so far.
func (d *Decoder) Offset() int {
	return d.off
}

func (d *Decoder) take(n int) []byte {
	if d.err != nil {
		return nil
	}
	if n < 0 || d.off+n > len(d.buf) {
		d.err = errors.Wrapf(errors.ErrInput, "need %d bytes at offset %d, have %d", n, d.off, len(d.buf)-d.off)
		return nil
	}
	b := d.buf[d.off : d.off+n]
	d.off += n
	return b
}

// Byte reads a single byte.
func (d *Decoder) Byte() byte {
	b := d.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

// U16 reads a little endian uint16.
func (d *Decoder) U16() uint16 {
	b := d.take(2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

// U32 reads a little endian uint32.
func (d *Decoder) U32() uint32 {
	b := d.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

// U128 reads a little endian 128 bit unsigned integer.
func (d *Decoder) U128() *big.Int {
	b := d.take(16)
	if b == nil {
		return new(big.Int)
	}
	be := make([]byte, 16)
	for i := range b {
		be[15-i] = b[i]
	}
	return new(big.Int).SetBytes(be)
}

// Fixed reads exactly n bytes.
func (d *Decoder) Fixed(n int) []byte {
	b := d.take(n)
	if b == nil {
		return nil
	}
	out := make([]byte, n)
	copy(out, b)
	return out
}

// Compact reads a compact encoded integer. Values that do not fit into
// uint64 are rejected.
func (d *Decoder) Compact() uint64 {
	first := d.Byte()
	if d.err != nil {
		return 0
	}
	switch first & 0b11 {
	case 0b00:
		return uint64(first >> 2)
	case 0b01:
		second := d.Byte()
		return uint64(first>>2) | uint64(second)<<6
	case 0b10:
		rest := d.take(3)
		if rest == nil {
			return 0
		}
		v := uint32(first) | uint32(rest[0])<<8 | uint32(rest[1])<<16 | uint32(rest[2])<<24
		return uint64(v >> 2)
	}
	n := int(first>>2) + 4
	if n > 8 {
		d.err = errors.Wrapf(errors.ErrOverflow, "compact integer of %d bytes", n)
		return 0
	}
	b := d.take(n)
	if b == nil {
		return 0
	}
	var full [8]byte
	copy(full[:], b)
	return binary.LittleEndian.Uint64(full[:])
}

// Bytes reads a length prefixed byte vector.
func (d *Decoder) Bytes() []byte {
	n := d.Compact()
	if d.err != nil {
		return nil
	}
	if n > uint64(d.Remaining()) {
		d.err = errors.Wrapf(errors.ErrInput, "vector of %d bytes exceeds input", n)
		return nil
	}
	return d.Fixed(int(n))
}
