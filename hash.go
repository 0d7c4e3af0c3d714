package msigproxy

import (
	"encoding/hex"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/iov-one/msigproxy/errors"
	"golang.org/x/crypto/blake2b"
)

// Hash is a 32 byte blake2b digest.
type Hash [32]byte

// CallHash returns the content hash of an encoded call. This is the value
// that multisig approvals refer to.
func CallHash(encoded []byte) Hash {
	return Hash(blake2b.Sum256(encoded))
}

// Bytes returns the digest as a slice.
func (h Hash) Bytes() []byte {
	return h[:]
}

func (h Hash) String() string {
	return "0x" + hex.EncodeToString(h[:])
}

// MarshalJSON provides a 0x prefixed hex representation.
func (h Hash) MarshalJSON() ([]byte, error) {
	return json.Marshal(h.String())
}

func (h *Hash) UnmarshalJSON(raw []byte) error {
	var b Bytes
	if err := b.UnmarshalJSON(raw); err != nil {
		return err
	}
	if len(b) != len(h) {
		return errors.Wrapf(errors.ErrInput, "hash of %d bytes", len(b))
	}
	copy(h[:], b)
	return nil
}

// Bytes is a byte slice that is represented as 0x prefixed hex text.
type Bytes []byte

// ParseHex decodes hex text with or without the 0x prefix.
func ParseHex(s string) (Bytes, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, errors.Wrap(errors.ErrInput, err.Error())
	}
	return b, nil
}

func (b Bytes) String() string {
	return "0x" + hex.EncodeToString(b)
}

func (b Bytes) MarshalJSON() ([]byte, error) {
	return json.Marshal(b.String())
}

func (b *Bytes) UnmarshalJSON(raw []byte) error {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return errors.Wrap(err, "parse string")
	}
	v, err := ParseHex(s)
	if err != nil {
		return err
	}
	*b = v
	return nil
}

func itoa(i int) string {
	return strconv.Itoa(i)
}
