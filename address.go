package msigproxy

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"strings"

	"github.com/btcsuite/btcutil/base58"
	"github.com/iov-one/msigproxy/errors"
	"golang.org/x/crypto/blake2b"
)

const (
	// AccountIDLength is the length of the canonical account bytes.
	AccountIDLength = 32

	// GenericPrefix is the SS58 network identifier of the generic
	// substrate format.
	GenericPrefix uint16 = 42

	// maxPrefix is the largest network identifier that can be encoded.
	maxPrefix = 16383

	checksumLength = 2
)

var ss58Pre = []byte("SS58PRE")

// AccountID holds the canonical bytes of an account. Two textual addresses
// refer to the same account if and only if their account IDs are equal.
type AccountID [AccountIDLength]byte

// Equals checks if two account IDs are the same.
func (a AccountID) Equals(b AccountID) bool {
	return a == b
}

// Compare orders account IDs by their byte representation.
func (a AccountID) Compare(b AccountID) int {
	return bytes.Compare(a[:], b[:])
}

// IsZero returns true if no byte is set.
func (a AccountID) IsZero() bool {
	return a == AccountID{}
}

// Address returns the SS58 representation of the account for given network.
func (a AccountID) Address(prefix uint16) Address {
	return EncodeSS58(a, prefix)
}

// String returns a 0x prefixed hex representation.
func (a AccountID) String() string {
	return "0x" + hex.EncodeToString(a[:])
}

// MarshalJSON provides a hex representation for JSON, to override the
// standard array of numbers encoding.
func (a AccountID) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

func (a *AccountID) UnmarshalJSON(raw []byte) error {
	var enc string
	if err := json.Unmarshal(raw, &enc); err != nil {
		return errors.Wrap(err, "cannot decode json")
	}
	id, err := Canonicalize(Address(enc))
	if err != nil {
		return err
	}
	*a = id
	return nil
}

// Address is the textual account representation, as displayed to and typed
// by the user. Usually SS58, but 0x prefixed hex of the account bytes is
// accepted as well.
type Address string

// String returns the address text.
func (a Address) String() string {
	return string(a)
}

// Validate returns an error if the address cannot be canonicalized.
func (a Address) Validate() error {
	_, err := Canonicalize(a)
	return err
}

// Canonicalize returns the account bytes of given address. Any SS58 network
// prefix is accepted.
func Canonicalize(a Address) (AccountID, error) {
	s := strings.TrimSpace(string(a))
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		raw, err := hex.DecodeString(s[2:])
		if err != nil {
			return AccountID{}, errors.Wrap(errors.ErrInvalidAddress, "malformed hex")
		}
		if len(raw) != AccountIDLength {
			return AccountID{}, errors.Wrapf(errors.ErrInvalidAddress, "want %d bytes, got %d", AccountIDLength, len(raw))
		}
		var id AccountID
		copy(id[:], raw)
		return id, nil
	}
	id, _, err := DecodeSS58(Address(s))
	return id, err
}

// AddressesEquivalent returns true if both addresses are valid and refer to
// the same account, regardless of the network prefix they were encoded with.
func AddressesEquivalent(a, b Address) bool {
	ida, err := Canonicalize(a)
	if err != nil {
		return false
	}
	idb, err := Canonicalize(b)
	if err != nil {
		return false
	}
	return ida == idb
}

// Generic re-encodes given address using the generic substrate prefix.
func Generic(a Address) (Address, error) {
	id, err := Canonicalize(a)
	if err != nil {
		return "", err
	}
	return EncodeSS58(id, GenericPrefix), nil
}

// EncodeSS58 returns the SS58 text of an account for given network. Network
// identifiers above 16383 cannot be represented and are reduced to their low
// 14 bits.
func EncodeSS58(id AccountID, prefix uint16) Address {
	prefix &= maxPrefix
	data := make([]byte, 0, 2+AccountIDLength+checksumLength)
	data = appendPrefix(data, prefix)
	data = append(data, id[:]...)
	sum := ss58Checksum(data)
	data = append(data, sum[:checksumLength]...)
	return Address(base58.Encode(data))
}

// DecodeSS58 parses SS58 text, verifies its checksum and returns the account
// bytes together with the network identifier it was encoded with.
func DecodeSS58(a Address) (AccountID, uint16, error) {
	raw := base58.Decode(string(a))
	if len(raw) == 0 {
		return AccountID{}, 0, errors.Wrap(errors.ErrInvalidAddress, "not base58")
	}
	prefix, prefixLen, err := readPrefix(raw)
	if err != nil {
		return AccountID{}, 0, err
	}
	if len(raw) != prefixLen+AccountIDLength+checksumLength {
		return AccountID{}, 0, errors.Wrapf(errors.ErrInvalidAddress, "unexpected length %d", len(raw))
	}
	body := raw[:len(raw)-checksumLength]
	sum := ss58Checksum(body)
	if !bytes.Equal(sum[:checksumLength], raw[len(raw)-checksumLength:]) {
		return AccountID{}, 0, errors.Wrap(errors.ErrInvalidAddress, "checksum mismatch")
	}
	var id AccountID
	copy(id[:], body[prefixLen:])
	return id, prefix, nil
}

func appendPrefix(dst []byte, prefix uint16) []byte {
	if prefix < 64 {
		return append(dst, byte(prefix))
	}
	first := byte((prefix&0x00fc)>>2) | 0x40
	second := byte(prefix>>8) | byte((prefix&0x0003)<<6)
	return append(dst, first, second)
}

func readPrefix(raw []byte) (uint16, int, error) {
	switch b := raw[0]; {
	case b < 64:
		return uint16(b), 1, nil
	case b < 128:
		if len(raw) < 2 {
			return 0, 0, errors.Wrap(errors.ErrInvalidAddress, "truncated prefix")
		}
		lower := uint16(b&0x3f)<<2 | uint16(raw[1]>>6)
		upper := uint16(raw[1]&0x3f) << 8
		return lower | upper, 2, nil
	default:
		return 0, 0, errors.Wrapf(errors.ErrInvalidAddress, "reserved prefix byte %d", b)
	}
}

func ss58Checksum(data []byte) [blake2b.Size]byte {
	payload := make([]byte, 0, len(ss58Pre)+len(data))
	payload = append(payload, ss58Pre...)
	payload = append(payload, data...)
	return blake2b.Sum512(payload)
}
