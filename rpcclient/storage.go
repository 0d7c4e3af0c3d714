package rpcclient

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
	"github.com/iov-one/msigproxy"
	"github.com/iov-one/msigproxy/client"
	"github.com/iov-one/msigproxy/errors"
	"github.com/iov-one/msigproxy/scale"
	"golang.org/x/crypto/blake2b"
)

// twox returns the concatenated little endian xxhash64 digests of data,
// using consecutive seeds starting from zero, one digest per 8 bytes of
// output.
func twox(data []byte, size int) []byte {
	out := make([]byte, 0, size)
	for seed := uint64(0); len(out) < size; seed++ {
		d := xxhash.NewWithSeed(seed)
		_, _ = d.Write(data)
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], d.Sum64())
		out = append(out, b[:]...)
	}
	return out
}

func twox128(data []byte) []byte {
	return twox(data, 16)
}

func twox64Concat(data []byte) []byte {
	return append(twox(data, 8), data...)
}

func blake2128Concat(data []byte) []byte {
	h, err := blake2b.New(16, nil)
	if err != nil {
		// Only fails for invalid sizes or keys.
		panic(err)
	}
	_, _ = h.Write(data)
	return append(h.Sum(nil), data...)
}

func storagePrefix(pallet, item string) []byte {
	return append(twox128([]byte(pallet)), twox128([]byte(item))...)
}

// ProxiesKey returns the storage key of the delegates of an account.
func ProxiesKey(account msigproxy.AccountID) []byte {
	return append(storagePrefix("Proxy", "Proxies"), twox64Concat(account[:])...)
}

// MultisigKey returns the storage key of a pending multisig operation.
func MultisigKey(id msigproxy.AccountID, callHash msigproxy.Hash) []byte {
	key := append(storagePrefix("Multisig", "Multisigs"), twox64Concat(id[:])...)
	return append(key, blake2128Concat(callHash[:])...)
}

// DecodeProxies decodes the value of a Proxy.Proxies entry.
func DecodeProxies(proxied msigproxy.AccountID, raw []byte) ([]client.ProxyRelationship, error) {
	d := scale.NewDecoder(raw)
	n := d.Compact()
	if d.Err() == nil && n > uint64(d.Remaining()) {
		return nil, errors.Wrapf(errors.ErrInput, "%d proxies in %d bytes", n, d.Remaining())
	}
	out := make([]client.ProxyRelationship, 0, n)
	for i := uint64(0); i < n && d.Err() == nil; i++ {
		var r client.ProxyRelationship
		r.Proxied = proxied
		copy(r.Delegate[:], d.Fixed(msigproxy.AccountIDLength))
		r.ProxyType = client.ProxyType(d.Byte())
		r.Delay = d.U32()
		out = append(out, r)
	}
	// Reserved deposit, not used.
	_ = d.U128()
	if err := d.Err(); err != nil {
		return nil, errors.Wrap(err, "decode proxies")
	}
	return out, nil
}

// DecodeMultisig decodes the value of a Multisig.Multisigs entry.
func DecodeMultisig(raw []byte) (*client.MultisigRecord, error) {
	d := scale.NewDecoder(raw)
	var r client.MultisigRecord
	r.When.Height = d.U32()
	r.When.Index = d.U32()
	r.Deposit = d.U128()
	copy(r.Depositor[:], d.Fixed(msigproxy.AccountIDLength))
	n := d.Compact()
	if d.Err() == nil && n > uint64(d.Remaining()) {
		return nil, errors.Wrapf(errors.ErrInput, "%d approvals in %d bytes", n, d.Remaining())
	}
	for i := uint64(0); i < n && d.Err() == nil; i++ {
		var id msigproxy.AccountID
		copy(id[:], d.Fixed(msigproxy.AccountIDLength))
		r.Approvals = append(r.Approvals, id)
	}
	if err := d.Err(); err != nil {
		return nil, errors.Wrap(err, "decode multisig")
	}
	return &r, nil
}
