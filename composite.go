package msigproxy

import (
	"sort"

	"github.com/iov-one/msigproxy/errors"
	"github.com/iov-one/msigproxy/scale"
	"golang.org/x/crypto/blake2b"
)

var compositeIDPrefix = []byte("modlpy/utilisuba")

// CompositeSpec declares a group account that is controlled by its members.
// A call made in the name of the group account requires at least Threshold
// members to approve.
type CompositeSpec struct {
	Threshold uint16    `json:"threshold"`
	Members   []Address `json:"addresses"`
}

// Validate returns all problems found in the declaration. Members must be
// distinct by their account bytes, so the same account written with two
// network prefixes is a duplicate.
func (s CompositeSpec) Validate() error {
	var errs error
	if len(s.Members) < 2 {
		errs = errors.AppendField(errs, "Members",
			errors.Wrapf(errors.ErrInput, "at least 2 members required, got %d", len(s.Members)))
	}
	seen := make(map[AccountID]int, len(s.Members))
	for i, m := range s.Members {
		field := "Members." + itoa(i)
		if m == "" {
			errs = errors.AppendField(errs, field, errors.ErrEmpty)
			continue
		}
		id, err := Canonicalize(m)
		if err != nil {
			errs = errors.AppendField(errs, field, err)
			continue
		}
		if first, ok := seen[id]; ok {
			errs = errors.AppendField(errs, field,
				errors.Wrapf(errors.ErrDuplicate, "same account as member %d", first))
			continue
		}
		seen[id] = i
	}
	if s.Threshold < 1 || int(s.Threshold) > len(s.Members) {
		errs = errors.AppendField(errs, "Threshold",
			errors.Wrapf(errors.ErrInput, "must be between 1 and %d", len(s.Members)))
	}
	return errs
}

// AccountIDs returns the canonical member bytes in ascending order.
func (s CompositeSpec) AccountIDs() ([]AccountID, error) {
	ids := make([]AccountID, 0, len(s.Members))
	for i, m := range s.Members {
		id, err := Canonicalize(m)
		if err != nil {
			return nil, errors.Field("Members."+itoa(i), err, "")
		}
		ids = append(ids, id)
	}
	SortAccountIDs(ids)
	return ids, nil
}

// Contains returns true if given address is one of the members.
func (s CompositeSpec) Contains(a Address) bool {
	for _, m := range s.Members {
		if AddressesEquivalent(m, a) {
			return true
		}
	}
	return false
}

// OtherSignatories returns the sorted account bytes of all members except
// self. It fails if self is not a member.
func (s CompositeSpec) OtherSignatories(self Address) ([]AccountID, error) {
	me, err := Canonicalize(self)
	if err != nil {
		return nil, err
	}
	ids, err := s.AccountIDs()
	if err != nil {
		return nil, err
	}
	others := make([]AccountID, 0, len(ids))
	found := false
	for _, id := range ids {
		if id == me {
			found = true
			continue
		}
		others = append(others, id)
	}
	if !found {
		return nil, errors.Wrapf(errors.ErrNotFound, "%s is not a member", self)
	}
	return others, nil
}

// ID derives the group account, see DeriveCompositeID.
func (s CompositeSpec) ID() (AccountID, error) {
	return DeriveCompositeID(s)
}

// DeriveCompositeID returns the account bytes of the group account declared
// by given spec. The result depends on the member set and the threshold
// only, the order in which members are listed does not matter.
func DeriveCompositeID(s CompositeSpec) (AccountID, error) {
	if err := s.Validate(); err != nil {
		return AccountID{}, err
	}
	ids, err := s.AccountIDs()
	if err != nil {
		return AccountID{}, err
	}
	data := make([]byte, 0, len(compositeIDPrefix)+5+len(ids)*AccountIDLength+2)
	data = append(data, compositeIDPrefix...)
	data = scale.AppendCompact(data, uint64(len(ids)))
	for _, id := range ids {
		data = append(data, id[:]...)
	}
	data = scale.AppendU16(data, s.Threshold)
	return AccountID(blake2b.Sum256(data)), nil
}

// SortAccountIDs sorts given slice in place in ascending byte order.
func SortAccountIDs(ids []AccountID) {
	sort.Slice(ids, func(i, j int) bool {
		return ids[i].Compare(ids[j]) < 0
	})
}
