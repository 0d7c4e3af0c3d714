package msigproxy

import (
	"testing"

	"github.com/iov-one/msigproxy/errors"
	"github.com/iov-one/msigproxy/msigtest/assert"
)

func testAccount(seed byte) AccountID {
	var id AccountID
	for i := range id {
		id[i] = seed
	}
	return id
}

func TestDeriveCompositeIDPermutationInvariance(t *testing.T) {
	a := EncodeSS58(testAccount(1), GenericPrefix)
	b := EncodeSS58(testAccount(2), 0)
	c := EncodeSS58(testAccount(3), 2)

	want, err := DeriveCompositeID(CompositeSpec{Threshold: 2, Members: []Address{a, b, c}})
	assert.Nil(t, err)

	permutations := [][]Address{
		{a, c, b},
		{b, a, c},
		{b, c, a},
		{c, a, b},
		{c, b, a},
	}
	for _, members := range permutations {
		got, err := DeriveCompositeID(CompositeSpec{Threshold: 2, Members: members})
		assert.Nil(t, err)
		assert.Equal(t, want, got)
	}

	// The network prefix a member is written with does not matter either.
	reencoded := []Address{EncodeSS58(testAccount(1), 2), Address(testAccount(2).String()), c}
	got, err := DeriveCompositeID(CompositeSpec{Threshold: 2, Members: reencoded})
	assert.Nil(t, err)
	assert.Equal(t, want, got)
}

func TestDeriveCompositeIDChanges(t *testing.T) {
	a := EncodeSS58(testAccount(1), GenericPrefix)
	b := EncodeSS58(testAccount(2), GenericPrefix)
	c := EncodeSS58(testAccount(3), GenericPrefix)
	d := EncodeSS58(testAccount(4), GenericPrefix)

	base, err := DeriveCompositeID(CompositeSpec{Threshold: 2, Members: []Address{a, b, c}})
	assert.Nil(t, err)

	cases := map[string]CompositeSpec{
		"threshold changed": {Threshold: 3, Members: []Address{a, b, c}},
		"member replaced":   {Threshold: 2, Members: []Address{a, b, d}},
		"member added":      {Threshold: 2, Members: []Address{a, b, c, d}},
		"member removed":    {Threshold: 2, Members: []Address{a, b}},
	}
	for testName, spec := range cases {
		t.Run(testName, func(t *testing.T) {
			got, err := DeriveCompositeID(spec)
			assert.Nil(t, err)
			if got == base {
				t.Fatal("derived the same account")
			}
		})
	}
}

func TestCompositeSpecValidate(t *testing.T) {
	a := EncodeSS58(testAccount(1), GenericPrefix)
	b := EncodeSS58(testAccount(2), GenericPrefix)

	cases := map[string]struct {
		spec       CompositeSpec
		wantErrs   map[string]*errors.Error
		wantAnyErr bool
	}{
		"valid": {
			spec: CompositeSpec{Threshold: 1, Members: []Address{a, b}},
			wantErrs: map[string]*errors.Error{
				"Members":   nil,
				"Members.0": nil,
				"Members.1": nil,
				"Threshold": nil,
			},
		},
		"single member": {
			spec:       CompositeSpec{Threshold: 1, Members: []Address{a}},
			wantAnyErr: true,
			wantErrs: map[string]*errors.Error{
				"Members":   errors.ErrInput,
				"Threshold": nil,
			},
		},
		"missing member": {
			spec:       CompositeSpec{Threshold: 1, Members: []Address{a, ""}},
			wantAnyErr: true,
			wantErrs: map[string]*errors.Error{
				"Members.1": errors.ErrEmpty,
			},
		},
		"invalid member": {
			spec:       CompositeSpec{Threshold: 1, Members: []Address{"xyz", b}},
			wantAnyErr: true,
			wantErrs: map[string]*errors.Error{
				"Members.0": errors.ErrInvalidAddress,
			},
		},
		"duplicate with other prefix": {
			spec:       CompositeSpec{Threshold: 1, Members: []Address{a, b, EncodeSS58(testAccount(1), 2)}},
			wantAnyErr: true,
			wantErrs: map[string]*errors.Error{
				"Members.0": nil,
				"Members.2": errors.ErrDuplicate,
			},
		},
		"zero threshold": {
			spec:       CompositeSpec{Threshold: 0, Members: []Address{a, b}},
			wantAnyErr: true,
			wantErrs: map[string]*errors.Error{
				"Threshold": errors.ErrInput,
			},
		},
		"threshold above member count": {
			spec:       CompositeSpec{Threshold: 3, Members: []Address{a, b}},
			wantAnyErr: true,
			wantErrs: map[string]*errors.Error{
				"Threshold": errors.ErrInput,
			},
		},
	}
	for testName, tc := range cases {
		t.Run(testName, func(t *testing.T) {
			err := tc.spec.Validate()
			if tc.wantAnyErr != (err != nil) {
				t.Fatalf("unexpected validation result: %+v", err)
			}
			for field, want := range tc.wantErrs {
				assert.FieldError(t, err, field, want)
			}
			if err != nil {
				if _, derr := DeriveCompositeID(tc.spec); derr == nil {
					t.Fatal("derived an account from an invalid spec")
				}
			}
		})
	}
}

func TestOtherSignatories(t *testing.T) {
	a := EncodeSS58(testAccount(3), GenericPrefix)
	b := EncodeSS58(testAccount(1), GenericPrefix)
	c := EncodeSS58(testAccount(2), GenericPrefix)
	spec := CompositeSpec{Threshold: 2, Members: []Address{a, b, c}}

	others, err := spec.OtherSignatories(EncodeSS58(testAccount(3), 0))
	assert.Nil(t, err)
	assert.Equal(t, []AccountID{testAccount(1), testAccount(2)}, others)

	_, err = spec.OtherSignatories(EncodeSS58(testAccount(9), GenericPrefix))
	assert.IsErr(t, errors.ErrNotFound, err)

	assert.Equal(t, true, spec.Contains(EncodeSS58(testAccount(2), 2)))
	assert.Equal(t, false, spec.Contains(EncodeSS58(testAccount(9), 2)))
}

func TestCallHashEmpty(t *testing.T) {
	// blake2b-256 of an empty input
	want := "0x0e5751c026e543b2e8ab2eb06099daa1d1e5df47778f7787faab45cdf12fe3a8"
	if got := CallHash(nil).String(); got != want {
		t.Fatalf("want %s, got %s", want, got)
	}
}
