package errors

import (
	"fmt"

	"github.com/pkg/errors"
)

// Field attaches err to the named input field, so that a form can show it
// next to the value. It returns nil if err is nil. The description, if
// any, is formatted with args.
//
// Names follow the Go field names of the validated type. Nested fields are
// joined with dots and list elements use their index, as in Chains.0.Relay
// or Multisig.Addresses.2.
func Field(fieldName string, err error, description string, args ...interface{}) error {
	if isNilErr(err) {
		return nil
	}
	if stackTrace(err) == nil {
		err = errors.WithStack(err)
	}
	if len(args) > 0 {
		description = fmt.Sprintf(description, args...)
	}
	return &fieldError{parent: err, field: fieldName, desc: description}
}

// AppendField adds the field error, if any, to errorsOrNil.
func AppendField(errorsOrNil error, fieldName string, fieldErrOrNil error) error {
	return Append(errorsOrNil, Field(fieldName, fieldErrOrNil, ""))
}

type fieldError struct {
	parent error
	field  string
	desc   string
}

func (err *fieldError) Error() string {
	if err.desc == "" {
		return fmt.Sprintf("field %q: %s", err.field, err.parent)
	}
	return fmt.Sprintf("field %q: %s: %s", err.field, err.desc, err.parent)
}

func (err *fieldError) Cause() error  { return err.parent }
func (err *fieldError) Unwrap() error { return err.parent }
func (err *fieldError) Field() string { return err.field }

type fielder interface {
	Field() string
}

// FieldErrors returns the errors attached to fieldName anywhere in err.
// Collections are searched member by member. The search along a chain of
// wrapped errors stops at the first error of the field, so a field error
// wrapping another one of the same name is counted once.
func FieldErrors(err error, fieldName string) []error {
	var res []error
	for !isNilErr(err) {
		if f, ok := err.(fielder); ok && f.Field() == fieldName {
			return append(res, err)
		}
		if u, ok := err.(unpacker); ok {
			for _, e := range u.Unpack() {
				res = append(res, FieldErrors(e, fieldName)...)
			}
			return res
		}
		c, ok := err.(causer)
		if !ok {
			break
		}
		err = c.Cause()
	}
	return res
}
