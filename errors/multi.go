package errors

import (
	"strings"
)

// Append clubs together all provided errors. Nil values are ignored.
//
// If given error implements unpacker interface, it is flattened. All
// contained by that error instances are extracted and included directly in
// the result.
func Append(errs ...error) error {
	var res multiErr
	for _, e := range errs {
		if isNilErr(e) {
			continue
		}
		if u, ok := e.(unpacker); ok {
			res = append(res, u.Unpack()...)
		} else {
			res = append(res, e)
		}
	}

	if len(res) == 0 {
		return nil
	}
	return res
}

// multiErr represents a collection of errors. Use Append to create it.
type multiErr []error

// Unpack implements unpacker interface.
func (e multiErr) Unpack() []error {
	return []error(e)
}

func (e multiErr) Error() string {
	if len(e) == 1 {
		return e[0].Error()
	}
	msgs := make([]string, 0, len(e))
	for _, er := range e {
		msgs = append(msgs, er.Error())
	}
	return "[" + strings.Join(msgs, "; ") + "]"
}

// unpacker is implemented by errors that represent a group of errors.
type unpacker interface {
	Unpack() []error
}
