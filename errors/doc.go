/*
Package errors implements custom error interfaces for msigproxy.

Every failure is categorized by a registered root error. Creating an error
instance should always wrap one of them, so that callers can decide which
displayable state a failure recovers into:

	if errors.ErrInvalidTx.Is(err) {
		// recoverable, re-enable submission
	}

Validation functions collect all problems using Field and Append instead of
returning on the first one.

If you want to register a custom error - use Register(code, description).
*/
package errors
