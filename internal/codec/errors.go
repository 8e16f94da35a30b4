// Package codec decodes fixed-layout on-chain account data into typed
// structs and encodes instruction payloads. All integer fields are
// little-endian; pubkeys are raw 32-byte values encoded to base58 on
// the way out. Every decoder validates length before touching a field.
package codec

import (
	"errors"
	"fmt"
)

var (
	// ErrTruncatedBuffer is returned when the raw account data is
	// shorter than the layout requires.
	ErrTruncatedBuffer = errors.New("truncated account buffer")

	// ErrBadDiscriminator is returned when the leading discriminator
	// does not match the expected account type.
	ErrBadDiscriminator = errors.New("unexpected account discriminator")
)

// DecodeError carries the account type that failed to decode. Fatal
// for that account only, never for the process.
type DecodeError struct {
	Account string
	Err     error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Account, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

func decodeErr(account string, err error) error {
	return &DecodeError{Account: account, Err: err}
}

func truncated(account string, want, got int) error {
	return decodeErr(account, fmt.Errorf("%w: need %d bytes, have %d", ErrTruncatedBuffer, want, got))
}
