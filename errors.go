package mailverify

import (
	"errors"

	"github.com/studiocloud/mailverify/batch"
)

var (
	// ErrInvalidSMTPOptions is returned by Validate when WithSMTP was given
	// an out-of-range port, a negative timeout or an unusable proxy.
	ErrInvalidSMTPOptions = errors.New("mailverify: invalid SMTPOptions")

	// ErrInvalidDNSOptions is returned by Validate when WithDNS was given a
	// negative timeout or cache TTL.
	ErrInvalidDNSOptions = errors.New("mailverify: invalid DNSOptions")

	// ErrEmptyInput is returned by ValidateMany for an empty input.
	ErrEmptyInput = batch.ErrEmptyInput
)
