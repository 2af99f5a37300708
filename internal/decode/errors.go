package decode

import "errors"

// ErrDecodeFailed wraps every payload that could not be decoded. Callers
// drop the payload and keep reading.
var ErrDecodeFailed = errors.New("decode: payload malformed")
