// Package codec turns byte streams into events and events into bytes.
//
// Decoding is two-staged: a framing rule splits the input into frames and a deserializer
// turns each frame into zero or more events. Both stages are closed sets of variants
// selected by configuration:
//
//	framing:      bytes | newline_delimited | character_delimited | length_delimited
//	deserializer: bytes | json | native_json | native
//
// Encoding mirrors it with a serializer (text | json | native_json | native) and the same
// framing rules applied between frames.
//
// A decode error ends decoding of the current payload. Events decoded before the error are
// returned together with it, the rest of the payload is discarded. DecodeError reports
// whether the failure would have allowed skipping just the offending frame, which callers
// use for logging and metrics.
package codec
