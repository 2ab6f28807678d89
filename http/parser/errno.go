package parser

import "fmt"

// Errno is the result of Execute. ErrnoOK means every byte was consumed
// and the parser wants more.
type Errno int

const (
	ErrnoOK Errno = iota
	ErrnoInternal
	ErrnoStrict
	ErrnoInvalidMethod
	ErrnoInvalidURL
	ErrnoInvalidVersion
	ErrnoInvalidHeaderToken
	ErrnoInvalidContentLength
	ErrnoUnexpectedContentLength
	ErrnoInvalidTransferEncoding
	ErrnoInvalidChunkSize
	ErrnoClosedConnection
	ErrnoCBURL
	ErrnoCBHeaderField
	ErrnoCBHeaderFieldComplete
	ErrnoCBHeaderValue
	ErrnoCBHeaderValueComplete
	ErrnoCBHeadersComplete
	ErrnoCBBody
	ErrnoCBMessageComplete
)

var errnoNames = [...]string{
	ErrnoOK:                      "OK",
	ErrnoInternal:                "INTERNAL",
	ErrnoStrict:                  "STRICT",
	ErrnoInvalidMethod:           "INVALID_METHOD",
	ErrnoInvalidURL:              "INVALID_URL",
	ErrnoInvalidVersion:          "INVALID_VERSION",
	ErrnoInvalidHeaderToken:      "INVALID_HEADER_TOKEN",
	ErrnoInvalidContentLength:    "INVALID_CONTENT_LENGTH",
	ErrnoUnexpectedContentLength: "UNEXPECTED_CONTENT_LENGTH",
	ErrnoInvalidTransferEncoding: "INVALID_TRANSFER_ENCODING",
	ErrnoInvalidChunkSize:        "INVALID_CHUNK_SIZE",
	ErrnoClosedConnection:        "CLOSED_CONNECTION",
	ErrnoCBURL:                   "CB_URL",
	ErrnoCBHeaderField:           "CB_HEADER_FIELD",
	ErrnoCBHeaderFieldComplete:   "CB_HEADER_FIELD_COMPLETE",
	ErrnoCBHeaderValue:           "CB_HEADER_VALUE",
	ErrnoCBHeaderValueComplete:   "CB_HEADER_VALUE_COMPLETE",
	ErrnoCBHeadersComplete:       "CB_HEADERS_COMPLETE",
	ErrnoCBBody:                  "CB_BODY",
	ErrnoCBMessageComplete:       "CB_MESSAGE_COMPLETE",
}

func (e Errno) String() string {
	if e >= 0 && int(e) < len(errnoNames) {
		return errnoNames[e]
	}
	return fmt.Sprintf("ERRNO(%d)", int(e))
}

// Callback reports whether the error was returned by a callback rather
// than raised by the grammar.
func (e Errno) Callback() bool {
	return e >= ErrnoCBURL
}

// Error carries the errno, a human readable reason and, for callback
// errors, the error the callback returned.
type Error struct {
	Errno  Errno
	Reason string
	Err    error
}

func (e *Error) Error() string {
	return "parser: " + e.Errno.String() + " " + e.Reason
}

func (e *Error) Unwrap() error {
	return e.Err
}
