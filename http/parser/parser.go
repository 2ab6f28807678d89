// Package parser is an incremental, callback-driven HTTP/1.x request
// parser. Bytes may be fed in arbitrary chunks; the parser reports
// request-target, header fields, header values and body as fragments,
// plus boundary events when each of them is complete.
//
// A Parser handles exactly one message. Anything after the end of the
// message is rejected with ErrnoClosedConnection.
package parser

type HeadersAction int

const (
	Continue HeadersAction = iota
	// SkipBody tells the parser no body follows the headers.
	SkipBody
)

// Callbacks receives parse events. Fragment slices are only valid for the
// duration of the call. A non-nil error aborts parsing; Execute then
// returns the matching ErrnoCB* value.
type Callbacks interface {
	OnURL(fragment []byte) error
	OnHeaderField(fragment []byte) error
	OnHeaderFieldComplete() error
	OnHeaderValue(fragment []byte) error
	OnHeaderValueComplete() error
	OnHeadersComplete() (HeadersAction, error)
	OnBody(fragment []byte) error
	OnMessageComplete() error
}

type state uint8

const (
	stateStart state = iota
	stateMethod
	stateURLStart
	stateURL
	stateVersion
	stateVersionMajor
	stateVersionDot
	stateVersionMinor
	stateRequestLineEnd
	stateRequestLineLF
	stateHeaderFieldStart
	stateHeaderField
	stateHeaderValueStart
	stateHeaderValue
	stateHeaderValueLF
	stateHeadersLF
	stateBody
	stateChunkSizeStart
	stateChunkSize
	stateChunkExtension
	stateChunkSizeLF
	stateChunkData
	stateChunkDataCR
	stateChunkDataLF
	stateTrailerStart
	stateTrailerLine
	stateTrailersLF
	stateDone
)

type headerKind uint8

const (
	headerOther headerKind = iota
	headerContentLength
	headerTransferEncoding
)

const versionPrefix = "HTTP/"

type Parser struct {
	cb    Callbacks
	state state
	err   *Error

	method    Method
	methodBuf [maxMethodLen]byte
	methodLen int

	versionPos   int
	major, minor uint8

	field         [len("transfer-encoding")]byte
	fieldLen      int
	fieldTooLong  bool
	kind          headerKind
	valueSeen     bool
	clTrailing    bool
	te            [len("chunked")]byte
	teLen         int
	teTooLong     bool
	hasTE         bool
	chunked       bool
	hasLength     bool
	contentLength int64
	remaining     int64
	chunkDigits   int
}

func New(cb Callbacks) *Parser {
	return &Parser{cb: cb}
}

func (p *Parser) Method() Method {
	return p.method
}

func (p *Parser) Version() (major, minor uint8) {
	return p.major, p.minor
}

// Err returns the sticky parse error, or nil.
func (p *Parser) Err() error {
	if p.err == nil {
		return nil
	}
	return p.err
}

func (p *Parser) Errno() Errno {
	if p.err == nil {
		return ErrnoOK
	}
	return p.err.Errno
}

func (p *Parser) Reason() string {
	if p.err == nil {
		return ""
	}
	return p.err.Reason
}

// Done reports whether a complete message has been parsed.
func (p *Parser) Done() bool {
	return p.state == stateDone
}

// Execute feeds data to the parser. It returns ErrnoOK when all of data
// was consumed. Errors are sticky.
func (p *Parser) Execute(data []byte) Errno {
	if p.err != nil {
		return p.err.Errno
	}

	mark := -1
	switch p.state {
	case stateURL, stateHeaderField, stateHeaderValue:
		mark = 0
	}

	for i := 0; i < len(data); i++ {
		c := data[i]

		switch p.state {
		case stateStart:
			if c == '\r' || c == '\n' {
				continue
			}
			p.state = stateMethod
			fallthrough

		case stateMethod:
			if c == ' ' {
				p.method = lookupMethod(p.methodBuf[:p.methodLen])
				if p.method == MethodUnknown {
					return p.fail(ErrnoInvalidMethod, "unknown method", nil)
				}
				p.state = stateURLStart
				continue
			}
			if c < 'A' || c > 'Z' || p.methodLen == maxMethodLen {
				return p.fail(ErrnoInvalidMethod, "invalid method", nil)
			}
			p.methodBuf[p.methodLen] = c
			p.methodLen++

		case stateURLStart:
			if !isURLChar(c) {
				return p.fail(ErrnoInvalidURL, "invalid request target", nil)
			}
			mark = i
			p.state = stateURL

		case stateURL:
			if c == ' ' {
				if errno := p.emit(data[mark:i]); errno != ErrnoOK {
					return errno
				}
				mark = -1
				p.state = stateVersion
				continue
			}
			if !isURLChar(c) {
				return p.fail(ErrnoInvalidURL, "invalid request target", nil)
			}

		case stateVersion:
			if c != versionPrefix[p.versionPos] {
				return p.fail(ErrnoInvalidVersion, "expected HTTP/", nil)
			}
			if p.versionPos++; p.versionPos == len(versionPrefix) {
				p.state = stateVersionMajor
			}

		case stateVersionMajor:
			if c != '1' {
				return p.fail(ErrnoInvalidVersion, "unsupported major version", nil)
			}
			p.major = 1
			p.state = stateVersionDot

		case stateVersionDot:
			if c != '.' {
				return p.fail(ErrnoInvalidVersion, "expected dot", nil)
			}
			p.state = stateVersionMinor

		case stateVersionMinor:
			if c != '0' && c != '1' {
				return p.fail(ErrnoInvalidVersion, "unsupported minor version", nil)
			}
			p.minor = c - '0'
			p.state = stateRequestLineEnd

		case stateRequestLineEnd:
			switch c {
			case '\r':
				p.state = stateRequestLineLF
			case '\n':
				p.state = stateHeaderFieldStart
			default:
				return p.fail(ErrnoInvalidVersion, "expected CRLF after version", nil)
			}

		case stateRequestLineLF:
			if c != '\n' {
				return p.fail(ErrnoStrict, "expected LF after CR", nil)
			}
			p.state = stateHeaderFieldStart

		case stateHeaderFieldStart:
			switch {
			case c == '\r':
				p.state = stateHeadersLF
				continue
			case c == '\n':
				if errno := p.headersComplete(); errno != ErrnoOK {
					return errno
				}
				continue
			case !isToken(c):
				return p.fail(ErrnoInvalidHeaderToken, "invalid header field", nil)
			}
			p.fieldLen = 0
			p.fieldTooLong = false
			mark = i
			p.state = stateHeaderField
			p.trackField(c)

		case stateHeaderField:
			if c == ':' {
				if errno := p.emit(data[mark:i]); errno != ErrnoOK {
					return errno
				}
				mark = -1
				p.fieldComplete()
				if err := p.cb.OnHeaderFieldComplete(); err != nil {
					return p.fail(ErrnoCBHeaderFieldComplete, err.Error(), err)
				}
				p.state = stateHeaderValueStart
				continue
			}
			if !isToken(c) {
				return p.fail(ErrnoInvalidHeaderToken, "invalid header field", nil)
			}
			p.trackField(c)

		case stateHeaderValueStart:
			switch {
			case c == ' ' || c == '\t':
				continue
			case c == '\r':
				p.state = stateHeaderValueLF
				continue
			case c == '\n':
				if errno := p.valueComplete(); errno != ErrnoOK {
					return errno
				}
				continue
			case !isValueChar(c):
				return p.fail(ErrnoInvalidHeaderToken, "invalid header value", nil)
			}
			mark = i
			p.state = stateHeaderValue
			if errno := p.trackValue(c); errno != ErrnoOK {
				return errno
			}

		case stateHeaderValue:
			if c == '\r' || c == '\n' {
				if errno := p.emit(data[mark:i]); errno != ErrnoOK {
					return errno
				}
				mark = -1
				if c == '\r' {
					p.state = stateHeaderValueLF
				} else if errno := p.valueComplete(); errno != ErrnoOK {
					return errno
				}
				continue
			}
			if !isValueChar(c) {
				return p.fail(ErrnoInvalidHeaderToken, "invalid header value", nil)
			}
			if errno := p.trackValue(c); errno != ErrnoOK {
				return errno
			}

		case stateHeaderValueLF:
			if c != '\n' {
				return p.fail(ErrnoStrict, "expected LF after CR", nil)
			}
			if errno := p.valueComplete(); errno != ErrnoOK {
				return errno
			}

		case stateHeadersLF:
			if c != '\n' {
				return p.fail(ErrnoStrict, "expected LF after CR", nil)
			}
			if errno := p.headersComplete(); errno != ErrnoOK {
				return errno
			}

		case stateBody, stateChunkData:
			n := int64(len(data) - i)
			if n > p.remaining {
				n = p.remaining
			}
			if err := p.cb.OnBody(data[i : i+int(n)]); err != nil {
				return p.fail(ErrnoCBBody, err.Error(), err)
			}
			p.remaining -= n
			i += int(n) - 1
			if p.remaining > 0 {
				continue
			}
			if p.state == stateChunkData {
				p.state = stateChunkDataCR
				continue
			}
			if errno := p.messageComplete(); errno != ErrnoOK {
				return errno
			}

		case stateChunkSizeStart:
			p.remaining = 0
			p.chunkDigits = 0
			p.state = stateChunkSize
			fallthrough

		case stateChunkSize:
			switch c {
			case '\r', '\n', ';':
				if p.chunkDigits == 0 {
					return p.fail(ErrnoInvalidChunkSize, "missing chunk size", nil)
				}
			}
			switch c {
			case '\r':
				p.state = stateChunkSizeLF
			case '\n':
				p.chunkSizeDone()
			case ';':
				p.state = stateChunkExtension
			default:
				size, ok := appendHexDigit(p.remaining, c)
				if !ok {
					return p.fail(ErrnoInvalidChunkSize, "invalid chunk size", nil)
				}
				p.remaining = size
				p.chunkDigits++
			}

		case stateChunkExtension:
			switch c {
			case '\r':
				p.state = stateChunkSizeLF
			case '\n':
				p.chunkSizeDone()
			}

		case stateChunkSizeLF:
			if c != '\n' {
				return p.fail(ErrnoStrict, "expected LF after chunk size", nil)
			}
			p.chunkSizeDone()

		case stateChunkDataCR:
			switch c {
			case '\r':
				p.state = stateChunkDataLF
			case '\n':
				p.state = stateChunkSizeStart
			default:
				return p.fail(ErrnoStrict, "expected CRLF after chunk data", nil)
			}

		case stateChunkDataLF:
			if c != '\n' {
				return p.fail(ErrnoStrict, "expected LF after chunk data", nil)
			}
			p.state = stateChunkSizeStart

		case stateTrailerStart:
			switch c {
			case '\r':
				p.state = stateTrailersLF
			case '\n':
				if errno := p.messageComplete(); errno != ErrnoOK {
					return errno
				}
			default:
				p.state = stateTrailerLine
			}

		case stateTrailerLine:
			if c == '\n' {
				p.state = stateTrailerStart
			}

		case stateTrailersLF:
			if c != '\n' {
				return p.fail(ErrnoStrict, "expected LF after trailers", nil)
			}
			if errno := p.messageComplete(); errno != ErrnoOK {
				return errno
			}

		case stateDone:
			return p.fail(ErrnoClosedConnection, "data after message complete", nil)

		default:
			return p.fail(ErrnoInternal, "unknown state", nil)
		}
	}

	if mark >= 0 && mark < len(data) {
		return p.emit(data[mark:])
	}
	return ErrnoOK
}

// emit delivers a fragment of the span the parser is currently in.
func (p *Parser) emit(fragment []byte) Errno {
	if len(fragment) == 0 {
		return ErrnoOK
	}

	switch p.state {
	case stateURL:
		if err := p.cb.OnURL(fragment); err != nil {
			return p.fail(ErrnoCBURL, err.Error(), err)
		}
	case stateHeaderField:
		if err := p.cb.OnHeaderField(fragment); err != nil {
			return p.fail(ErrnoCBHeaderField, err.Error(), err)
		}
	case stateHeaderValue:
		if err := p.cb.OnHeaderValue(fragment); err != nil {
			return p.fail(ErrnoCBHeaderValue, err.Error(), err)
		}
	}
	return ErrnoOK
}

func (p *Parser) fail(errno Errno, reason string, err error) Errno {
	p.err = &Error{Errno: errno, Reason: reason, Err: err}
	return errno
}

func (p *Parser) trackField(c byte) {
	if p.fieldLen == len(p.field) {
		p.fieldTooLong = true
		return
	}
	p.field[p.fieldLen] = toLower(c)
	p.fieldLen++
}

func (p *Parser) fieldComplete() {
	p.kind = headerOther
	p.valueSeen = false
	if p.fieldTooLong {
		return
	}

	switch string(p.field[:p.fieldLen]) {
	case "content-length":
		p.kind = headerContentLength
		p.clTrailing = false
	case "transfer-encoding":
		p.kind = headerTransferEncoding
		p.teLen = 0
		p.teTooLong = false
	}
}

func (p *Parser) trackValue(c byte) Errno {
	switch p.kind {
	case headerContentLength:
		if !p.valueSeen && p.hasLength {
			return p.fail(ErrnoUnexpectedContentLength, "duplicate Content-Length", nil)
		}
		p.valueSeen = true
		if c == ' ' || c == '\t' {
			p.clTrailing = true
			return ErrnoOK
		}
		if p.clTrailing {
			return p.fail(ErrnoInvalidContentLength, "invalid character in Content-Length", nil)
		}
		n, ok := appendDigit(p.contentLength, c)
		if !ok {
			return p.fail(ErrnoInvalidContentLength, "invalid character in Content-Length", nil)
		}
		p.contentLength = n

	case headerTransferEncoding:
		p.valueSeen = true
		switch c {
		case ' ', '\t':
		case ',':
			p.teLen = 0
			p.teTooLong = false
		default:
			if p.teLen == len(p.te) {
				p.teTooLong = true
				return ErrnoOK
			}
			p.te[p.teLen] = toLower(c)
			p.teLen++
		}
	}
	return ErrnoOK
}

func (p *Parser) valueComplete() Errno {
	switch p.kind {
	case headerContentLength:
		if !p.valueSeen {
			return p.fail(ErrnoInvalidContentLength, "empty Content-Length", nil)
		}
		p.hasLength = true
	case headerTransferEncoding:
		p.hasTE = true
		p.chunked = !p.teTooLong && string(p.te[:p.teLen]) == "chunked"
	}
	p.kind = headerOther

	if err := p.cb.OnHeaderValueComplete(); err != nil {
		return p.fail(ErrnoCBHeaderValueComplete, err.Error(), err)
	}
	p.state = stateHeaderFieldStart
	return ErrnoOK
}

func (p *Parser) headersComplete() Errno {
	if p.hasTE {
		if p.hasLength {
			return p.fail(ErrnoUnexpectedContentLength, "Content-Length with Transfer-Encoding", nil)
		}
		if !p.chunked {
			return p.fail(ErrnoInvalidTransferEncoding, "request has non-chunked final Transfer-Encoding", nil)
		}
	}

	action, err := p.cb.OnHeadersComplete()
	if err != nil {
		return p.fail(ErrnoCBHeadersComplete, err.Error(), err)
	}

	switch {
	case action == SkipBody:
		return p.messageComplete()
	case p.chunked:
		p.state = stateChunkSizeStart
	case p.contentLength > 0:
		p.remaining = p.contentLength
		p.state = stateBody
	default:
		return p.messageComplete()
	}
	return ErrnoOK
}

func (p *Parser) chunkSizeDone() {
	if p.remaining == 0 {
		p.state = stateTrailerStart
		return
	}
	p.state = stateChunkData
}

func (p *Parser) messageComplete() Errno {
	p.state = stateDone
	if err := p.cb.OnMessageComplete(); err != nil {
		return p.fail(ErrnoCBMessageComplete, err.Error(), err)
	}
	return ErrnoOK
}
