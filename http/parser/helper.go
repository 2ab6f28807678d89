package parser

import "math"

// appendDigit returns n*10 + the value of c. ok is false when c is not a
// decimal digit or the result would overflow.
func appendDigit(n int64, c byte) (int64, bool) {
	if c < '0' || c > '9' {
		return n, false
	}
	d := int64(c - '0')
	if n > (math.MaxInt64-d)/10 {
		return n, false
	}
	return n*10 + d, true
}

// appendHexDigit is appendDigit for base 16.
func appendHexDigit(n int64, c byte) (int64, bool) {
	d := hexToByte(c)
	if d == 255 {
		return n, false
	}
	if n > (math.MaxInt64-int64(d))/16 {
		return n, false
	}
	return n*16 + int64(d), true
}

func hexToByte(c byte) byte {
	switch {
	case '0' <= c && c <= '9':
		return c - '0'
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10
	case 'A' <= c && c <= 'F':
		return c - 'A' + 10
	}
	return 255 // Invalid hex
}

func toLower(c byte) byte {
	if c >= 'A' && c <= 'Z' {
		return c + 'a' - 'A'
	}
	return c
}

// tokenTable marks the tchar set of RFC 9110 section 5.6.2.
var tokenTable = [256]bool{}

func init() {
	for c := 'a'; c <= 'z'; c++ {
		tokenTable[c] = true
	}
	for c := 'A'; c <= 'Z'; c++ {
		tokenTable[c] = true
	}
	for c := '0'; c <= '9'; c++ {
		tokenTable[c] = true
	}
	for _, c := range "!#$%&'*+-.^_`|~" {
		tokenTable[c] = true
	}
}

func isToken(c byte) bool {
	return tokenTable[c]
}

func isURLChar(c byte) bool {
	return c > ' ' && c != 0x7f
}

func isValueChar(c byte) bool {
	return c == '\t' || (c >= ' ' && c != 0x7f)
}
