package pickle

import (
	"fmt"
	"strconv"
)

// pydecodeStringEscape decodes the payload of a legacy STRING opcode,
// which Python's pickler writes using its "string-escape" codec: backslash
// introduces either a fixed one-character escape (\\, \', \", \n-as-line-
// continuation), a named control escape (\b, \f, \t, \n, \r, \v, \a), an
// octal or hex byte escape, or — for anything else — is
// passed through literally together with the character that follows it
// (pickle.loads tolerates unknown escapes the same way).
//
// Ref: https://github.com/python/cpython/blob/v2.7.15-198-g69d0bc1430d/Objects/stringobject.c#L600
func pydecodeStringEscape(s string) (string, error) {
	var out []byte
	i := 0
	for i < len(s) {
		c := s[i]
		if c != '\\' {
			out = append(out, c)
			i++
			continue
		}
		if i+1 >= len(s) {
			return "", strconv.ErrSyntax
		}
		switch next := s[i+1]; next {
		case '\n': // backslash-newline is a line continuation: drop both bytes
			i += 2
		case '\\':
			out = append(out, '\\')
			i += 2
		case '\'', '"':
			out = append(out, next)
			i += 2
		case 'b', 'f', 't', 'n', 'r', 'v', 'a', '0', '1', '2', '3', '4', '5', '6', '7', 'x':
			r, _, tail, err := strconv.UnquoteChar(s[i:], 0)
			if err != nil {
				return "", err
			}
			b := byte(r)
			if rune(b) != r {
				return "", fmt.Errorf("pydecode: string-escape: escape at %q produced non-byte rune %q", s[i:], r)
			}
			out = append(out, b)
			i = len(s) - len(tail)
		default:
			// unrecognized escape: keep the backslash, reprocess next as a
			// plain character (matches CPython's lenient fallback).
			out = append(out, '\\')
			i++
		}
	}
	return string(out), nil
}
