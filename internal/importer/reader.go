package importer

// reader.go prepares raw upload bytes for tokenizing.
//
// Exports come from Windows desktops, so two things are routine:
//   - a UTF-8 BOM (0xEF 0xBB 0xBF) in front of the header
//   - files saved in the ANSI code page (Windows-1252) rather than UTF-8
//
// Decode strips the BOM and, when the payload is not valid UTF-8, either
// transcodes it from the configured fallback charset or rejects the file.

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Charset names accepted as a decoding fallback.
const (
	CharsetNone        = ""
	CharsetWindows1252 = "windows-1252"
	CharsetLatin1      = "iso-8859-1"
)

// Decode returns the text content of an export. A leading BOM is removed.
// Invalid UTF-8 is transcoded from fallback; with no fallback it is a
// FormatError wrapping ErrEncoding.
func Decode(data []byte, fallback string) (string, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	if utf8.Valid(data) {
		return string(data), nil
	}

	enc, err := lookupCharset(fallback)
	if err != nil {
		return "", err
	}
	if enc == nil {
		return "", &FormatError{Reason: "file is not valid UTF-8", Err: ErrEncoding}
	}

	out, _, err := transform.Bytes(enc.NewDecoder(), data)
	if err != nil {
		return "", &FormatError{Reason: fmt.Sprintf("decode %s: %v", fallback, err), Err: ErrEncoding}
	}
	return string(bytes.TrimPrefix(out, utf8BOM)), nil
}

// ReadLimited reads the raw export from r, failing with ErrFileTooLarge once
// more than limit bytes arrive. limit <= 0 disables the size check. Decoding
// is left to Build.
func ReadLimited(r io.Reader, limit int64) ([]byte, error) {
	if limit > 0 {
		r = io.LimitReader(r, limit+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read export: %w", err)
	}
	if limit > 0 && int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: exceeds %d bytes", ErrFileTooLarge, limit)
	}
	return data, nil
}

func lookupCharset(name string) (encoding.Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case CharsetNone:
		return nil, nil
	case CharsetWindows1252, "cp1252":
		return charmap.Windows1252, nil
	case CharsetLatin1, "latin1":
		return charmap.ISO8859_1, nil
	default:
		return nil, fmt.Errorf("unsupported fallback charset %q", name)
	}
}
