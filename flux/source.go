package flux

import (
	"errors"
	"io/fs"
	"os"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
)

// Source is program text in the surface dialect. Name identifies the text in
// diagnostics, usually the file path it was read from.
type Source struct {
	Name string
	Text string
}

// Program is the host text derived from a Source by the rewriter. Its lines
// correspond one to one with the lines of the Source it came from, so host
// error positions point at the original file.
type Program struct {
	Name string
	Text string
}

// NewSource wraps in-memory text as a Source.
func NewSource(name, text string) *Source {
	return &Source{Name: name, Text: text}
}

// LoadSource reads path as UTF-8 text. A missing file is reported as a
// FileNotFoundError before any rewriting happens; a leading byte order mark
// is dropped.
func LoadSource(path string) (*Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, wrapError(KindFileNotFound, err, "flux file not found: %s", path)
		}
		return nil, osError(err)
	}
	text, err := decodeUTF8(data)
	if err != nil {
		return nil, wrapError(KindUnicodeDecode, err, "%s: %v", path, err)
	}
	return &Source{Name: path, Text: text}, nil
}

var errInvalidUTF8 = errors.New("invalid utf-8 sequence")

func decodeUTF8(data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", errInvalidUTF8
	}
	decoded, err := unicode.UTF8BOM.NewDecoder().Bytes(data)
	if err != nil {
		return "", err
	}
	return string(decoded), nil
}
