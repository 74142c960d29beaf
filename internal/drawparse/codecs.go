package drawparse

import (
	"bytes"
	"strings"
	"sync"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

type textCodec struct {
	name   string
	decode func([]byte) (string, bool)
}

type csvTrial struct {
	codec     textCodec
	delimiter rune
}

// csvTrials is built once per process and never torn down.
var csvTrials = sync.OnceValue(func() []csvTrial {
	codecs := []textCodec{
		{name: "utf-8", decode: decodeStrictUTF8},
		{name: "windows-1252", decode: charmapDecoder(charmap.Windows1252)},
		{name: "iso-8859-1", decode: charmapDecoder(charmap.ISO8859_1)},
	}
	delimiters := []rune{';', ',', '\t'}

	trials := make([]csvTrial, 0, len(codecs)*len(delimiters))
	for _, codec := range codecs {
		for _, delimiter := range delimiters {
			trials = append(trials, csvTrial{codec: codec, delimiter: delimiter})
		}
	}
	return trials
})

func decodeStrictUTF8(content []byte) (string, bool) {
	trimmed := bytes.TrimPrefix(content, utf8BOM)
	if !utf8.Valid(trimmed) {
		return "", false
	}
	return string(trimmed), true
}

// charmapDecoder rejects payloads containing bytes the code page leaves undefined.
func charmapDecoder(codePage *charmap.Charmap) func([]byte) (string, bool) {
	return func(content []byte) (string, bool) {
		decoded, err := decodeWith(codePage, content)
		if err != nil || strings.ContainsRune(decoded, utf8.RuneError) {
			return "", false
		}
		return decoded, true
	}
}

func decodeWith(codec encoding.Encoding, content []byte) (string, error) {
	decoded, err := codec.NewDecoder().Bytes(content)
	if err != nil {
		return "", err
	}
	return string(decoded), nil
}

func delimiterName(delimiter rune) string {
	switch delimiter {
	case '\t':
		return "tab"
	default:
		return string(delimiter)
	}
}
