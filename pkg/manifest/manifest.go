// Package manifest reads the info.xml file shipped next to an install
// script.
package manifest

import (
	"bytes"
	"encoding/xml"
	"io"
	"os"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
)

var ErrParse = errors.New("unable to parse manifest")

// Info is the metadata a manifest carries. ID is -1 when absent or not a
// number.
type Info struct {
	Name    string
	ID      int
	Version string
	Author  string
	Website string
}

var (
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}

	declUTF16LE = []byte{0x3C, 0x00, 0x3F, 0x00}
	declUTF16BE = []byte{0x00, 0x3C, 0x00, 0x3F}
)

// sniff strips any byte order mark and reports the encoding implied by it
// or by the shape of the first characters. nil means single byte.
func sniff(data []byte) ([]byte, encoding.Encoding) {
	switch {
	case bytes.HasPrefix(data, bomUTF16LE):
		return data[2:], unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)
	case bytes.HasPrefix(data, bomUTF16BE):
		return data[2:], unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM)
	case bytes.HasPrefix(data, bomUTF8):
		return data[3:], nil
	case bytes.HasPrefix(data, declUTF16LE):
		return data, unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)
	case bytes.HasPrefix(data, declUTF16BE):
		return data, unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM)
	}

	return data, nil
}

func encode(enc encoding.Encoding, s string) []byte {
	if enc == nil {
		return []byte(s)
	}

	out, err := enc.NewEncoder().Bytes([]byte(s))
	if err != nil {
		return []byte(s)
	}

	return out
}

// skipHeader drops the BOM and the XML declaration, keeping the rest of
// the bytes in their original encoding.
func skipHeader(data []byte) ([]byte, encoding.Encoding) {
	body, enc := sniff(data)

	if bytes.HasPrefix(body, encode(enc, "<?")) {
		end := encode(enc, "?>")
		if idx := bytes.Index(body, end); idx != -1 {
			return body[idx+len(end):], enc
		}
	}

	return body, enc
}

type trial struct {
	name string
	dec  func(enc encoding.Encoding, data []byte) ([]byte, error)
}

var trials = []trial{
	{"utf-16", func(enc encoding.Encoding, data []byte) ([]byte, error) {
		if enc == nil {
			enc = unicode.UTF16(unicode.LittleEndian, unicode.UseBOM)
		}

		if len(data)%2 != 0 {
			return nil, errors.New("odd length for utf-16")
		}

		return enc.NewDecoder().Bytes(data)
	}},
	{"utf-8", func(_ encoding.Encoding, data []byte) ([]byte, error) {
		if !utf8.Valid(data) {
			return nil, errors.New("invalid utf-8")
		}

		return data, nil
	}},
	{"iso-8859-1", func(_ encoding.Encoding, data []byte) ([]byte, error) {
		return charmap.ISO8859_1.NewDecoder().Bytes(data)
	}},
}

// Read parses a manifest. A strict decode honouring the declared encoding
// is tried first; if that fails the declaration is discarded and a fixed
// list of encodings is tried in turn.
func Read(L hclog.Logger, name string, data []byte) (*Info, error) {
	if L == nil {
		L = hclog.L()
	}

	info, err := strict(data)
	if err == nil {
		return info, nil
	}

	L.Warn("manifest is incorrectly encoded, applying heuristics", "file", name, "error", err)

	body, enc := skipHeader(data)

	for _, t := range trials {
		L.Debug("trying manifest encoding", "file", name, "encoding", t.name)

		text, err := t.dec(enc, body)
		if err == nil {
			info, err = parse(bytes.NewReader(text), nil)
		}

		if err == nil {
			L.Debug("interpreting manifest", "file", name, "encoding", t.name)
			return info, nil
		}

		L.Debug("manifest encoding rejected", "file", name, "encoding", t.name, "error", err)
	}

	return nil, errors.Wrapf(ErrParse, "%s", name)
}

func ReadFile(L hclog.Logger, path string) (*Info, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading manifest %s", path)
	}

	return Read(L, path, data)
}

func strict(data []byte) (*Info, error) {
	body, enc := sniff(data)

	if enc == nil {
		return parse(bytes.NewReader(body), charsetReader)
	}

	// Already transcoded, so the declared encoding must be ignored.
	text, err := enc.NewDecoder().Bytes(body)
	if err != nil {
		return nil, err
	}

	return parse(bytes.NewReader(text), func(_ string, r io.Reader) (io.Reader, error) {
		return r, nil
	})
}

func charsetReader(label string, input io.Reader) (io.Reader, error) {
	enc, err := htmlindex.Get(label)
	if err != nil {
		return nil, errors.Wrapf(err, "unknown encoding %s", label)
	}

	return enc.NewDecoder().Reader(input), nil
}

func parse(r io.Reader, cr func(string, io.Reader) (io.Reader, error)) (*Info, error) {
	dec := xml.NewDecoder(r)
	dec.CharsetReader = cr

	info := &Info{ID: -1}

	var sawElement bool

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}

		if err != nil {
			return nil, err
		}

		se, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}

		sawElement = true

		var field *string

		switch se.Name.Local {
		case "Name":
			field = &info.Name
		case "Version":
			field = &info.Version
		case "Author":
			field = &info.Author
		case "Website":
			field = &info.Website
		case "Id":
			var s string
			if err := dec.DecodeElement(&s, &se); err != nil {
				return nil, err
			}

			if id, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
				info.ID = id
			}

			continue
		default:
			continue
		}

		if err := dec.DecodeElement(field, &se); err != nil {
			return nil, err
		}

		*field = strings.TrimSpace(*field)
	}

	if !sawElement {
		return nil, errors.New("no xml elements found")
	}

	return info, nil
}
