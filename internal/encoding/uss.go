package encoding

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/renameio/v2"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/encoding/unicode"
)

// Charsets commonly named on z/OS that the IANA index spells differently.
var aliases = map[string]encoding.Encoding{
	"IBM1047":   charmap.CodePage1047,
	"IBM01047":  charmap.CodePage1047,
	"CP1047":    charmap.CodePage1047,
	"IBM037":    charmap.CodePage037,
	"IBM37":     charmap.CodePage037,
	"CP037":     charmap.CodePage037,
	"IBM1140":   charmap.CodePage1140,
	"IBM01140":  charmap.CodePage1140,
	"ISO88591":  charmap.ISO8859_1,
	"ISO885915": charmap.ISO8859_15,
	"UTF8":      unicode.UTF8,
}

// Lookup returns the encoding for a charset name such as "IBM-1047" or
// "ISO8859-1".
func Lookup(name string) (encoding.Encoding, error) {
	key := strings.NewReplacer("-", "", "_", "", " ", "").Replace(strings.ToUpper(name))
	if enc, ok := aliases[key]; ok {
		return enc, nil
	}
	for _, idx := range []*ianaindex.Index{ianaindex.IANA, ianaindex.MIME} {
		enc, err := idx.Encoding(name)
		if err == nil && enc != nil {
			return enc, nil
		}
	}
	return nil, fmt.Errorf("unsupported charset %q", name)
}

// USSConverter converts files in process. A directory target has every
// regular file beneath it converted.
type USSConverter struct{}

// Convert implements Converter.
func (USSConverter) Convert(_ context.Context, target, from, to string) error {
	src, err := Lookup(from)
	if err != nil {
		return err
	}
	dst, err := Lookup(to)
	if err != nil {
		return err
	}
	info, err := os.Stat(target)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return convertFile(target, info.Mode().Perm(), src, dst)
	}
	return filepath.WalkDir(target, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		return convertFile(path, fi.Mode().Perm(), src, dst)
	})
}

func convertFile(path string, perm os.FileMode, from, to encoding.Encoding) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	decoded, err := from.NewDecoder().Bytes(data)
	if err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}
	encoded, err := to.NewEncoder().Bytes(decoded)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	return renameio.WriteFile(path, encoded, perm)
}
