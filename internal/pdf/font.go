package pdf

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"unicode"

	"github.com/adrg/xdg"
	"github.com/jung-kurt/gofpdf"
)

const (
	// DefaultFontFile is looked up when no explicit font path is configured.
	DefaultFontFile = "NotoSansKR.ttf"

	builtinFamily  = "Helvetica"
	embeddedFamily = "SiteSans"
)

var errBadSignature = errors.New("not a TrueType/OpenType font")

// FontResolution is the font decision for one generation pass. It never
// fails: problems downgrade to the built-in Helvetica and add a warning.
type FontResolution struct {
	Family   string
	Embedded bool
	Source   string
	Warnings []string
	data     []byte
}

// ResolveFont loads the font at path. Relative paths that do not exist are
// also searched for by base name in the XDG font directories.
func ResolveFont(path string) *FontResolution {
	if strings.TrimSpace(path) == "" {
		return builtinFont("no font file configured; using built-in Helvetica")
	}
	found, ok := locateFont(path)
	if !ok {
		return builtinFont(fmt.Sprintf("font file %s not found; using built-in Helvetica", path))
	}
	data, err := os.ReadFile(found)
	if err != nil {
		return builtinFont(fmt.Sprintf("read font file %s: %v; using built-in Helvetica", found, err))
	}
	return LoadFont(data, found)
}

// LoadFont validates raw font bytes and embeds them when usable.
func LoadFont(data []byte, source string) *FontResolution {
	if !hasFontSignature(data) {
		return builtinFont(fmt.Sprintf("font %s: %v; using built-in Helvetica", source, errBadSignature))
	}
	if err := probeFont(data); err != nil {
		return builtinFont(fmt.Sprintf("font %s could not be embedded: %v; using built-in Helvetica", source, err))
	}
	return &FontResolution{
		Family:   embeddedFamily,
		Embedded: true,
		Source:   source,
		data:     data,
	}
}

func builtinFont(warning string) *FontResolution {
	return &FontResolution{
		Family:   builtinFamily,
		Source:   "builtin",
		Warnings: []string{warning},
	}
}

func locateFont(path string) (string, bool) {
	if fileExists(path) {
		return path, true
	}
	if filepath.IsAbs(path) {
		return "", false
	}
	base := filepath.Base(path)
	for _, dir := range xdg.FontDirs {
		for _, candidate := range []string{filepath.Join(dir, path), filepath.Join(dir, base)} {
			if fileExists(candidate) {
				return candidate, true
			}
		}
	}
	return "", false
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// hasFontSignature accepts OpenType CFF ("OTTO"), collections ("ttcf"), and
// TrueType (0x00010000) headers.
func hasFontSignature(data []byte) bool {
	if len(data) < 4 {
		return false
	}
	head := data[:4]
	return bytes.Equal(head, []byte("OTTO")) ||
		bytes.Equal(head, []byte("ttcf")) ||
		bytes.Equal(head, []byte{0x00, 0x01, 0x00, 0x00})
}

// probeFont embeds the font into a scratch document. The TTF parser panics
// on some malformed files, so panics are turned into errors.
func probeFont(data []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("parse font: %v", r)
		}
	}()
	doc := gofpdf.New("P", "pt", "A4", "")
	doc.AddUTF8FontFromBytes(embeddedFamily, "", data)
	doc.AddPage()
	doc.SetFont(embeddedFamily, "", 12)
	doc.Text(10, 20, "Aa 0")
	var buf bytes.Buffer
	if err := doc.Output(&buf); err != nil {
		return fmt.Errorf("render probe: %w", err)
	}
	return nil
}

// register makes the resolved family (regular and bold) available in doc.
func (f *FontResolution) register(doc *gofpdf.Fpdf) {
	if !f.Embedded {
		return
	}
	doc.AddUTF8FontFromBytes(f.Family, "", f.data)
	doc.AddUTF8FontFromBytes(f.Family, "B", f.data)
}

func (f *FontResolution) use(doc *gofpdf.Fpdf, bold bool, size float64) {
	style := ""
	if bold {
		style = "B"
	}
	doc.SetFont(f.Family, style, size)
}

// Prepare makes s drawable with the resolved font. Control characters other
// than newlines become spaces. Without an embedded font, runes outside the
// cp1252 code page become '?'.
func (f *FontResolution) Prepare(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r == '\r':
			return -1
		case r == '\n':
			return r
		case unicode.IsControl(r):
			return ' '
		case !f.Embedded && !winAnsi(r):
			return '?'
		default:
			return r
		}
	}, s)
}

// Covers reports whether every rune of s can be drawn.
func (f *FontResolution) Covers(s string) bool {
	if f.Embedded {
		return true
	}
	for _, r := range s {
		if !winAnsi(r) {
			return false
		}
	}
	return true
}

// draw writes s at (x, y) in the current font.
func (f *FontResolution) draw(doc *gofpdf.Fpdf, x, y float64, s string) {
	doc.Text(x, y, f.encode(f.Prepare(s)))
}

// measure returns a width function for already prepared text.
func (f *FontResolution) measure(doc *gofpdf.Fpdf) func(string) float64 {
	return func(s string) float64 { return doc.GetStringWidth(f.encode(s)) }
}

// encode converts prepared UTF-8 text to the single-byte encoding the
// built-in core fonts expect. Embedded fonts take UTF-8 unchanged.
func (f *FontResolution) encode(s string) string {
	if f.Embedded {
		return s
	}
	table := cp1252Table()
	out := make([]byte, 0, len(s))
	for _, r := range s {
		switch b, ok := table[r]; {
		case r <= unicode.MaxASCII:
			out = append(out, byte(r))
		case ok:
			out = append(out, b)
		default:
			out = append(out, '?')
		}
	}
	return string(out)
}

func winAnsi(r rune) bool {
	if r <= unicode.MaxASCII {
		return true
	}
	_, ok := cp1252Table()[r]
	return ok
}

// cp1252Table maps runes to their cp1252 byte, read once from gofpdf's
// built-in code page descriptor. The highest cp1252 rune is U+2122.
var cp1252Table = sync.OnceValue(func() map[rune]byte {
	translate := gofpdf.New("P", "pt", "A4", "").UnicodeTranslatorFromDescriptor("")
	table := make(map[rune]byte, 128)
	for r := rune(0x80); r <= 0x2122; r++ {
		if out := translate(string(r)); len(out) == 1 && out != "." {
			table[r] = out[0]
		}
	}
	return table
})
