package engine

import (
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// FontFamily maps a family name used in definitions to its TTF files.
type FontFamily struct {
	Name       string
	Regular    string
	Bold       string
	Italic     string
	BoldItalic string
}

// Families is the fixed set of embeddable font families.
var Families = []FontFamily{
	{Name: "firefly", Regular: "fireflysung.ttf"},
	{Name: "dejavusans", Regular: "DejaVuSans.ttf", Bold: "DejaVuSans-Bold.ttf", Italic: "DejaVuSans-Oblique.ttf", BoldItalic: "DejaVuSans-BoldOblique.ttf"},
	{Name: "notosans", Regular: "NotoSans-Regular.ttf", Bold: "NotoSans-Bold.ttf", Italic: "NotoSans-Italic.ttf", BoldItalic: "NotoSans-BoldItalique.ttf"},
	{Name: "notosans-myanmar", Regular: "NotoSansMyanmar-Regular.ttf", Bold: "NotoSansMyanmar-Bold.ttf"},
	{Name: "notosans-arabic", Regular: "NotoSansArabic.ttf"},
	{Name: "notosans-naskh-arabic", Regular: "NotoNaskhArabic.ttf"},
	{Name: "notosans-ethiopic", Regular: "NotoSansEthiopic.ttf"},
	{Name: "freesans", Regular: "FreeSans.ttf", Bold: "FreeSansBold.ttf", Italic: "FreeSansOblique.ttf", BoldItalic: "FreeSansBoldOblique.ttf"},
	{Name: "unifont", Regular: "unifont.ttf"},
}

var coreFonts = map[string]string{
	"helvetica": "Helvetica",
	"courier":   "Courier",
	"times":     "Times",
}

const defaultFont = "helvetica"

func isCoreFont(name string) bool {
	_, ok := coreFonts[strings.ToLower(name)]
	return ok
}

// FontSet is the subset of Families whose files were found on disk.
type FontSet struct {
	dir       string
	available map[string]FontFamily
}

// LoadFonts resolves every family against dir. Families without a regular
// file are left out and reported once; missing style variants fall back to
// the regular file.
func LoadFonts(dir string, logger *zap.Logger) *FontSet {
	if logger == nil {
		logger = zap.NewNop()
	}
	set := &FontSet{dir: dir, available: make(map[string]FontFamily, len(Families))}
	missing := make([]string, 0)
	for _, fam := range Families {
		if !fileExists(filepath.Join(dir, fam.Regular)) {
			missing = append(missing, fam.Name)
			continue
		}
		resolved := fam
		for _, variant := range []*string{&resolved.Bold, &resolved.Italic, &resolved.BoldItalic} {
			if *variant == "" || !fileExists(filepath.Join(dir, *variant)) {
				*variant = ""
			}
		}
		set.available[fam.Name] = resolved
	}
	if len(missing) > 0 {
		logger.Sugar().Warnw("report fonts unavailable", "dir", dir, "families", missing)
	}
	return set
}

// Has reports whether family can be embedded.
func (s *FontSet) Has(family string) bool {
	if s == nil {
		return false
	}
	_, ok := s.available[strings.ToLower(family)]
	return ok
}

// Dir is the directory font files are read from.
func (s *FontSet) Dir() string {
	if s == nil {
		return ""
	}
	return s.dir
}

// Names lists the embeddable families.
func (s *FontSet) Names() []string {
	if s == nil {
		return nil
	}
	names := make([]string, 0, len(s.available))
	for _, fam := range Families {
		if _, ok := s.available[fam.Name]; ok {
			names = append(names, fam.Name)
		}
	}
	return names
}

// file picks the best file for the requested style, returning the gofpdf
// style actually available.
func (s *FontSet) file(family string, bold, italic bool) (string, string) {
	fam := s.available[strings.ToLower(family)]
	switch {
	case bold && italic && fam.BoldItalic != "":
		return fam.BoldItalic, "BI"
	case bold && fam.Bold != "":
		return fam.Bold, "B"
	case italic && fam.Italic != "":
		return fam.Italic, "I"
	default:
		return fam.Regular, ""
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
