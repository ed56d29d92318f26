package engine

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/jung-kurt/gofpdf"
	"golang.org/x/text/encoding/charmap"
)

const lineSpacing = 1.2

type pdfWriter struct {
	r          *Report
	pdf        *gofpdf.Fpdf
	props      DocumentProperties
	pageBottom float64
	registered map[string]struct{}
	err        error
}

func (r *Report) generatePDF(sink io.Writer) error {
	props := r.def.DocumentProperties
	orientation := "P"
	if props.Orientation == "landscape" {
		orientation = "L"
	}
	pdf := gofpdf.New(orientation, "pt", pageFormats[strings.ToLower(props.PageFormat)], r.opts.Fonts.Dir())
	pdf.SetMargins(props.MarginLeft, props.MarginTop, props.MarginRight)
	pdf.SetAutoPageBreak(false, props.MarginBottom)
	pdf.AliasNbPages("{nb}")
	pdf.AddPage()

	_, pageHeight := pdf.GetPageSize()
	w := &pdfWriter{
		r:          r,
		pdf:        pdf,
		props:      props,
		pageBottom: pageHeight - props.MarginBottom,
		registered: make(map[string]struct{}),
	}
	w.layout(sortedElements(r.def.DocElements))
	if w.err != nil {
		return w.err
	}

	if err := pdf.Output(sink); err != nil {
		return fmt.Errorf("render pdf: %w", err)
	}
	return nil
}

// layout places elements top to bottom. Elements keep their distance to the
// element above; content that grows pushes everything below it down.
func (w *pdfWriter) layout(elements []DocElement) {
	offset := w.props.MarginTop
	for _, el := range elements {
		if w.err != nil {
			return
		}
		if el.ElementType == ElementPageBreak {
			w.pdf.AddPage()
			offset = w.props.MarginTop - el.Y
			continue
		}

		y := el.Y + offset
		if y+el.Height > w.pageBottom && y > w.props.MarginTop {
			w.pdf.AddPage()
			offset = w.props.MarginTop - el.Y
			y = w.props.MarginTop
		}

		page := w.pdf.PageNo()
		x := w.props.MarginLeft + el.X
		var bottom float64
		switch el.ElementType {
		case ElementText:
			bottom = w.text(el, x, y)
		case ElementLine:
			bottom = w.line(el, x, y)
		case ElementTable:
			bottom = w.table(el, x, y)
		}

		expected := el.Y + offset + el.Height
		if w.pdf.PageNo() != page || bottom > expected {
			offset = bottom - el.Y - el.Height
		}
		if err := w.pdf.Error(); err != nil && w.err == nil {
			w.err = err
		}
	}
}

func (w *pdfWriter) text(el DocElement, x, y float64) float64 {
	core := w.setFont(el.Font, el.Bold, el.Italic, el.FontSize)
	s := w.scope(nil)
	content := w.encode(s.expand(el.Content), core)

	w.pdf.SetAutoPageBreak(true, w.props.MarginBottom)
	defer w.pdf.SetAutoPageBreak(false, w.props.MarginBottom)

	w.pdf.SetXY(x, y)
	w.pdf.MultiCell(el.Width, el.FontSize*lineSpacing, content, "", alignment(el.HorizontalAlignment), false)
	return maxFloat(w.pdf.GetY(), y+el.Height)
}

func (w *pdfWriter) line(el DocElement, x, y float64) float64 {
	thickness := el.Height
	if thickness <= 0 {
		thickness = 1
	}
	w.pdf.SetLineWidth(thickness)
	w.pdf.Line(x, y+thickness/2, x+el.Width, y+thickness/2)
	return y + thickness
}

func (w *pdfWriter) table(el DocElement, x, y float64) float64 {
	source, _ := singleReference(el.DataSource)
	records := rows(w.r.data[source])
	rowHeight := el.FontSize * lineSpacing * 1.4
	widths := columnWidths(el)

	header := func() {
		core := w.setFont(el.Font, true, el.Italic, el.FontSize)
		w.pdf.SetX(x)
		s := w.scope(nil)
		for i, col := range el.Columns {
			w.pdf.CellFormat(widths[i], rowHeight, w.encode(s.expand(col.Header), core), "1", 0, "C", false, 0, "")
		}
		w.pdf.Ln(-1)
	}

	w.pdf.SetXY(x, y)
	header()
	for _, record := range records {
		if w.err != nil {
			break
		}
		if w.pdf.GetY()+rowHeight > w.pageBottom {
			w.pdf.AddPage()
			w.pdf.SetY(w.props.MarginTop)
			header()
		}
		core := w.setFont(el.Font, el.Bold, el.Italic, el.FontSize)
		w.pdf.SetX(x)
		s := w.scope(record)
		for i, col := range el.Columns {
			w.pdf.CellFormat(widths[i], rowHeight, w.encode(s.expand(col.Content), core), "1", 0, "", false, 0, "")
		}
		w.pdf.Ln(-1)
	}
	return w.pdf.GetY()
}

// setFont selects a core or embedded font and reports whether it is a core font.
func (w *pdfWriter) setFont(family string, bold, italic bool, size float64) bool {
	if family == "" {
		family = defaultFont
	}
	key := strings.ToLower(family)
	if name, ok := coreFonts[key]; ok {
		w.pdf.SetFont(name, style(bold, italic), size)
		return true
	}

	file, st := w.r.opts.Fonts.file(key, bold, italic)
	id := key + "/" + st
	if _, ok := w.registered[id]; !ok {
		w.pdf.AddUTF8Font(key, st, file)
		w.registered[id] = struct{}{}
	}
	w.pdf.SetFont(key, st, size)
	return false
}

// encode converts text for core fonts, which only cover cp1252.
func (w *pdfWriter) encode(text string, core bool) string {
	if !core {
		return text
	}
	var b strings.Builder
	for _, r := range text {
		if c, ok := charmap.Windows1252.EncodeRune(r); ok {
			b.WriteByte(c)
			continue
		}
		if w.r.opts.EncodeErrors == EncodeReplace {
			b.WriteByte('?')
			continue
		}
		if w.err == nil {
			w.err = fmt.Errorf("character %q cannot be encoded with a core font", r)
		}
		return ""
	}
	return b.String()
}

func (w *pdfWriter) scope(row map[string]interface{}) scope {
	return scope{data: w.r.data, row: row, pageNumber: w.pdf.PageNo(), pageCount: "{nb}"}
}

func sortedElements(elements []DocElement) []DocElement {
	sorted := make([]DocElement, len(elements))
	copy(sorted, elements)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Y < sorted[j].Y })
	return sorted
}

func columnWidths(el DocElement) []float64 {
	widths := make([]float64, len(el.Columns))
	fixed, flexible := 0.0, 0
	for i, col := range el.Columns {
		widths[i] = col.Width
		if col.Width > 0 {
			fixed += col.Width
		} else {
			flexible++
		}
	}
	if flexible > 0 {
		share := (el.Width - fixed) / float64(flexible)
		if share <= 0 {
			share = 40
		}
		for i := range widths {
			if widths[i] <= 0 {
				widths[i] = share
			}
		}
	}
	return widths
}

func style(bold, italic bool) string {
	s := ""
	if bold {
		s += "B"
	}
	if italic {
		s += "I"
	}
	return s
}

func alignment(a string) string {
	switch a {
	case "center":
		return "C"
	case "right":
		return "R"
	case "justify":
		return "J"
	default:
		return "L"
	}
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
