package engine

import (
	"bytes"
	"encoding/json"
	"errors"

	appErrors "github.com/noah-isme/report-api/pkg/errors"
)

// Element types understood by the engine.
const (
	ElementText      = "text"
	ElementLine      = "line"
	ElementTable     = "table"
	ElementPageBreak = "page_break"
)

// Parameter types.
const (
	ParamString  = "string"
	ParamNumber  = "number"
	ParamBoolean = "boolean"
	ParamDate    = "date"
	ParamArray   = "array"
	ParamMap     = "map"
)

// Definition is a report template as produced by the designer.
type Definition struct {
	Version            int                `json:"version,omitempty"`
	DocumentProperties DocumentProperties `json:"documentProperties"`
	Parameters         []Parameter        `json:"parameters"`
	DocElements        []DocElement       `json:"docElements"`
	Styles             []Style            `json:"styles,omitempty"`
}

// DocumentProperties describe page geometry. Lengths are points.
type DocumentProperties struct {
	PageFormat   string  `json:"pageFormat"`
	Orientation  string  `json:"orientation"`
	MarginLeft   float64 `json:"marginLeft"`
	MarginTop    float64 `json:"marginTop"`
	MarginRight  float64 `json:"marginRight"`
	MarginBottom float64 `json:"marginBottom"`
}

// Parameter declares a value the template may reference with ${name}.
type Parameter struct {
	Name     string      `json:"name"`
	Type     string      `json:"type"`
	TestData interface{} `json:"testData,omitempty"`
	Children []Parameter `json:"children,omitempty"`
}

// DocElement is a positioned element on the page.
type DocElement struct {
	ID                  int      `json:"id"`
	ElementType         string   `json:"elementType"`
	X                   float64  `json:"x"`
	Y                   float64  `json:"y"`
	Width               float64  `json:"width"`
	Height              float64  `json:"height"`
	Content             string   `json:"content,omitempty"`
	Font                string   `json:"font,omitempty"`
	FontSize            float64  `json:"fontSize,omitempty"`
	Bold                bool     `json:"bold,omitempty"`
	Italic              bool     `json:"italic,omitempty"`
	HorizontalAlignment string   `json:"horizontalAlignment,omitempty"`
	StyleID             int      `json:"styleId,omitempty"`
	DataSource          string   `json:"dataSource,omitempty"`
	Columns             []Column `json:"columns,omitempty"`
}

// Column is a table column bound to a field of the table's data source rows.
type Column struct {
	Header  string  `json:"header"`
	Content string  `json:"content"`
	Width   float64 `json:"width"`
}

// Style holds shared text settings referenced by elements.
type Style struct {
	ID       int     `json:"id"`
	Name     string  `json:"name"`
	Font     string  `json:"font,omitempty"`
	FontSize float64 `json:"fontSize,omitempty"`
	Bold     bool    `json:"bold,omitempty"`
	Italic   bool    `json:"italic,omitempty"`
}

// Parse decodes a definition document. Malformed input fails with an
// INVALID_DEFINITION error wrapping the decoder's message.
func Parse(raw []byte) (*Definition, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, invalidDefinition(errors.New("definition is empty"))
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal(raw, &top); err != nil {
		return nil, invalidDefinition(err)
	}
	if _, ok := top["docElements"]; !ok {
		return nil, invalidDefinition(errors.New("docElements missing"))
	}

	var def Definition
	if err := json.Unmarshal(raw, &def); err != nil {
		return nil, invalidDefinition(err)
	}
	def.applyDefaults()
	return &def, nil
}

// ParseValue accepts either definition text or an already decoded JSON object.
func ParseValue(v interface{}) (*Definition, error) {
	switch typed := v.(type) {
	case nil:
		return nil, invalidDefinition(errors.New("definition is empty"))
	case string:
		return Parse([]byte(typed))
	case []byte:
		return Parse(typed)
	case json.RawMessage:
		return Parse(typed)
	case *Definition:
		return typed, nil
	default:
		raw, err := json.Marshal(typed)
		if err != nil {
			return nil, invalidDefinition(err)
		}
		return Parse(raw)
	}
}

func (d *Definition) applyDefaults() {
	p := &d.DocumentProperties
	if p.PageFormat == "" {
		p.PageFormat = "A4"
	}
	if p.Orientation == "" {
		p.Orientation = "portrait"
	}
	for _, m := range []*float64{&p.MarginLeft, &p.MarginTop, &p.MarginRight, &p.MarginBottom} {
		if *m <= 0 {
			*m = 20
		}
	}
	for i := range d.DocElements {
		el := &d.DocElements[i]
		if style := d.style(el.StyleID); style != nil {
			if el.Font == "" {
				el.Font = style.Font
			}
			if el.FontSize == 0 {
				el.FontSize = style.FontSize
			}
			el.Bold = el.Bold || style.Bold
			el.Italic = el.Italic || style.Italic
		}
		if el.FontSize <= 0 {
			el.FontSize = 12
		}
	}
}

func (d *Definition) style(id int) *Style {
	if id == 0 {
		return nil
	}
	for i := range d.Styles {
		if d.Styles[i].ID == id {
			return &d.Styles[i]
		}
	}
	return nil
}

func (d *Definition) parameter(name string) *Parameter {
	for i := range d.Parameters {
		if d.Parameters[i].Name == name {
			return &d.Parameters[i]
		}
	}
	return nil
}

func invalidDefinition(err error) error {
	return appErrors.Wrap(err, appErrors.ErrInvalidDefinition.Code, appErrors.ErrInvalidDefinition.Status, appErrors.ErrInvalidDefinition.Message)
}
