package engine

import (
	"fmt"
	"regexp"
	"strings"
)

// Built-in parameters every template may reference.
const (
	paramPageNumber = "page_number"
	paramPageCount  = "page_count"
)

var expressionPattern = regexp.MustCompile(`\$\{([^}]*)\}`)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)*$`)

var pageFormats = map[string]string{
	"a3":     "A3",
	"a4":     "A4",
	"a5":     "A5",
	"letter": "Letter",
	"legal":  "Legal",
}

// ValidationError is a structural problem found in a definition. The JSON
// shape is what the designer expects in preview error lists.
type ValidationError struct {
	ObjectID int    `json:"object_id"`
	Field    string `json:"field"`
	MsgKey   string `json:"msg_key"`
	Info     string `json:"info,omitempty"`
}

func (e ValidationError) Error() string {
	var b strings.Builder
	if e.ObjectID > 0 {
		fmt.Fprintf(&b, "element %d: ", e.ObjectID)
	}
	b.WriteString(e.Field)
	b.WriteString(": ")
	b.WriteString(e.MsgKey)
	if e.Info != "" {
		b.WriteString(" (")
		b.WriteString(e.Info)
		b.WriteString(")")
	}
	return b.String()
}

func (r *Report) validate() {
	def := r.def
	if _, ok := pageFormats[strings.ToLower(def.DocumentProperties.PageFormat)]; !ok {
		r.addError(0, "pageFormat", "errorMsgInvalidPageFormat", def.DocumentProperties.PageFormat)
	}
	switch def.DocumentProperties.Orientation {
	case "portrait", "landscape":
	default:
		r.addError(0, "orientation", "errorMsgInvalidOrientation", def.DocumentProperties.Orientation)
	}

	seen := make(map[string]struct{}, len(def.Parameters))
	for _, p := range def.Parameters {
		r.validateParameter(p, seen)
	}

	for _, el := range def.DocElements {
		switch el.ElementType {
		case ElementText:
			r.validateExpressions(el.ID, "content", el.Content, nil)
			r.validateFont(el)
		case ElementTable:
			r.validateTable(el)
		case ElementLine, ElementPageBreak:
		default:
			r.addError(el.ID, "elementType", "errorMsgUnsupportedElement", el.ElementType)
		}
	}
}

func (r *Report) validateParameter(p Parameter, seen map[string]struct{}) {
	if !identifierPattern.MatchString(p.Name) || strings.Contains(p.Name, ".") {
		r.addError(0, "parameters", "errorMsgInvalidParameterName", p.Name)
		return
	}
	if _, dup := seen[p.Name]; dup {
		r.addError(0, "parameters", "errorMsgDuplicateParameter", p.Name)
		return
	}
	seen[p.Name] = struct{}{}

	switch p.Type {
	case ParamString, ParamNumber, ParamBoolean, ParamDate, ParamMap:
	case ParamArray:
		children := make(map[string]struct{}, len(p.Children))
		for _, child := range p.Children {
			r.validateParameter(child, children)
		}
	default:
		r.addError(0, "parameters", "errorMsgInvalidParameterType", p.Name+":"+p.Type)
	}
}

func (r *Report) validateTable(el DocElement) {
	r.validateFont(el)
	source, ok := singleReference(el.DataSource)
	if !ok {
		r.addError(el.ID, "dataSource", "errorMsgInvalidDataSource", el.DataSource)
		return
	}
	param := r.def.parameter(source)
	if param == nil || param.Type != ParamArray {
		r.addError(el.ID, "dataSource", "errorMsgInvalidDataSourceParameter", source)
		return
	}
	if len(el.Columns) == 0 {
		r.addError(el.ID, "columns", "errorMsgMissingColumns", "")
		return
	}
	for _, col := range el.Columns {
		r.validateExpressions(el.ID, "columns", col.Header, nil)
		r.validateExpressions(el.ID, "columns", col.Content, param)
	}
}

func (r *Report) validateExpressions(id int, field, text string, row *Parameter) {
	for _, match := range expressionPattern.FindAllStringSubmatch(text, -1) {
		expr := strings.TrimSpace(match[1])
		if !identifierPattern.MatchString(expr) {
			r.addError(id, field, "errorMsgInvalidExpression", expr)
			continue
		}
		root := strings.SplitN(expr, ".", 2)[0]
		if root == paramPageNumber || root == paramPageCount {
			continue
		}
		if row != nil && hasChild(row, root) {
			continue
		}
		if r.def.parameter(root) == nil {
			r.addError(id, field, "errorMsgMissingParameter", root)
		}
	}
}

func (r *Report) validateFont(el DocElement) {
	if el.Font == "" || isCoreFont(el.Font) {
		return
	}
	if !r.opts.Fonts.Has(el.Font) {
		r.addError(el.ID, "font", "errorMsgInvalidFont", el.Font)
	}
}

func (r *Report) addError(id int, field, key, info string) {
	r.errs = append(r.errs, ValidationError{ObjectID: id, Field: field, MsgKey: key, Info: info})
}

func hasChild(p *Parameter, name string) bool {
	for _, c := range p.Children {
		if c.Name == name {
			return true
		}
	}
	return false
}

// singleReference extracts name from a source written as ${name}.
func singleReference(source string) (string, bool) {
	source = strings.TrimSpace(source)
	m := expressionPattern.FindStringSubmatch(source)
	if m == nil || m[0] != source {
		return "", false
	}
	name := strings.TrimSpace(m[1])
	if !identifierPattern.MatchString(name) || strings.Contains(name, ".") {
		return "", false
	}
	return name, true
}
