package engine

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// bindData builds the value tree the template is evaluated against. In test
// data mode every declared parameter takes its testData value instead.
func bindData(def *Definition, data map[string]interface{}, testData bool) map[string]interface{} {
	if !testData {
		if data == nil {
			return map[string]interface{}{}
		}
		return data
	}
	bound := make(map[string]interface{}, len(def.Parameters))
	for _, p := range def.Parameters {
		bound[p.Name] = testValue(p)
	}
	return bound
}

func testValue(p Parameter) interface{} {
	raw, isString := p.TestData.(string)
	switch p.Type {
	case ParamArray, ParamMap:
		if isString {
			var decoded interface{}
			if err := json.Unmarshal([]byte(raw), &decoded); err == nil {
				return decoded
			}
			return nil
		}
	case ParamNumber:
		if isString {
			if f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64); err == nil {
				return f
			}
		}
	case ParamBoolean:
		if isString {
			b, _ := strconv.ParseBool(strings.TrimSpace(raw))
			return b
		}
	}
	return p.TestData
}

// rows returns the records of an array parameter as maps.
func rows(v interface{}) []map[string]interface{} {
	list, ok := v.([]interface{})
	if !ok {
		if typed, ok := v.([]map[string]interface{}); ok {
			return typed
		}
		return nil
	}
	out := make([]map[string]interface{}, 0, len(list))
	for _, item := range list {
		if m, ok := item.(map[string]interface{}); ok {
			out = append(out, m)
		}
	}
	return out
}

// scope resolves ${name} references, looking in the current row first.
type scope struct {
	data       map[string]interface{}
	row        map[string]interface{}
	pageNumber int
	pageCount  string
}

func (s scope) lookup(expr string) (interface{}, bool) {
	parts := strings.Split(expr, ".")
	switch parts[0] {
	case paramPageNumber:
		return s.pageNumber, true
	case paramPageCount:
		return s.pageCount, true
	}

	var current interface{}
	var ok bool
	if s.row != nil {
		current, ok = s.row[parts[0]]
	}
	if !ok {
		current, ok = s.data[parts[0]]
	}
	if !ok {
		return nil, false
	}
	for _, part := range parts[1:] {
		m, isMap := current.(map[string]interface{})
		if !isMap {
			return nil, false
		}
		if current, ok = m[part]; !ok {
			return nil, false
		}
	}
	return current, true
}

func (s scope) expand(text string) string {
	return expressionPattern.ReplaceAllStringFunc(text, func(match string) string {
		expr := strings.TrimSpace(match[2 : len(match)-1])
		v, ok := s.lookup(expr)
		if !ok {
			return ""
		}
		return formatValue(v)
	})
}

// value returns the raw value when text is exactly one reference, for typed cells.
func (s scope) value(text string) (interface{}, bool) {
	name, ok := singleReference(text)
	if !ok {
		return nil, false
	}
	return s.lookup(name)
}

func formatValue(v interface{}) string {
	switch typed := v.(type) {
	case nil:
		return ""
	case string:
		return typed
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(typed), 'f', -1, 32)
	case int:
		return strconv.Itoa(typed)
	case int64:
		return strconv.FormatInt(typed, 10)
	case bool:
		return strconv.FormatBool(typed)
	case json.Number:
		return typed.String()
	case time.Time:
		return typed.Format("2006-01-02")
	case fmt.Stringer:
		return typed.String()
	default:
		encoded, err := json.Marshal(typed)
		if err != nil {
			return fmt.Sprint(typed)
		}
		return string(encoded)
	}
}
