package engine

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf16"
)

//go:embed templates/dump.json
var dumpTemplate []byte

// DumpTemplate is the generic template used when a report has neither an
// override nor a default definition.
func DumpTemplate() string {
	return string(dumpTemplate)
}

// DumpData shapes arbitrary report data for DumpTemplate. The dump is ASCII
// only so it renders with core fonts.
func DumpData(reportName string, data interface{}) (map[string]interface{}, error) {
	encoded, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"report_name": reportName,
		"data_dump":   asciiJSON(string(encoded)),
	}, nil
}

func asciiJSON(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r < 0x80 {
			b.WriteRune(r)
			continue
		}
		if r > 0xFFFF {
			hi, lo := utf16.EncodeRune(r)
			fmt.Fprintf(&b, `\u%04x\u%04x`, hi, lo)
			continue
		}
		fmt.Fprintf(&b, `\u%04x`, r)
	}
	return b.String()
}
