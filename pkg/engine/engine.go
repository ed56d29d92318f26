// Package engine turns report definitions and data into PDF or XLSX documents.
package engine

import (
	"fmt"
	"io"
	"strings"

	appErrors "github.com/noah-isme/report-api/pkg/errors"
)

// Output formats.
const (
	FormatPDF  = "pdf"
	FormatXLSX = "xlsx"
)

// Encode error policies for text the selected font cannot represent.
const (
	EncodeStrict  = "strict"
	EncodeReplace = "replace"
)

// Options configure a single render.
type Options struct {
	Fonts        *FontSet
	EncodeErrors string
	IsTestData   bool
}

// Report is a definition bound to data, ready to generate.
type Report struct {
	def  *Definition
	data map[string]interface{}
	opts Options
	errs []ValidationError
}

// New binds data to def and validates the definition. Problems are collected
// and exposed through Errors rather than returned.
func New(def *Definition, data map[string]interface{}, opts Options) *Report {
	if opts.EncodeErrors != EncodeReplace {
		opts.EncodeErrors = EncodeStrict
	}
	r := &Report{def: def, opts: opts}
	r.validate()
	r.data = bindData(def, data, opts.IsTestData)
	return r
}

// Errors returns every validation problem found, in definition order.
func (r *Report) Errors() []ValidationError {
	return r.errs
}

// Generate writes the document in format to sink.
func (r *Report) Generate(format string, sink io.Writer) (err error) {
	var gen func(io.Writer) error
	switch strings.ToLower(format) {
	case FormatPDF:
		gen = r.generatePDF
	case FormatXLSX:
		gen = r.generateXLSX
	default:
		return appErrors.Clone(appErrors.ErrUnsupportedFormat, fmt.Sprintf("%s: %s", appErrors.ErrUnsupportedFormat.Message, format))
	}

	defer func() {
		if rec := recover(); rec != nil {
			err = renderFailure(fmt.Errorf("%v", rec))
		}
	}()
	if err := gen(sink); err != nil {
		return renderFailure(err)
	}
	return nil
}

// Render is the single entry point used by callers: validate, then generate.
// Only the first validation error is reported.
func Render(def *Definition, data map[string]interface{}, format string, opts Options, sink io.Writer) error {
	r := New(def, data, opts)
	if errs := r.Errors(); len(errs) > 0 {
		return appErrors.Wrap(errs[0], appErrors.ErrDefinitionValidation.Code, appErrors.ErrDefinitionValidation.Status, errs[0].Error())
	}
	return r.Generate(format, sink)
}

// ContentType returns the MIME type for format.
func ContentType(format string) string {
	switch strings.ToLower(format) {
	case FormatPDF:
		return "application/pdf"
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "application/octet-stream"
	}
}

// SupportedFormat reports whether format can be generated.
func SupportedFormat(format string) bool {
	switch format {
	case FormatPDF, FormatXLSX:
		return true
	}
	return false
}

func renderFailure(err error) error {
	return appErrors.Wrap(err, appErrors.ErrRenderFailure.Code, appErrors.ErrRenderFailure.Status, appErrors.ErrRenderFailure.Message)
}
