package dto

// PreviewPayload is the designer's render request.
type PreviewPayload struct {
	OutputFormat string                 `json:"outputFormat" validate:"required,oneof=pdf xlsx"`
	Report       map[string]interface{} `json:"report" validate:"required"`
	Data         map[string]interface{} `json:"data" validate:"required"`
	IsTestData   bool                   `json:"isTestData"`
}

// PreviewErrors is returned instead of a handle when rendering fails.
type PreviewErrors struct {
	Errors []interface{} `json:"errors"`
}
