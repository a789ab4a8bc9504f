package schemas

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed farm-input-schema.json
var schemaBytes []byte

var schemaValidator *gojsonschema.Schema

func init() {
	loader := gojsonschema.NewBytesLoader(schemaBytes)
	var err error
	schemaValidator, err = gojsonschema.NewSchema(loader)
	if err != nil {
		panic(fmt.Sprintf("failed to load schema: %v", err))
	}
}

// ValidateFarmInput validates a JSON create-farm request against the embedded schema.
func ValidateFarmInput(data []byte) error {
	documentLoader := gojsonschema.NewBytesLoader(data)
	result, err := schemaValidator.Validate(documentLoader)
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}

	if result.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		msgs = append(msgs, desc.String())
	}
	return &ValidationError{Field: "farm", Message: "schema validation failed: " + strings.Join(msgs, "; ")}
}
