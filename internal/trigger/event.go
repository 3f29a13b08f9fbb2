package trigger

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/tendant/odm-dispatcher/pkg/schema"
)

const blobCreatedSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["name"],
  "properties": {
    "id":          {"type": "string"},
    "container":   {"type": "string"},
    "name":        {"type": "string", "minLength": 1},
    "size":        {"type": "integer", "minimum": 0},
    "data":        {"type": "string", "contentEncoding": "base64"},
    "happened_at": {"type": "integer"}
  }
}`

var blobCreated = jsonschema.MustCompileString("blob_created.json", blobCreatedSchema)

// DecodeBlobCreated validates and decodes a trigger payload.
func DecodeBlobCreated(data []byte) (schema.BlobCreated, error) {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return schema.BlobCreated{}, fmt.Errorf("decode event: %w", err)
	}
	if err := blobCreated.Validate(raw); err != nil {
		return schema.BlobCreated{}, fmt.Errorf("invalid event: %w", err)
	}

	var evt schema.BlobCreated
	if err := json.Unmarshal(data, &evt); err != nil {
		return schema.BlobCreated{}, fmt.Errorf("decode event: %w", err)
	}
	if strings.TrimSpace(evt.Name) == "" {
		return schema.BlobCreated{}, fmt.Errorf("invalid event: blank name")
	}
	return evt, nil
}
