package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/invopop/jsonschema"
)

// ErrSchemaViolation marks a model response that does not satisfy the
// structured-output contract. Retryable: models occasionally emit prose.
var ErrSchemaViolation = errors.New("llm response violates output schema")

// StructuredReply is the JSON contract every model call must satisfy. The
// boolean flags are the only signals the guided-retry path reads; message
// text is never pattern-matched.
type StructuredReply struct {
	Message       string `json:"message" jsonschema:"required,description=Reply to show the user"`
	Intent        string `json:"intent,omitempty" jsonschema:"description=Detected intent label"`
	LowConfidence bool   `json:"low_confidence" jsonschema:"description=True when the model is unsure of the answer"`
	Fallback      bool   `json:"fallback" jsonschema:"description=True when the model could not answer the question"`
}

// NeedsGuidance reports whether the reply warrants a guided retry. Driven
// exclusively by structured flags and an empty-message check.
func (r StructuredReply) NeedsGuidance() bool {
	return r.LowConfidence || r.Fallback || strings.TrimSpace(r.Message) == ""
}

// replySchemaJSON is the reflected schema sent as the response_format
// contract on every structured call.
var replySchemaJSON = func() json.RawMessage {
	reflector := jsonschema.Reflector{DoNotReference: true, ExpandedStruct: true}
	b, err := json.Marshal(reflector.Reflect(&StructuredReply{}))
	if err != nil {
		panic(fmt.Sprintf("reflect reply schema: %v", err))
	}
	return b
}()

// ParseStructuredReply decodes the model's message content against the
// contract. Unknown fields are tolerated; malformed JSON or wrong types are
// schema violations.
func ParseStructuredReply(content string) (StructuredReply, error) {
	var out StructuredReply
	if err := json.Unmarshal([]byte(content), &out); err != nil {
		return StructuredReply{}, fmt.Errorf("%w: %v", ErrSchemaViolation, err)
	}
	return out, nil
}
