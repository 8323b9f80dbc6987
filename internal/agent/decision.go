package agent

import (
	"encoding/json"
	"reflect"

	invopop "github.com/invopop/jsonschema"

	"github.com/ntegrals/openbrowser-sub001/internal/catalog"
	"github.com/ntegrals/openbrowser-sub001/internal/history"
)

// Decision is the model's per-step output (spec §4.5 step 4): a
// self-reported state plus an ordered batch of actions, generalizing the
// teacher's single action/input Decision into a tagged-variant slice.
type Decision struct {
	CurrentState history.CurrentState `json:"currentState"`
	Actions      []catalog.Command    `json:"actions"`
}

var decisionReflector = &invopop.Reflector{ExpandedStruct: true, DoNotReference: true}

var decisionSchemaDoc map[string]any

// decisionResponseSchema lazily builds and caches the JSON Schema document
// describing Decision, the shape passed as model.InvokeRequest.ResponseSchema.
func decisionResponseSchema() map[string]any {
	if decisionSchemaDoc != nil {
		return decisionSchemaDoc
	}
	schema := decisionReflector.ReflectFromType(reflect.TypeOf(Decision{}))
	raw, err := json.Marshal(schema)
	if err != nil {
		return nil
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil
	}
	decisionSchemaDoc = doc
	return doc
}
