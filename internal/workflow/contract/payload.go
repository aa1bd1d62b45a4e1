package contract

// Payload 目标载荷 Schema
var Payload = NewSchema("provider_payload", payloadDoc())

func payloadDoc() map[string]any {
	doc := obj([]string{"target_model", "prompt", "payload", "recommended_settings", "notes"}, map[string]any{
		"target_model":     map[string]any{"type": "string", "minLength": 1},
		"model_identifier": nullable("string"),
		"prompt":           map[string]any{"type": "string", "minLength": 1},
		"negative_prompt":  nullable("string"),
		"payload": map[string]any{
			"type":       "object",
			"required":   []string{"prompt"},
			"properties": map[string]any{"prompt": map[string]any{"type": "string", "minLength": 1}},
		},
		"recommended_settings": freeObject(),
		"control_assets":       freeObject(),
		"notes":                arrayOf(map[string]any{"type": "string"}),
	})
	doc["$schema"] = "http://json-schema.org/draft-07/schema#"
	doc["title"] = "ProviderPayload"
	return doc
}
