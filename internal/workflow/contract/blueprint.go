package contract

// BlueprintSections 蓝图顶层分区，全部必填
var BlueprintSections = []string{
	"version", "intent", "prompt", "subjects", "environment", "composition", "lighting",
	"style", "color", "controls", "params", "post", "safety", "provider_overrides", "notes",
}

// Blueprint 提示词蓝图 Schema
var Blueprint = NewSchema("prompt_blueprint", blueprintDoc())

func blueprintDoc() map[string]any {
	str := nullable("string")
	num := nullable("number")
	integer := nullable("integer")
	strList := arrayOf(map[string]any{"type": "string"})

	subject := obj(nil, map[string]any{
		"role": str, "age": str, "body_attributes": str,
		"wardrobe": str, "pose": str, "mood": str,
	})

	doc := obj(BlueprintSections, map[string]any{
		"version": map[string]any{"type": "string", "minLength": 1},
		"intent":  str,
		"prompt": obj([]string{"primary"}, map[string]any{
			"primary":  map[string]any{"type": "string", "minLength": 1},
			"negative": str,
		}),
		"subjects":    arrayOf(subject),
		"environment": str,
		"composition": obj([]string{"camera"}, map[string]any{
			"camera": obj(nil, map[string]any{
				"angle": str, "lens": str, "framing": str, "depth_of_field": str,
			}),
			"shot":         str,
			"aspect_ratio": str,
		}),
		"lighting": str,
		"style": obj(nil, map[string]any{
			"keywords":       strList,
			"medium":         str,
			"aesthetic_bias": strList,
		}),
		"color": obj(nil, map[string]any{
			"palette":         str,
			"dominant_colors": strList,
		}),
		"controls": obj(nil, map[string]any{
			"image_prompts": arrayOf(obj([]string{"uri"}, map[string]any{
				"uri": map[string]any{"type": "string"}, "weight": num, "type": str,
			})),
			"control_nets": arrayOf(obj([]string{"type", "image_uri"}, map[string]any{
				"type":      map[string]any{"type": "string"},
				"image_uri": map[string]any{"type": "string"},
				"weight":    num, "start": num, "end": num,
			})),
			"loras": arrayOf(obj([]string{"name"}, map[string]any{
				"name": map[string]any{"type": "string"}, "weight": num,
			})),
		}),
		"params": obj(nil, map[string]any{
			"width": integer, "height": integer, "steps": integer,
			"guidance": num, "sampler": str, "seed": integer, "images": integer,
		}),
		"post": obj([]string{"upscale"}, map[string]any{
			"upscale":      obj(nil, map[string]any{"mode": str, "strength": num}),
			"face_restore": nullable("boolean"),
		}),
		"safety": obj([]string{"allow_nsfw"}, map[string]any{
			"allow_nsfw": map[string]any{"type": "boolean"},
		}),
		"provider_overrides": map[string]any{
			"type":                 "object",
			"additionalProperties": freeObject(),
		},
		"notes": str,
	})
	doc["$schema"] = "http://json-schema.org/draft-07/schema#"
	doc["title"] = "PromptBlueprint"
	return doc
}
