package node

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractLargestJSONObject(t *testing.T) {
	tests := []struct {
		name   string
		in     string
		want   string
		wantOK bool
	}{
		{"bare object", `{"a":1}`, `{"a":1}`, true},
		{"prose around", `Sure! Here it is: {"a":{"b":2}} hope that helps`, `{"a":{"b":2}}`, true},
		{"picks largest", `{"x":1} and then {"y":{"z":[1,2,3]},"w":"long"}`, `{"y":{"z":[1,2,3]},"w":"long"}`, true},
		{"braces inside strings", `note {"text":"a } tricky { value","n":1}`, `{"text":"a } tricky { value","n":1}`, true},
		{"escaped quote", `{"q":"he said \"hi\" }"}`, `{"q":"he said \"hi\" }"}`, true},
		{"fenced block", "```json\n{\"k\": true}\n```", `{"k": true}`, true},
		{"truncated", `{"a": {"b": 1}`, `{"b": 1}`, true},
		{"no object", `just prose`, "", false},
		{"array only", `[1,2,3]`, "", false},
		{"empty", "   ", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractLargestJSONObject(tt.in)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractLargestJSONObject_OversizedInput(t *testing.T) {
	noise := strings.Repeat("{", MaxScanBytes)

	_, ok := ExtractLargestJSONObject(noise + `{"a":1}`)
	assert.False(t, ok)

	got, ok := ExtractLargestJSONObject(noise + "\n```json\n{\"a\":1}\n```")
	assert.True(t, ok)
	assert.Equal(t, `{"a":1}`, got)
}
