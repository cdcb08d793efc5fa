package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExpandEnv(t *testing.T) {
	tests := []struct {
		name  string
		input string
		env   map[string]string
		want  string
	}{
		{
			name:  "simple substitution with {{.VAR}}",
			input: "cache_url: {{.CACHE_URL}}",
			env:   map[string]string{"CACHE_URL": "redis://localhost:6379/0"},
			want:  "cache_url: redis://localhost:6379/0",
		},
		{
			name:  "literal ${VAR} is NOT expanded",
			input: "secret_env: ${WEBHOOK_SECRET}",
			env:   map[string]string{"WEBHOOK_SECRET": "abc"},
			want:  "secret_env: ${WEBHOOK_SECRET}",
		},
		{
			name:  "multiple substitutions in one line",
			input: "api_base_url: {{.PROTOCOL}}://{{.HOST}}:{{.PORT}}",
			env: map[string]string{
				"PROTOCOL": "https",
				"HOST":     "api.example.com",
				"PORT":     "443",
			},
			want: "api_base_url: https://api.example.com:443",
		},
		{
			name:  "missing variable expands to empty",
			input: "endpoint: {{.MISSING_VAR}}",
			env:   map[string]string{},
			want:  "endpoint: ",
		},
		{
			name:  "literal dollar preserved",
			input: "password: p@ss$word",
			env:   map[string]string{},
			want:  "password: p@ss$word",
		},
		{
			name:  "variables in YAML array",
			input: "urls:\n  - {{.HOOK_A}}\n  - {{.HOOK_B}}",
			env: map[string]string{
				"HOOK_A": "https://a.example.com/hook",
				"HOOK_B": "https://b.example.com/hook",
			},
			want: "urls:\n  - https://a.example.com/hook\n  - https://b.example.com/hook",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			result := ExpandEnv([]byte(tt.input))
			assert.Equal(t, tt.want, string(result))
		})
	}
}

func TestExpandEnvMalformedTemplatePassesThrough(t *testing.T) {
	t.Setenv("API_KEY", "should-not-appear")

	tests := []string{
		"api_key: {{.API_KEY",
		"api_key: {{",
		"api_key: }}.API_KEY{{",
		"api_key: {{.API KEY}}",
	}

	for _, input := range tests {
		result := ExpandEnv([]byte(input))
		assert.Equal(t, input, string(result), "malformed template should pass through unchanged")
		assert.NotContains(t, string(result), "should-not-appear")
	}
}

func TestExpandEnvWithEmptyInput(t *testing.T) {
	result := ExpandEnv([]byte(""))
	assert.Equal(t, "", string(result))
}
