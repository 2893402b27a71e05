package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Backends holds one settings block per backend id. A block is merged
// under the construction kwargs of every instance of that backend.
type Backends map[string]map[string]any

// LoadBackends reads backend settings from a YAML file of the form
//
//	email:
//	  from: noreply@example.com
//	dingtalkchatbot:
//	  webhook: https://oapi.dingtalk.com/robot/send?access_token=...
//
// An empty path yields no settings.
func LoadBackends(path string) (Backends, error) {
	if path == "" {
		return Backends{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read settings file: %w", err)
	}

	var out Backends
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to parse settings file: %w", err)
	}
	if out == nil {
		out = Backends{}
	}
	return out, nil
}

// BuiltinDefaults are the settings every deployment starts from.
func BuiltinDefaults() Backends {
	return Backends{
		"dummy":     {"fail_silently": false},
		"email":     {"fail_silently": false},
		"websocket": {"fail_silently": false, "group_prefix": "notify-"},
		"sms":       {"fail_silently": false},
	}
}

// MergeDefaults overlays user blocks on builtin key by key. Neither input
// is modified.
func MergeDefaults(user, builtin Backends) Backends {
	out := make(Backends, len(builtin)+len(user))
	for id, block := range builtin {
		out[id] = copyBlock(block)
	}
	for id, block := range user {
		merged := out[id]
		if merged == nil {
			merged = make(map[string]any, len(block))
		}
		for k, v := range block {
			merged[k] = v
		}
		out[id] = merged
	}
	return out
}

func copyBlock(block map[string]any) map[string]any {
	out := make(map[string]any, len(block))
	for k, v := range block {
		out[k] = v
	}
	return out
}
