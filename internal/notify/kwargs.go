package notify

import (
	"encoding/json"
	"fmt"
)

// Kwargs is a layer of loosely typed options: call-site arguments, stored
// template defaults or a backend settings block.
type Kwargs map[string]any

// Merge overlays layers left to right; later layers win. The result is a
// fresh map and no input is modified.
func Merge(layers ...Kwargs) Kwargs {
	out := Kwargs{}
	for _, layer := range layers {
		for k, v := range layer {
			out[k] = v
		}
	}
	return out
}

// Decode fills the typed struct out from the kwargs using their JSON form.
func (k Kwargs) Decode(out any) error {
	raw, err := json.Marshal(k)
	if err != nil {
		return fmt.Errorf("encode kwargs: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode kwargs: %w", err)
	}
	return nil
}

// Without returns a copy of k minus the named keys.
func (k Kwargs) Without(keys ...string) Kwargs {
	out := Merge(k)
	for _, key := range keys {
		delete(out, key)
	}
	return out
}

// DecodeConfig merges a settings block under the construction kwargs and
// decodes the result into cfg. Decode failures are configuration errors.
func DecodeConfig(backendID string, settings, kwargs Kwargs, cfg any) error {
	if err := Merge(settings, kwargs).Decode(cfg); err != nil {
		return &ConfigurationError{Backend: backendID, Key: "kwargs", Err: err}
	}
	return nil
}

// Options are the construction options every backend understands.
type Options struct {
	FailSilently bool `json:"fail_silently"`
}
