package notify

import (
	"errors"
	"testing"
)

func TestMerge_LaterLayersWin(t *testing.T) {
	settings := Kwargs{"webhook": "https://a", "secret": "s"}
	stored := Kwargs{"webhook": "https://b"}
	call := Kwargs{"fail_silently": true}

	got := Merge(settings, stored, call)

	if got["webhook"] != "https://b" {
		t.Errorf("webhook = %v, want https://b", got["webhook"])
	}
	if got["secret"] != "s" || got["fail_silently"] != true {
		t.Errorf("unexpected merge result: %v", got)
	}
	if settings["webhook"] != "https://a" {
		t.Error("Merge modified an input layer")
	}
}

func TestMerge_NilLayers(t *testing.T) {
	got := Merge(nil, Kwargs{"a": 1}, nil)
	if len(got) != 1 {
		t.Errorf("got %v", got)
	}
}

func TestDecodeConfig(t *testing.T) {
	var cfg struct {
		Options
		AgentID int    `json:"agent_id"`
		AppKey  string `json:"app_key"`
	}

	err := DecodeConfig("dingtalkworkmessage",
		Kwargs{"agent_id": 1, "app_key": "k"},
		Kwargs{"agent_id": 2, "fail_silently": true},
		&cfg,
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.AgentID != 2 || cfg.AppKey != "k" || !cfg.FailSilently {
		t.Errorf("unexpected config: %+v", cfg)
	}
}

func TestDecodeConfig_TypeMismatch(t *testing.T) {
	var cfg struct {
		AgentID int `json:"agent_id"`
	}

	err := DecodeConfig("dingtalkworkmessage", nil, Kwargs{"agent_id": "not-a-number"}, &cfg)

	var cErr *ConfigurationError
	if !errors.As(err, &cErr) {
		t.Fatalf("expected *ConfigurationError, got %v", err)
	}
}

func TestKwargs_Without(t *testing.T) {
	k := Kwargs{"a": 1, "b": 2}
	got := k.Without("a")
	if _, ok := got["a"]; ok {
		t.Error("key a should be removed")
	}
	if _, ok := k["a"]; !ok {
		t.Error("Without modified the receiver")
	}
}
