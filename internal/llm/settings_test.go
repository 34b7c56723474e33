package llm

import (
	"errors"
	"testing"
)

func TestSettingsValidate(t *testing.T) {
	valid := Settings{APIURL: "https://api.openai.com/v1", APIKey: "sk-test", Model: "gpt-4o-mini"}

	tests := []struct {
		name    string
		s       Settings
		wantErr bool
	}{
		{"valid", valid, false},
		{"missing url", Settings{APIKey: "k", Model: "m"}, true},
		{"blank key", Settings{APIURL: valid.APIURL, APIKey: "  ", Model: "m"}, true},
		{"missing model", Settings{APIURL: valid.APIURL, APIKey: "k"}, true},
		{"relative url", Settings{APIURL: "/v1", APIKey: "k", Model: "m"}, true},
		{"bad scheme", Settings{APIURL: "ftp://example.com", APIKey: "k", Model: "m"}, true},
		{"http localhost", Settings{APIURL: "http://localhost:11434/v1", APIKey: "ollama", Model: "qwen3"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.s.Validate()
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidSettings) {
					t.Errorf("Validate() = %v, want ErrInvalidSettings", err)
				}
				return
			}
			if err != nil {
				t.Errorf("Validate() = %v", err)
			}
		})
	}
}

func TestSettingsMerge(t *testing.T) {
	defaults := Settings{APIURL: "https://default/v1", APIKey: "default-key", Model: "default-model"}
	got := Settings{Model: "custom"}.Merge(defaults)
	want := Settings{APIURL: "https://default/v1", APIKey: "default-key", Model: "custom"}
	if got != want {
		t.Errorf("Merge() = %+v, want %+v", got, want)
	}
}

func TestSettingsMasked(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{"", ""},
		{"abc", "***"},
		{"sk-1234567890", "*********7890"},
	}
	for _, tt := range tests {
		got := Settings{APIKey: tt.key}.Masked().APIKey
		if got != tt.want {
			t.Errorf("Masked(%q) = %q, want %q", tt.key, got, tt.want)
		}
		if tt.key != "" && !IsMasked(got) {
			t.Errorf("IsMasked(%q) = false", got)
		}
	}
	if IsMasked("sk-live") {
		t.Error("IsMasked(sk-live) = true")
	}
}
