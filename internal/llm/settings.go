package llm

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrInvalidSettings is returned by Settings.Validate.
var ErrInvalidSettings = errors.New("invalid settings")

// Settings is the user-supplied connection configuration for an
// OpenAI-compatible endpoint.
type Settings struct {
	APIURL string `json:"apiUrl" mapstructure:"url"`
	APIKey string `json:"apiKey" mapstructure:"key"`
	Model  string `json:"model" mapstructure:"model"`
}

// Validate requires every field to be non-empty and the URL to be absolute http(s).
func (s Settings) Validate() error {
	var missing []string
	if strings.TrimSpace(s.APIURL) == "" {
		missing = append(missing, "apiUrl")
	}
	if strings.TrimSpace(s.APIKey) == "" {
		missing = append(missing, "apiKey")
	}
	if strings.TrimSpace(s.Model) == "" {
		missing = append(missing, "model")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidSettings, strings.Join(missing, ", "))
	}

	u, err := url.Parse(s.APIURL)
	if err != nil {
		return fmt.Errorf("%w: apiUrl: %v", ErrInvalidSettings, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: apiUrl must be an absolute http(s) URL", ErrInvalidSettings)
	}
	return nil
}

// Merge returns s with empty fields taken from defaults.
func (s Settings) Merge(defaults Settings) Settings {
	if strings.TrimSpace(s.APIURL) == "" {
		s.APIURL = defaults.APIURL
	}
	if strings.TrimSpace(s.APIKey) == "" {
		s.APIKey = defaults.APIKey
	}
	if strings.TrimSpace(s.Model) == "" {
		s.Model = defaults.Model
	}
	return s
}

// Masked returns a copy safe to show to a client: the key keeps only its last
// four characters.
func (s Settings) Masked() Settings {
	switch n := len(s.APIKey); {
	case n == 0:
	case n <= 4:
		s.APIKey = strings.Repeat("*", n)
	default:
		s.APIKey = strings.Repeat("*", n-4) + s.APIKey[n-4:]
	}
	return s
}

// IsMasked reports whether key looks like the output of Masked, so a client
// echoing it back does not overwrite the stored key.
func IsMasked(key string) bool {
	return strings.HasPrefix(key, "*")
}
