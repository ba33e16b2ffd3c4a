// Package accounts owns the durable set of provider accounts and their
// cached session materials (token, cookie, expiry).
package accounts

import (
	"gopkg.in/yaml.v3"
)

// DefaultBaseAPIURL is the provider endpoint used when the accounts file
// does not specify one.
const DefaultBaseAPIURL = "https://chat.qwen.ai"

// DefaultModel is the recognition model used when the accounts file does
// not specify one.
const DefaultModel = "qwen2.5-vl-72b-instruct"

// Account is one set of provider credentials plus cached session materials.
// Accounts are unique by username.
type Account struct {
	Username  string `yaml:"username" json:"username"`
	Password  string `yaml:"password,omitempty" json:"-"`
	Cookie    string `yaml:"cookie,omitempty" json:"-"`
	Token     string `yaml:"token,omitempty" json:"-"`
	ExpiresAt int64  `yaml:"expires_at,omitempty" json:"expires_at,omitempty"`
	Enabled   bool   `yaml:"enabled" json:"enabled"`
}

// accountAlias avoids recursing into UnmarshalYAML.
type accountAlias Account

// UnmarshalYAML decodes an account, defaulting enabled to true when the
// field is absent. Accounts written before the enabled flag existed must
// stay usable.
func (a *Account) UnmarshalYAML(value *yaml.Node) error {
	out := accountAlias{Enabled: true}
	if err := value.Decode(&out); err != nil {
		return err
	}
	*a = Account(out)
	return nil
}

// ModelConfig selects the recognition model.
type ModelConfig struct {
	DefaultModel    string   `yaml:"default_model" json:"default_model"`
	AvailableModels []string `yaml:"available_models,omitempty" json:"available_models,omitempty"`
}

// File is the on-disk shape of the accounts file.
type File struct {
	BaseAPIURL    string            `yaml:"base_api_url"`
	Accounts      []Account         `yaml:"accounts"`
	CommonCookies map[string]string `yaml:"common_cookies,omitempty"`
	ModelConfig   ModelConfig       `yaml:"model_config"`
}

// defaultFile returns the in-memory state used when no accounts file exists yet.
func defaultFile() *File {
	return &File{
		BaseAPIURL: DefaultBaseAPIURL,
		Accounts:   []Account{},
		ModelConfig: ModelConfig{
			DefaultModel:    DefaultModel,
			AvailableModels: []string{DefaultModel},
		},
	}
}
