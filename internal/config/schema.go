package config

// Config holds qwen-ocr server configuration.
// Stored at: {home}/config.yaml
//
// Account credentials and provider endpoint settings live in the accounts
// file managed by the accounts package, not here.
type Config struct {
	Server   ServerCfg   `mapstructure:"server" yaml:"server"`
	Accounts AccountsCfg `mapstructure:"accounts" yaml:"accounts"`
	Pipeline PipelineCfg `mapstructure:"pipeline" yaml:"pipeline"`
	Batch    BatchCfg    `mapstructure:"batch" yaml:"batch"`
}

// ServerCfg configures the HTTP listener.
type ServerCfg struct {
	Host string `mapstructure:"host" yaml:"host"`
	Port string `mapstructure:"port" yaml:"port"`
}

// AccountsCfg configures the account store.
type AccountsCfg struct {
	// File is the accounts file path. Empty means {home}/accounts.yaml.
	File string `mapstructure:"file" yaml:"file"`
	// CacheTTLSeconds bounds how stale the in-memory snapshot may be.
	CacheTTLSeconds int `mapstructure:"cache_ttl_seconds" yaml:"cache_ttl_seconds"`
	// SaveDelaySeconds is the debounce window for persisting mutations.
	SaveDelaySeconds int `mapstructure:"save_delay_seconds" yaml:"save_delay_seconds"`
}

// PipelineCfg configures the recognition pipeline.
type PipelineCfg struct {
	// RequestTimeoutSeconds applies to every remote call, streams included.
	RequestTimeoutSeconds int `mapstructure:"request_timeout_seconds" yaml:"request_timeout_seconds"`
	// MaxRetries bounds retry attempts per remote operation.
	MaxRetries int `mapstructure:"max_retries" yaml:"max_retries"`
	// RetryDelayMillis is the base backoff delay between attempts.
	RetryDelayMillis int `mapstructure:"retry_delay_millis" yaml:"retry_delay_millis"`
	// MaxUploadBytes is the raw upload size ceiling.
	MaxUploadBytes int64 `mapstructure:"max_upload_bytes" yaml:"max_upload_bytes"`
}

// BatchCfg configures archive batch processing.
type BatchCfg struct {
	// UploadConcurrency bounds simultaneous image uploads.
	UploadConcurrency int `mapstructure:"upload_concurrency" yaml:"upload_concurrency"`
	// RecognizeConcurrency bounds simultaneous recognition calls.
	RecognizeConcurrency int `mapstructure:"recognize_concurrency" yaml:"recognize_concurrency"`
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerCfg{
			Host: "127.0.0.1",
			Port: "8080",
		},
		Accounts: AccountsCfg{
			CacheTTLSeconds:  60,
			SaveDelaySeconds: 5,
		},
		Pipeline: PipelineCfg{
			RequestTimeoutSeconds: 30,
			MaxRetries:            3,
			RetryDelayMillis:      500,
			MaxUploadBytes:        10 << 20,
		},
		Batch: BatchCfg{
			UploadConcurrency:    10,
			RecognizeConcurrency: 10,
		},
	}
}
