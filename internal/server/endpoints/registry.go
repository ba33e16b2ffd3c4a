package endpoints

import (
	"github.com/fengailin/qwen-ocr/internal/api"
)

// Config holds dependencies needed by some endpoints.
type Config struct{}

// All returns all endpoint instances.
func All(cfg Config) []api.Endpoint {
	return []api.Endpoint{
		// Health endpoints
		&HealthEndpoint{},
		&ReadyEndpoint{},

		// Recognition endpoints
		&RecognizeURLEndpoint{},
		&RecognizeBase64Endpoint{},
		&RecognizeFileEndpoint{},
		&UploadProxyEndpoint{},

		// Batch endpoints
		&ZipSubmitEndpoint{},
		&ZipStatusEndpoint{},
		&ZipContentEndpoint{},

		// Account endpoints
		&LoginEndpoint{},
		&EnableAccountEndpoint{},
		&DisableAccountEndpoint{},
		&ListAccountsEndpoint{},

		// Landing page (root pattern, must stay exact-match)
		&IndexEndpoint{},
	}
}

// RecognizeCommands groups recognition commands under "recognize".
func RecognizeCommands() []api.Endpoint {
	return []api.Endpoint{
		&RecognizeURLEndpoint{},
		&RecognizeBase64Endpoint{},
		&RecognizeFileEndpoint{},
	}
}

// ZipCommands groups batch commands under "zip".
func ZipCommands() []api.Endpoint {
	return []api.Endpoint{
		&ZipSubmitEndpoint{},
		&ZipStatusEndpoint{},
		&ZipContentEndpoint{},
	}
}

// AuthCommands groups account commands under "auth".
func AuthCommands() []api.Endpoint {
	return []api.Endpoint{
		&LoginEndpoint{},
		&EnableAccountEndpoint{},
		&DisableAccountEndpoint{},
		&ListAccountsEndpoint{},
	}
}
