package sheets

import (
	"google.golang.org/api/option"
)

// ClientConfig configures the Sheets client.
type ClientConfig struct {
	// CredentialsFile is a service account or authorized user JSON file.
	// Leave empty when Options already carry credentials.
	CredentialsFile string

	// RateLimit in requests per second (default: 1).
	RateLimit float64

	// RateBurst maximum burst size (default: 5).
	RateBurst int

	// Options are appended to the service options, e.g. a custom endpoint.
	Options []option.ClientOption
}

func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		CredentialsFile: "credentials.json",
		RateLimit:       1,
		RateBurst:       5,
	}
}

func (c ClientConfig) withDefaults() ClientConfig {
	if c.RateLimit <= 0 {
		c.RateLimit = 1
	}
	if c.RateBurst <= 0 {
		c.RateBurst = 5
	}
	return c
}
