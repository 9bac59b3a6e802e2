package fcm

import "time"

// Config holds FCM credentials and connection settings. Providing a project
// id plus service-account JSON selects v1 mode; providing only a server key
// selects legacy mode; neither leaves the client unconfigured.
type Config struct {
	ProjectID       string        `env:"FCM_PROJECT_ID"`                  // Firebase project id (v1 mode).
	CredentialsJSON string        `env:"FCM_CREDENTIALS_JSON"`            // Service-account key JSON (v1 mode).
	ServerKey       string        `env:"FCM_SERVER_KEY"`                  // Static server key (legacy mode).
	Timeout         time.Duration `env:"FCM_TIMEOUT" envDefault:"30s"`    // Per-request HTTP timeout.
	Parallelism     int           `env:"FCM_PARALLELISM" envDefault:"10"` // Concurrent sends within one chunk.
}
