package apns

import "time"

// Config holds APNs credentials and connection settings.
// An empty KeyID, TeamID or PrivateKey leaves the client unconfigured.
type Config struct {
	KeyID       string        `env:"APNS_KEY_ID"`                      // Key id of the .p8 signing key.
	TeamID      string        `env:"APNS_TEAM_ID"`                     // Apple developer team id, used as the JWT issuer.
	PrivateKey  string        `env:"APNS_PRIVATE_KEY"`                 // PEM-encoded ES256 private key (contents of the .p8 file).
	Topic       string        `env:"APNS_TOPIC"`                       // apns-topic header, normally the app bundle id.
	Development bool          `env:"APNS_DEVELOPMENT" envDefault:"false"` // Use the sandbox host instead of production.
	Timeout     time.Duration `env:"APNS_TIMEOUT" envDefault:"30s"`    // Per-request HTTP timeout.
}
