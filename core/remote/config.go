package remote

// Config holds configuration for the remote resource server client.
type Config struct {
	// BaseURL is the root URL of the resource server. Empty disables the
	// server source entirely.
	BaseURL string `mapstructure:"base_url" default:""`
	// Token is an optional bearer token sent with every request.
	Token string `mapstructure:"token" default:""`
	// TimeoutSeconds is the per-request timeout in seconds.
	TimeoutSeconds int `mapstructure:"timeout_seconds" default:"30"`
}
