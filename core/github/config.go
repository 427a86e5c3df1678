package github

// Config holds configuration for the GitHub release API.
type Config struct {
	// Token is the bearer token used for every request (GITHUB_TOKEN in Actions).
	Token string `mapstructure:"token" default:""`
	// Repository is the target repository in owner/name form.
	Repository string `mapstructure:"repository" default:""`
	// APIURL is the REST API base URL. Set it for GitHub Enterprise Server.
	APIURL string `mapstructure:"api_url" default:"https://api.github.com/"`
	// UploadURL is the asset upload base URL. Derived from APIURL when empty.
	UploadURL string `mapstructure:"upload_url" default:""`
	// TimeoutSeconds bounds connection setup, TLS handshake and time to first response byte.
	TimeoutSeconds int `mapstructure:"timeout_seconds" default:"30"`
}
