// Package config provides configuration management for release-sync.
//
// It utilizes Viper for loading configuration from environment variables and an
// optional .env file. Every key has a default declared on its struct field, so a CI
// job only exports what differs. Command-line flags override the loaded values.
//
// # Configuration Structure
//
// The Config struct is divided into subsections:
//   - GitHub: token, repository, API and upload URLs (GITHUB_*)
//   - Release: tag, name, draft and prerelease flags, files (RELEASE_*)
//   - Upload: concurrency, retries and timeouts (UPLOAD_*)
//   - Log: logging level and format (LOG_*)
//
// # Usage
//
//	cfg, err := config.LoadConfig(".")
//	if err != nil {
//	    return err
//	}
//	fmt.Println(cfg.Release.Tag)
package config
