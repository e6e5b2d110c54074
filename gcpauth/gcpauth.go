// Package gcpauth loads Google Cloud credentials shared by the warehouse,
// blob storage, document OCR and Gemini clients.
package gcpauth

import (
	"os"

	"cloud.google.com/go/auth"
	"cloud.google.com/go/auth/credentials"
	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"
	"google.golang.org/api/option"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/dataagents", "gcpauth")

// EnvCredentials is the environment variable naming the credentials file
const EnvCredentials = "GOOGLE_APPLICATION_CREDENTIALS"

// ScopeCloudPlatform grants access to BigQuery, Cloud Storage and Document AI
const ScopeCloudPlatform = "https://www.googleapis.com/auth/cloud-platform"

// Config specifies how credentials are located
type Config struct {
	// CredentialsFile is the path to a service account or user credentials file,
	// GOOGLE_APPLICATION_CREDENTIALS is used when empty
	CredentialsFile string `json:"credentials_file,omitempty" yaml:"credentials_file,omitempty"`
	// Project is the default GCP project
	Project string `json:"project,omitempty" yaml:"project,omitempty"`
}

// Credentials returns credentials from the configured file,
// or from the Application Default Credentials chain.
func Credentials(cfg *Config, scopes ...string) (*auth.Credentials, error) {
	if len(scopes) == 0 {
		scopes = []string{ScopeCloudPlatform}
	}

	file := ""
	if cfg != nil {
		file = cfg.CredentialsFile
	}
	if file == "" {
		file = os.Getenv(EnvCredentials)
	}

	opts := &credentials.DetectOptions{
		Scopes: scopes,
	}
	if file != "" {
		if _, err := os.Stat(file); err != nil {
			return nil, errors.Wrapf(err, "credentials file not found")
		}
		opts.CredentialsFile = file
	}

	creds, err := credentials.DetectDefault(opts)
	if err != nil {
		return nil, errors.Wrap(err, "failed to detect credentials")
	}

	logger.KV(xlog.DEBUG, "status", "credentials_loaded", "file", file)
	return creds, nil
}

// ClientOptions returns options for google.golang.org/api services
func ClientOptions(creds *auth.Credentials) []option.ClientOption {
	if creds == nil {
		return nil
	}
	return []option.ClientOption{option.WithAuthCredentials(creds)}
}
