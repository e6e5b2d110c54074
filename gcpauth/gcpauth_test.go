package gcpauth_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/effective-security/dataagents/gcpauth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const userCredentials = `{
  "type": "authorized_user",
  "client_id": "client.apps.googleusercontent.com",
  "client_secret": "secret",
  "refresh_token": "refresh"
}`

func TestCredentials(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "creds.json")
	require.NoError(t, os.WriteFile(file, []byte(userCredentials), 0o600))

	creds, err := gcpauth.Credentials(&gcpauth.Config{CredentialsFile: file})
	require.NoError(t, err)
	require.NotNil(t, creds)
	assert.Len(t, gcpauth.ClientOptions(creds), 1)

	t.Setenv(gcpauth.EnvCredentials, file)
	creds, err = gcpauth.Credentials(nil)
	require.NoError(t, err)
	require.NotNil(t, creds)

	_, err = gcpauth.Credentials(&gcpauth.Config{CredentialsFile: filepath.Join(dir, "missing.json")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "credentials file not found")

	assert.Nil(t, gcpauth.ClientOptions(nil))
}
