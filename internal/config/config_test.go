package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noEnv(string) (string, bool) { return "", false }

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(LoadOptions{EnvFile: filepath.Join(t.TempDir(), "missing.env"), LookupEnv: noEnv})
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, 30*time.Second, cfg.PollInterval)
}

func TestLoad_CUEFile(t *testing.T) {
	path := writeFile(t, "rollcall.cue", `
database:          "/var/lib/rollcall/attendance.db"
listen:            "127.0.0.1:9090"
roster_file:       "rosters.yaml"
poll_interval:     "5s"
subscriber_buffer: 64
`)
	cfg, err := Load(LoadOptions{File: path, EnvFile: filepath.Join(t.TempDir(), "missing.env"), LookupEnv: noEnv})
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/rollcall/attendance.db", cfg.Database)
	assert.Equal(t, "127.0.0.1:9090", cfg.Listen)
	assert.Equal(t, "rosters.yaml", cfg.RosterFile)
	assert.Equal(t, 5*time.Second, cfg.PollInterval)
	assert.Equal(t, 64, cfg.SubscriberBuffer)
}

func TestLoad_SchemaRejects(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"unknown field", `databse: "x.db"`},
		{"bad duration", `poll_interval: "soon"`},
		{"buffer out of range", `subscriber_buffer: 0`},
		{"wrong type", `listen: 8080`},
		{"bad roster url", `roster_url: "ftp://rosters"`},
		{"syntax", `database: `},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, "bad.cue", tt.content)
			_, err := Load(LoadOptions{File: path, LookupEnv: noEnv, EnvFile: filepath.Join(t.TempDir(), "missing.env")})
			assert.Error(t, err)
		})
	}
}

func TestLoad_Precedence(t *testing.T) {
	file := writeFile(t, "rollcall.cue", `
database: "from-file.db"
listen:   ":7000"
jwt_secret: "file-secret"
`)
	envFile := writeFile(t, ".env", "ROLLCALL_LISTEN=:7001\nROLLCALL_JWT_SECRET=dotenv-secret\n")
	env := map[string]string{"ROLLCALL_JWT_SECRET": "process-secret", "ROLLCALL_POLL_INTERVAL": "250ms"}

	cfg, err := Load(LoadOptions{
		File:    file,
		EnvFile: envFile,
		LookupEnv: func(k string) (string, bool) {
			v, ok := env[k]
			return v, ok
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "from-file.db", cfg.Database, "file beats default")
	assert.Equal(t, ":7001", cfg.Listen, "dotenv beats file")
	assert.Equal(t, "process-secret", cfg.JWTSecret, "process env beats dotenv")
	assert.Equal(t, 250*time.Millisecond, cfg.PollInterval)
}

func TestLoad_BadEnvValues(t *testing.T) {
	for key, val := range map[string]string{
		"ROLLCALL_POLL_INTERVAL":     "-1s",
		"ROLLCALL_SUBSCRIBER_BUFFER": "lots",
	} {
		t.Run(key, func(t *testing.T) {
			_, err := Load(LoadOptions{
				EnvFile: filepath.Join(t.TempDir(), "missing.env"),
				LookupEnv: func(k string) (string, bool) {
					if k == key {
						return val, true
					}
					return "", false
				},
			})
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(LoadOptions{File: filepath.Join(t.TempDir(), "nope.cue"), LookupEnv: noEnv})
	assert.Error(t, err)
}

func TestLoad_TokenFromDotenvAndFile(t *testing.T) {
	path := writeFile(t, "rollcall.cue", `
server: "https://rollcall.example"
token:  "file-token"
`)
	envPath := writeFile(t, ".env", "ROLLCALL_TOKEN=dotenv-token\n")

	cfg, err := Load(LoadOptions{File: path, EnvFile: envPath, LookupEnv: noEnv})
	require.NoError(t, err)
	assert.Equal(t, "https://rollcall.example", cfg.Server)
	assert.Equal(t, "dotenv-token", cfg.Token)
}
