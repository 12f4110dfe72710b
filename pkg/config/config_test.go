package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ontoforge/ontoforge/pkg/fabric"
	"github.com/ontoforge/ontoforge/pkg/model"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{EnvWorkspaceID, EnvTenantID, EnvClientID, EnvClientSecret} {
		t.Setenv(k, "")
	}
}

func TestLoad_JSON(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "config.json", `{
		"fabric": {
			"workspace_id": "ws-7",
			"tenant_id": "tn",
			"client_id": "cl",
			"client_secret": "sec",
			"rate_limit": {"requests_per_minute": 30, "burst": 5},
			"circuit_breaker": {"failure_threshold": 3, "recovery_timeout": 10}
		},
		"logging": {"level": "debug", "format": "json"},
		"ontology": {"id_prefix": 2000000000000}
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "ws-7", cfg.Fabric.WorkspaceID)
	require.Equal(t, int64(2_000_000_000_000), cfg.Ontology.IDPrefix)

	cc := cfg.ClientConfig()
	require.Equal(t, 30, cc.RateRequests)
	require.Equal(t, time.Minute, cc.RatePer)
	require.Equal(t, 5, cc.RateBurst)
	require.Equal(t, 3, cc.FailureThreshold)
	require.Equal(t, 10*time.Second, cc.RecoveryTimeout)
	require.Equal(t, "sec", cc.Credentials.ClientSecret)
}

func TestLoad_YAML(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "config.yaml", `
fabric:
  workspace_id: ws-y
logging:
  level: warn
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "ws-y", cfg.Fabric.WorkspaceID)
	require.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, fabric.DefaultBaseURL, cfg.Fabric.APIBaseURL)
	require.Equal(t, fabric.DefaultRateRequests, cfg.Fabric.RateLimit.RequestsPerMinute)
	require.Equal(t, fabric.DefaultFailureThreshold, cfg.Fabric.CircuitBreaker.FailureThreshold)
	require.Equal(t, "info", cfg.Logging.Level)
	require.Equal(t, "text", cfg.Logging.Format)
	require.Equal(t, model.DefaultIDPrefix, cfg.Ontology.IDPrefix)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvWorkspaceID, "ws-env")
	t.Setenv(EnvClientSecret, "env-secret")
	path := writeFile(t, "config.json", `{"fabric": {"workspace_id": "ws-file", "client_secret": "file-secret"}}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "ws-env", cfg.Fabric.WorkspaceID)
	require.Equal(t, "env-secret", cfg.Fabric.ClientSecret)
}

func TestLoad_InteractiveAuthReachesClient(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "config.json", `{"fabric": {"workspace_id": "ws", "use_interactive_auth": true}}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.True(t, cfg.ClientConfig().Credentials.UseInteractiveAuth)
}

func TestLoad_DisabledResilienceMapsToSentinels(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "config.json", `{
		"fabric": {
			"workspace_id": "ws",
			"rate_limit": {"enabled": false},
			"circuit_breaker": {"enabled": false}
		}
	}`)
	cfg, err := Load(path)
	require.NoError(t, err)

	cc := cfg.ClientConfig()
	require.Equal(t, -1, cc.RateRequests)
	require.Equal(t, -1, cc.FailureThreshold)
}

func TestLoad_Invalid(t *testing.T) {
	clearEnv(t)
	cases := map[string]string{
		"bad level":  `{"logging": {"level": "loud"}}`,
		"bad format": `{"logging": {"format": "xml"}}`,
		"bad prefix": `{"ontology": {"id_prefix": -5}}`,
		"bad json":   `{`,
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			path := writeFile(t, "config.json", content)
			_, err := Load(path)
			require.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	require.Error(t, err)
}
