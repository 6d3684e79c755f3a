package config

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testSecretProvider struct {
	values     map[string]string
	err        error
	calledWith []string
}

func (p *testSecretProvider) GetParametersBatch(_ context.Context, keys []string) (map[string]string, error) {
	p.calledWith = append(p.calledWith, keys...)
	if p.err != nil {
		return nil, p.err
	}
	result := make(map[string]string)
	for _, k := range keys {
		if v, ok := p.values[k]; ok {
			result[k] = v
		}
	}
	return result, nil
}

// fakeEnv backs loaderDeps with a map so SSM resolution can be tested
// without touching the process environment.
type fakeEnv map[string]string

func (f fakeEnv) deps() loaderDeps {
	return loaderDeps{
		lookupEnv: func(k string) (string, bool) { v, ok := f[k]; return v, ok },
		setEnv:    func(k, v string) error { f[k] = v; return nil },
		environ: func() []string {
			out := make([]string, 0, len(f))
			for k, v := range f {
				out = append(out, k+"="+v)
			}
			return out
		},
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("APP_ENV", "local")

	cfg, err := LoadConfig(nil)
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 90*time.Second, cfg.Server.RequestTimeout)
	assert.Equal(t, 60*time.Second, cfg.Providers.InferenceTimeout)
	assert.Equal(t, 8*time.Second, cfg.Providers.EnrichmentTimeout)
	assert.Equal(t, 5*time.Minute, cfg.Enrichment.CacheMaxAge)
	assert.InDelta(t, 23.8103, cfg.Location.DefaultLat, 1e-9)
	assert.InDelta(t, 90.4125, cfg.Location.DefaultLon, 1e-9)
	assert.InDelta(t, 5000, cfg.Location.DefaultAccuracyM, 1e-9)
	assert.Equal(t, HistoryBackendPostgres, cfg.History.Backend)
	assert.Equal(t, "CropCare", cfg.Observability.MetricNamespace)
	assert.True(t, cfg.Enrichment.EnableAirQuality)
	assert.False(t, cfg.Enrichment.EnableAlerts)
	assert.Equal(t, "dev", cfg.Build.Version)
}

func TestLoadConfigOverridesAndSecrets(t *testing.T) {
	t.Setenv("APP_ENV", "local")
	t.Setenv("PORT", "9090")
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost:5432/crop")
	t.Setenv("INFERENCE_TIMEOUT", "15s")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.test,https://b.test")

	cfg, err := LoadConfig(nil)
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, 15*time.Second, cfg.Providers.InferenceTimeout)
	assert.Equal(t, []string{"https://a.test", "https://b.test"}, cfg.Server.CorsAllowedOrigins)
	assert.Equal(t, "postgres://u:p@localhost:5432/crop", cfg.Database.URL.Unmask())
	assert.Equal(t, "***REDACTED***", cfg.Database.URL.String())
}

func TestLoadConfigValidationFailure(t *testing.T) {
	t.Setenv("APP_ENV", "local")
	t.Setenv("DEFAULT_LAT", "120")

	_, err := LoadConfig(nil)
	require.Error(t, err)

	var cfgErr *ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, ErrValidation, cfgErr.Type)
}

func TestLoadConfigParsingFailure(t *testing.T) {
	t.Setenv("APP_ENV", "local")
	t.Setenv("ENRICHMENT_TIMEOUT", "soon")

	_, err := LoadConfig(nil)
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, ErrParsing, cfgErr.Type)
}

func TestRequireHistory(t *testing.T) {
	cfg := &Config{History: HistoryConfig{Backend: HistoryBackendPostgres}}
	assert.Error(t, cfg.RequireHistory())

	cfg.Database.URL = "postgres://x"
	assert.NoError(t, cfg.RequireHistory())

	cfg = &Config{History: HistoryConfig{Backend: HistoryBackendHTTP}}
	assert.Error(t, cfg.RequireHistory())
	cfg.History.APIURL = "https://history.test"
	assert.NoError(t, cfg.RequireHistory())
}

func TestResolveSSMParams(t *testing.T) {
	t.Run("injects resolved values", func(t *testing.T) {
		env := fakeEnv{"HISTORY_API_TOKEN_SSM_PARAM": "/prod/cropcare/history/token"}
		provider := &testSecretProvider{values: map[string]string{"/prod/cropcare/history/token": "tok"}}

		require.NoError(t, resolveSSMParams(provider, env.deps()))
		assert.Equal(t, "tok", env["HISTORY_API_TOKEN"])
	})

	t.Run("environment wins over SSM", func(t *testing.T) {
		env := fakeEnv{
			"DATABASE_URL_SSM_PARAM": "/prod/cropcare/db",
			"DATABASE_URL":           "postgres://local",
		}
		provider := &testSecretProvider{}

		require.NoError(t, resolveSSMParams(provider, env.deps()))
		assert.Empty(t, provider.calledWith)
		assert.Equal(t, "postgres://local", env["DATABASE_URL"])
	})

	t.Run("nil provider with pointers fails", func(t *testing.T) {
		env := fakeEnv{"DATABASE_URL_SSM_PARAM": "/prod/cropcare/db"}
		err := resolveSSMParams(nil, env.deps())

		var cfgErr *ConfigError
		require.ErrorAs(t, err, &cfgErr)
		assert.Equal(t, ErrSSMResolution, cfgErr.Type)
		assert.Contains(t, cfgErr.Message, "DATABASE_URL")
	})

	t.Run("missing parameter reported", func(t *testing.T) {
		env := fakeEnv{"DATABASE_URL_SSM_PARAM": "/prod/cropcare/db"}
		err := resolveSSMParams(&testSecretProvider{values: map[string]string{}}, env.deps())
		require.Error(t, err)
		assert.True(t, strings.Contains(err.Error(), "not found"))
	})

	t.Run("provider error wrapped", func(t *testing.T) {
		env := fakeEnv{"DATABASE_URL_SSM_PARAM": "/prod/cropcare/db"}
		boom := errors.New("throttled")
		err := resolveSSMParams(&testSecretProvider{err: boom}, env.deps())
		assert.ErrorIs(t, err, boom)
	})
}

func TestEnvVarProvider(t *testing.T) {
	t.Setenv("CROPCARE_TEST_SECRET", "value")
	got, err := NewEnvVarProvider().GetParametersBatch(context.Background(), []string{"CROPCARE_TEST_SECRET", "CROPCARE_ABSENT"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"CROPCARE_TEST_SECRET": "value"}, got)
}
