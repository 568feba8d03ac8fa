package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_FirstRunWritesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Listen, cfg.Listen)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	again, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Fields, again.Fields)
	assert.Equal(t, cfg.Prismic.Timeout, again.Prismic.Timeout)
}

func TestLoad_PartialFileIsNormalized(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
listen: ":9000"
prismic:
  repository: lancaster
fields:
  start: ["  ", "when"]
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Listen)
	assert.Equal(t, "lancaster", cfg.Prismic.Repository)
	assert.Equal(t, []string{"when"}, cfg.Fields.Start)
	assert.Equal(t, DefaultEndFields(), cfg.Fields.End)
	assert.Equal(t, 100, cfg.Prismic.PageSize)
	assert.Equal(t, 15*time.Second, cfg.Prismic.Timeout)
	assert.Equal(t, 90, cfg.HorizonDays)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen: [unterminated"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_EmptyPath(t *testing.T) {
	_, err := Load("")
	assert.Error(t, err)
}

func TestApplyEnvAndValidate(t *testing.T) {
	cfg := DefaultConfig()
	require.ErrorIs(t, cfg.Validate(), ErrMissingRepository)

	env := map[string]string{
		EnvRepository:  " lancaster ",
		EnvAccessToken: "secret",
		EnvListen:      ":7000",
	}
	cfg.ApplyEnv(func(k string) string { return env[k] })

	assert.Equal(t, "lancaster", cfg.Prismic.Repository)
	assert.Equal(t, "secret", cfg.Prismic.AccessToken)
	assert.Equal(t, ":7000", cfg.Listen)
	assert.NoError(t, cfg.Validate())
}

func TestValidate_BadTimezone(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Prismic.Repository = "lancaster"
	cfg.Timezone = "Mars/Olympus_Mons"

	assert.Error(t, cfg.Validate())
	assert.Equal(t, time.Local, cfg.Location())
}

func TestSiteBaseURL(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Prismic.Repository = "lancaster"
	cfg.Site.BaseURL = " https://whatsnext.example/ "
	cfg.Normalize()
	assert.Equal(t, "https://whatsnext.example", cfg.Site.BaseURL)
	assert.NoError(t, cfg.Validate())

	cfg.ApplyEnv(func(k string) string {
		if k == EnvBaseURL {
			return "https://events.example/"
		}
		return ""
	})
	assert.Equal(t, "https://events.example", cfg.Site.BaseURL)

	for _, bad := range []string{"whatsnext.example", "ftp://whatsnext.example", "https://"} {
		cfg.Site.BaseURL = bad
		assert.Error(t, cfg.Validate(), bad)
	}
}
