package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, []string{"*"}, cfg.Server.CORSOrigins)
	assert.Equal(t, "sqlite", cfg.DB.Driver)
	assert.Equal(t, "memory", cfg.Feed.Backend)
	assert.Equal(t, 50, cfg.Kiosk.PageSize)
	assert.Equal(t, 15*time.Second, cfg.Server.ShutdownTimeout)

	loc, err := cfg.Kiosk.Location()
	require.NoError(t, err)
	assert.Equal(t, "Asia/Bangkok", loc.String())
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("KIOSK_KIOSK_PAGE_SIZE", "20")
	t.Setenv("PORT", "9090")
	t.Setenv("CORS_ORIGINS", "http://kiosk.local, http://dash.local")
	t.Setenv("MYSQL_URL", "mysql://app:pw@db:3307/visitors")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 20, cfg.Kiosk.PageSize)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, []string{"http://kiosk.local", "http://dash.local"}, cfg.Server.CORSOrigins)
	assert.Equal(t, "mysql", cfg.DB.Driver)

	dsn, err := cfg.DB.MySQLDSN()
	require.NoError(t, err)
	assert.Contains(t, dsn, "app:pw@tcp(db:3307)/visitors")
	assert.Contains(t, dsn, "parseTime=true")
	assert.Contains(t, dsn, "charset=utf8mb4")
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	path := filepath.Join(dir, "kiosk.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
db:
  driver: postgres
  host: pg
  user: kiosk
  name: kiosk
feed:
  backend: postgres
kiosk:
  org_name: ACME
`), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "ACME", cfg.Kiosk.OrgName)
	assert.Equal(t, "host=pg port=5432 user=kiosk password= dbname=kiosk sslmode=disable TimeZone=UTC", cfg.DB.PostgresDSN())
}

func TestValidateRejectsBadValues(t *testing.T) {
	t.Chdir(t.TempDir())

	t.Setenv("KIOSK_DB_DRIVER", "oracle")
	_, err := Load("")
	assert.Error(t, err)

	t.Setenv("KIOSK_DB_DRIVER", "sqlite")
	t.Setenv("KIOSK_FEED_BACKEND", "postgres")
	_, err = Load("")
	assert.ErrorContains(t, err, "feed.backend=postgres")

	t.Setenv("KIOSK_FEED_BACKEND", "memory")
	t.Setenv("KIOSK_KIOSK_TIMEZONE", "Mars/Olympus")
	_, err = Load("")
	assert.ErrorContains(t, err, "kiosk.timezone")

	t.Setenv("KIOSK_KIOSK_TIMEZONE", "UTC")
	t.Setenv("KIOSK_BLOB_BACKEND", "gcs")
	_, err = Load("")
	assert.Error(t, err, "gcs needs a bucket")
}

func TestSQLiteDSN(t *testing.T) {
	assert.Equal(t, "file::memory:?cache=shared", DBConfig{Path: ":memory:"}.SQLiteDSN())
	assert.Contains(t, DBConfig{Path: "data/kiosk.db"}.SQLiteDSN(), "file:data/kiosk.db?")
}
