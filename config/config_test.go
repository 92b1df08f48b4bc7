package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadServerDefaults(t *testing.T) {
	t.Setenv("MONGODB_URI", "mongodb://localhost:27017")
	t.Setenv("JWT_SECRET", "s3cret")

	cfg, err := LoadServer(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	require.Equal(t, ":4000", cfg.Address)
	require.Equal(t, "rootcart", cfg.MongoDatabase)
	require.Equal(t, 30*time.Second, cfg.BroadcastInterval)
	require.Equal(t, 25*time.Second, cfg.HeartbeatInterval)
	require.Equal(t, 256, cfg.PublishBuffer)
	require.Equal(t, 15*time.Millisecond, cfg.PublishHandoffTimeout)
	require.Equal(t, 24*time.Hour, cfg.DeduperTTL)
	require.Equal(t, int64(1), cfg.SnowflakeNode)
	require.Equal(t, []string{"*"}, cfg.CORSOrigins)
}

func TestLoadServerFromEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	content := "MONGODB_URI=mongodb://db:27017\nAUTH0_DOMAIN=tenant.example.com\nAUTH0_AUDIENCE=rootcart\nBROADCAST_INTERVAL=5s\nCORS_ORIGINS=https://a.example,https://b.example\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	for _, k := range []string{"MONGODB_URI", "AUTH0_DOMAIN", "AUTH0_AUDIENCE", "BROADCAST_INTERVAL", "CORS_ORIGINS"} {
		// godotenv sets these; restore on cleanup.
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}

	cfg, err := LoadServer(path)
	require.NoError(t, err)
	require.Equal(t, "mongodb://db:27017", cfg.MongoURI)
	require.Equal(t, 5*time.Second, cfg.BroadcastInterval)
	require.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
}

func TestLoadServerEnvironmentWins(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("MONGODB_URI=mongodb://file\nJWT_SECRET=x\n"), 0o600))
	t.Setenv("MONGODB_URI", "mongodb://env")
	t.Setenv("JWT_SECRET", "y")

	cfg, err := LoadServer(path)
	require.NoError(t, err)
	require.Equal(t, "mongodb://env", cfg.MongoURI)
}

func TestLoadServerRejects(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing.env")

	t.Run("no mongo", func(t *testing.T) {
		t.Setenv("MONGODB_URI", "")
		require.NoError(t, os.Unsetenv("MONGODB_URI"))
		t.Setenv("JWT_SECRET", "s")
		_, err := LoadServer(missing)
		require.Error(t, err)
	})
	t.Run("no auth", func(t *testing.T) {
		t.Setenv("MONGODB_URI", "mongodb://x")
		t.Setenv("JWT_SECRET", "")
		t.Setenv("AUTH0_DOMAIN", "")
		_, err := LoadServer(missing)
		require.ErrorContains(t, err, "JWT_SECRET")
	})
	t.Run("bad interval", func(t *testing.T) {
		t.Setenv("MONGODB_URI", "mongodb://x")
		t.Setenv("JWT_SECRET", "s")
		t.Setenv("BROADCAST_INTERVAL", "soon")
		_, err := LoadServer(missing)
		require.Error(t, err)
	})
	t.Run("snowflake node", func(t *testing.T) {
		t.Setenv("MONGODB_URI", "mongodb://x")
		t.Setenv("JWT_SECRET", "s")
		t.Setenv("SNOWFLAKE_NODE", "4096")
		_, err := LoadServer(missing)
		require.ErrorContains(t, err, "SNOWFLAKE_NODE")
	})
}

func TestLoadWatch(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing.env")
	t.Setenv("API_BASE_URL", "http://dash:4000")
	t.Setenv("POLL_INTERVAL", "2s")

	cfg, err := LoadWatch(missing)
	require.NoError(t, err)
	require.Equal(t, "admin", cfg.Role)
	require.Equal(t, 2*time.Second, cfg.PollInterval)
	require.Equal(t, "http://dash:4000/api/realtime/stream", cfg.StreamURL)

	t.Setenv("ROLE", "guest")
	_, err = LoadWatch(missing)
	require.Error(t, err)
}

func TestLoadInit(t *testing.T) {
	t.Setenv("MONGODB_URI", "mongodb://x")
	t.Setenv("SEED_FIXTURES", "true")

	cfg, err := LoadInit(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	require.True(t, cfg.SeedFixtures)
	require.Equal(t, "OrderStatusHistory", cfg.OrderHistoryTable)
	require.Equal(t, "order-events", cfg.OrderEventsQueue)
}
