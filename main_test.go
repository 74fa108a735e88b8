package main

import (
	"errors"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fjacquet/rq_exporter/internal/exporter"
	"github.com/fjacquet/rq_exporter/internal/models"
	"github.com/fjacquet/rq_exporter/internal/rq"
	"github.com/fjacquet/rq_exporter/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubDialer hands out a freshly seeded FakeStore per dial and records the
// requested parameters.
type stubDialer struct {
	mu     sync.Mutex
	seed   func() *testutil.FakeStore
	opened []*testutil.FakeStore
	params []exporter.ConnParams
	urls   []string
}

func newStubDialer(seed func() *testutil.FakeStore) *stubDialer {
	return &stubDialer{seed: seed}
}

func (d *stubDialer) FromURL(url string) (rq.Store, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.urls = append(d.urls, url)
	return d.open(), nil
}

func (d *stubDialer) New(params exporter.ConnParams) (rq.Store, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.params = append(d.params, params)
	return d.open(), nil
}

func (d *stubDialer) open() *testutil.FakeStore {
	store := d.seed()
	d.opened = append(d.opened, store)
	return store
}

func (d *stubDialer) dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.opened)
}

func (d *stubDialer) store(i int) *testutil.FakeStore {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.opened[i]
}

func (d *stubDialer) lastParams() exporter.ConnParams {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.params[len(d.params)-1]
}

func seededStore() *testutil.FakeStore {
	return testutil.NewFakeStore().
		WithWorker(testutil.TestWorkerOne, []string{testutil.TestQueueDefault}, testutil.TestStateIdle).
		WithWorker(testutil.TestWorkerTwo, []string{testutil.TestQueueHigh, testutil.TestQueueDefault}, testutil.TestStateBusy).
		WithQueue(testutil.TestQueueDefault, models.JobCounts{models.JobStatusQueued: 3, models.JobStatusFailed: 1})
}

// clearEnv blanks every overridable variable; viper ignores empty values.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, b := range bindings {
		t.Setenv(b.env, "")
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
}

// waitFor polls cond until it is true or the timeout elapses.
func waitFor(cond func() bool, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(50 * time.Millisecond)
	}
	return cond()
}

// parseArgs builds the root command and parses args without running it.
func parseArgs(t *testing.T, args ...string) *cliOptions {
	t.Helper()
	opts := newCLIOptions()
	cmd := newRootCommand(opts)
	require.NoError(t, cmd.ParseFlags(args))
	return opts
}

const fileConfig = `server:
  port: "9100"
redis:
  host: yaml-host
  port: 6380
  db: 2
  auth: from-yaml
`

func TestLoadConfigDefaults(t *testing.T) {
	clearEnv(t)
	opts := parseArgs(t)

	cfg, err := loadConfig(opts.configFile, opts.overlay)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:9726", cfg.GetServerAddress())
	assert.Equal(t, "/metrics", cfg.Server.URI)
	assert.Equal(t, "localhost", cfg.Redis.Host)
	assert.Equal(t, 6379, cfg.Redis.Port)
	assert.Equal(t, 0, cfg.Redis.DB)
	assert.Nil(t, cfg.Redis.Auth)
	assert.Empty(t, cfg.Redis.URL)
	assert.Equal(t, "rq:", cfg.RQ.KeyPrefix)
}

func TestLoadConfigPrecedence(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, configPath, fileConfig)

	tests := []struct {
		name     string
		env      map[string]string
		args     []string
		wantHost string
		wantPort int
		wantDB   int
	}{
		{
			name:     "file only",
			wantHost: "yaml-host",
			wantPort: 6380,
			wantDB:   2,
		},
		{
			name:     "environment overrides file",
			env:      map[string]string{"RQ_REDIS_HOST": "env-host", "RQ_REDIS_PORT": "6381"},
			wantHost: "env-host",
			wantPort: 6381,
			wantDB:   2,
		},
		{
			name:     "flags override environment",
			env:      map[string]string{"RQ_REDIS_HOST": "env-host", "RQ_REDIS_DB": "5"},
			args:     []string{"--redis-host", "flag-host", "--redis-db", "7"},
			wantHost: "flag-host",
			wantPort: 6380,
			wantDB:   7,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			opts := parseArgs(t, append([]string{"--config", configPath}, tt.args...)...)

			cfg, err := loadConfig(opts.configFile, opts.overlay)
			require.NoError(t, err)

			assert.Equal(t, tt.wantHost, cfg.Redis.Host)
			assert.Equal(t, tt.wantPort, cfg.Redis.Port)
			assert.Equal(t, tt.wantDB, cfg.Redis.DB)
			assert.Equal(t, "9100", cfg.Server.Port)
		})
	}
}

func TestOverlayRedisPassword(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, configPath, fileConfig)

	t.Run("file value kept without override", func(t *testing.T) {
		clearEnv(t)
		opts := parseArgs(t, "--config", configPath)
		cfg, err := loadConfig(opts.configFile, opts.overlay)
		require.NoError(t, err)
		require.NotNil(t, cfg.Redis.Auth)
		assert.Equal(t, "from-yaml", *cfg.Redis.Auth)
	})

	t.Run("environment sets password", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("RQ_REDIS_PASS", testutil.TestRedisPass)
		opts := parseArgs(t)
		cfg, err := loadConfig(opts.configFile, opts.overlay)
		require.NoError(t, err)
		require.NotNil(t, cfg.Redis.Auth)
		assert.Equal(t, testutil.TestRedisPass, *cfg.Redis.Auth)
	})

	t.Run("no password anywhere stays nil", func(t *testing.T) {
		clearEnv(t)
		opts := parseArgs(t)
		cfg, err := loadConfig(opts.configFile, opts.overlay)
		require.NoError(t, err)
		assert.Nil(t, cfg.Redis.Auth)
	})

	t.Run("password file and URL", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("RQ_REDIS_PASS_FILE", "/run/secrets/redis")
		opts := parseArgs(t, "--redis-url", testutil.TestRedisURL)
		cfg, err := loadConfig(opts.configFile, opts.overlay)
		require.NoError(t, err)
		assert.Equal(t, "/run/secrets/redis", cfg.Redis.AuthFile)
		assert.Equal(t, testutil.TestRedisURL, cfg.Redis.URL)
	})
}

func TestOverlayInvalidInteger(t *testing.T) {
	clearEnv(t)
	t.Setenv("RQ_REDIS_PORT", "not-a-port")
	opts := parseArgs(t)

	_, err := loadConfig(opts.configFile, opts.overlay)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RQ_REDIS_PORT")
}

func TestOverlayFlagShadowsInvalidEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("RQ_REDIS_DB", "not-a-db")
	opts := parseArgs(t, "--redis-db", "3")

	cfg, err := loadConfig(opts.configFile, opts.overlay)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Redis.DB)
}

func TestLoadConfigErrors(t *testing.T) {
	clearEnv(t)

	t.Run("missing file", func(t *testing.T) {
		_, err := loadConfig("/nonexistent/config.yaml", nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "config file not found")
	})

	t.Run("invalid flag value", func(t *testing.T) {
		opts := parseArgs(t, "--log-format", "xml")
		_, err := loadConfig(opts.configFile, opts.overlay)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid configuration")
	})
}

func newTestServer(t *testing.T, cfg *models.Config, configPath string, dialer *stubDialer) *Server {
	t.Helper()
	require.NoError(t, cfg.Validate())
	s := NewServer(models.NewSafeConfig(cfg), configPath, exporter.WithDialer(dialer))
	require.NoError(t, s.setup())
	t.Cleanup(func() { _ = s.Shutdown() })
	return s
}

func get(s *Server, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.httpSrv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestServerMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, &models.Config{}, "", newStubDialer(seededStore))

	rec := get(s, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, `rq_workers{name="worker_one",queues="default",state="idle"} 1`)
	assert.Contains(t, body, `rq_workers{name="worker_two",queues="high,default",state="busy"} 1`)
	assert.Contains(t, body, `rq_jobs{queue="default",status="queued"} 3`)
	assert.Contains(t, body, `rq_jobs{queue="default",status="failed"} 1`)
	assert.Contains(t, body, "rq_request_processing_seconds_count 1")
}

func TestServerMetricsCustomURI(t *testing.T) {
	cfg := &models.Config{}
	cfg.Server.URI = "/rq"
	s := newTestServer(t, cfg, "", newStubDialer(seededStore))

	assert.Equal(t, http.StatusOK, get(s, "/rq").Code)
	assert.Equal(t, http.StatusNotFound, get(s, "/metrics").Code)
}

func TestServerMetricsStoreError(t *testing.T) {
	s := newTestServer(t, &models.Config{}, "", newStubDialer(func() *testutil.FakeStore {
		return seededStore().WithError(testutil.ErrConnectionRefused)
	}))

	rec := get(s, "/metrics")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "rq_workers{")
}

func TestServerHealth(t *testing.T) {
	t.Run("redis answers", func(t *testing.T) {
		s := newTestServer(t, &models.Config{}, "", newStubDialer(seededStore))
		rec := get(s, "/health")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "OK\nlast scrape: never\n", rec.Body.String())
	})

	t.Run("reports successful scrape", func(t *testing.T) {
		s := newTestServer(t, &models.Config{}, "", newStubDialer(seededStore))
		require.Equal(t, http.StatusOK, get(s, "/metrics").Code)

		rec := get(s, "/health")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, strings.HasPrefix(rec.Body.String(), "OK\nlast scrape: "))
		assert.True(t, strings.HasSuffix(rec.Body.String(), " ok\n"))
	})

	t.Run("reports failed scrape", func(t *testing.T) {
		s := newTestServer(t, &models.Config{}, "", newStubDialer(func() *testutil.FakeStore {
			return seededStore().WithError(testutil.ErrConnectionRefused)
		}))
		require.Equal(t, http.StatusInternalServerError, get(s, "/metrics").Code)

		rec := get(s, "/health")
		assert.Equal(t, http.StatusOK, rec.Code, "PING still answers")
		assert.Contains(t, rec.Body.String(), " failed: ")
		assert.Contains(t, rec.Body.String(), testutil.ErrConnectionRefused.Error())
	})

	t.Run("redis unreachable", func(t *testing.T) {
		s := newTestServer(t, &models.Config{}, "", newStubDialer(func() *testutil.FakeStore {
			return seededStore().WithPingError(testutil.ErrConnectionRefused)
		}))
		rec := get(s, "/health")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Equal(t, "Redis unreachable\nlast scrape: never\n", rec.Body.String())
	})
}

func TestServerSetupUnreadablePasswordFile(t *testing.T) {
	cfg := &models.Config{}
	cfg.Redis.AuthFile = filepath.Join(t.TempDir(), "missing")
	require.NoError(t, cfg.Validate())
	dialer := newStubDialer(seededStore)

	s := NewServer(models.NewSafeConfig(cfg), "", exporter.WithDialer(dialer))
	err := s.setup()

	require.Error(t, err)
	var pfErr *exporter.PasswordFileError
	require.True(t, errors.As(err, &pfErr))
	assert.True(t, errors.Is(err, fs.ErrNotExist))
	assert.Equal(t, 0, dialer.dials())
}

func TestServerReloadConfigFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, configPath, "redis:\n  host: redis-a\n")

	cfg, err := loadConfig(configPath, nil)
	require.NoError(t, err)
	dialer := newStubDialer(seededStore)
	s := newTestServer(t, cfg, configPath, dialer)
	require.Equal(t, 1, dialer.dials())

	t.Run("non redis change keeps connection", func(t *testing.T) {
		writeFile(t, configPath, "redis:\n  host: redis-a\nserver:\n  scrapeTimeout: 10s\n")
		require.NoError(t, s.Reload(configPath))
		assert.Equal(t, 1, dialer.dials())
		assert.Equal(t, "10s", s.safeCfg.Get().Server.ScrapeTimeout)
	})

	t.Run("redis change reconnects", func(t *testing.T) {
		writeFile(t, configPath, "redis:\n  host: redis-b\n")
		require.NoError(t, s.Reload(configPath))
		require.Equal(t, 2, dialer.dials())
		assert.Equal(t, "redis-b", dialer.lastParams().Host)
		assert.True(t, dialer.store(0).Closed())
		assert.Equal(t, http.StatusOK, get(s, "/metrics").Code)
	})

	t.Run("invalid file keeps running config", func(t *testing.T) {
		writeFile(t, configPath, "server:\n  port: nope\n")
		require.Error(t, s.Reload(configPath))
		assert.Equal(t, 2, dialer.dials())
		assert.Equal(t, "redis-b", s.safeCfg.Get().Redis.Host)
	})
}

func TestServerReloadRetriesFailedReconnect(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	passwordPath := filepath.Join(t.TempDir(), "redis-password")
	writeFile(t, configPath, "redis:\n  host: redis-a\n")

	cfg, err := loadConfig(configPath, nil)
	require.NoError(t, err)
	dialer := newStubDialer(seededStore)
	s := newTestServer(t, cfg, configPath, dialer)
	require.Equal(t, 1, dialer.dials())

	writeFile(t, configPath, "redis:\n  host: redis-b\n  authFile: "+passwordPath+"\n")
	err = s.Reload(configPath)
	require.Error(t, err)
	var pfErr *exporter.PasswordFileError
	require.True(t, errors.As(err, &pfErr))
	assert.Equal(t, 1, dialer.dials())
	assert.Equal(t, "redis-a", s.collector.RedisConfig().Host)

	writeFile(t, passwordPath, testutil.TestRedisPass+"\n")
	require.NoError(t, s.Reload(configPath))
	require.Equal(t, 2, dialer.dials())
	assert.Equal(t, "redis-b", dialer.lastParams().Host)
	require.NotNil(t, dialer.lastParams().Password)
	assert.Equal(t, testutil.TestRedisPass, *dialer.lastParams().Password)
	assert.True(t, dialer.store(0).Closed())
}

func TestServerWatchesPasswordFileSetByReload(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	passwordPath := filepath.Join(t.TempDir(), "redis-password")
	writeFile(t, configPath, "redis:\n  host: redis-a\n")
	writeFile(t, passwordPath, "first\n")

	cfg, err := loadConfig(configPath, nil)
	require.NoError(t, err)
	dialer := newStubDialer(seededStore)
	s := newTestServer(t, cfg, configPath, dialer)
	s.WatchReloads()
	require.NotNil(t, s.watcher)

	password := func() string {
		p := dialer.lastParams().Password
		if p == nil {
			return ""
		}
		return *p
	}

	time.Sleep(100 * time.Millisecond)
	writeFile(t, configPath, "redis:\n  host: redis-a\n  authFile: "+passwordPath+"\n")
	require.True(t, waitFor(func() bool { return password() == "first" }, 2*time.Second),
		"Expected the config reload to reconnect with the new password file")

	writeFile(t, passwordPath, "second\n")
	assert.True(t, waitFor(func() bool { return password() == "second" }, 2*time.Second),
		"Expected a change of the new password file to reconnect")
}

func TestServerReloadPasswordFile(t *testing.T) {
	passwordPath := filepath.Join(t.TempDir(), "redis-password")
	writeFile(t, passwordPath, testutil.TestRedisPass+"\n")

	cfg := &models.Config{}
	cfg.Redis.AuthFile = passwordPath
	dialer := newStubDialer(seededStore)
	s := newTestServer(t, cfg, "", dialer)
	require.NotNil(t, dialer.lastParams().Password)
	assert.Equal(t, testutil.TestRedisPass, *dialer.lastParams().Password)

	writeFile(t, passwordPath, "rotated\n")
	require.NoError(t, s.Reload(passwordPath))
	require.Equal(t, 2, dialer.dials())
	assert.Equal(t, "rotated", *dialer.lastParams().Password)

	require.NoError(t, os.Remove(passwordPath))
	err := s.Reload(passwordPath)
	require.Error(t, err)
	var pfErr *exporter.PasswordFileError
	assert.True(t, errors.As(err, &pfErr))
	assert.Equal(t, 2, dialer.dials())
	assert.False(t, dialer.store(1).Closed(), "failed reload must keep the current connection")
}

func TestServerShutdown(t *testing.T) {
	cfg := &models.Config{}
	require.NoError(t, cfg.Validate())
	dialer := newStubDialer(seededStore)
	s := NewServer(models.NewSafeConfig(cfg), "", exporter.WithDialer(dialer))
	require.NoError(t, s.setup())

	require.NoError(t, s.Shutdown())
	assert.True(t, dialer.store(0).Closed())

	_, open := <-s.ErrorChan()
	assert.False(t, open)
}

func TestRootCommandFlags(t *testing.T) {
	cmd := newRootCommand(newCLIOptions())

	for _, name := range []string{"config", "debug", "host", "port", "redis-url", "redis-host",
		"redis-port", "redis-db", "redis-pass", "redis-pass-file", "log-level", "log-format"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(name), "missing flag --%s", name)
	}
	assert.Equal(t, "c", cmd.PersistentFlags().Lookup("config").Shorthand)
	assert.True(t, strings.HasPrefix(cmd.Use, programName))
}
