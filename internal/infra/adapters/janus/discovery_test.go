package janus

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qrave1/voicegrid/internal/application/config"
	"github.com/qrave1/voicegrid/internal/domain/models"
)

func janusConfig() config.JanusConfig {
	return config.JanusConfig{
		AdminSecret:   "secret",
		AudioAdminKey: "a",
		VideoAdminKey: "v",
		TextAdminKey:  "t",
		HTTPPort:      8088,
		AdminPort:     7088,
		PublicDomain:  "janus.example.com",
	}
}

const nodeInventory = `{
  "items": [
    {
      "metadata": {"name": "sfu-1"},
      "status": {"addresses": [
        {"type": "InternalIP", "address": "10.0.0.5"},
        {"type": "ExternalIP", "address": "203.0.113.7"}
      ]}
    },
    {
      "metadata": {"name": "sfu-2"},
      "status": {"addresses": [{"type": "InternalIP", "address": "10.0.0.6"}]}
    },
    {
      "metadata": {"name": "broken"},
      "status": {"addresses": [{"type": "Hostname", "address": "broken"}]}
    }
  ]
}`

func TestDiscoveryNodes(t *testing.T) {
	tokenFile := filepath.Join(t.TempDir(), "token")
	require.NoError(t, os.WriteFile(tokenFile, []byte("sa-token\n"), 0o600))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/nodes", r.URL.Path)
		assert.Equal(t, "app=janus", r.URL.Query().Get("labelSelector"))
		assert.Equal(t, "Bearer sa-token", r.Header.Get("Authorization"))

		_, _ = w.Write([]byte(nodeInventory))
	}))
	defer srv.Close()

	src := NewDiscovery(config.DiscoveryConfig{
		APIURL:        srv.URL,
		TokenFile:     tokenFile,
		LabelSelector: "app=janus",
	}, janusConfig(), srv.Client())

	nodes, err := src.Nodes(context.Background())
	require.NoError(t, err)
	require.Len(t, nodes, 2)

	first := nodes[0]
	assert.Equal(t, "sfu-1", first.Name)
	assert.Equal(t, "http://10.0.0.5:8088/janus", first.URL)
	assert.Equal(t, "http://10.0.0.5:7088/admin", first.AdminURL)
	assert.Equal(t, "https://janus-203-0-113-7.janus.example.com/janus", first.PublicURL)
	assert.Equal(t, "wss://janus-203-0-113-7.janus.example.com/ws", first.PublicWS)
	assert.Equal(t, "v", first.PluginKey(models.PluginVideoRoom))
	assert.Equal(t, "secret", first.AdminSecret)

	// без внешнего адреса имя строится от внутреннего
	assert.Equal(t, "https://janus-10-0-0-6.janus.example.com/janus", nodes[1].PublicURL)
}

func TestDiscoveryFailures(t *testing.T) {
	t.Run("non 200", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
		}))
		defer srv.Close()

		_, err := NewDiscovery(config.DiscoveryConfig{APIURL: srv.URL}, janusConfig(), srv.Client()).
			Nodes(context.Background())
		assert.Error(t, err)
	})

	t.Run("zero nodes", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"items": []}`))
		}))
		defer srv.Close()

		_, err := NewDiscovery(config.DiscoveryConfig{APIURL: srv.URL}, janusConfig(), srv.Client()).
			Nodes(context.Background())
		assert.ErrorIs(t, err, ErrNoNodes)
	})
}

func TestPublicHostnameIsStable(t *testing.T) {
	assert.Equal(t, "janus-1-2-3-4.example.org", PublicHostname("1.2.3.4", "example.org"))
	assert.Equal(t, PublicHostname("1.2.3.4", ".example.org"), PublicHostname("1.2.3.4", "example.org"))
}

func TestStaticSource(t *testing.T) {
	cfg := janusConfig()
	cfg.Nodes = config.StaticNodes{
		{Name: "local", URL: "http://127.0.0.1:8088/janus/"},
		{Name: "edge", URL: "http://10.1.1.1:8088/janus", AdminURL: "http://10.1.1.1:9999/admin", PublicURL: "https://edge.example.com/janus"},
	}

	nodes, err := NewStaticSource(cfg).Nodes(context.Background())
	require.NoError(t, err)
	require.Len(t, nodes, 2)

	assert.Equal(t, "http://127.0.0.1:8088/janus", nodes[0].URL)
	assert.Equal(t, "http://127.0.0.1:7088/admin", nodes[0].AdminURL)
	assert.Equal(t, "ws://127.0.0.1:8088/janus", nodes[0].PublicWS)

	assert.Equal(t, "http://10.1.1.1:9999/admin", nodes[1].AdminURL)
	assert.Equal(t, "wss://edge.example.com/janus", nodes[1].PublicWS)
}

func TestStaticSourceEmpty(t *testing.T) {
	_, err := NewStaticSource(janusConfig()).Nodes(context.Background())
	assert.ErrorIs(t, err, ErrNoNodes)
}
