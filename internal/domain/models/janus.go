package models

type Plugin string

const (
	PluginAudioBridge Plugin = "janus.plugin.audiobridge"
	PluginVideoRoom   Plugin = "janus.plugin.videoroom"
	PluginTextRoom    Plugin = "janus.plugin.textroom"
)

// RoomPlugins - три комнаты, которые создаются на каждый канал.
var RoomPlugins = []Plugin{PluginAudioBridge, PluginVideoRoom, PluginTextRoom}

// TokenPlugins - плагины, у которых доступ к комнате ограничен списком токенов.
var TokenPlugins = []Plugin{PluginAudioBridge, PluginVideoRoom}

// JanusNode - снимок состояния SFU ноды.
type JanusNode struct {
	Name string `json:"name"`

	// URL - внутренний адрес Janus HTTP API, AdminURL - Admin API
	URL      string `json:"-"`
	AdminURL string `json:"-"`

	PublicURL string `json:"public_url"`
	PublicWS  string `json:"public_ws"`

	AdminSecret string            `json:"-"`
	PluginKeys  map[Plugin]string `json:"-"`

	// AuthToken - токен ноды, которым сервис подписывает свои запросы
	AuthToken string `json:"-"`

	ChannelCount int `json:"channel_count"`
}

func (n *JanusNode) PluginKey(plugin Plugin) string {
	if n.PluginKeys == nil {
		return ""
	}

	return n.PluginKeys[plugin]
}
