package config

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/pion/webrtc/v4"
)

type Config struct {
	Debug      bool   `env:"DEBUG" envDefault:"false"`
	Port       string `env:"PORT" envDefault:"3000"`
	MetricPort string `env:"METRIC_PORT" envDefault:"9090"`
	Domain     string `env:"DOMAIN" envDefault:"http://localhost:3000"`
	JWTSecret  string `env:"JWT_SECRET,required"`

	ConnectionTTL      time.Duration `env:"CONNECTION_TTL" envDefault:"60s"`
	SweepSchedule      string        `env:"SWEEP_SCHEDULE" envDefault:"@every 10s"`
	InviteTimeout      time.Duration `env:"INVITE_TIMEOUT" envDefault:"30s"`
	ChannelLockTimeout time.Duration `env:"CHANNEL_LOCK_TIMEOUT" envDefault:"10s"`

	TurnUDPServer webrtc.ICEServer
	TurnTCPServer webrtc.ICEServer

	CoturnServer CoturnConfig
	Postgres     PostgresConfig
	Janus        JanusConfig
	Discovery    DiscoveryConfig
}

type PostgresConfig struct {
	URL string `env:"POSTGRES_URL"`

	Host     string `env:"POSTGRES_HOST" envDefault:"localhost"`
	Port     int    `env:"POSTGRES_PORT" envDefault:"5432"`
	User     string `env:"POSTGRES_USER" envDefault:"postgres"`
	Password string `env:"POSTGRES_PASSWORD" envDefault:"postgres"`
	Name     string `env:"POSTGRES_NAME" envDefault:"voicegrid"`
	SSL      string `env:"POSTGRES_SSL" envDefault:"disable"`
}

func (p *PostgresConfig) DSN() string {
	if p.URL != "" {
		return p.URL
	}

	return fmt.Sprintf("postgresql://%s:%s@%s:%d/%s?sslmode=%s",
		p.User,
		p.Password,
		p.Host,
		p.Port,
		p.Name,
		p.SSL,
	)
}

type CoturnConfig struct {
	Host     string `env:"COTURN_HOST,required"`
	Username string `env:"COTURN_USERNAME,required"`
	Password string `env:"COTURN_PASSWORD,required"`

	// Secret - нужен для генерации временных кредов для фронта
	Secret string `env:"COTURN_SECRET,required"`
}

// JanusConfig - доступ к SFU нодам. Если Nodes пустой, ноды ищутся через Discovery.
type JanusConfig struct {
	Nodes StaticNodes `env:"JANUS_NODES"`

	AdminSecret    string        `env:"JANUS_ADMIN_SECRET"`
	AudioAdminKey  string        `env:"JANUS_AUDIO_ADMIN_KEY"`
	VideoAdminKey  string        `env:"JANUS_VIDEO_ADMIN_KEY"`
	TextAdminKey   string        `env:"JANUS_TEXT_ADMIN_KEY"`
	HTTPPort       int           `env:"JANUS_HTTP_PORT" envDefault:"8088"`
	AdminPort      int           `env:"JANUS_ADMIN_PORT" envDefault:"7088"`
	PublicDomain   string        `env:"JANUS_PUBLIC_DOMAIN" envDefault:"janus.local"`
	RequestTimeout time.Duration `env:"JANUS_REQUEST_TIMEOUT" envDefault:"5s"`
}

type DiscoveryConfig struct {
	APIURL        string `env:"DISCOVERY_API_URL" envDefault:"https://kubernetes.default.svc"`
	TokenFile     string `env:"DISCOVERY_TOKEN_FILE" envDefault:"/var/run/secrets/kubernetes.io/serviceaccount/token"`
	LabelSelector string `env:"DISCOVERY_LABEL_SELECTOR" envDefault:"app=janus"`
	CAFile        string `env:"DISCOVERY_CA_FILE" envDefault:"/var/run/secrets/kubernetes.io/serviceaccount/ca.crt"`
}

// StaticNode - нода из конфигурации, без discovery.
type StaticNode struct {
	Name      string `json:"name"`
	URL       string `json:"url"`
	AdminURL  string `json:"admin_url"`
	PublicURL string `json:"public_url"`
	PublicWS  string `json:"public_ws"`
}

type StaticNodes []StaticNode

// UnmarshalText разбирает JANUS_NODES в формате JSON массива.
func (n *StaticNodes) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		return nil
	}

	var nodes []StaticNode
	if err := json.Unmarshal(text, &nodes); err != nil {
		return fmt.Errorf("unmarshal janus nodes: %w", err)
	}

	for i, node := range nodes {
		if node.Name == "" || node.URL == "" {
			return fmt.Errorf("janus node %d: name and url are required", i)
		}
	}

	*n = nodes

	return nil
}

func New() (*Config, error) {
	c, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	c.TurnUDPServer = webrtc.ICEServer{
		URLs:       []string{fmt.Sprintf("turn:%s?transport=udp", c.CoturnServer.Host)},
		Username:   c.CoturnServer.Username,
		Credential: c.CoturnServer.Password,
	}

	c.TurnTCPServer = webrtc.ICEServer{
		URLs:       []string{fmt.Sprintf("turn:%s?transport=tcp", c.CoturnServer.Host)},
		Username:   c.CoturnServer.Username,
		Credential: c.CoturnServer.Password,
	}

	return &c, nil
}
