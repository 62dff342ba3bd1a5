package janus

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/qrave1/voicegrid/internal/application/config"
	"github.com/qrave1/voicegrid/internal/domain/models"
)

// NodeSource отдает текущий список SFU нод без счетчиков и токенов.
type NodeSource interface {
	Nodes(ctx context.Context) ([]models.JanusNode, error)
}

type staticSource struct {
	cfg config.JanusConfig
}

func NewStaticSource(cfg config.JanusConfig) NodeSource {
	return &staticSource{cfg: cfg}
}

func (s *staticSource) Nodes(ctx context.Context) ([]models.JanusNode, error) {
	if len(s.cfg.Nodes) == 0 {
		return nil, fmt.Errorf("static janus nodes: %w", ErrNoNodes)
	}

	nodes := make([]models.JanusNode, 0, len(s.cfg.Nodes))
	for _, n := range s.cfg.Nodes {
		node := newNode(s.cfg, n.Name, strings.TrimRight(n.URL, "/"))

		if n.AdminURL != "" {
			node.AdminURL = strings.TrimRight(n.AdminURL, "/")
		} else {
			adminURL, err := deriveAdminURL(node.URL, s.cfg.AdminPort)
			if err != nil {
				return nil, fmt.Errorf("janus node %s: %w", n.Name, err)
			}
			node.AdminURL = adminURL
		}

		node.PublicURL = n.PublicURL
		if node.PublicURL == "" {
			node.PublicURL = node.URL
		}

		node.PublicWS = n.PublicWS
		if node.PublicWS == "" {
			node.PublicWS = websocketURL(node.PublicURL)
		}

		nodes = append(nodes, node)
	}

	return nodes, nil
}

func newNode(cfg config.JanusConfig, name, controlURL string) models.JanusNode {
	return models.JanusNode{
		Name:        name,
		URL:         controlURL,
		AdminSecret: cfg.AdminSecret,
		PluginKeys: map[models.Plugin]string{
			models.PluginAudioBridge: cfg.AudioAdminKey,
			models.PluginVideoRoom:   cfg.VideoAdminKey,
			models.PluginTextRoom:    cfg.TextAdminKey,
		},
	}
}

// deriveAdminURL строит адрес admin API на том же хосте, что и control API.
func deriveAdminURL(controlURL string, port int) (string, error) {
	u, err := url.Parse(controlURL)
	if err != nil {
		return "", fmt.Errorf("parse control url: %w", err)
	}

	if u.Host == "" {
		return "", fmt.Errorf("control url %q has no host", controlURL)
	}

	u.Host = net.JoinHostPort(u.Hostname(), strconv.Itoa(port))
	u.Path = "/admin"

	return u.String(), nil
}

func websocketURL(publicURL string) string {
	switch {
	case strings.HasPrefix(publicURL, "https://"):
		return "wss://" + strings.TrimPrefix(publicURL, "https://")
	case strings.HasPrefix(publicURL, "http://"):
		return "ws://" + strings.TrimPrefix(publicURL, "http://")
	default:
		return publicURL
	}
}
