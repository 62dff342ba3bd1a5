package janus

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/qrave1/voicegrid/internal/application/config"
	"github.com/qrave1/voicegrid/internal/application/constant"
	"github.com/qrave1/voicegrid/internal/domain/models"
)

var ErrNoNodes = errors.New("no janus nodes found")

// discovery ищет ноды в kubernetes по label selector.
type discovery struct {
	cfg    config.DiscoveryConfig
	janus  config.JanusConfig
	client *http.Client
}

func NewDiscovery(cfg config.DiscoveryConfig, janusCfg config.JanusConfig, client *http.Client) NodeSource {
	if client == nil {
		client = &http.Client{
			Timeout:   10 * time.Second,
			Transport: discoveryTransport(cfg.CAFile),
		}
	}

	return &discovery{cfg: cfg, janus: janusCfg, client: client}
}

// discoveryTransport доверяет CA сервис-аккаунта, если файл есть.
func discoveryTransport(caFile string) http.RoundTripper {
	if caFile == "" {
		return http.DefaultTransport
	}

	pem, err := os.ReadFile(caFile)
	if err != nil {
		return http.DefaultTransport
	}

	pool, err := x509.SystemCertPool()
	if err != nil || pool == nil {
		pool = x509.NewCertPool()
	}
	pool.AppendCertsFromPEM(pem)

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12}

	return transport
}

type nodeList struct {
	Items []struct {
		Metadata struct {
			Name string `json:"name"`
		} `json:"metadata"`
		Status struct {
			Addresses []struct {
				Type    string `json:"type"`
				Address string `json:"address"`
			} `json:"addresses"`
		} `json:"status"`
	} `json:"items"`
}

func (d *discovery) Nodes(ctx context.Context) ([]models.JanusNode, error) {
	endpoint := strings.TrimRight(d.cfg.APIURL, "/") + "/api/v1/nodes?labelSelector=" + url.QueryEscape(d.cfg.LabelSelector)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build discovery request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	if d.cfg.TokenFile != "" {
		token, err := os.ReadFile(d.cfg.TokenFile)
		if err != nil {
			return nil, fmt.Errorf("read discovery token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(string(token)))
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("query node inventory: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("query node inventory: unexpected status %d", resp.StatusCode)
	}

	var list nodeList
	if err = json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("decode node inventory: %w", err)
	}

	nodes := make([]models.JanusNode, 0, len(list.Items))
	for _, item := range list.Items {
		var internalIP, externalIP string
		for _, addr := range item.Status.Addresses {
			switch addr.Type {
			case "InternalIP":
				internalIP = addr.Address
			case "ExternalIP":
				externalIP = addr.Address
			}
		}

		if internalIP == "" {
			slog.Warn("skip janus node without internal ip", slog.String(constant.Node, item.Metadata.Name))
			continue
		}

		publicIP := externalIP
		if publicIP == "" {
			publicIP = internalIP
		}

		host := PublicHostname(publicIP, d.janus.PublicDomain)

		node := newNode(d.janus, item.Metadata.Name,
			"http://"+net.JoinHostPort(internalIP, strconv.Itoa(d.janus.HTTPPort))+"/janus")
		node.AdminURL = "http://" + net.JoinHostPort(internalIP, strconv.Itoa(d.janus.AdminPort)) + "/admin"
		node.PublicURL = "https://" + host + "/janus"
		node.PublicWS = "wss://" + host + "/ws"

		nodes = append(nodes, node)
	}

	if len(nodes) == 0 {
		return nil, ErrNoNodes
	}

	return nodes, nil
}

// PublicHostname - стабильное внешнее имя ноды по ее IP.
func PublicHostname(ip, domain string) string {
	label := strings.NewReplacer(".", "-", ":", "-").Replace(ip)

	return "janus-" + label + "." + strings.TrimPrefix(domain, ".")
}
