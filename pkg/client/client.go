package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// DefaultTimeout bounds heartbeat-scale requests to the peer. A hung
// peer must not wedge the sender loop.
const DefaultTimeout = 5 * time.Second

// DefaultNotifyTimeout bounds become-primary requests when no explicit
// deadline is configured. The peer replies only after its workloads are
// up, so this matches the default start timeout plus margin.
const DefaultNotifyTimeout = 5*time.Minute + 30*time.Second

// Message is the body of every control-plane request. The server field
// identifies the sending node.
type Message struct {
	Server string `json:"server"`
}

// Peer is an HTTP client for the other node's control plane. Each
// request carries its own deadline: heartbeats are short, become-primary
// waits for the peer's workload startup.
type Peer struct {
	baseURL  string
	nodeName string
	http     *http.Client

	heartbeatTimeout time.Duration
	notifyTimeout    time.Duration
}

// NewPeer creates a client for the peer at baseURL, identifying itself
// as nodeName in every request. notifyTimeout bounds become-primary
// requests and should cover the peer's workload start timeout; zero
// selects DefaultNotifyTimeout.
func NewPeer(baseURL, nodeName string, notifyTimeout time.Duration) *Peer {
	if notifyTimeout <= 0 {
		notifyTimeout = DefaultNotifyTimeout
	}
	return &Peer{
		baseURL:          baseURL,
		nodeName:         nodeName,
		http:             &http.Client{},
		heartbeatTimeout: DefaultTimeout,
		notifyTimeout:    notifyTimeout,
	}
}

// BaseURL returns the peer's base URL
func (p *Peer) BaseURL() string {
	return p.baseURL
}

func (p *Peer) post(ctx context.Context, path string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	body, err := json.Marshal(Message{Server: p.nodeName})
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.http.Do(req)
	if err != nil {
		return fmt.Errorf("request to peer failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("peer returned status %d for %s", resp.StatusCode, path)
	}
	return nil
}

// SendHeartbeat posts a heartbeat to the peer
func (p *Peer) SendHeartbeat(ctx context.Context) error {
	return p.post(ctx, "/heartbeat", p.heartbeatTimeout)
}

// NotifyBecomePrimary asks the peer to take over the primary role and
// waits for the acknowledgement. The peer replies only once its own
// transition has finished, so this request runs under the notify
// deadline rather than the heartbeat one.
func (p *Peer) NotifyBecomePrimary(ctx context.Context) error {
	return p.post(ctx, "/become_primary", p.notifyTimeout)
}
