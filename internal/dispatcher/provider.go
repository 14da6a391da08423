package dispatcher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/qubex-tech/VantageAI-CRM-sub003/internal/config"
	"github.com/qubex-tech/VantageAI-CRM-sub003/internal/model"
)

// Provider is one external messaging relay.
type Provider interface {
	Name() string
	Supports(ch model.Channel) bool
	Ready() bool
	Acquire() bool
	Send(ctx context.Context, msg model.OutboundMessage) error
}

type HTTPProvider struct {
	name     string
	baseURL  string
	path     string
	channels map[model.Channel]struct{}
	client   *http.Client
	br       *MicroBreaker
}

func NewHTTPProvider(pc config.ProviderConfig) *HTTPProvider {
	timeoutMs := pc.TimeoutMs
	if timeoutMs <= 0 {
		timeoutMs = 3000
	}
	openForMs := pc.Breaker.OpenForMs
	if openForMs <= 0 {
		openForMs = 15000
	}
	path := pc.Path
	if path == "" {
		path = "/v1/messages"
	}

	channels := make(map[model.Channel]struct{}, len(pc.Channels))
	for _, c := range pc.Channels {
		channels[model.Channel(strings.ToLower(strings.TrimSpace(c)))] = struct{}{}
	}

	return &HTTPProvider{
		name:     pc.Name,
		baseURL:  strings.TrimRight(pc.BaseURL, "/"),
		path:     path,
		channels: channels,
		client:   &http.Client{Timeout: time.Duration(timeoutMs) * time.Millisecond},
		br:       NewMicroBreaker(pc.Name, pc.Breaker.FailThreshold, time.Duration(openForMs)*time.Millisecond),
	}
}

func (p *HTTPProvider) Name() string  { return p.name }
func (p *HTTPProvider) Ready() bool   { return p.br.Ready() }
func (p *HTTPProvider) Acquire() bool { return p.br.TryAcquire() }

func (p *HTTPProvider) Supports(ch model.Channel) bool {
	_, ok := p.channels[ch]
	return ok
}

func (p *HTTPProvider) Send(ctx context.Context, msg model.OutboundMessage) error {
	if err := p.post(ctx, msg); err != nil {
		p.br.OnFailure()
		return err
	}
	p.br.OnSuccess()
	return nil
}

func (p *HTTPProvider) post(ctx context.Context, msg model.OutboundMessage) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+p.path, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", msg.ID)

	res, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode/100 != 2 {
		return fmt.Errorf("provider=%s channel=%s status=%d", p.name, msg.Channel, res.StatusCode)
	}
	return nil
}
