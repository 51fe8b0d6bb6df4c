package api

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"miniquest-worker/internal/config"

	"github.com/valyala/fasthttp"
)

// PushClient talks to the push gateway that delivers a prepared message to a
// device token. Delivery is best effort; the caller decides what a failure
// means.
type PushClient struct {
	gatewayURL string
	apiKey     string
	client     *fasthttp.Client
}

type PushMessage struct {
	Token      string            `json:"token"`
	Title      string            `json:"title"`
	Body       string            `json:"body"`
	Data       map[string]string `json:"data,omitempty"`
	Sound      string            `json:"sound,omitempty"`
	BadgeCount int               `json:"badge,omitempty"`
}

type pushResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

func NewPushClient(cfg *config.Config) *PushClient {
	return &PushClient{
		gatewayURL: cfg.PushGatewayURL,
		apiKey:     cfg.PushAPIKey,
		client: &fasthttp.Client{
			MaxConnsPerHost:     100,
			ReadTimeout:         10 * time.Second,
			WriteTimeout:        10 * time.Second,
			MaxIdleConnDuration: 1 * time.Minute,
		},
	}
}

func (c *PushClient) Send(ctx context.Context, msg PushMessage) error {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode push message: %w", err)
	}

	req.SetRequestURI(c.gatewayURL)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", c.apiKey)
	}
	req.SetBody(body)

	if deadline, ok := ctx.Deadline(); ok {
		err = c.client.DoDeadline(req, resp, deadline)
	} else {
		err = c.client.Do(req, resp)
	}
	if err != nil {
		return fmt.Errorf("push gateway request failed: %w", err)
	}

	if resp.StatusCode() != fasthttp.StatusOK {
		return fmt.Errorf("push gateway error: %d", resp.StatusCode())
	}

	var result pushResponse
	if err := json.Unmarshal(resp.Body(), &result); err != nil {
		return fmt.Errorf("failed to decode push gateway response: %w", err)
	}
	if !result.Success {
		return fmt.Errorf("push gateway rejected message: %s", result.Error)
	}
	return nil
}
