// Package push implements the Expo push gateway client used to reach the
// mobile app. Delivery is best-effort: callers log failures and move on.
package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/odontoapp/booking-api/internal/model"
	"github.com/odontoapp/booking-api/pkg/circuitbreaker"
)

const DefaultEndpoint = "https://exp.host/--/api/v2/push/send"

// Dispatcher sends a single push notification to a device token.
type Dispatcher interface {
	Send(ctx context.Context, msg *model.PushMessage) error
}

type Config struct {
	Endpoint string
	Timeout  time.Duration
}

type expoClient struct {
	endpoint string
	client   *http.Client
	cb       *circuitbreaker.CircuitBreaker
}

func NewExpoClient(cfg Config) Dispatcher {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &expoClient{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
		cb: circuitbreaker.New(circuitbreaker.Settings{
			Name:        "expo-push",
			MaxFailures: 5,
			Timeout:     30 * time.Second,
		}),
	}
}

func (c *expoClient) Send(ctx context.Context, msg *model.PushMessage) error {
	if msg.Sound == "" {
		msg.Sound = "default"
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal push message: %w", err)
	}

	return c.cb.Execute(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("failed to build push request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			return fmt.Errorf("failed to call push gateway: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 400 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return fmt.Errorf("push gateway returned %d: %s", resp.StatusCode, body)
		}
		return nil
	})
}
