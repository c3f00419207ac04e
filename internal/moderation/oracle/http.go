// Package oracle holds compliance oracle clients.
package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"chaperone/internal/domain"
)

type classifyRequest struct {
	Text string `json:"text"`
}

type classifyResponse struct {
	Verdict    string `json:"verdict"`
	ReasonCode string `json:"reason_code"`
}

// HTTP calls a remote classifier: POST {text} returns {verdict, reason_code}. The gate owns
// the deadline; the client carries none of its own beyond the transport's.
type HTTP struct {
	url    string
	client *http.Client
}

func NewHTTP(url string, client *http.Client) *HTTP {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &HTTP{url: url, client: client}
}

func (o *HTTP) Classify(ctx context.Context, text string) (domain.Verdict, error) {
	body, err := json.Marshal(classifyRequest{Text: text})
	if err != nil {
		return domain.Verdict{}, fmt.Errorf("encode classify request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.url, bytes.NewReader(body))
	if err != nil {
		return domain.Verdict{}, fmt.Errorf("build classify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return domain.Verdict{}, fmt.Errorf("call oracle: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return domain.Verdict{}, fmt.Errorf("oracle returned status %d", resp.StatusCode)
	}

	var out classifyResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&out); err != nil {
		return domain.Verdict{}, fmt.Errorf("decode oracle response: %w", err)
	}
	outcome, err := domain.ParseOutcome(out.Verdict)
	if err != nil {
		return domain.Verdict{}, fmt.Errorf("oracle verdict: %w", err)
	}
	return domain.Verdict{Outcome: outcome, ReasonCode: out.ReasonCode}, nil
}
