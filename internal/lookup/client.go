// Package lookup queries the external price service for one product at a time.
package lookup

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/fairyhunter13/price-batch-service/internal/model"
	"github.com/fairyhunter13/price-batch-service/internal/obs"
)

// Failure kinds. Every one of them degrades to an all-absent record.
var (
	ErrTransport = errors.New("price service unreachable")
	ErrStatus    = errors.New("price service returned non-success status")
	ErrMalformed = errors.New("price service payload is not a price record")
)

const maxBodyBytes = 4 << 20

// Looker resolves one item into a price record. Implementations never fail;
// unavailable data is reported through absent fields.
type Looker interface {
	Lookup(ctx context.Context, item, instructions, modelID string) model.PriceRecord
}

// Error describes one failed lookup.
type Error struct {
	Kind    error
	Item    string
	Status  int
	Payload string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Status != 0:
		return fmt.Sprintf("%v: %q: status %d", e.Kind, e.Item, e.Status)
	case e.Err != nil:
		return fmt.Sprintf("%v: %q: %v", e.Kind, e.Item, e.Err)
	default:
		return fmt.Sprintf("%v: %q", e.Kind, e.Item)
	}
}

// Unwrap exposes both the failure kind and the underlying cause.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Options configures a Client.
type Options struct {
	Endpoint    string
	APIKey      string
	Currency    string
	Temperature float64
	Timeout     time.Duration
	RPS         float64
	HTTPClient  *http.Client
}

// Client talks to a chat-completions style price service.
type Client struct {
	httpClient  *http.Client
	endpoint    string
	apiKey      string
	currency    string
	temperature float64
	timeout     time.Duration
	limiter     *rate.Limiter
}

// NewClient builds a Client. A zero Timeout means 15 seconds and a zero RPS
// disables rate limiting.
func NewClient(opts Options) *Client {
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	currency := opts.Currency
	if currency == "" {
		currency = "Korean Won (KRW)"
	}
	c := &Client{
		httpClient:  hc,
		endpoint:    opts.Endpoint,
		apiKey:      opts.APIKey,
		currency:    currency,
		temperature: opts.Temperature,
		timeout:     timeout,
	}
	if opts.RPS > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(opts.RPS), 1)
	}
	return c
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// messages returns the prompt sent for item.
func (c *Client) messages(item, instructions string) []chatMessage {
	return []chatMessage{
		{Role: "system", Content: instructions},
		{Role: "user", Content: fmt.Sprintf("Find the highest and lowest prices for '%s' in %s, including VAT.", item, c.currency)},
	}
}

// Lookup implements Looker. Failures are logged once and yield an
// all-absent record; ProductName is left for the caller to fill in.
func (c *Client) Lookup(ctx context.Context, item, instructions, modelID string) model.PriceRecord {
	requests.Add(1)
	rec, err := c.Fetch(ctx, item, instructions, modelID)
	if err != nil {
		report(err)
		return model.PriceRecord{}
	}
	return rec
}

// Fetch performs the call and returns the failure instead of logging it.
func (c *Client) Fetch(ctx context.Context, item, instructions, modelID string) (model.PriceRecord, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return model.PriceRecord{}, &Error{Kind: ErrTransport, Item: item, Err: err}
		}
	}
	body, err := json.Marshal(chatRequest{
		Model:       modelID,
		Messages:    c.messages(item, instructions),
		Temperature: c.temperature,
	})
	if err != nil {
		return model.PriceRecord{}, &Error{Kind: ErrTransport, Item: item, Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return model.PriceRecord{}, &Error{Kind: ErrTransport, Item: item, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return model.PriceRecord{}, &Error{Kind: ErrTransport, Item: item, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return model.PriceRecord{}, &Error{Kind: ErrTransport, Item: item, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return model.PriceRecord{}, &Error{Kind: ErrStatus, Item: item, Status: resp.StatusCode, Payload: snippet(raw)}
	}

	var cr chatResponse
	if err := json.Unmarshal(raw, &cr); err != nil {
		return model.PriceRecord{}, &Error{Kind: ErrMalformed, Item: item, Payload: snippet(raw), Err: err}
	}
	if len(cr.Choices) == 0 {
		return model.PriceRecord{}, &Error{Kind: ErrMalformed, Item: item, Payload: snippet(raw), Err: errors.New("no choices")}
	}
	content := cr.Choices[0].Message.Content
	rec, err := ParseRecord(content)
	if err != nil {
		return model.PriceRecord{}, &Error{Kind: ErrMalformed, Item: item, Payload: content, Err: err}
	}
	return rec, nil
}

func report(err error) {
	var le *Error
	if !errors.As(err, &le) {
		obs.Logger.Warn("lookup_error", "error", err)
		return
	}
	switch {
	case errors.Is(err, ErrStatus):
		failures.Add("status", 1)
		obs.Logger.Warn("lookup_status_error", "item", le.Item, "status", le.Status, "body", le.Payload)
	case errors.Is(err, ErrMalformed):
		failures.Add("malformed", 1)
		obs.Logger.Warn("lookup_parse_error", "item", le.Item, "error", le.Err, "payload", le.Payload)
	default:
		failures.Add("transport", 1)
		obs.Logger.Warn("lookup_transport_error", "item", le.Item, "error", le.Err)
	}
}

func snippet(b []byte) string {
	const n = 512
	if len(b) > n {
		return string(b[:n])
	}
	return string(b)
}
