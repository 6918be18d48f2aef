package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
)

const (
	defaultTimeout       = 10 * time.Second
	maxResponseSizeBytes = 2 << 20

	pathCustomers     = "/api/customers"
	pathProfessionals = "/api/professionals"
	pathServices      = "/api/services"
	pathAppointments  = "/api/appointments"
)

type ClientOption func(*Client)

func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// Client talks to the appointments backend. It keeps no per-call state and
// is safe for concurrent use.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func NewClient(cfg Config, opts ...ClientOption) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("backend base url is required")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid backend url: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	c := &Client{
		baseURL: baseURL,
		token:   strings.TrimSpace(cfg.Token),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

// Close releases idle keep-alive connections.
func (c *Client) Close() {
	if c != nil && c.httpClient != nil {
		c.httpClient.CloseIdleConnections()
	}
}

func (c *Client) FindCustomers(ctx context.Context, cpf string) ([]Record, error) {
	return c.lookup(ctx, "find customers", pathCustomers, url.Values{"cpf": {cpf}})
}

func (c *Client) CreateCustomer(ctx context.Context, name, cpf string) (Record, error) {
	body, _, err := c.do(ctx, "create customer", http.MethodPost, pathCustomers, nil, map[string]string{
		"name": name,
		"cpf":  cpf,
	})
	if err != nil {
		return Record{}, err
	}

	records := parseRecords(body)
	if len(records) == 0 {
		return Record{}, &StatusError{
			Op:         "create customer",
			StatusCode: http.StatusOK,
			Detail:     "response carries no customer id",
			Body:       body,
		}
	}
	return records[0], nil
}

func (c *Client) FindServices(ctx context.Context, name string) ([]Record, error) {
	return c.lookup(ctx, "find services", pathServices, url.Values{"name": {name}})
}

func (c *Client) FindProfessionals(ctx context.Context, q ProfessionalQuery) ([]Record, error) {
	query := url.Values{}
	if cpf := strings.TrimSpace(q.CPF); cpf != "" {
		query.Set("cpf", cpf)
	}
	if len(q.ServiceID) > 0 {
		query.Set("service_id", Record{ID: q.ServiceID}.IDString())
	}
	if len(query) == 0 {
		return nil, errors.New("professional query needs a cpf or a service id")
	}
	return c.lookup(ctx, "find professionals", pathProfessionals, query)
}

func (c *Client) CreateAppointment(ctx context.Context, payload AppointmentPayload) (*Confirmation, error) {
	body, status, err := c.do(ctx, "create appointment", http.MethodPost, pathAppointments, nil, payload)
	if err != nil {
		return nil, err
	}
	return &Confirmation{StatusCode: status, Body: confirmationBody(body)}, nil
}

// confirmationBody keeps a JSON answer byte for byte. Anything else is
// carried as a JSON string, and an empty body as null, so the confirmation
// always re-encodes.
func confirmationBody(body []byte) json.RawMessage {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return json.RawMessage("null")
	}
	if gjson.ValidBytes(trimmed) {
		return json.RawMessage(body)
	}
	quoted, err := json.Marshal(string(trimmed))
	if err != nil {
		return json.RawMessage("null")
	}
	return json.RawMessage(quoted)
}

// lookup treats 404 as an empty result set.
func (c *Client) lookup(ctx context.Context, op, path string, query url.Values) ([]Record, error) {
	body, _, err := c.do(ctx, op, http.MethodGet, path, query, nil)
	if err != nil {
		var statusErr *StatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
			return nil, nil
		}
		return nil, err
	}
	return parseRecords(body), nil
}

func (c *Client) do(
	ctx context.Context,
	op string,
	method string,
	path string,
	query url.Values,
	payload any,
) ([]byte, int, error) {
	if c == nil {
		return nil, 0, errors.New("nil backend client")
	}

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reqBody io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, 0, fmt.Errorf("marshal %s payload: %w", op, err)
		}
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return nil, 0, fmt.Errorf("build %s request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSizeBytes))
	if err != nil {
		return nil, resp.StatusCode, &TransportError{Op: op, Err: fmt.Errorf("read response: %w", err)}
	}

	log.Debug().
		Str("op", op).
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(started)).
		Msg("backend call")

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, resp.StatusCode, &StatusError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Detail:     errorDetail(resp.StatusCode, raw),
			Body:       raw,
		}
	}
	return raw, resp.StatusCode, nil
}
