package riskhttp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"trading-gate/internal/api"
	"trading-gate/internal/interfaces"
	"trading-gate/internal/types"
)

// Client talks to a risk service started with NewHandler. It implements the
// same RiskAdmitter contract as the in-process manager.
type Client struct {
	api *api.Client
}

var _ interfaces.RiskAdmitter = (*Client)(nil)

// NewClient builds a client for baseURL. timeout is applied after opts so it
// also holds for a transport installed with api.WithHTTPClient.
func NewClient(baseURL string, timeout time.Duration, opts ...api.ClientOption) *Client {
	opts = append([]api.ClientOption{
		api.WithBaseURL(strings.TrimRight(baseURL, "/")),
		api.WithLogging(true),
	}, opts...)
	if timeout > 0 {
		opts = append(opts, api.WithTimeout(timeout))
	}
	return &Client{api: api.NewClient(opts...)}
}

func (c *Client) CanAdmit(ctx context.Context, proposedRisk decimal.Decimal) (types.Decision, error) {
	var d types.Decision
	err := c.post(ctx, canAdmitPath, canAdmitRequest{ProposedRisk: proposedRisk}, &d)
	return d, err
}

// Admit assigns a position ID before sending so that the service and the
// caller agree on it even if the response is lost.
func (c *Client) Admit(ctx context.Context, p types.Position) (types.Decision, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	var d types.Decision
	err := c.post(ctx, admitPath, p, &d)
	return d, err
}

func (c *Client) RegisterEntry(ctx context.Context, p types.Position) error {
	return c.post(ctx, entriesPath, p, nil)
}

func (c *Client) RegisterExit(ctx context.Context, positionID string, realizedPnL decimal.Decimal) error {
	return c.post(ctx, exitsPath, exitRequest{PositionID: positionID, RealizedPnL: realizedPnL}, nil)
}

func (c *Client) CheckDailyLoss(ctx context.Context) (bool, error) {
	var resp checkResponse
	err := c.post(ctx, checkPath, struct{}{}, &resp)
	return resp.CircuitBreaker, err
}

func (c *Client) ResetDay(ctx context.Context, day time.Time, equity decimal.Decimal) error {
	return c.post(ctx, resetPath, resetRequest{Day: day.Format("2006-01-02"), Equity: equity}, nil)
}

// Snapshot is a read and is retried on transport errors and 5xx responses.
func (c *Client) Snapshot(ctx context.Context) (types.RiskSnapshot, error) {
	var snap types.RiskSnapshot
	req := api.NewRequest(http.MethodGet, statePath).WithContext(ctx)
	resp, err := c.api.DoWithRetry(req, nil)
	if err != nil {
		return snap, decodeError(err)
	}
	return snap, resp.ParseJSON(&snap)
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	resp, err := c.api.POST(ctx, path, body)
	if err != nil {
		return decodeError(err)
	}
	if out == nil {
		return nil
	}
	return resp.ParseJSON(out)
}

// decodeError maps a service error response back onto the risk sentinels.
func decodeError(err error) error {
	var se *api.StatusError
	if !errors.As(err, &se) {
		return err
	}
	var body errorResponse
	if json.Unmarshal(se.Body, &body) != nil || body.Code == "" {
		return err
	}
	if sentinel, ok := codeErrors[body.Code]; ok {
		return fmt.Errorf("%w: risk service: %s", sentinel, body.Error)
	}
	return fmt.Errorf("risk service: HTTP %d: %s", se.StatusCode, body.Error)
}
