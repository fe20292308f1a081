package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/a2n2k3p4/payments-relay/models"
)

const addCreditsPath = "/api/credits/add/"

// Client talks to the external credits ledger.
type Client struct {
	rest *resty.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		rest: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(timeout).
			SetHeader("Content-Type", "application/json"),
	}
}

// AddCredits posts a credit. The returned response carries whatever message
// the ledger sent, also on non-2xx statuses; callers decide success with Applied.
func (c *Client) AddCredits(ctx context.Context, req models.AddCreditsRequest) (*models.AddCreditsResponse, error) {
	out := &models.AddCreditsResponse{}

	resp, err := c.rest.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(out).
		SetError(out).
		Post(addCreditsPath)
	if err != nil {
		return nil, fmt.Errorf("add credits: %w", err)
	}
	if resp.IsError() {
		return out, fmt.Errorf("add credits: ledger returned status %d", resp.StatusCode())
	}
	return out, nil
}

// Applied reports whether the ledger confirmed the credit.
func Applied(resp *models.AddCreditsResponse) bool {
	return resp != nil && resp.Message == models.CreditsAddedMessage
}
