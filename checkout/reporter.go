package checkout

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/a2n2k3p4/payments-relay/models"
)

// ReconciliationClient reports ledger discrepancies to the payments backend.
type ReconciliationClient struct {
	rest *resty.Client
}

func NewReconciliationClient(backendURL string, timeout time.Duration) *ReconciliationClient {
	return &ReconciliationClient{
		rest: resty.New().
			SetBaseURL(backendURL).
			SetTimeout(timeout),
	}
}

func (c *ReconciliationClient) ReportDiscrepancy(ctx context.Context, req models.ReportDiscrepancyRequest) (*models.ReportDiscrepancyResponse, error) {
	out := &models.ReportDiscrepancyResponse{}
	resp, err := c.rest.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(out).
		Post("/reconciliations")
	if err != nil {
		return nil, fmt.Errorf("report discrepancy: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("report discrepancy: backend returned status %d", resp.StatusCode())
	}
	return out, nil
}
