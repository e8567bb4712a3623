package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

// Gateway creates invoices with the external payment provider. Constructed
// once at process start and injected into the booking service.
type Gateway interface {
	CreateInvoice(ctx context.Context, paymentID uuid.UUID, amount float64) (string, error)
}

type HTTPGateway struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewHTTPGateway(baseURL, apiKey string) *HTTPGateway {
	return &HTTPGateway{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

func (g *HTTPGateway) CreateInvoice(ctx context.Context, paymentID uuid.UUID, amount float64) (string, error) {
	body, err := json.Marshal(map[string]interface{}{
		"external_id": paymentID.String(),
		"amount":      amount,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/v2/invoices", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(g.apiKey, "")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "gateway invoice request")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("gateway invoice request returned %d", resp.StatusCode)
	}

	var invoice struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&invoice); err != nil {
		return "", errors.Wrap(err, "decode gateway invoice")
	}
	return invoice.ID, nil
}
