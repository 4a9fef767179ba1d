package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	id "swiftclaim/pkg/domain"
)

// Client talks HTTP/JSON to the settlement authority's claim endpoints.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewClient creates a gateway client. The timeout bounds each call; a timed
// out call may still have been applied on the authority's side.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
	}
}

// revertEnvelope is the authority's refusal response body.
type revertEnvelope struct {
	Reverted struct {
		Reason string `json:"reason"`
		TxHash string `json:"tx_hash"`
	} `json:"reverted"`
}

// SubmitClaim opens a claim on the ledger and returns its assigned ID.
func (c *Client) SubmitClaim(ctx context.Context, req SubmitRequest) (*SubmitReceipt, error) {
	var receipt SubmitReceipt
	if err := c.post(ctx, "/claims/submit", req, &receipt); err != nil {
		return nil, err
	}
	if receipt.ClaimID == 0 || receipt.TxHash == "" {
		return nil, fmt.Errorf("malformed submit receipt: %+v", receipt)
	}
	return &receipt, nil
}

// VerifyClaim marks a claim verified on the ledger.
func (c *Client) VerifyClaim(ctx context.Context, claimID id.ClaimID) (*Receipt, error) {
	var receipt Receipt
	path := "/claims/" + claimID.String() + "/verify"
	if err := c.post(ctx, path, nil, &receipt); err != nil {
		return nil, err
	}
	if receipt.TxHash == "" {
		return nil, fmt.Errorf("malformed verify receipt: %+v", receipt)
	}
	return &receipt, nil
}

// SettleClaim pays out a claim on the ledger.
func (c *Client) SettleClaim(ctx context.Context, claimID id.ClaimID, amount id.Amount) (*SettleReceipt, error) {
	var receipt SettleReceipt
	path := "/claims/" + claimID.String() + "/settle"
	body := map[string]int64{"amount": int64(amount)}
	if err := c.post(ctx, path, body, &receipt); err != nil {
		return nil, err
	}
	if receipt.TxHash == "" {
		return nil, fmt.Errorf("malformed settle receipt: %+v", receipt)
	}
	return &receipt, nil
}

// ClaimState queries the authority's view of a claim.
func (c *Client) ClaimState(ctx context.Context, claimID id.ClaimID) (*ClaimState, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/claims/"+claimID.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build ledger request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, transportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return &ClaimState{Exists: false}, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp.StatusCode)
	}

	var state ClaimState
	if err := json.NewDecoder(resp.Body).Decode(&state); err != nil {
		return nil, fmt.Errorf("decode claim state: %w", err)
	}
	state.Exists = true
	return &state, nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	var payload bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&payload).Encode(body); err != nil {
			return fmt.Errorf("encode ledger request: %w", err)
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &payload)
	if err != nil {
		return fmt.Errorf("build ledger request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.setHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return transportError(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode ledger receipt: %w", err)
		}
		return nil
	case resp.StatusCode == http.StatusUnprocessableEntity:
		var envelope revertEnvelope
		if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
			return fmt.Errorf("decode revert response: %w", err)
		}
		return &RevertedError{
			Reason: envelope.Reverted.Reason,
			TxHash: id.TxHash(envelope.Reverted.TxHash),
		}
	default:
		return statusError(resp.StatusCode)
	}
}

func (c *Client) setHeaders(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

func transportError(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	return fmt.Errorf("%w: %v", ErrUnreachable, err)
}

func statusError(status int) error {
	if status == http.StatusGatewayTimeout {
		return ErrTimeout
	}
	return fmt.Errorf("%w: status %s", ErrUnreachable, strconv.Itoa(status))
}
