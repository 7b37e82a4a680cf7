// Package clients holds the NATS request/reply clients for the content
// service: the loop catalog lookup and the access grant.
package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/loopmarket/payment-service/internal/interfaces"
)

const requestTimeout = 5 * time.Second

type LoopCatalogClient struct {
	nc *nats.Conn
}

func NewLoopCatalogClient(nc *nats.Conn) *LoopCatalogClient {
	return &LoopCatalogClient{nc: nc}
}

type loopRequest struct {
	LoopID string `json:"loop_id"`
}

type loopResponse struct {
	Price     int64  `json:"price"`
	IsPremium bool   `json:"is_premium"`
	Error     string `json:"error,omitempty"`
}

func (c *LoopCatalogClient) GetLoop(ctx context.Context, itemRef string) (*interfaces.LoopInfo, error) {
	data, err := json.Marshal(loopRequest{LoopID: itemRef})
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	msg, err := c.nc.RequestWithContext(ctx, "loops.get", data)
	if err != nil {
		return nil, fmt.Errorf("loop catalog request: %w", err)
	}

	var resp loopResponse
	if err := json.Unmarshal(msg.Data, &resp); err != nil {
		return nil, fmt.Errorf("decoding loop catalog reply: %w", err)
	}
	if resp.Error == "not_found" {
		return nil, interfaces.ErrLoopNotFound
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("loop catalog: %s", resp.Error)
	}

	return &interfaces.LoopInfo{Price: resp.Price, IsPremium: resp.IsPremium}, nil
}

type AccessGrantClient struct {
	nc *nats.Conn
}

func NewAccessGrantClient(nc *nats.Conn) *AccessGrantClient {
	return &AccessGrantClient{nc: nc}
}

type grantRequest struct {
	UserID string `json:"user_id"`
	LoopID string `json:"loop_id"`
}

type grantResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// GrantAccess asks the content service to mark the payer as entitled to the
// loop. The content-service handler is idempotent, so a duplicate grant for a
// replayed payment is harmless.
func (c *AccessGrantClient) GrantAccess(ctx context.Context, payerRef, itemRef string) error {
	data, err := json.Marshal(grantRequest{UserID: payerRef, LoopID: itemRef})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	msg, err := c.nc.RequestWithContext(ctx, "access.grant", data)
	if err != nil {
		return fmt.Errorf("access grant request: %w", err)
	}

	var resp grantResponse
	if err := json.Unmarshal(msg.Data, &resp); err != nil {
		return fmt.Errorf("decoding access grant reply: %w", err)
	}
	if !resp.OK {
		return fmt.Errorf("access grant refused: %s", resp.Error)
	}
	return nil
}
