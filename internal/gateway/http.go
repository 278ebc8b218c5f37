package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ayo6706/interbank-transfers/internal/domain"
	"github.com/ayo6706/interbank-transfers/internal/observability"
	"github.com/ayo6706/interbank-transfers/internal/protocol"
	"go.uber.org/zap"
)

const maxErrorBody = 4 << 10

// HTTPGateway posts transfer messages over HTTP(S) using a static routing table.
type HTTPGateway struct {
	routes  *RoutingTable
	client  *http.Client
	timeout time.Duration
}

var _ Gateway = (*HTTPGateway)(nil)

// NewHTTPGateway builds a gateway. Every delivery is bounded by timeout.
func NewHTTPGateway(routes *RoutingTable, timeout time.Duration) *HTTPGateway {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPGateway{
		routes:  routes,
		client:  &http.Client{},
		timeout: timeout,
	}
}

// WithClient swaps the underlying HTTP client.
func (g *HTTPGateway) WithClient(c *http.Client) *HTTPGateway {
	if c != nil {
		g.client = c
	}
	return g
}

func (g *HTTPGateway) Routable(bankCode string) bool {
	_, ok := g.routes.Lookup(bankCode)
	return ok
}

func (g *HTTPGateway) Deliver(ctx context.Context, bankCode string, msg *protocol.Message) error {
	base, ok := g.routes.Lookup(bankCode)
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrNoRouteToBank, bankCode)
	}
	body, err := protocol.Encode(msg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+msg.Path(), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request for bank %s: %w", bankCode, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := g.client.Do(req)
	if err != nil {
		observability.ObserveOutbound(bankCode, "transport_error", time.Since(start))
		return fmt.Errorf("deliver to bank %s: %w", bankCode, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
		observability.ObserveOutbound(bankCode, "accepted", time.Since(start))
		return nil
	}

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	remote := &domain.RemoteBankError{
		BankCode: bankCode,
		Status:   resp.StatusCode,
		Message:  remoteMessage(raw, resp.StatusCode),
	}
	result := "rejected"
	if !remote.Refused() {
		result = "server_error"
	}
	observability.ObserveOutbound(bankCode, result, time.Since(start))
	zap.L().Warn("partner bank rejected transfer",
		zap.String("bank_code", bankCode),
		zap.String("transaction_id", msg.TransactionID),
		zap.Int("status", resp.StatusCode),
		zap.String("remote_message", remote.Message),
	)
	return remote
}

// remoteMessage pulls a human readable reason out of a partner's error body.
// Problem documents, {"error": ...} and {"message": ...} shapes are understood;
// anything else is passed through as text.
func remoteMessage(raw []byte, status int) string {
	var doc struct {
		Detail  string `json:"detail"`
		Title   string `json:"title"`
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &doc) == nil {
		for _, v := range []string{doc.Detail, doc.Error, doc.Message, doc.Title} {
			if strings.TrimSpace(v) != "" {
				return strings.TrimSpace(v)
			}
		}
	}
	if text := strings.TrimSpace(string(raw)); text != "" {
		return text
	}
	return http.StatusText(status)
}
