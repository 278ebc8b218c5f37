package gateway

import (
	"context"

	"github.com/ayo6706/interbank-transfers/internal/protocol"
)

// Gateway delivers signed transfer messages to partner banks.
//
//go:generate mockgen -destination=mocks/mock_gateway.go -package=mocks -source=gateway.go Gateway
type Gateway interface {
	// Routable reports whether a route to bankCode is configured.
	Routable(bankCode string) bool
	// Deliver posts msg to the bank's transfer endpoint for the message kind.
	// A non-2xx answer is returned as *domain.RemoteBankError. Only a 4xx is a
	// definite refusal; a 5xx or any other error means the outcome at the
	// counterpart is unknown.
	Deliver(ctx context.Context, bankCode string, msg *protocol.Message) error
}
