package provider

import (
	"context"
)

// SendRequestDetails holds the data for one gateway send.
type SendRequestDetails struct {
	JobID       string // For log correlation only
	RecipientID int
	PhoneNumber string
	Message     string
}

// SendResponseDetails holds the gateway's answer to an accepted send.
type SendResponseDetails struct {
	// GatewayStatus is the status reported by the gateway, e.g. "SENT" or "DELIVERED".
	GatewayStatus string
	// RawResponse is the response body as received.
	RawResponse string
	StatusCode  int
}

// SMSSenderProvider sends one message to one phone number. Any returned error
// means the attempt failed; the response may still carry what the gateway said.
type SMSSenderProvider interface {
	Send(ctx context.Context, details SendRequestDetails) (*SendResponseDetails, error)
	GetName() string
}
