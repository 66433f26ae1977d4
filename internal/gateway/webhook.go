package gateway

import (
	"encoding/json"
	"fmt"
)

// Webhook event names
const (
	EventChargeSuccess    = "charge.success"
	EventTransferSuccess  = "transfer.success"
	EventTransferFailed   = "transfer.failed"
	EventTransferReversed = "transfer.reversed"
)

// WebhookEvent is a verified provider notification
type WebhookEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// ChargeData is the payload of charge events
type ChargeData struct {
	Reference       string `json:"reference"`
	Status          string `json:"status"`
	Amount          int64  `json:"amount"`
	Channel         string `json:"channel"`
	GatewayResponse string `json:"gateway_response"`
}

// TransferData is the payload of transfer events
type TransferData struct {
	TransferCode string `json:"transfer_code"`
	Reference    string `json:"reference"`
	Status       string `json:"status"`
	Reason       string `json:"reason"`
	Amount       int64  `json:"amount"`
}

// ParseWebhook decodes a webhook body
func ParseWebhook(body []byte) (*WebhookEvent, error) {
	var evt WebhookEvent
	if err := json.Unmarshal(body, &evt); err != nil {
		return nil, fmt.Errorf("invalid webhook payload: %w", err)
	}
	if evt.Event == "" {
		return nil, fmt.Errorf("invalid webhook payload: missing event")
	}
	return &evt, nil
}

// Charge decodes the event data as a charge
func (e *WebhookEvent) Charge() (*ChargeData, error) {
	var d ChargeData
	if err := json.Unmarshal(e.Data, &d); err != nil {
		return nil, fmt.Errorf("invalid charge data: %w", err)
	}
	return &d, nil
}

// Transfer decodes the event data as a transfer
func (e *WebhookEvent) Transfer() (*TransferData, error) {
	var d TransferData
	if err := json.Unmarshal(e.Data, &d); err != nil {
		return nil, fmt.Errorf("invalid transfer data: %w", err)
	}
	return &d, nil
}

// RawData returns the event data as a map for storing on records
func (e *WebhookEvent) RawData() map[string]any {
	var m map[string]any
	_ = json.Unmarshal(e.Data, &m)
	return m
}
