package mcp

import "github.com/rpggio/sendgate/internal/domain/dispatch"

type EmptyParams struct{}

type RequestPairingCodeParams struct {
	Phone string `json:"phone" jsonschema:"phone number with country code, digits only or formatted"`
}

type SendBulkParams struct {
	Messages []dispatch.OutgoingMessage `json:"messages" jsonschema:"messages to send in order"`
}

type PairingArtifactResponse struct {
	QR string `json:"qr"`
}

type PairingCodeResponse struct {
	Code string `json:"code"`
}

type DisconnectResponse struct {
	Disconnected bool `json:"disconnected"`
}
