package mcp

import (
	"context"
	"errors"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rpggio/sendgate/internal/domain/dispatch"
	"github.com/rpggio/sendgate/internal/domain/message"
	"github.com/rpggio/sendgate/internal/domain/session"
)

func registerTools(server *sdkmcp.Server, svc Services) {
	// Session lifecycle
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "initialize_session",
		Description: "Start the WhatsApp client for this tenant, resuming a stored pairing when one exists",
	}, func(ctx context.Context, _ *sdkmcp.CallToolRequest, _ EmptyParams) (*sdkmcp.CallToolResult, session.Status, error) {
		tenantID := getTenantID(ctx)
		if err := svc.Sessions.Initialize(ctx, tenantID, false); err != nil && !errors.Is(err, session.ErrInitInProgress) {
			return nil, session.Status{}, toolError(err)
		}
		status, err := svc.Sessions.GetStatus(ctx, tenantID)
		if err != nil {
			return nil, session.Status{}, toolError(err)
		}
		return nil, status, nil
	})

	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "get_pairing_artifact",
		Description: "Get the current pairing QR code as a PNG data URL; starts the session if needed",
	}, func(ctx context.Context, _ *sdkmcp.CallToolRequest, _ EmptyParams) (*sdkmcp.CallToolResult, PairingArtifactResponse, error) {
		artifact, err := svc.Sessions.GetPairingArtifact(ctx, getTenantID(ctx))
		if err != nil {
			return nil, PairingArtifactResponse{}, toolError(err)
		}
		return nil, PairingArtifactResponse{QR: artifact}, nil
	})

	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "request_pairing_code",
		Description: "Request an eight character code that pairs the given phone without scanning a QR code",
	}, func(ctx context.Context, _ *sdkmcp.CallToolRequest, in RequestPairingCodeParams) (*sdkmcp.CallToolResult, PairingCodeResponse, error) {
		code, err := svc.Sessions.RequestPairingCode(ctx, getTenantID(ctx), in.Phone)
		if err != nil {
			return nil, PairingCodeResponse{}, toolError(err)
		}
		return nil, PairingCodeResponse{Code: code}, nil
	})

	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "get_status",
		Description: "Report whether the tenant's WhatsApp account is connected and which phone number it uses",
	}, func(ctx context.Context, _ *sdkmcp.CallToolRequest, _ EmptyParams) (*sdkmcp.CallToolResult, session.Status, error) {
		status, err := svc.Sessions.GetStatus(ctx, getTenantID(ctx))
		if err != nil {
			return nil, session.Status{}, toolError(err)
		}
		return nil, status, nil
	})

	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "disconnect_session",
		Description: "Log out, forget the stored pairing and mark the tenant disconnected",
	}, func(ctx context.Context, _ *sdkmcp.CallToolRequest, _ EmptyParams) (*sdkmcp.CallToolResult, DisconnectResponse, error) {
		if err := svc.Sessions.Disconnect(ctx, getTenantID(ctx)); err != nil {
			return nil, DisconnectResponse{}, toolError(err)
		}
		return nil, DisconnectResponse{Disconnected: true}, nil
	})

	// Messaging
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "send_bulk",
		Description: "Send a batch of text messages. The batch is rejected before sending when quota or length limits would be exceeded",
	}, func(ctx context.Context, _ *sdkmcp.CallToolRequest, in SendBulkParams) (*sdkmcp.CallToolResult, dispatch.Result, error) {
		result, err := svc.Dispatch.SendBulk(ctx, getTenantID(ctx), in.Messages)
		if err != nil {
			return nil, dispatch.Result{}, toolError(err)
		}
		return nil, *result, nil
	})

	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "message_statistics",
		Description: "Count the tenant's logged messages by delivery status",
	}, func(ctx context.Context, _ *sdkmcp.CallToolRequest, _ EmptyParams) (*sdkmcp.CallToolResult, message.Statistics, error) {
		stats, err := svc.Messages.Statistics(ctx, getTenantID(ctx))
		if err != nil {
			return nil, message.Statistics{}, toolError(err)
		}
		return nil, stats, nil
	})
}
