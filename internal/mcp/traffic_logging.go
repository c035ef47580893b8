package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

// trafficLoggingMiddleware logs every request and response at debug level.
// Tool calls are also logged at info level with their outcome.
func trafficLoggingMiddleware(logger *slog.Logger, direction string) sdkmcp.Middleware {
	return func(next sdkmcp.MethodHandler) sdkmcp.MethodHandler {
		return func(ctx context.Context, method string, req sdkmcp.Request) (sdkmcp.Result, error) {
			if logger == nil {
				return next(ctx, method, req)
			}

			tenantID := getTenantID(ctx)
			debug := logger.Enabled(ctx, slog.LevelDebug)
			if debug {
				logger.Debug("mcp traffic", "direction", direction, "stage", "request", "method", method, "session_id", safeSessionID(req), "tenant_id", tenantID, "params", formatPayload(safeParams(req)))
			}

			result, err := next(ctx, method, req)

			if method == "tools/call" && direction == "inbound" {
				logToolCall(ctx, logger, tenantID, req, result, err)
			}
			if debug && !strings.HasPrefix(method, "notifications/") {
				logger.Debug("mcp traffic", "direction", direction, "stage", "response", "method", method, "tenant_id", tenantID, "result", formatPayload(result), "error", err)
			}

			return result, err
		}
	}
}

func logToolCall(ctx context.Context, logger *slog.Logger, tenantID string, req sdkmcp.Request, result sdkmcp.Result, err error) {
	name := ""
	if params, ok := safeParams(req).(*sdkmcp.CallToolParamsRaw); ok && params != nil {
		name = params.Name
	}
	switch res, _ := result.(*sdkmcp.CallToolResult); {
	case err != nil:
		logger.WarnContext(ctx, "tool call failed", "tool", name, "tenant_id", tenantID, "error", err)
	case res != nil && res.IsError:
		logger.InfoContext(ctx, "tool call rejected", "tool", name, "tenant_id", tenantID)
	default:
		logger.InfoContext(ctx, "tool call", "tool", name, "tenant_id", tenantID)
	}
}

func safeSessionID(req sdkmcp.Request) string {
	if req == nil {
		return ""
	}
	defer func() { recover() }()
	session := req.GetSession()
	if session == nil {
		return ""
	}
	return session.ID()
}

func safeParams(req sdkmcp.Request) any {
	if req == nil {
		return nil
	}
	defer func() { recover() }()
	return req.GetParams()
}

func formatPayload(payload any) string {
	if payload == nil {
		return "<nil>"
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Sprintf("%T", payload)
	}
	return string(data)
}
