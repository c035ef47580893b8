package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/rpggio/sendgate/internal/domain/session"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"
)

// DefaultPairDisplayName is shown on the phone when pairing by code. It must look like "Browser (OS)".
const DefaultPairDisplayName = "Chrome (Linux)"

// ErrNotPaired is returned by Send before the device has been linked.
var ErrNotPaired = errors.New("device is not paired")

// Factory creates protocol clients backed by a shared device store.
type Factory struct {
	container       *sqlstore.Container
	pairDisplayName string
	logger          *slog.Logger
	waLogger        waLog.Logger
}

// NewFactory creates a Factory. pairDisplayName may be empty.
func NewFactory(container *sqlstore.Container, pairDisplayName string, logger *slog.Logger) *Factory {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if pairDisplayName == "" {
		pairDisplayName = DefaultPairDisplayName
	}
	return &Factory{
		container:       container,
		pairDisplayName: pairDisplayName,
		logger:          logger,
		waLogger:        NewLogger(logger, "client"),
	}
}

// Create builds a client for tenantID and starts connecting it.
// Stored credentials resume the paired device; otherwise a fresh device raises a pairing challenge.
func (f *Factory) Create(ctx context.Context, tenantID string, creds session.Credentials, handler session.EventHandler) (session.Client, error) {
	device, err := f.device(ctx, tenantID, creds)
	if err != nil {
		return nil, err
	}

	cli := whatsmeow.NewClient(device, f.waLogger.Sub(tenantID))
	// Reconnects are owned by the session supervisor.
	cli.EnableAutoReconnect = false
	cli.AddEventHandler(func(evt any) {
		if ev, ok := translateEvent(evt, cli.Store.ID); ok {
			handler(ev)
		}
	})

	if err := cli.Connect(); err != nil {
		cli.Disconnect()
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	return &Client{cli: cli, pairDisplayName: f.pairDisplayName}, nil
}

func (f *Factory) device(ctx context.Context, tenantID string, creds session.Credentials) (*store.Device, error) {
	if creds.Empty() {
		return f.container.NewDevice(), nil
	}

	jid, err := types.ParseJID(creds.DeviceID)
	if err != nil {
		return nil, fmt.Errorf("invalid stored device id %q: %w", creds.DeviceID, err)
	}
	device, err := f.container.GetDevice(ctx, jid)
	if err != nil {
		return nil, fmt.Errorf("failed to load device: %w", err)
	}
	if device == nil {
		f.logger.Warn("stored device missing from protocol store, pairing again", "tenant_id", tenantID, "device_id", creds.DeviceID)
		return f.container.NewDevice(), nil
	}
	return device, nil
}

// Client adapts a whatsmeow client to session.Client.
type Client struct {
	cli             *whatsmeow.Client
	pairDisplayName string
}

// Send delivers a text message to a phone number given as digits and returns the remote message id.
func (c *Client) Send(ctx context.Context, destination, body string) (string, error) {
	if c.cli.Store.ID == nil {
		return "", ErrNotPaired
	}
	resp, err := c.cli.SendMessage(ctx, recipientJID(destination), &waE2E.Message{
		Conversation: proto.String(body),
	})
	if err != nil {
		return "", err
	}
	return string(resp.ID), nil
}

// RequestPairingCode asks the server for a code that links the phone number to this device.
func (c *Client) RequestPairingCode(ctx context.Context, phoneDigits string) (string, error) {
	return c.cli.PairPhone(ctx, phoneDigits, true, whatsmeow.PairClientChrome, c.pairDisplayName)
}

// Logout unlinks the device from the account.
func (c *Client) Logout(ctx context.Context) error {
	return c.cli.Logout(ctx)
}

// Close drops the connection without unlinking the device.
func (c *Client) Close() error {
	c.cli.Disconnect()
	return nil
}

// Identity returns the paired phone number, or "" before pairing.
func (c *Client) Identity() string {
	if c.cli.Store.ID == nil {
		return ""
	}
	return c.cli.Store.ID.User
}

func recipientJID(digits string) types.JID {
	return types.NewJID(digits, types.DefaultUserServer)
}
