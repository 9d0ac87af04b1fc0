// Package discord provides a client for Discord's local IPC socket,
// enabling Rich Presence updates via the SET_ACTIVITY command.
//
// The [Client] type manages connection lifecycle and command framing. Every
// command waits for Discord's reply, so the socket never backs up when
// updates are pushed on a fixed cadence. Platform-specific socket discovery
// is handled by conn_unix.go and conn_windows.go.
package discord

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"sync"
	"time"
)

// ///////////////////////////////////////////////
// Sentinel Errors
// ///////////////////////////////////////////////

// ErrNotConnected is returned when an operation requires an active connection.
var ErrNotConnected = errors.New("not connected")

// ErrClosedByPeer is returned when Discord sends a CLOSE frame.
var ErrClosedByPeer = errors.New("connection closed by discord")

// ErrCommandRejected is returned when Discord answers a command with an
// ERROR event. The connection stays usable.
var ErrCommandRejected = errors.New("command rejected")

// DefaultTimeout bounds a single command round trip.
const DefaultTimeout = 5 * time.Second

// ///////////////////////////////////////////////
// Data Types
// ///////////////////////////////////////////////

// Timestamps holds the start timestamp for an activity, in Unix seconds.
type Timestamps struct {
	Start int64 `json:"start,omitempty"`
}

// Assets holds image keys and tooltip text for an activity.
type Assets struct {
	LargeImage string `json:"large_image,omitempty"`
	LargeText  string `json:"large_text,omitempty"`
	SmallImage string `json:"small_image,omitempty"`
	SmallText  string `json:"small_text,omitempty"`
}

// Activity represents a Discord Rich Presence activity.
type Activity struct {
	Details    string      `json:"details,omitempty"`
	State      string      `json:"state,omitempty"`
	Timestamps *Timestamps `json:"timestamps,omitempty"`
	Assets     *Assets     `json:"assets,omitempty"`
}

// response is the subset of a reply frame the client inspects.
type response struct {
	Cmd   string `json:"cmd"`
	Evt   string `json:"evt"`
	Nonce string `json:"nonce"`
	Data  struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"data"`
}

// ///////////////////////////////////////////////
// Client
// ///////////////////////////////////////////////

// Client manages a connection to Discord's IPC socket.
type Client struct {
	appID string

	// dial opens the raw socket. Tests replace it.
	dial func() (net.Conn, error)
	// timeout is the per-command deadline; zero disables it.
	timeout time.Duration

	// mu protects conn and nonce from concurrent access.
	mu sync.Mutex
	// conn is the active IPC socket connection, or nil when disconnected.
	conn  net.Conn
	nonce uint64
}

// NewClient creates a new Discord IPC client for the given application ID.
func NewClient(appID string) *Client {
	return &Client{
		appID:   appID,
		dial:    connectToDiscord,
		timeout: DefaultTimeout,
	}
}

// Connect establishes a connection to Discord via IPC and sends the handshake.
// An existing connection is closed first.
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.dropLocked()

	conn, err := c.dial()
	if err != nil {
		return err
	}
	c.conn = conn

	if err := c.handshake(); err != nil {
		c.dropLocked()
		return err
	}
	return nil
}

// SetActivity sends a SET_ACTIVITY command to Discord and waits for its reply.
func (c *Client) SetActivity(activity *Activity) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.command("SET_ACTIVITY", map[string]any{
		"pid":      os.Getpid(),
		"activity": activity,
	})
}

// ClearActivity sends a SET_ACTIVITY command with a nil activity.
func (c *Client) ClearActivity() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.command("SET_ACTIVITY", map[string]any{
		"pid":      os.Getpid(),
		"activity": nil,
	})
}

// Close clears the activity and closes the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}

	// Best-effort clear before closing.
	_ = c.command("SET_ACTIVITY", map[string]any{
		"pid":      os.Getpid(),
		"activity": nil,
	})
	if c.conn == nil {
		return nil
	}

	if frame, err := EncodeFrame(OpClose, []byte("{}")); err == nil {
		_, _ = c.conn.Write(frame)
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// Connected reports whether the client has an active connection.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// ///////////////////////////////////////////////
// Internal helpers
// ///////////////////////////////////////////////

// dropLocked closes and forgets the connection. The caller must hold c.mu.
func (c *Client) dropLocked() {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

// setDeadline arms the per-command deadline. The caller must hold c.mu.
func (c *Client) setDeadline() {
	if c.timeout > 0 {
		_ = c.conn.SetDeadline(time.Now().Add(c.timeout))
	}
}

// handshake sends the initial handshake frame to Discord and validates the
// response. The caller must hold c.mu.
func (c *Client) handshake() error {
	frame, err := encodeJSON(OpHandshake, map[string]any{
		"v":         1,
		"client_id": c.appID,
	})
	if err != nil {
		return fmt.Errorf("encoding handshake: %w", err)
	}
	c.setDeadline()
	if _, err = c.conn.Write(frame); err != nil {
		return fmt.Errorf("writing handshake: %w", err)
	}

	resp, err := c.readResponse()
	if err != nil {
		return fmt.Errorf("reading handshake response: %w", err)
	}
	if resp.Evt == "ERROR" {
		return fmt.Errorf("handshake rejected: %s", resp.Data.Message)
	}
	slog.Debug("discord handshake complete", "evt", resp.Evt)
	return nil
}

// command writes a command frame and reads Discord's reply. Transport
// failures drop the connection; a rejected command does not.
// The caller must hold c.mu.
func (c *Client) command(cmd string, args map[string]any) error {
	if c.conn == nil {
		return ErrNotConnected
	}

	c.nonce++
	nonce := strconv.FormatUint(c.nonce, 10)

	frame, err := encodeJSON(OpFrame, map[string]any{
		"cmd":   cmd,
		"args":  args,
		"nonce": nonce,
	})
	if err != nil {
		return fmt.Errorf("encoding command: %w", err)
	}

	c.setDeadline()
	if _, err = c.conn.Write(frame); err != nil {
		c.dropLocked()
		return fmt.Errorf("writing command: %w", err)
	}

	resp, err := c.readResponse()
	if err != nil {
		c.dropLocked()
		return fmt.Errorf("reading %s response: %w", cmd, err)
	}
	if resp.Evt == "ERROR" {
		return fmt.Errorf("%w: %s (code %d)", ErrCommandRejected, resp.Data.Message, resp.Data.Code)
	}
	return nil
}

// readResponse reads frames until a data frame arrives, answering pings on
// the way. The caller must hold c.mu.
func (c *Client) readResponse() (response, error) {
	for {
		op, payload, err := DecodeFrame(c.conn)
		if err != nil {
			return response{}, err
		}

		switch op {
		case OpFrame:
			var resp response
			if err := json.Unmarshal(payload, &resp); err != nil {
				return response{}, fmt.Errorf("parsing response: %w", err)
			}
			return resp, nil
		case OpPing:
			pong, err := EncodeFrame(OpPong, payload)
			if err != nil {
				return response{}, err
			}
			if _, err := c.conn.Write(pong); err != nil {
				return response{}, fmt.Errorf("writing pong: %w", err)
			}
		case OpClose:
			var closing struct {
				Code    int    `json:"code"`
				Message string `json:"message"`
			}
			_ = json.Unmarshal(payload, &closing)
			return response{}, fmt.Errorf("%w: %s (code %d)", ErrClosedByPeer, closing.Message, closing.Code)
		default:
			return response{}, fmt.Errorf("unexpected opcode %s", op)
		}
	}
}
