package propsvc

import (
	"context"
	"fmt"
	"net"
	"time"
)

// DefaultTimeout bounds a set request when the caller's context carries no
// deadline of its own.
const DefaultTimeout = 5 * time.Second

// Client sends property write requests to the privileged daemon. Unprivileged
// processes cannot mutate the shared area directly; this is their only write
// path. The zero value is not usable; construct with NewClient.
type Client struct {
	socketPath string
}

// NewClient returns a client for the daemon listening at socketPath.
func NewClient(socketPath string) *Client {
	return &Client{socketPath: socketPath}
}

// Set asks the daemon to apply one property write and waits for its status.
// Connection failures surface as ErrConnectFailed; a refusal by the daemon's
// policy surfaces as ErrPermissionDenied; validation failures map back onto
// the same errors a local write would produce.
func (c *Client) Set(ctx context.Context, name, value string) error {
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(DefaultTimeout)
	}

	d := net.Dialer{Deadline: deadline}
	conn, err := d.DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConnectFailed, err)
	}
	defer conn.Close()

	if err := conn.SetDeadline(deadline); err != nil {
		return fmt.Errorf("property request setup failed: %w", err)
	}

	if err := writeSetRequest(conn, name, value); err != nil {
		return fmt.Errorf("property request write failed: %w", err)
	}
	status, err := readStatus(conn)
	if err != nil {
		return fmt.Errorf("property response read failed: %w", err)
	}
	return status.Err()
}
