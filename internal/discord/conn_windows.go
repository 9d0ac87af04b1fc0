//go:build windows

package discord

import (
	"fmt"
	"net"
	"time"

	"github.com/Microsoft/go-winio"
)

// dialTimeout bounds a single pipe probe.
const dialTimeout = time.Second

// connectToDiscord returns a connection to the first discord-ipc named pipe
// that accepts.
func connectToDiscord() (net.Conn, error) {
	timeout := dialTimeout
	for i := range maxIPCSlots {
		conn, err := winio.DialPipe(fmt.Sprintf(`\\.\pipe\discord-ipc-%d`, i), &timeout)
		if err == nil {
			return conn, nil
		}
	}
	return nil, ErrIPCNotAvailable
}
