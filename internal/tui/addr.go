package tui

import (
	"fmt"
	"net"
)

// DaemonURL turns a daemon listen address such as ":5000" into a URL the client can dial.
// Wildcard hosts are reached over loopback.
func DaemonURL(listen string) (string, error) {
	host, port, err := net.SplitHostPort(listen)
	if err != nil {
		return "", fmt.Errorf("listen address %q: %w", listen, err)
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port), nil
}
