package transport

import (
	"net"
	"time"
)

func listenTCP(target string) (net.Listener, error) {
	return net.Listen("tcp", target)
}

func dialTCP(target string, timeout time.Duration) (net.Conn, error) {
	if timeout <= 0 {
		return net.Dial("tcp", target)
	}
	return net.DialTimeout("tcp", target, timeout)
}
