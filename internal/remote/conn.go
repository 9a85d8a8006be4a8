package remote

import (
	"net"
	"time"
)

// idleTimeoutConn 每次读写前把截止时间推后 timeout，
// 对端停止响应超过 timeout 时读写返回超时错误，而不是永久阻塞。
type idleTimeoutConn struct {
	net.Conn
	timeout time.Duration
}

func withIdleTimeout(conn net.Conn, timeout time.Duration) net.Conn {
	if timeout <= 0 {
		return conn
	}
	return &idleTimeoutConn{Conn: conn, timeout: timeout}
}

func (c *idleTimeoutConn) Read(b []byte) (int, error) {
	if err := c.Conn.SetDeadline(time.Now().Add(c.timeout)); err != nil {
		return 0, err
	}
	return c.Conn.Read(b)
}

func (c *idleTimeoutConn) Write(b []byte) (int, error) {
	if err := c.Conn.SetDeadline(time.Now().Add(c.timeout)); err != nil {
		return 0, err
	}
	return c.Conn.Write(b)
}
