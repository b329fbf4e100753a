package main

import (
	"net"
	"os"
	"time"
)

// stdioConn adapts os.Stdin/os.Stdout to net.Conn so -I (inetd mode) can
// hand an already-accepted socket to HandleClientConn without it knowing
// the difference (spec.md §8 "-I inetd mode").
type stdioConn struct{}

func (stdioConn) Read(p []byte) (int, error)  { return os.Stdin.Read(p) }
func (stdioConn) Write(p []byte) (int, error) { return os.Stdout.Write(p) }
func (stdioConn) Close() error {
	_ = os.Stdin.Close()
	return os.Stdout.Close()
}
func (stdioConn) LocalAddr() net.Addr                { return stdioAddr{} }
func (stdioConn) RemoteAddr() net.Addr                { return stdioAddr{} }
func (stdioConn) SetDeadline(t time.Time) error       { return nil }
func (stdioConn) SetReadDeadline(t time.Time) error   { return nil }
func (stdioConn) SetWriteDeadline(t time.Time) error  { return nil }

type stdioAddr struct{}

func (stdioAddr) Network() string { return "stdio" }
func (stdioAddr) String() string  { return "stdio" }
