package netio

import (
	"bufio"
	"net"
	"sync"
	"testing"
	"time"
)

func pipeSockets(t *testing.T) (client, server net.Conn) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c, err := ln.Accept()
		if err != nil {
			t.Error(err)
			return
		}
		server = c
	}()
	client, err = net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	wg.Wait()
	return client, server
}

func TestSocketWriteAndReadLine(t *testing.T) {
	client, server := pipeSockets(t)
	defer client.Close()
	defer server.Close()

	lines := make(chan string, 4)
	errs := make(chan error, 1)
	srvSock := NewSocket(server, func(l string) { lines <- l }, func(k ErrorKind, e error) { errs <- e })
	defer srvSock.Close()

	if err := srvSock.Write("PING :abc"); err != nil {
		t.Fatal(err)
	}

	reader := bufio.NewReader(client)
	got, err := reader.ReadString('\n')
	if err != nil {
		t.Fatal(err)
	}
	if trimCRLF(got) != "PING :abc" {
		t.Errorf("got %q", got)
	}

	client.Write([]byte("NICK alice\r\n"))
	select {
	case l := <-lines:
		if l != "NICK alice" {
			t.Errorf("activity line = %q", l)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for activity callback")
	}
}

func TestSocketPeerCloseInvokesErrorCallback(t *testing.T) {
	client, server := pipeSockets(t)
	defer server.Close()

	errs := make(chan ErrorKind, 1)
	srvSock := NewSocket(server, func(string) {}, func(k ErrorKind, e error) { errs <- k })
	defer srvSock.Close()

	client.Close()

	select {
	case k := <-errs:
		if k != ErrPeerClosed {
			t.Errorf("kind = %v, want ErrPeerClosed", k)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for error callback")
	}
}

func TestSocketThrottleWindow(t *testing.T) {
	client, server := pipeSockets(t)
	defer client.Close()
	defer server.Close()

	srvSock := NewSocket(server, func(string) {}, func(ErrorKind, error) {})
	defer srvSock.Close()
	srvSock.SetThrottle(16, 100*time.Millisecond)

	payload := make([]byte, 64)
	for i := range payload {
		payload[i] = 'x'
	}
	srvSock.WriteRaw(payload)

	time.Sleep(30 * time.Millisecond)
	client.SetReadDeadline(time.Now().Add(20 * time.Millisecond))
	buf := make([]byte, 128)
	n, _ := client.Read(buf)
	if n > 16 {
		t.Errorf("read %d bytes in first window, want <= 16", n)
	}
}
