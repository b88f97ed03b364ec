package fetch

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"
)

// stallingFTPServer accepts connections, optionally sends a greeting and
// then never answers another command.
func stallingFTPServer(t *testing.T, greeting string) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	var mu sync.Mutex
	var conns []net.Conn
	t.Cleanup(func() {
		_ = ln.Close()
		mu.Lock()
		defer mu.Unlock()
		for _, c := range conns {
			_ = c.Close()
		}
	})

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			mu.Lock()
			conns = append(conns, conn)
			mu.Unlock()
			if greeting != "" {
				_, _ = io.WriteString(conn, greeting)
			}
			go func() {
				_, _ = io.Copy(io.Discard, conn)
			}()
		}
	}()
	return ln.Addr().String()
}

func fetchWithin(t *testing.T, c *Client, ctx context.Context, rawURL string, limit time.Duration) ([]byte, bool) {
	t.Helper()
	type result struct {
		data []byte
		ok   bool
	}
	done := make(chan result, 1)
	go func() {
		data, ok := c.Fetch(ctx, rawURL)
		done <- result{data, ok}
	}()
	select {
	case r := <-done:
		return r.data, r.ok
	case <-time.After(limit):
		t.Fatalf("Fetch(%q) still blocked after %v", rawURL, limit)
		return nil, false
	}
}

func TestFetchFTPStalledServerTimesOut(t *testing.T) {
	tests := []struct {
		name     string
		greeting string
	}{
		{"no greeting", ""},
		{"stalls after greeting", "220 ready\r\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			addr := stallingFTPServer(t, tt.greeting)
			spool := t.TempDir()
			c := New(Options{Timeout: 200 * time.Millisecond, TempDir: spool}, testLogger())

			start := time.Now()
			data, ok := fetchWithin(t, c, context.Background(), "ftp://"+addr+"/pub/README", 5*time.Second)
			if ok || data != nil {
				t.Fatalf("expected absent result from stalled server, got %q", data)
			}
			if elapsed := time.Since(start); elapsed < 150*time.Millisecond {
				t.Errorf("fetch returned after %v, before the timeout could expire", elapsed)
			}
			assertSpoolEmpty(t, spool)
		})
	}
}

func TestFetchFTPStalledServerHonorsCancel(t *testing.T) {
	addr := stallingFTPServer(t, "220 ready\r\n")
	c := New(Options{Timeout: time.Minute, TempDir: t.TempDir()}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)
	defer cancel()

	if _, ok := fetchWithin(t, c, ctx, "ftp://"+addr+"/pub/", 5*time.Second); ok {
		t.Fatal("expected absent result after cancellation")
	}
}

func TestBoundedDialerRejectsAfterClose(t *testing.T) {
	addr := stallingFTPServer(t, "")
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	d := &boundedDialer{ctx: ctx}
	conn, err := d.dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	d.closeAll()
	if _, err := conn.Read(make([]byte, 1)); err == nil {
		t.Error("expected read on closed connection to fail")
	}
	if _, err := d.dial("tcp", addr); !errors.Is(err, net.ErrClosed) {
		t.Errorf("dial after close: err = %v, want net.ErrClosed", err)
	}
}
