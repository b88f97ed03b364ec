package fetch

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/BadgerOps/mirrorlist/internal/safety"
	"github.com/jlaffaye/ftp"
	"github.com/morikuni/failure/v2"
)

// ftpConn is the subset of an FTP control connection used by the fetcher.
type ftpConn interface {
	Login(user, password string) error
	Retr(path string) (io.ReadCloser, error)
	NameList(path string) ([]string, error)
	Quit() error
}

type ftpDialer func(ctx context.Context, addr string, timeout time.Duration) (ftpConn, error)

// serverConn adapts *ftp.ServerConn to ftpConn.
type serverConn struct {
	*ftp.ServerConn
}

func (s serverConn) Retr(path string) (io.ReadCloser, error) {
	return s.ServerConn.Retr(path)
}

func dialServerConn(ctx context.Context, addr string, timeout time.Duration) (ftpConn, error) {
	d := &boundedDialer{ctx: ctx, dialer: net.Dialer{Timeout: timeout}}
	stop := context.AfterFunc(ctx, d.closeAll)
	conn, err := ftp.Dial(addr, ftp.DialWithDialFunc(d.dial))
	if err != nil {
		stop()
		d.closeAll()
		return nil, err
	}
	return serverConn{conn}, nil
}

// boundedDialer opens the control and data connections of one FTP session.
// Every connection expires at the context deadline and is closed as soon as
// the context is done, so a stalled server cannot block past either.
type boundedDialer struct {
	ctx    context.Context
	dialer net.Dialer

	mu     sync.Mutex
	conns  []net.Conn
	closed bool
}

func (d *boundedDialer) dial(network, address string) (net.Conn, error) {
	conn, err := d.dialer.DialContext(d.ctx, network, address)
	if err != nil {
		return nil, err
	}
	if deadline, ok := d.ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			_ = conn.Close()
			return nil, err
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		_ = conn.Close()
		return nil, net.ErrClosed
	}
	d.conns = append(d.conns, conn)
	return conn, nil
}

func (d *boundedDialer) closeAll() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	for _, conn := range d.conns {
		_ = conn.Close()
	}
	d.conns = nil
}

// retrieveFTP spools the resource into a uniquely named temporary file and
// reads it back. Directory paths (trailing slash) are name-listed, one entry
// per line. The temporary file is removed on every return path.
func (c *Client) retrieveFTP(ctx context.Context, u *url.URL) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	conn, err := c.dialFTP(ctx, hostPort(u), c.timeout)
	if err != nil {
		return nil, failure.Translate(err, ErrFetchUnavailable,
			failure.Context{"url": u.Redacted()})
	}
	defer func() {
		_ = conn.Quit()
	}()

	user, password := "anonymous", "anonymous@"
	if u.User != nil {
		user = u.User.Username()
		if p, ok := u.User.Password(); ok {
			password = p
		}
	}
	if err := conn.Login(user, password); err != nil {
		return nil, failure.Translate(err, ErrFetchUnavailable,
			failure.Message("FTP login failed"),
			failure.Context{"url": u.Redacted()})
	}

	tmp, err := os.CreateTemp(c.tempDir, "mirrorlist-ftp-*")
	if err != nil {
		return nil, fmt.Errorf("creating FTP spool file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}()

	p := u.Path
	if p == "" {
		p = "/"
	}

	if strings.HasSuffix(p, "/") {
		names, err := conn.NameList(p)
		if err != nil {
			return nil, failure.Translate(err, ErrFetchUnavailable,
				failure.Context{"url": u.Redacted()})
		}
		if _, err := io.WriteString(tmp, strings.Join(names, "\n")); err != nil {
			return nil, fmt.Errorf("writing FTP listing: %w", err)
		}
	} else {
		r, err := conn.Retr(p)
		if err != nil {
			return nil, failure.Translate(err, ErrFetchUnavailable,
				failure.Context{"url": u.Redacted()})
		}
		n, err := io.Copy(tmp, io.LimitReader(r, c.maxBytes+1))
		_ = r.Close()
		if err != nil {
			return nil, failure.Translate(err, ErrFetchUnavailable,
				failure.Context{"url": u.Redacted()})
		}
		if n > c.maxBytes {
			return nil, failure.Translate(safety.ErrBodyTooLarge, ErrFetchUnavailable,
				failure.Context{"url": u.Redacted()})
		}
	}

	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("closing FTP spool file: %w", err)
	}
	data, err := os.ReadFile(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("reading FTP spool file: %w", err)
	}
	return data, nil
}
