package cache

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeValkey answers PING/AUTH/SELECT/GET/SET/DEL from an in-memory map.
type fakeValkey struct {
	ln       net.Listener
	mu       sync.Mutex
	data     map[string]string
	commands []string
}

func startFakeValkey(t *testing.T) *fakeValkey {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	f := &fakeValkey{ln: ln, data: make(map[string]string)}
	go f.serve()
	t.Cleanup(func() { _ = ln.Close() })
	return f
}

func (f *fakeValkey) serve() {
	for {
		conn, err := f.ln.Accept()
		if err != nil {
			return
		}
		go f.handle(conn)
	}
}

func (f *fakeValkey) handle(conn net.Conn) {
	defer conn.Close()
	r := bufio.NewReader(conn)
	for {
		args, err := readArray(r)
		if err != nil {
			return
		}
		f.mu.Lock()
		f.commands = append(f.commands, strings.ToUpper(args[0]))
		var resp string
		switch strings.ToUpper(args[0]) {
		case "PING":
			resp = "+PONG\r\n"
		case "AUTH", "SELECT":
			resp = "+OK\r\n"
		case "SET":
			f.data[args[1]] = args[2]
			resp = "+OK\r\n"
		case "GET":
			if v, ok := f.data[args[1]]; ok {
				resp = fmt.Sprintf("$%d\r\n%s\r\n", len(v), v)
			} else {
				resp = "$-1\r\n"
			}
		case "DEL":
			delete(f.data, args[1])
			resp = ":1\r\n"
		default:
			resp = "-ERR unknown command\r\n"
		}
		f.mu.Unlock()
		if _, err := io.WriteString(conn, resp); err != nil {
			return
		}
	}
}

func readArray(r *bufio.Reader) ([]string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return nil, err
	}
	n, err := strconv.Atoi(strings.TrimSpace(line[1:]))
	if err != nil {
		return nil, err
	}
	args := make([]string, 0, n)
	for i := 0; i < n; i++ {
		header, err := r.ReadString('\n')
		if err != nil {
			return nil, err
		}
		size, err := strconv.Atoi(strings.TrimSpace(header[1:]))
		if err != nil {
			return nil, err
		}
		buf := make([]byte, size+2)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, err
		}
		args = append(args, string(buf[:size]))
	}
	return args, nil
}

func TestValkeyProviderRoundTrip(t *testing.T) {
	server := startFakeValkey(t)
	ctx := context.Background()

	provider, err := NewValkeyProvider(ctx, ValkeyConfig{Addr: server.ln.Addr().String(), Password: "secret", DB: 2})
	require.NoError(t, err)
	defer provider.Close()

	_, err = provider.Get(ctx, "graveyard:status")
	assert.ErrorIs(t, err, ErrCacheMiss)

	payload := []byte("{\"items\":[]}\r\nwith newline")
	require.NoError(t, provider.Set(ctx, "graveyard:status", payload, time.Minute))

	got, err := provider.Get(ctx, "graveyard:status")
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	require.NoError(t, provider.Del(ctx, "graveyard:status"))
	_, err = provider.Get(ctx, "graveyard:status")
	assert.ErrorIs(t, err, ErrCacheMiss)

	server.mu.Lock()
	defer server.mu.Unlock()
	assert.Contains(t, server.commands, "AUTH")
	assert.Contains(t, server.commands, "SELECT")
}

func TestValkeyProviderRequiresAddr(t *testing.T) {
	_, err := NewValkeyProvider(context.Background(), ValkeyConfig{})
	assert.Error(t, err)
}

func TestValkeyProviderUnreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	_, err = NewValkeyProvider(context.Background(), ValkeyConfig{Addr: addr, DialTimeout: 200 * time.Millisecond})
	assert.Error(t, err)
}

func TestMemoryProviderExpiry(t *testing.T) {
	m := NewMemoryProvider()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "k", []byte("v"), time.Minute))
	got, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)

	now = now.Add(2 * time.Minute)
	_, err = m.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, m.Set(ctx, "forever", []byte("x"), 0))
	now = now.Add(24 * time.Hour)
	_, err = m.Get(ctx, "forever")
	assert.NoError(t, err)
}

func TestNoopProvider(t *testing.T) {
	var p Provider = NoopProvider{}
	require.NoError(t, p.Set(context.Background(), "k", []byte("v"), 0))
	_, err := p.Get(context.Background(), "k")
	assert.ErrorIs(t, err, ErrCacheMiss)
}
