package ingest

import (
	"context"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSocketSourceReadsNewlineDelimitedLine(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		conn.Write([]byte(`{"endpoint":"/api/users"}` + "\n"))
	}()

	host, portStr, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	s := NewSocketSource(host, port, time.Second)
	ctx := context.Background()
	require.NoError(t, s.Connect(ctx))
	defer s.Close(ctx)

	line, err := s.Read(ctx)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(line), "/api/users"))
}

func TestSocketSourceReadRetriesOnTimeout(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		time.Sleep(30 * time.Millisecond)
		conn.Write([]byte("late-event\n"))
	}()

	host, portStr, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	s := NewSocketSource(host, port, 10*time.Millisecond)
	ctx := context.Background()
	require.NoError(t, s.Connect(ctx))
	defer s.Close(ctx)

	line, err := s.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, "late-event", string(line))
}
