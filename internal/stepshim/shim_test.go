package stepshim

import (
	"bufio"
	"fmt"
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

func dialPMI(t *testing.T, addr string, rank int) (net.Conn, *bufio.Reader) {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	_, err = fmt.Fprintf(conn, "PMI rank=%d\n", rank)
	require.NoError(t, err)
	return conn, bufio.NewReader(conn)
}

func pmiRoundTrip(t *testing.T, conn net.Conn, r *bufio.Reader, cmd string) string {
	t.Helper()
	require.NoError(t, writePMIFrame(conn, cmd))
	reply, err := readPMIFrame(r)
	require.NoError(t, err)
	return reply
}

func TestShimServesPMIPutGetAndBarrier(t *testing.T) {
	shim := NewShim(1, 0, 2, Routing{Mode: RouteAll})
	addr, err := shim.Listen("127.0.0.1:0")
	require.NoError(t, err)
	defer shim.Finalize()

	connA, rA := dialPMI(t, addr, 0)
	defer connA.Close()
	connB, rB := dialPMI(t, addr, 1)
	defer connB.Close()

	require.Equal(t, "rc=0 rank=0 size=2 spawned=0", pmiRoundTrip(t, connA, rA, "cmd=init"))
	require.Equal(t, "rc=0", pmiRoundTrip(t, connA, rA, "cmd=put key=foo value=bar"))
	require.Equal(t, "rc=0", pmiRoundTrip(t, connA, rA, "cmd=commit"))
	require.Equal(t, "rc=0 value=bar", pmiRoundTrip(t, connB, rB, "cmd=get key=foo"))

	done := make(chan string, 1)
	go func() { done <- pmiRoundTrip(t, connA, rA, "cmd=barrier") }()
	require.Equal(t, "rc=0", pmiRoundTrip(t, connB, rB, "cmd=barrier"))
	require.Equal(t, "rc=0", <-done)
}

func TestShimPMIGetMissingKeyReturnsNotFound(t *testing.T) {
	shim := NewShim(1, 0, 1, Routing{Mode: RouteAll})
	addr, err := shim.Listen("127.0.0.1:0")
	require.NoError(t, err)
	defer shim.Finalize()

	conn, r := dialPMI(t, addr, 0)
	defer conn.Close()
	require.Equal(t, "rc=1 err=NOT_FOUND", pmiRoundTrip(t, conn, r, "cmd=get key=missing"))
}

func TestShimPMISpawnIsUnsupported(t *testing.T) {
	shim := NewShim(1, 0, 1, Routing{Mode: RouteAll})
	addr, err := shim.Listen("127.0.0.1:0")
	require.NoError(t, err)
	defer shim.Finalize()

	conn, r := dialPMI(t, addr, 0)
	defer conn.Close()
	require.Equal(t, "rc=1 err=UNSUPPORTED", pmiRoundTrip(t, conn, r, "cmd=spawn"))
}
