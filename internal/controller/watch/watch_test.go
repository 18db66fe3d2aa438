package watch

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ridgehpc/ridge/internal/events"
	"github.com/stretchr/testify/require"
)

type fakeLister struct{}

func (fakeLister) SnapshotJobs() ([]JobView, error) {
	return []JobView{{ID: 1, User: "alice", Partition: "batch", State: "running"}}, nil
}

func (fakeLister) SnapshotNodes() ([]NodeView, error) {
	return []NodeView{{Name: "n0", State: "idle", CPUs: 4, CPUsFree: 4}}, nil
}

func (fakeLister) SnapshotPartitions() ([]PartitionView, error) {
	return []PartitionView{{Name: "batch", Availability: "up", NodeCount: 1}}, nil
}

func newTestServer(t *testing.T) (*httptest.Server, *events.Broker) {
	t.Helper()
	broker := events.NewBroker()
	broker.Start()
	t.Cleanup(broker.Stop)

	srv := NewServer(fakeLister{}, broker)
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	return ts, broker
}

func dialWatch(t *testing.T, ts *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestWatchJobsSendsInitialSnapshot(t *testing.T) {
	ts, _ := newTestServer(t)
	conn := dialWatch(t, ts, "/watch/jobs")

	var f frame
	require.NoError(t, conn.ReadJSON(&f))
	require.Equal(t, "snapshot", f.Kind)
}

func TestWatchJobsStreamsMatchingEvents(t *testing.T) {
	ts, broker := newTestServer(t)
	conn := dialWatch(t, ts, "/watch/jobs")

	var snap frame
	require.NoError(t, conn.ReadJSON(&snap))

	broker.Publish(&events.Event{Type: events.NodeStateChange, Timestamp: time.Now(), Message: "ignored"})
	broker.Publish(&events.Event{Type: events.JobCompleted, Timestamp: time.Now(), Message: "job done"})

	var f frame
	require.NoError(t, conn.ReadJSON(&f))
	require.Equal(t, "event", f.Kind)
	require.Equal(t, "job done", f.Event.Message)
}

func TestWatchNodesFiltersToNodeEvents(t *testing.T) {
	ts, broker := newTestServer(t)
	conn := dialWatch(t, ts, "/watch/nodes")

	var snap frame
	require.NoError(t, conn.ReadJSON(&snap))

	broker.Publish(&events.Event{Type: events.JobSubmitted, Timestamp: time.Now(), Message: "ignored"})
	broker.Publish(&events.Event{Type: events.NodeNoRespond, Timestamp: time.Now(), Message: "node down"})

	var f frame
	require.NoError(t, conn.ReadJSON(&f))
	require.Equal(t, "event", f.Kind)
	require.Equal(t, "node down", f.Event.Message)
}
