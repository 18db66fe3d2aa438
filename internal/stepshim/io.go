package stepshim

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"os"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/ridgehpc/ridge/internal/log"
)

// RouteMode is the step's stdout/stderr fan-out policy, per spec.md §4.7.
type RouteMode int

const (
	RouteAll RouteMode = iota
	RouteNone
	RouteTask
	RoutePattern
)

// Routing configures how a step's task output is fanned out and how its
// per-task sink filenames are built when RoutePattern is selected.
type Routing struct {
	Mode    RouteMode
	TaskID  int
	Pattern string

	JobID     uint64
	StepID    uint32
	NodeNames []string // indexed by node index, for %N substitution
}

// ioRouter demultiplexes every task's stdout/stderr connection to the step
// shim and fans stdin out to one or all tasks, per spec.md §4.7.
type ioRouter struct {
	routing Routing

	mu         sync.Mutex
	patternFDs map[string]io.WriteCloser
	stdinConns map[int]net.Conn

	clientOut io.Writer
	clientErr io.Writer
}

func newIORouter(routing Routing) *ioRouter {
	return &ioRouter{
		routing:    routing,
		patternFDs: make(map[string]io.WriteCloser),
		stdinConns: make(map[int]net.Conn),
		clientOut:  os.Stdout,
		clientErr:  os.Stderr,
	}
}

// attach handles one task's IO connection. handshake is
// "<taskId> <stream> <nodeIndex>" where stream is one of
// "stdout", "stderr", "stdin".
func (r *ioRouter) attach(conn net.Conn, br *bufio.Reader, handshake []string) {
	if len(handshake) < 3 {
		conn.Close()
		return
	}
	taskID, err1 := strconv.Atoi(handshake[0])
	stream := handshake[1]
	nodeIdx, err2 := strconv.Atoi(handshake[2])
	if err1 != nil || err2 != nil {
		conn.Close()
		return
	}

	switch stream {
	case "stdout":
		r.pump(conn, br, taskID, nodeIdx, r.clientOut)
	case "stderr":
		r.pump(conn, br, taskID, nodeIdx, r.clientErr)
	case "stdin":
		r.mu.Lock()
		r.stdinConns[taskID] = conn
		r.mu.Unlock()
	default:
		conn.Close()
	}
}

// pump copies one task's output stream to the sink selected by the
// router's Routing policy.
func (r *ioRouter) pump(conn net.Conn, br *bufio.Reader, taskID, nodeIdx int, fallback io.Writer) {
	defer conn.Close()

	var sink io.Writer
	switch r.routing.Mode {
	case RouteNone:
		sink = io.Discard
	case RouteTask:
		if taskID == r.routing.TaskID {
			sink = fallback
		} else {
			sink = io.Discard
		}
	case RoutePattern:
		sink = r.patternSink(taskID, nodeIdx)
	default:
		sink = fallback
	}

	if _, err := io.Copy(sink, br); err != nil {
		log.WithStepID(r.routing.JobID, r.routing.StepID).Debug().Err(err).
			Int("task", taskID).Msg("task output stream closed")
	}
}

// WriteStdin routes data to taskID's stdin stream, or to every task's when
// taskID is negative (broadcast), per spec.md §4.7.
func (r *ioRouter) WriteStdin(data []byte, taskID int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if taskID >= 0 {
		if conn, ok := r.stdinConns[taskID]; ok {
			conn.Write(data)
		}
		return
	}
	for _, conn := range r.stdinConns {
		conn.Write(data)
	}
}

var patternWidthRe = regexp.MustCompile(`%0(\d+)([tnNjJs])`)

// patternSink lazily opens (or reuses) the per-task sink file named by the
// router's pattern, substituting %t/%n/%N/%j/%J/%s and the zero-padded
// %0<w><spec> form for the numeric %t/%n/%j/%s, per spec.md §4.7.
func (r *ioRouter) patternSink(taskID, nodeIdx int) io.Writer {
	name := r.resolvePattern(taskID, nodeIdx)

	r.mu.Lock()
	defer r.mu.Unlock()
	if f, ok := r.patternFDs[name]; ok {
		return f
	}
	f, err := os.Create(name)
	if err != nil {
		return io.Discard
	}
	r.patternFDs[name] = f
	return f
}

func (r *ioRouter) resolvePattern(taskID, nodeIdx int) string {
	nodeName := ""
	if nodeIdx >= 0 && nodeIdx < len(r.routing.NodeNames) {
		nodeName = r.routing.NodeNames[nodeIdx]
	}

	out := patternWidthRe.ReplaceAllStringFunc(r.routing.Pattern, func(m string) string {
		sub := patternWidthRe.FindStringSubmatch(m)
		width, _ := strconv.Atoi(sub[1])
		switch sub[2] {
		case "t":
			return fmt.Sprintf("%0*d", width, taskID)
		case "n":
			return fmt.Sprintf("%0*d", width, nodeIdx)
		case "j":
			return fmt.Sprintf("%0*d", width, r.routing.JobID)
		case "s":
			return fmt.Sprintf("%0*d", width, r.routing.StepID)
		default:
			return m
		}
	})

	replacer := strings.NewReplacer(
		"%t", strconv.Itoa(taskID),
		"%n", strconv.Itoa(nodeIdx),
		"%N", nodeName,
		"%j", strconv.FormatUint(r.routing.JobID, 10),
		"%J", fmt.Sprintf("%d.%d", r.routing.JobID, r.routing.StepID),
		"%s", strconv.Itoa(int(r.routing.StepID)),
	)
	return replacer.Replace(out)
}
