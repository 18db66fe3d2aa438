package runtime

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"syscall"

	"github.com/containerd/containerd"
	"github.com/containerd/containerd/cio"
	"github.com/containerd/containerd/namespaces"
	"github.com/containerd/containerd/oci"
)

// ContainerdNamespace isolates Ridge's task containers from any other
// containerd tenant on the node.
const ContainerdNamespace = "ridge-tasks"

// ContainerdBackend spawns each task as a containerd task inside a bare OCI
// bundle built from the host rootfs, an alternative to ExecBackend for
// sites that want cgroup-scoped task isolation instead of the task inheriting
// the node agent's own cgroup, grounded on the teacher's
// pkg/runtime/containerd.go container lifecycle.
type ContainerdBackend struct {
	client *containerd.Client

	mu   sync.Mutex
	seq  int
}

// NewContainerdBackend dials the local containerd socket.
func NewContainerdBackend(socketPath string) (*ContainerdBackend, error) {
	if socketPath == "" {
		socketPath = "/run/containerd/containerd.sock"
	}
	client, err := containerd.New(socketPath)
	if err != nil {
		return nil, fmt.Errorf("connect to containerd: %w", err)
	}
	return &ContainerdBackend{client: client}, nil
}

func (b *ContainerdBackend) Close() error { return b.client.Close() }

func (b *ContainerdBackend) Name() string { return "containerd" }

func (b *ContainerdBackend) nextID() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq++
	return "ridge-task-" + strconv.Itoa(b.seq)
}

func (b *ContainerdBackend) Spawn(ctx context.Context, spec TaskSpec) (Handle, error) {
	ctx = namespaces.WithNamespace(ctx, ContainerdNamespace)
	id := b.nextID()

	opts := []oci.SpecOpts{
		oci.WithDefaultSpec(),
		oci.WithDefaultUnixDevices,
		oci.WithProcessArgs(spec.Argv...),
		oci.WithEnv(spec.Env),
		oci.WithProcessCwd(spec.Dir),
		oci.WithUIDGID(spec.UID, spec.GID, spec.GID),
	}

	container, err := b.client.NewContainer(ctx, id,
		containerd.WithNewSpec(opts...),
	)
	if err != nil {
		return nil, fmt.Errorf("create task container: %w", err)
	}

	ioCreator := cio.NewCreator(cio.WithStreams(spec.Stdin, spec.Stdout, spec.Stderr))
	task, err := container.NewTask(ctx, ioCreator)
	if err != nil {
		_ = container.Delete(ctx)
		return nil, fmt.Errorf("create containerd task: %w", err)
	}

	statusC, err := task.Wait(ctx)
	if err != nil {
		_, _ = task.Delete(ctx)
		_ = container.Delete(ctx)
		return nil, fmt.Errorf("wait on containerd task: %w", err)
	}

	if err := task.Start(ctx); err != nil {
		_, _ = task.Delete(ctx)
		_ = container.Delete(ctx)
		return nil, fmt.Errorf("start containerd task: %w", err)
	}

	return &containerdHandle{ctx: ctx, container: container, task: task, statusC: statusC}, nil
}

type containerdHandle struct {
	ctx       context.Context
	container containerd.Container
	task      containerd.Task
	statusC   <-chan containerd.ExitStatus
}

func (h *containerdHandle) Pid() int { return int(h.task.Pid()) }

func (h *containerdHandle) Signal(sig syscall.Signal) error {
	return h.task.Kill(h.ctx, sig, containerd.WithKillAll)
}

func (h *containerdHandle) Wait() (exitCode int, signaled bool, err error) {
	status := <-h.statusC
	code, _, statusErr := status.Result()
	_, _ = h.task.Delete(h.ctx)
	_ = h.container.Delete(h.ctx, containerd.WithSnapshotCleanup)
	if statusErr != nil {
		return -1, false, statusErr
	}
	return int(code), false, nil
}
