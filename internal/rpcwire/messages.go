package rpcwire

import (
	"google.golang.org/protobuf/types/known/timestamppb"
)

// JobSpec is the wire form of a job submission, per spec.md §6.
type JobSpec struct {
	User         string            `json:"user"`
	Group        string            `json:"group"`
	UID          uint32            `json:"uid"`
	GID          uint32            `json:"gid"`
	Partition    string            `json:"partition"`
	MinNodes     int               `json:"min_nodes"`
	MaxNodes     int               `json:"max_nodes"`
	TimeLimitSec int64             `json:"time_limit_sec"`
	DependsOn    uint64            `json:"depends_on"`
	Features     []string          `json:"features"`
	IncludeNodes []string          `json:"include_nodes"`
	ExcludeNodes []string          `json:"exclude_nodes"`
	Priority     int               `json:"priority"`
	Nice         int               `json:"nice"`
	Contiguous   bool              `json:"contiguous"`
	Share        string            `json:"share"`
	NoKill       bool              `json:"no_kill"`
	Env          map[string]string `json:"env,omitempty"`

	// Topology-only fields, meaningful only against a partition whose
	// backend is Topology, per spec.md §4.2.
	Geometry [3]int `json:"geometry,omitempty"`
	ConnType string `json:"conn_type,omitempty"`
	Rotate   bool   `json:"rotate,omitempty"`
	Elongate bool   `json:"elongate,omitempty"`
}

type SubmitJobRequest struct {
	Spec *JobSpec `json:"spec"`
}

type SubmitJobResponse struct {
	JobID    uint64 `json:"job_id"`
	Rejected bool   `json:"rejected"`
	Reason   string `json:"reason,omitempty"`
}

type AllocateBlockingRequest struct {
	Spec      *JobSpec `json:"spec"`
	TimeoutMs int64    `json:"timeout_ms"`
}

type Allocation struct {
	JobID      uint64               `json:"job_id"`
	Nodes      []string             `json:"nodes"`
	PerNodeCPU []int                `json:"per_node_cpu"`
	Deadline   *timestamppb.Timestamp `json:"deadline"`
	Credential *Credential          `json:"credential"`
}

type AllocateBlockingResponse struct {
	Allocation *Allocation `json:"allocation,omitempty"`
	TimedOut   bool        `json:"timed_out"`
	Rejected   bool        `json:"rejected"`
	Reason     string      `json:"reason,omitempty"`
}

type WillRunRequest struct {
	Spec *JobSpec `json:"spec"`
}

type WillRunResponse struct {
	Feasible          bool                   `json:"feasible"`
	ExpectedStartTime *timestamppb.Timestamp `json:"expected_start_time,omitempty"`
	Reason            string                 `json:"reason,omitempty"`
}

type LookupAllocationRequest struct {
	JobID uint64 `json:"job_id"`
}

type LookupAllocationResponse struct {
	Allocation *Allocation `json:"allocation,omitempty"`
	NotFound   bool        `json:"not_found"`
	Expired    bool        `json:"expired"`
}

// Credential is the wire form of domain.Credential.
type Credential struct {
	JobID     uint64                 `json:"job_id"`
	StepID    uint32                 `json:"step_id"`
	UID       uint32                 `json:"uid"`
	GID       uint32                 `json:"gid"`
	Nodes     []string               `json:"nodes"`
	Deadline  *timestamppb.Timestamp `json:"deadline"`
	Nonce     string                 `json:"nonce"`
	Signature []byte                 `json:"signature"`
}

// StepSpec is the wire form of a step launch request.
type StepSpec struct {
	JobID            uint64   `json:"job_id"`
	StepID           uint32   `json:"step_id"`
	TaskCount        int      `json:"task_count"`
	TasksPerNode     []int    `json:"tasks_per_node"`
	NodeNames        []string `json:"node_names"` // ordered per allocation, parallel to TasksPerNode
	CPUBind          string   `json:"cpu_bind"`
	MemBind          string   `json:"mem_bind"`
	CPUsPerNode      []int    `json:"cpus_per_node,omitempty"` // filled from the job's allocation, parallel to NodeNames
	Distribution     string   `json:"distribution,omitempty"`  // "block" (default) or "cyclic"
	IOMode           string   `json:"io_mode"`
	IOTaskID         int      `json:"io_task_id,omitempty"`
	IOPattern        string   `json:"io_pattern,omitempty"`
	Argv             []string `json:"argv"`
	Envp             []string `json:"envp"`
	Cwd              string   `json:"cwd"`
	UID              uint32   `json:"uid"`
	GID              uint32   `json:"gid"`
	PropagateRlimits bool     `json:"propagate_rlimits"`
	Rlimits          []RlimitSpec `json:"rlimits,omitempty"`
}

// RlimitSpec is the wire form of a single propagated resource limit,
// spec.md §4.5 step 3.
type RlimitSpec struct {
	Name string `json:"name"`
	Soft uint64 `json:"soft"`
	Hard uint64 `json:"hard"`
}

type LaunchStepRequest struct {
	Spec       *StepSpec   `json:"spec"`
	Credential *Credential `json:"credential"`
}

type LaunchStepResponse struct {
	OK     bool   `json:"ok"`
	StepID uint32 `json:"step_id"`
	Error  string `json:"error,omitempty"` // one of INVALID_CRED, ALREADY_LAUNCHED, etc.
}

type SignalStepRequest struct {
	JobID  uint64 `json:"job_id"`
	StepID uint32 `json:"step_id"`
	Signo  int32  `json:"signo"`
}

type TerminateStepRequest struct {
	JobID  uint64 `json:"job_id"`
	StepID uint32 `json:"step_id"`
}

type OKResponse struct {
	OK bool `json:"ok"`
}

type CompleteRequest struct {
	JobID      uint64 `json:"job_id"`
	ExitStatus int32  `json:"exit_status"`
}

type ListFilter struct {
	Partition string `json:"partition,omitempty"`
	User      string `json:"user,omitempty"`
	State     string `json:"state,omitempty"`
}

type ListJobsRequest struct{ Filter *ListFilter `json:"filter,omitempty"` }
type ListJobsResponse struct {
	Jobs []*JobRecord `json:"jobs"`
}

type JobRecord struct {
	ID          uint64                 `json:"id"`
	User        string                 `json:"user"`
	Partition   string                 `json:"partition"`
	State       string                 `json:"state"`
	SubmittedAt *timestamppb.Timestamp `json:"submitted_at"`
	StartedAt   *timestamppb.Timestamp `json:"started_at,omitempty"`
}

type ListNodesRequest struct{ Filter *ListFilter `json:"filter,omitempty"` }
type ListNodesResponse struct {
	Nodes []*NodeRecord `json:"nodes"`
}

type NodeRecord struct {
	Name     string `json:"name"`
	State    string `json:"state"`
	CPUs     int    `json:"cpus"`
	CPUsFree int    `json:"cpus_free"`
}

type ListPartitionsRequest struct{}
type ListPartitionsResponse struct {
	Partitions []*PartitionRecord `json:"partitions"`
}

type PartitionRecord struct {
	Name         string `json:"name"`
	Availability string `json:"availability"`
	NodeCount    int    `json:"node_count"`
}

type UpdateNodeRequest struct {
	Name   string   `json:"name"`
	Drain  bool     `json:"drain"`
	Resume bool     `json:"resume"`
	Down   bool     `json:"down"`
	Reason string   `json:"reason,omitempty"`
	Features []string `json:"features,omitempty"`
}

type UpdatePartitionRequest struct {
	Name         string `json:"name"`
	Availability string `json:"availability,omitempty"`
	Priority     *int   `json:"priority,omitempty"`
}

// LaunchRequest is the node-agent's view of a step launch: the same
// credential-gated spec the controller forwards via ControllerServer.LaunchStep,
// addressed directly to the node that will run it, plus node-specific
// fan-out detail (per spec.md §4.5: "per-node global task ids, I/O
// endpoint, PMI endpoint").
type LaunchRequest struct {
	Spec          *StepSpec   `json:"spec"`
	Credential    *Credential `json:"credential"`
	NodeIndex     int         `json:"node_index"`      // this node's position in Spec.NodeNames
	IsLead        bool        `json:"is_lead"`          // true for the node that hosts the step shim
	ShimAddr      string      `json:"shim_addr,omitempty"` // host:port of the step shim's combined IO+PMI listener
	GlobalTaskIDs []int       `json:"global_task_ids"` // global ids of the tasks this node must spawn
}

type LaunchResponse struct {
	OK       bool    `json:"ok"`
	Error    string  `json:"error,omitempty"`
	Pids     []int32 `json:"pids,omitempty"`
	ShimAddr string  `json:"shim_addr,omitempty"` // set by the lead node once its shim is listening
}

type ReattachIORequest struct {
	JobID  uint64 `json:"job_id"`
	StepID uint32 `json:"step_id"`
}

type ReattachIOResponse struct {
	OK      bool   `json:"ok"`
	Address string `json:"address,omitempty"`
}

type ShutdownAgentRequest struct {
	Drain bool `json:"drain"`
}

// HeartbeatRequest is sent periodically by every node agent, per spec.md
// §4.1's UpdateHeartbeat contract.
type HeartbeatRequest struct {
	NodeName string `json:"node_name"`
	CPUsFree int     `json:"cpus_free"`
}

type HeartbeatResponse struct {
	OK bool `json:"ok"`
}

// TaskExit is one task's terminal status, reported by the node agent once
// its process tree has reaped it.
type TaskExit struct {
	GlobalID int   `json:"global_id"`
	ExitCode int32 `json:"exit_code"`
	Signaled bool  `json:"signaled"`
}

// ReportTaskExitRequest aggregates exit statuses for a step's tasks on one
// node, per spec.md §4.5 step 5: "node agents report aggregated exit
// status to the controller."
type ReportTaskExitRequest struct {
	JobID  uint64     `json:"job_id"`
	StepID uint32     `json:"step_id"`
	Tasks  []TaskExit `json:"tasks"`
}

type ReportTaskExitResponse struct {
	OK bool `json:"ok"`
}
