// Package domain defines the entities the rest of the system operates on.
package domain

// TaskStatus is the lifecycle state of a Task.
type TaskStatus string

const (
	TaskTodo       TaskStatus = "todo"
	TaskInProgress TaskStatus = "in_progress"
	TaskInReview   TaskStatus = "in_review"
	TaskDone       TaskStatus = "done"
)

// taskTransitions encodes the allowed task status transition table (spec §3).
// A status always "transitions" to itself trivially but that is not listed
// here — callers only consult this for a genuine change of status.
var taskTransitions = map[TaskStatus]map[TaskStatus]bool{
	TaskTodo:       {TaskInProgress: true, TaskDone: true},
	TaskInProgress: {TaskTodo: true, TaskInReview: true, TaskDone: true},
	TaskInReview:   {TaskTodo: true, TaskInProgress: true, TaskDone: true},
	TaskDone:       {TaskTodo: true},
}

// CanTransitionTask reports whether a task may move from 'from' to 'to'.
func CanTransitionTask(from, to TaskStatus) bool {
	if from == to {
		return true
	}
	return taskTransitions[from][to]
}

// Workspace owns agents, tasks, templates, and settings. Deletion cascades.
type Workspace struct {
	ID        string
	Name      string
	CreatedAt int64
	UpdatedAt int64
}

// Agent is a user-configured invocation of an external CLI tool.
type Agent struct {
	ID                  string
	WorkspaceID         string
	Name                string
	RoleInstruction     string
	WorkingInstruction  string
	Order               int
	TimeoutMinutes      *int
	CreatedAt           int64
	UpdatedAt           int64
}

// Task is a unit of work filed against a workspace.
type Task struct {
	ID          string
	WorkspaceID string
	Title       string
	Description string
	Status      TaskStatus
	CreatedAt   int64
	UpdatedAt   int64
}

// RoutingStatus is the lifecycle state of a TaskRouting record.
type RoutingStatus string

const (
	RoutingPending   RoutingStatus = "pending"
	RoutingRunning   RoutingStatus = "running"
	RoutingCompleted RoutingStatus = "completed"
	RoutingFailed    RoutingStatus = "failed"
)

// IsTerminal reports whether s is a terminal routing status for the round.
func (s RoutingStatus) IsTerminal() bool {
	return s == RoutingCompleted || s == RoutingFailed
}

// MaxRetries is the retry ceiling the driver loop enforces per agent.
const MaxRetries = 3

// StaleLockAfterMillis is how long a routing lock is honored before a new
// trigger/resume may override it.
const StaleLockAfterMillis = 5 * 60 * 1000

// TaskRouting is the durable routing-engine record, exactly one per task.
type TaskRouting struct {
	ID                string
	TaskID            string
	Status            RoutingStatus
	CurrentAgentIndex int
	Iteration         int
	AnyAgentWorked    bool
	LockedAt          *int64
	ErrorMessage      *string
	RetryCount        int
	CreatedAt         int64
	UpdatedAt         int64
}

// ExecutionStatus is the lifecycle state of an Execution.
type ExecutionStatus string

const (
	ExecutionPending   ExecutionStatus = "pending"
	ExecutionRunning   ExecutionStatus = "running"
	ExecutionCompleted ExecutionStatus = "completed"
	ExecutionFailed    ExecutionStatus = "failed"
)

// ExecutionResult is the structured outcome an agent reports.
type ExecutionResult string

const (
	ResultSkip    ExecutionResult = "skip"
	ResultComment ExecutionResult = "comment"
	ResultError   ExecutionResult = "error"
)

// Execution is one concrete run of one agent against one task.
type Execution struct {
	ID          string
	TaskID      string
	AgentID     string
	AgentName   string
	CLIType     string
	Status      ExecutionStatus
	Result      *ExecutionResult
	Output      string
	StartedAt   *int64
	CompletedAt *int64
	CreatedAt   int64
	UpdatedAt   int64
}

// ExecutionLog is one append-only log line belonging to an Execution.
type ExecutionLog struct {
	ID          string
	ExecutionID string
	Content     string
	Timestamp   int64
}

// AuthorType distinguishes who authored a Comment.
type AuthorType string

const (
	AuthorHuman  AuthorType = "human"
	AuthorAgent  AuthorType = "agent"
	AuthorSystem AuthorType = "system"
)

// Comment is a remark attached to a task, authored by a human, an agent, or
// the system itself (routing lifecycle notices).
type Comment struct {
	ID         string
	TaskID     string
	Author     string
	AuthorType AuthorType
	Content    string
	Log        *string
	CreatedAt  int64
}

// Attachment is a file bound to a task. Binary content lives on disk keyed by
// StoredName; Filename is the name the user/agent sees.
type Attachment struct {
	ID         string
	TaskID     string
	Filename   string
	StoredName string
	MimeType   string
	Size       int64
	CreatedAt  int64
}

// WorkspaceSetting is a keyed, JSON-encoded scalar/object per workspace.
type WorkspaceSetting struct {
	WorkspaceID string
	Key         string
	Value       string // JSON-encoded
}

// DenseOrder renumbers agents to a dense 0..N-1 ordering by their current
// relative order, returning a new slice (input is not mutated in place).
// Callers persist the returned Order values after any agent create/delete.
func DenseOrder(agents []Agent) []Agent {
	out := make([]Agent, len(agents))
	copy(out, agents)
	for i := range out {
		out[i].Order = i
	}
	return out
}
