package httpapi

import "taskrouter/internal/domain"

// The wire DTOs below follow the same snake_case convention as the
// executor's task_input.json envelope (internal/executor/sandbox.go): a
// dedicated transport shape per entity, translated from the domain struct,
// rather than json tags on domain.go itself.

type workspaceDTO struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedAt int64  `json:"created_at"`
	UpdatedAt int64  `json:"updated_at"`
}

func toWorkspaceDTO(w domain.Workspace) workspaceDTO {
	return workspaceDTO{ID: w.ID, Name: w.Name, CreatedAt: w.CreatedAt, UpdatedAt: w.UpdatedAt}
}

type agentDTO struct {
	ID                 string `json:"id"`
	WorkspaceID        string `json:"workspace_id"`
	Name               string `json:"name"`
	RoleInstruction    string `json:"role_instruction"`
	WorkingInstruction string `json:"working_instruction"`
	Order              int    `json:"order"`
	TimeoutMinutes     *int   `json:"timeout_minutes,omitempty"`
	CreatedAt          int64  `json:"created_at"`
	UpdatedAt          int64  `json:"updated_at"`
}

func toAgentDTO(a domain.Agent) agentDTO {
	return agentDTO{
		ID:                 a.ID,
		WorkspaceID:        a.WorkspaceID,
		Name:               a.Name,
		RoleInstruction:    a.RoleInstruction,
		WorkingInstruction: a.WorkingInstruction,
		Order:              a.Order,
		TimeoutMinutes:     a.TimeoutMinutes,
		CreatedAt:          a.CreatedAt,
		UpdatedAt:          a.UpdatedAt,
	}
}

func toAgentDTOs(agents []domain.Agent) []agentDTO {
	out := make([]agentDTO, len(agents))
	for i, a := range agents {
		out[i] = toAgentDTO(a)
	}
	return out
}

type taskDTO struct {
	ID          string            `json:"id"`
	WorkspaceID string            `json:"workspace_id"`
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Status      domain.TaskStatus `json:"status"`
	CreatedAt   int64             `json:"created_at"`
	UpdatedAt   int64             `json:"updated_at"`
}

func toTaskDTO(t domain.Task) taskDTO {
	return taskDTO{
		ID:          t.ID,
		WorkspaceID: t.WorkspaceID,
		Title:       t.Title,
		Description: t.Description,
		Status:      t.Status,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

func toTaskDTOs(tasks []domain.Task) []taskDTO {
	out := make([]taskDTO, len(tasks))
	for i, t := range tasks {
		out[i] = toTaskDTO(t)
	}
	return out
}

type routingDTO struct {
	ID                string              `json:"id"`
	TaskID            string              `json:"task_id"`
	Status            domain.RoutingStatus `json:"status"`
	CurrentAgentIndex int                 `json:"current_agent_index"`
	Iteration         int                 `json:"iteration"`
	AnyAgentWorked    bool                `json:"any_agent_worked"`
	RetryCount        int                 `json:"retry_count"`
	ErrorMessage      *string             `json:"error_message,omitempty"`
	CreatedAt         int64               `json:"created_at"`
	UpdatedAt         int64               `json:"updated_at"`
}

func toRoutingDTO(r domain.TaskRouting) routingDTO {
	return routingDTO{
		ID:                r.ID,
		TaskID:            r.TaskID,
		Status:            r.Status,
		CurrentAgentIndex: r.CurrentAgentIndex,
		Iteration:         r.Iteration,
		AnyAgentWorked:    r.AnyAgentWorked,
		RetryCount:        r.RetryCount,
		ErrorMessage:      r.ErrorMessage,
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
	}
}

type commentDTO struct {
	ID         string            `json:"id"`
	TaskID     string            `json:"task_id"`
	Author     string            `json:"author"`
	AuthorType domain.AuthorType `json:"author_type"`
	Content    string            `json:"content"`
	CreatedAt  int64             `json:"created_at"`
}

func toCommentDTO(c domain.Comment) commentDTO {
	return commentDTO{ID: c.ID, TaskID: c.TaskID, Author: c.Author, AuthorType: c.AuthorType, Content: c.Content, CreatedAt: c.CreatedAt}
}

func toCommentDTOs(comments []domain.Comment) []commentDTO {
	out := make([]commentDTO, len(comments))
	for i, c := range comments {
		out[i] = toCommentDTO(c)
	}
	return out
}

type attachmentDTO struct {
	ID        string `json:"id"`
	TaskID    string `json:"task_id"`
	Filename  string `json:"filename"`
	MimeType  string `json:"mime_type"`
	Size      int64  `json:"size"`
	URL       string `json:"url"`
	CreatedAt int64  `json:"created_at"`
}

func toAttachmentDTO(a domain.Attachment) attachmentDTO {
	return attachmentDTO{
		ID:        a.ID,
		TaskID:    a.TaskID,
		Filename:  a.Filename,
		MimeType:  a.MimeType,
		Size:      a.Size,
		URL:       "/api/attachments/blob/" + a.StoredName,
		CreatedAt: a.CreatedAt,
	}
}

func toAttachmentDTOs(attachments []domain.Attachment) []attachmentDTO {
	out := make([]attachmentDTO, len(attachments))
	for i, a := range attachments {
		out[i] = toAttachmentDTO(a)
	}
	return out
}
