package executor

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// taskInputDoc is the JSON document written to task_input.json in every
// execution sandbox (spec §6.1).
type taskInputDoc struct {
	Task                 taskInputTask    `json:"task"`
	Agent                taskInputAgent   `json:"agent"`
	WorkspaceInstruction string           `json:"workspace_instruction,omitempty"`
	Comments             []taskInputNote  `json:"comments"`
	Attachments          []taskInputAttach `json:"attachments"`
}

type taskInputTask struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Status      string `json:"status"`
}

type taskInputAgent struct {
	ID                 string `json:"id"`
	Name               string `json:"name"`
	RoleInstruction    string `json:"role_instruction"`
	WorkingInstruction string `json:"working_instruction"`
}

type taskInputNote struct {
	Author     string `json:"author"`
	AuthorType string `json:"author_type"`
	Content    string `json:"content"`
	CreatedAt  int64  `json:"created_at"`
}

type taskInputAttach struct {
	Filename string `json:"filename"`
	MimeType string `json:"mime_type"`
	Path     string `json:"path"`
}

// prepareSandbox creates a clean per-execution directory, writes
// task_input.json, and copies any task attachments into it by their
// original filenames (spec §4.3 steps 1-4).
func (e *Executor) prepareSandbox(sandboxDir string, ec Context) error {
	if err := os.RemoveAll(sandboxDir); err != nil {
		return fmt.Errorf("clear sandbox: %w", err)
	}
	if err := os.MkdirAll(sandboxDir, 0o755); err != nil {
		return fmt.Errorf("create sandbox: %w", err)
	}

	doc := taskInputDoc{
		Task: taskInputTask{
			ID:          ec.Task.ID,
			Title:       ec.Task.Title,
			Description: ec.Task.Description,
			Status:      string(ec.Task.Status),
		},
		Agent: taskInputAgent{
			ID:                 ec.Agent.ID,
			Name:               ec.Agent.Name,
			RoleInstruction:    ec.Agent.RoleInstruction,
			WorkingInstruction: ec.Agent.WorkingInstruction,
		},
		WorkspaceInstruction: ec.WorkspaceInstruction,
		Comments:             make([]taskInputNote, 0, len(ec.Comments)),
		Attachments:          make([]taskInputAttach, 0, len(ec.Attachments)),
	}
	for _, c := range ec.Comments {
		doc.Comments = append(doc.Comments, taskInputNote{
			Author:     c.Author,
			AuthorType: string(c.AuthorType),
			Content:    c.Content,
			CreatedAt:  c.CreatedAt,
		})
	}

	attachDir := filepath.Join(sandboxDir, "attachments")
	if len(ec.Attachments) > 0 {
		if err := os.MkdirAll(attachDir, 0o755); err != nil {
			return fmt.Errorf("create attachments dir: %w", err)
		}
	}
	for _, a := range ec.Attachments {
		dest := filepath.Join(attachDir, a.Filename)
		if err := e.copyAttachment(a.StoredName, dest); err != nil {
			e.log.Warn("skipping unreadable attachment", "attachment_id", a.ID, "error", err)
			continue
		}
		doc.Attachments = append(doc.Attachments, taskInputAttach{
			Filename: a.Filename,
			MimeType: a.MimeType,
			Path:     filepath.Join("attachments", a.Filename),
		})
	}

	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal task_input.json: %w", err)
	}
	if err := os.WriteFile(filepath.Join(sandboxDir, "task_input.json"), raw, 0o644); err != nil {
		return fmt.Errorf("write task_input.json: %w", err)
	}
	return nil
}

func (e *Executor) copyAttachment(storedName, dest string) error {
	if e.attachments == nil {
		return fmt.Errorf("no attachment store configured")
	}
	src, err := e.attachments.Path(storedName)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dest, data, 0o644)
}

// fixedPrompt is the constant instruction written to the agent CLI's stdin,
// directing it to read task_input.json and write task_output.json. It does
// not vary with ec; the task-specific content lives in task_input.json.
func fixedPrompt(ec Context) []byte {
	_ = ec
	return []byte("Read task_input.json in the current directory, perform the described work, " +
		"and write your result to task_output.json before exiting.\n")
}
