package executor

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	"taskrouter/internal/domain"
)

// taskOutputDoc is the document an agent CLI is expected to leave behind in
// task_output.json (spec §4.3/§6.2).
type taskOutputDoc struct {
	Result  string `json:"result"`
	Content string `json:"content"`
}

// classifyOutput reads and classifies task_output.json after a clean (exit
// code 0, not killed) process exit, applying the result table from spec
// §4.3. A missing or unparseable file is not an error condition in itself:
// it is classified as a completed skip, same as an explicit {"result":
// "skip"}, since an agent that exits 0 without writing anything did
// (deliberately or not) nothing actionable.
func (e *Executor) classifyOutput(sandboxDir string) Report {
	path := filepath.Join(sandboxDir, "task_output.json")
	raw, err := os.ReadFile(path)
	if err != nil {
		return Report{Status: domain.ExecutionCompleted, Result: resultPtr(domain.ResultSkip)}
	}

	doc, ok := parseTaskOutput(raw)
	if !ok {
		return Report{Status: domain.ExecutionCompleted, Result: resultPtr(domain.ResultSkip)}
	}

	switch domain.ExecutionResult(doc.Result) {
	case domain.ResultSkip:
		return Report{Status: domain.ExecutionCompleted, Result: resultPtr(domain.ResultSkip), Output: doc.Content}
	case domain.ResultComment:
		return Report{Status: domain.ExecutionCompleted, Result: resultPtr(domain.ResultComment), Output: doc.Content}
	case domain.ResultError:
		return Report{Status: domain.ExecutionCompleted, Result: resultPtr(domain.ResultError), Output: doc.Content}
	default:
		return Report{Status: domain.ExecutionCompleted, Result: resultPtr(domain.ResultSkip), Output: doc.Content}
	}
}

// parseTaskOutput tries strict JSON first, then falls back to jsonrepair for
// the common case of an agent emitting almost-valid JSON (trailing commas,
// unescaped newlines, a stray comment).
func parseTaskOutput(raw []byte) (taskOutputDoc, bool) {
	var doc taskOutputDoc
	if err := json.Unmarshal(raw, &doc); err == nil {
		doc.Result = strings.ToLower(strings.TrimSpace(doc.Result))
		return doc, true
	}

	repaired, err := jsonrepair.JSONRepair(string(raw))
	if err != nil {
		return taskOutputDoc{}, false
	}
	if err := json.Unmarshal([]byte(repaired), &doc); err != nil {
		return taskOutputDoc{}, false
	}
	doc.Result = strings.ToLower(strings.TrimSpace(doc.Result))
	return doc, true
}

func resultPtr(r domain.ExecutionResult) *domain.ExecutionResult {
	return &r
}
