package executor

import (
	"bufio"
	"context"
	"encoding/json"
	"strings"
)

// streamScanBufferSize caps a single stdout line; agent CLIs occasionally
// emit large assistant-message chunks as one JSON object per line.
const streamScanBufferSize = 4 * 1024 * 1024

// streamLine is the subset of the agent CLI's streaming JSONL wire format
// (spec §4.3) this executor understands. Lines that don't parse, or whose
// type isn't recognized, are ignored rather than treated as fatal: the
// agent's real verdict lives in task_output.json, not in the stream.
type streamLine struct {
	Type    string `json:"type"`
	Message struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	} `json:"message"`
	Delta struct {
		Text string `json:"text"`
	} `json:"delta"`
}

// streamOutput reads the agent CLI's stdout line by line, extracting
// human-readable text from recognized message shapes and persisting/
// broadcasting each as an execution log line. It returns once stdout is
// closed (i.e. the process has exited or closed its pipe).
func (e *Executor) streamOutput(ctx context.Context, executionID string, proc *runningProcess) {
	scanner := bufio.NewScanner(proc.stdout)
	scanner.Buffer(make([]byte, 64*1024), streamScanBufferSize)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		text, ok := extractText(line)
		if !ok || text == "" {
			continue
		}
		e.appendLog(ctx, executionID, text)
	}
}

// extractText pulls the assistant-visible text out of one JSONL line,
// trying the two message shapes the agent CLI is known to emit.
func extractText(line string) (string, bool) {
	var sl streamLine
	if err := json.Unmarshal([]byte(line), &sl); err != nil {
		return "", false
	}
	switch sl.Type {
	case "assistant":
		var b strings.Builder
		for _, block := range sl.Message.Content {
			if block.Type == "text" {
				b.WriteString(block.Text)
			}
		}
		return b.String(), b.Len() > 0
	case "content_block_delta":
		return sl.Delta.Text, sl.Delta.Text != ""
	default:
		return "", false
	}
}
