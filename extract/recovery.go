package extract

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// RecoveryLog dumps unrecoverable LLM responses to disk, one file per
// failure, so a human can repair and re-ingest them. The pipeline keeps
// going after a dump; a lost chunk must never fail the task.
type RecoveryLog struct {
	dir string
}

// NewRecoveryLog returns a log writing into dir, creating it on first use.
func NewRecoveryLog(dir string) *RecoveryLog {
	return &RecoveryLog{dir: dir}
}

// Save writes one failed response. kind and chunk identify where in the
// pipeline the failure happened; cause is the normalization error.
func (r *RecoveryLog) Save(taskID, kind, chunk string, cause error, rawResponse string) (string, error) {
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return "", fmt.Errorf("creating recovery dir: %w", err)
	}

	stamp := strings.ReplaceAll(time.Now().Format("20060102_150405.000"), ".", "_")
	name := fmt.Sprintf("failed_%s_%s_%s.txt", taskID, kind, stamp)
	path := filepath.Join(r.dir, name)

	var b strings.Builder
	fmt.Fprintf(&b, "Task ID: %s\n", taskID)
	fmt.Fprintf(&b, "Entity Kind: %s\n", kind)
	fmt.Fprintf(&b, "Context: %s\n", chunk)
	fmt.Fprintf(&b, "Error: %v\n", cause)
	b.WriteString(strings.Repeat("-", 50) + "\n")
	b.WriteString(rawResponse)

	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return "", fmt.Errorf("writing recovery file: %w", err)
	}
	return path, nil
}
