package completion

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// UsageRecord is one line of the usage log.
type UsageRecord struct {
	Tag          string    `json:"tag"`
	Model        string    `json:"model"`
	InputTokens  int       `json:"input_tokens"`
	OutputTokens int       `json:"output_tokens"`
	Time         time.Time `json:"time"`
}

// UsageLog appends a JSON line per completion call.
type UsageLog struct {
	mu   sync.Mutex
	file *os.File
}

func OpenUsageLog(path string) (*UsageLog, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening usage log: %w", err)
	}
	return &UsageLog{file: f}, nil
}

func (l *UsageLog) Record(tag string, r *Response) {
	line, err := json.Marshal(UsageRecord{
		Tag:          tag,
		Model:        r.Model,
		InputTokens:  r.InputTokens,
		OutputTokens: r.OutputTokens,
		Time:         time.Now().UTC(),
	})
	if err != nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.file.Write(append(line, '\n')); err != nil {
		slog.Warn("writing usage log", "err", err)
	}
}

func (l *UsageLog) Close() error {
	if l == nil {
		return nil
	}
	return l.file.Close()
}

// ParseUsageLog reads a usage log back, skipping lines that do not parse.
func ParseUsageLog(logPath string) ([]UsageRecord, error) {
	data, err := os.ReadFile(logPath)
	if err != nil {
		return nil, fmt.Errorf("reading usage log: %w", err)
	}
	var records []UsageRecord
	for line := range bytes.Lines(data) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		var rec UsageRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			continue
		}
		if rec.Model != "" {
			records = append(records, rec)
		}
	}
	return records, nil
}

func TotalUsage(records []UsageRecord) (inputTokens, outputTokens int) {
	for _, r := range records {
		inputTokens += r.InputTokens
		outputTokens += r.OutputTokens
	}
	return
}
