package ingestion

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"experiment-lab/internal/observability"
)

// FileSource replays exposure events from a JSONL file, one JSON object per
// line. Malformed lines are skipped so a partially corrupt capture can still
// be replayed; structural rejection of individual events happens in the
// Runner.
type FileSource struct {
	path string
}

// NewFileSource creates a source that replays the given JSONL file.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

// Subscribe streams the file's events in line order. The channel is closed
// when the file is exhausted or the context is cancelled.
func (f *FileSource) Subscribe(ctx context.Context) (<-chan *ExposureEvent, error) {
	file, err := os.Open(f.path)
	if err != nil {
		return nil, fmt.Errorf("open events file: %w", err)
	}

	events := make(chan *ExposureEvent, 100)

	go func() {
		defer close(events)
		defer file.Close()

		scanner := bufio.NewScanner(file)
		scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

		line := 0
		for scanner.Scan() {
			line++
			raw := scanner.Bytes()
			if len(raw) == 0 {
				continue
			}

			event := new(ExposureEvent)
			if err := json.Unmarshal(raw, event); err != nil {
				log.Printf("[file] skipping malformed event at line %d: %v", line, err)
				observability.RecordIngestError("decode")
				continue
			}

			select {
			case events <- event:
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			log.Printf("[file] read error after line %d: %v", line, err)
			observability.RecordIngestError("read")
		}
	}()

	return events, nil
}

var _ Source = (*FileSource)(nil)
