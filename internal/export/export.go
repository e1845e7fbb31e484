// Package export writes produced message streams to files.
package export

import (
	"bufio"
	"context"
	"fmt"
	"os"

	"github.com/kruss/chipmunk/internal/logger"
	"github.com/kruss/chipmunk/internal/stream"
)

// IndexSection selects an inclusive range of message indexes.
type IndexSection struct {
	FirstLine int
	LastLine  int
}

// ConfigError reports invalid export parameters.
type ConfigError struct {
	Msg string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("export configuration error: %s", e.Msg)
}

// sectionsValid requires sections to be internally ordered, ascending,
// and non-overlapping.
func sectionsValid(sections []IndexSection) bool {
	last := -1
	for _, s := range sections {
		if s.FirstLine > s.LastLine || s.FirstLine <= last {
			return false
		}
		last = s.LastLine
	}
	return true
}

// Raw drains the entry stream into destination, writing each message's
// raw bytes. Empty sections export everything; otherwise only messages
// whose index falls inside a section are written. Returns the exported
// count.
func Raw(ctx context.Context, entries <-chan stream.StreamEntry, destination string, sections []IndexSection) (int, error) {
	if !sectionsValid(sections) {
		return 0, &ConfigError{Msg: "invalid sections"}
	}

	out, err := os.Create(destination)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", destination, err)
	}
	defer out.Close()
	writer := bufio.NewWriter(out)

	exported := 0
	messageIndex := 0
	sectionIndex := 0

	inside := func(index int) bool {
		if len(sections) == 0 {
			return true
		}
		for sectionIndex < len(sections) && sections[sectionIndex].LastLine < index {
			sectionIndex++
		}
		if sectionIndex == len(sections) {
			return false
		}
		s := sections[sectionIndex]
		return s.FirstLine <= index && index <= s.LastLine
	}

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case entry, ok := <-entries:
			if !ok || entry.Kind == stream.ItemDone {
				break loop
			}
			if entry.Kind != stream.ItemMessage {
				continue
			}
			if inside(messageIndex) {
				if _, err := entry.Message.WriteTo(writer); err != nil {
					return exported, fmt.Errorf("write message %d: %w", messageIndex, err)
				}
				exported++
			}
			messageIndex++
			if len(sections) > 0 && sectionIndex == len(sections) {
				break loop
			}
		}
	}

	if err := writer.Flush(); err != nil {
		return exported, fmt.Errorf("flush %s: %w", destination, err)
	}
	logger.Debug("export finished", "destination", destination, "exported", exported)
	return exported, nil
}
