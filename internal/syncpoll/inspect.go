package syncpoll

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
)

// State is the position of a wait in its state machine.
type State int

const (
	Waiting State = iota
	Succeeded
	Failed
)

func (s State) String() string {
	switch s {
	case Waiting:
		return "WAITING"
	case Succeeded:
		return "SUCCEEDED"
	case Failed:
		return "FAILED"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Classify maps the last line of a log to a state, using the same rules as
// the rendered shell loop.
func (p *Poller) Classify(lastLine string, w Wait) State {
	if strings.HasPrefix(lastLine, p.errorPrefix) {
		return Failed
	}
	for _, s := range w.Success {
		if lastLine == s {
			return Succeeded
		}
	}
	return Waiting
}

// Inspect reads the log of w once and classifies it. A missing log is
// Waiting, not an error; any other read failure is returned.
func (p *Poller) Inspect(w Wait) (State, string, error) {
	data, err := os.ReadFile(w.LogPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Waiting, "", nil
		}
		return Waiting, "", fmt.Errorf("failed to read log %s: %w", w.LogPath, err)
	}
	line := LastLine(string(data))
	return p.Classify(line, w), line, nil
}

// LastLine returns what `tail -n 1` captured by $(...) would yield.
func LastLine(content string) string {
	content = strings.TrimSuffix(content, "\n")
	if i := strings.LastIndexByte(content, '\n'); i >= 0 {
		return content[i+1:]
	}
	return content
}
