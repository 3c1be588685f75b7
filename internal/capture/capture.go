package capture

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/vessel/internal/prompts"
)

// Recorder writes assembled prompts as JSON fixtures under
// <dir>/<session>/assembly-NNNN.json. It implements prompts.AssemblyRecorder.
type Recorder struct {
	dir     string
	session string
	seq     atomic.Uint64
	enabled atomic.Bool
	logger  zerolog.Logger
	now     func() time.Time
}

// Record is the fixture written for each assembly.
type Record struct {
	Source   string                   `json:"source"`
	Recorded time.Time                `json:"recorded_at"`
	Context  prompts.RuntimeContext   `json:"context"`
	Result   *prompts.AssembledPrompt `json:"result"`
}

// NewRecorder returns an enabled recorder writing below dir.
func NewRecorder(dir string, logger zerolog.Logger) *Recorder {
	r := &Recorder{
		dir:     dir,
		session: time.Now().Format("20060102-150405"),
		logger:  logger,
		now:     time.Now,
	}
	r.enabled.Store(dir != "")
	return r
}

// Enabled reports whether capture is currently active.
func (r *Recorder) Enabled() bool { return r.enabled.Load() }

// Enable turns capture on.
func (r *Recorder) Enable() { r.enabled.Store(r.dir != "") }

// Disable turns capture off.
func (r *Recorder) Disable() { r.enabled.Store(false) }

// SessionDir is the directory this process writes into.
func (r *Recorder) SessionDir() string { return filepath.Join(r.dir, r.session) }

// Record stores one assembled prompt. Failures are logged and otherwise
// ignored.
func (r *Recorder) Record(source string, rc prompts.RuntimeContext, p *prompts.AssembledPrompt) {
	if !r.Enabled() {
		return
	}
	data, err := json.MarshalIndent(Record{Source: source, Recorded: r.now().UTC(), Context: rc, Result: p}, "", "  ")
	if err != nil {
		r.logger.Warn().Err(err).Msg("capture: marshal failed")
		return
	}
	r.writeFile("assembly", "json", data)
}

func (r *Recorder) writeFile(category, ext string, data []byte) {
	seq := r.seq.Add(1)
	sessionDir := r.SessionDir()
	if err := os.MkdirAll(sessionDir, 0o755); err != nil {
		r.logger.Warn().Err(err).Str("dir", sessionDir).Msg("capture: failed to create directory")
		return
	}
	path := filepath.Join(sessionDir, fmt.Sprintf("%s-%04d.%s", category, seq, ext))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		r.logger.Warn().Err(err).Str("path", path).Msg("capture: failed to write file")
		return
	}
	r.logger.Debug().Str("path", path).Msg("capture: wrote fixture")
}
