package infrastructure

import (
	"fmt"
	"io"
	"sync"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/giserh/videolectures-dl/internal/domain"
)

// ConsoleReporter prints download progress for an interactive terminal.
// Progress lines are rewritten in place with a carriage return.
type ConsoleReporter struct {
	mu         sync.Mutex
	out        io.Writer
	errOut     io.Writer
	lineIsOpen bool
}

// NewConsoleReporter creates a reporter writing to out, with errors to errOut
func NewConsoleReporter(out, errOut io.Writer) *ConsoleReporter {
	return &ConsoleReporter{out: out, errOut: errOut}
}

func (r *ConsoleReporter) Title(title string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closeLine()
	fmt.Fprintf(r.out, "[download] Title: %s\n", title)
}

func (r *ConsoleReporter) Destination(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closeLine()
	fmt.Fprintf(r.out, "[download] Destination: %s\n", path)
}

func (r *ConsoleReporter) Progress(bytes int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprint(r.out, progressLine(bytes))
	r.lineIsOpen = true
}

func (r *ConsoleReporter) Done(bytes int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprint(r.out, progressLine(bytes)+"\n")
	r.lineIsOpen = false
}

func (r *ConsoleReporter) Complete() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closeLine()
	fmt.Fprintln(r.out, "download complete")
}

func (r *ConsoleReporter) Error(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closeLine()
	fmt.Fprintf(r.errOut, "ERROR: %s\n", msg)
}

// closeLine terminates an open progress line. Caller must hold mu.
func (r *ConsoleReporter) closeLine() {
	if r.lineIsOpen {
		fmt.Fprintln(r.out)
		r.lineIsOpen = false
	}
}

func progressLine(bytes int64) string {
	if bytes < 0 {
		bytes = 0
	}
	return fmt.Sprintf("\r[rtmpdump] %d bytes (%s)", bytes, humanize.Bytes(uint64(bytes)))
}

// LogReporter forwards progress events to a zap logger.
// Used by the server where there is no terminal.
type LogReporter struct {
	logger *zap.Logger
}

func NewLogReporter(logger *zap.Logger) *LogReporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogReporter{logger: logger}
}

func (r *LogReporter) Title(title string) {
	r.logger.Info("Lecture title", zap.String("title", title))
}

func (r *LogReporter) Destination(path string) {
	r.logger.Info("Download destination", zap.String("path", path))
}

func (r *LogReporter) Progress(bytes int64) {
	r.logger.Debug("Download progress", zap.Int64("bytes", bytes))
}

func (r *LogReporter) Done(bytes int64) {
	r.logger.Info("Download finished", zap.Int64("bytes", bytes))
}

func (r *LogReporter) Complete() {
	r.logger.Info("Download complete")
}

func (r *LogReporter) Error(msg string) {
	r.logger.Error("Download error", zap.String("error", msg))
}

// NopReporter discards all events
type NopReporter struct{}

func (NopReporter) Title(string)       {}
func (NopReporter) Destination(string) {}
func (NopReporter) Progress(int64)     {}
func (NopReporter) Done(int64)         {}
func (NopReporter) Complete()          {}
func (NopReporter) Error(string)       {}

var (
	_ domain.ProgressReporter = (*ConsoleReporter)(nil)
	_ domain.ProgressReporter = (*LogReporter)(nil)
	_ domain.ProgressReporter = NopReporter{}
)
