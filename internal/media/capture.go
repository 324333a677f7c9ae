package media

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"
)

// outputPlaceholder in a capture command is replaced by the capture file path.
const outputPlaceholder = "{output}"

// NewCaptureFile creates an empty SIGN_<yyMMdd_HHmm>*.mp4 file in dir for an
// external recorder to write into and returns its path.
func NewCaptureFile(dir string, now time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating capture dir: %w", err)
	}
	f, err := os.CreateTemp(dir, "SIGN_"+now.Format("060102_1504")+"*.mp4")
	if err != nil {
		return "", fmt.Errorf("creating capture file: %w", err)
	}
	path := f.Name()
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("closing capture file: %w", err)
	}
	return path, nil
}

// Recorder runs an external capture command (for example ffmpeg reading a
// webcam) that writes a video into a fresh capture file.
//
// The command is split on whitespace; quoting is not supported.
type Recorder struct {
	command string
	dir     string
	now     func() time.Time
	logger  *slog.Logger
}

func NewRecorder(command, dir string) *Recorder {
	return &Recorder{
		command: strings.TrimSpace(command),
		dir:     dir,
		now:     time.Now,
		logger:  slog.Default(),
	}
}

// Record runs the capture command and returns the path of the recorded file.
// A command that fails or leaves the file empty counts as a cancelled capture
// and the file is removed.
func (r *Recorder) Record(ctx context.Context) (string, error) {
	if r.command == "" {
		return "", ErrNoRecorder
	}

	path, err := NewCaptureFile(r.dir, r.now())
	if err != nil {
		return "", err
	}

	fields := strings.Fields(r.command)
	args := make([]string, len(fields))
	for i, f := range fields {
		args[i] = strings.ReplaceAll(f, outputPlaceholder, path)
	}

	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Stdin = os.Stdin
	cmd.Stderr = os.Stderr

	r.logger.Debug("starting capture", "command", args[0], "output", path)
	if err := cmd.Run(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("capture command failed: %w", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("capture output: %w", err)
	}
	if info.Size() == 0 {
		os.Remove(path)
		return "", fmt.Errorf("capture produced no video")
	}
	return path, nil
}
