// Package transcoder builds and runs the external transcode process
// invocation for one file, per the plan table and progress contract of
// §4.5: binary path, CommandContext, stdout/stderr pipes, a progress
// channel fed by a line scanner.
package transcoder

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/reelwright/hevcsup/internal/storeerr"
)

// Progress is a single parsed progress update from the transcoder's
// diagnostic stream.
type Progress struct {
	PercentDone float64
}

// Interface is the narrow surface the encoder worker depends on, so tests
// can substitute a mock instead of spawning a real transcoder binary.
type Interface interface {
	CheckInstalled(ctx context.Context) error
	Run(ctx context.Context, src, dest string, in Input, plan Plan, hwDecode bool, settings Settings, progressCh chan<- Progress) error
}

// Executor runs the external transcoder binary (conventionally "ffmpeg" or
// the SUPERVISOR_TRANSCODER_PATH override).
type Executor struct {
	binaryPath string
}

var _ Interface = (*Executor)(nil)

// NewExecutor builds an Executor invoking binaryPath.
func NewExecutor(binaryPath string) *Executor {
	if binaryPath == "" {
		binaryPath = "ffmpeg"
	}
	return &Executor{binaryPath: binaryPath}
}

// CheckInstalled verifies the transcoder binary is present and executable.
func (e *Executor) CheckInstalled(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, e.binaryPath, "-version")
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("transcoder tool %q not found or not executable: %w", e.binaryPath, err)
	}
	return nil
}

// Run invokes the transcoder to transform src into dest per plan, with
// hardware decode enabled or disabled as requested. Progress updates
// (parsed from the diagnostic stream's `time=HH:MM:SS.xx` lines) are sent
// to progressCh if non-nil; Run never blocks if the caller isn't
// draining it fast enough. It returns the captured diagnostic tail for
// error reporting on failure.
func (e *Executor) Run(ctx context.Context, src, dest string, in Input, plan Plan, hwDecode bool, settings Settings, progressCh chan<- Progress) error {
	args := BuildArgs(src, dest, plan, hwDecode, settings)

	cmd := exec.CommandContext(ctx, e.binaryPath, args...)
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return storeerr.Wrapf(storeerr.ErrEncodeFailed, "create stderr pipe: %v", err)
	}

	var tail diagnosticTail
	done := make(chan struct{})
	go func() {
		defer close(done)
		scanProgress(stderr, in.Duration, progressCh, &tail)
	}()

	if err := cmd.Start(); err != nil {
		return storeerr.Wrapf(storeerr.ErrEncodeFailed, "start transcoder: %v", err)
	}

	waitErr := cmd.Wait()
	<-done

	if waitErr != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return storeerr.Wrapf(storeerr.ErrEncodeFailed, "transcoder exited: %v: %s", waitErr, tail.String())
	}
	return nil
}

// BuildArgs assembles the transcoder argument vector per §4.5's plan
// table: CUDA hwaccel on the decode side when enabled, the plan's video
// filter chain (switched to the CPU scaler, without the GPU download step,
// when hardware decode is off), bitrate-or-CRF encode settings, stream
// mapping, and an HEVC/Matroska output. A pure function of its arguments.
func BuildArgs(src, dest string, plan Plan, hwDecode bool, s Settings) []string {
	var args []string

	if hwDecode {
		args = append(args, "-hwaccel", "cuda", "-hwaccel_output_format", "cuda")
	}
	args = append(args, "-i", src)

	if plan.VideoFilter != "" {
		vf := plan.VideoFilter
		if !hwDecode {
			vf = strings.Replace(vf, "scale_cuda=", "scale=", 1)
			vf = strings.Replace(vf, "hwdownload,format=nv12,", "", 1)
		}
		args = append(args, "-vf", vf)
	}

	args = append(args, "-map", "0", "-c:a", "copy", "-c:s", "copy")
	args = append(args, "-c:v", "hevc_nvenc", "-preset", s.NVENCPreset)

	if plan.TargetBitrate > 0 {
		args = append(args, "-b:v", strconv.FormatInt(plan.TargetBitrate, 10))
	} else {
		args = append(args, "-crf", strconv.Itoa(s.CRFFallback),
			"-maxrate", strconv.FormatInt(mbpsToBps(s.MaxBitrateFallback), 10),
			"-bufsize", strconv.FormatInt(mbpsToBps(s.BufSizeFallback), 10))
	}

	args = append(args, "-f", "matroska", dest)
	return args
}

var timeRe = regexp.MustCompile(`time=(\d+):(\d+):(\d+)(?:\.(\d+))?`)

type diagnosticTail struct {
	lines []string
}

func (t *diagnosticTail) add(line string) {
	t.lines = append(t.lines, line)
	if len(t.lines) > 20 {
		t.lines = t.lines[len(t.lines)-20:]
	}
}

func (t *diagnosticTail) String() string {
	return strings.Join(t.lines, "\n")
}

// scanProgress reads the transcoder's diagnostic stream line by line,
// parsing `time=HH:MM:SS.xx` markers into percentage-complete updates
// against durationSeconds.
func scanProgress(r interface{ Read([]byte) (int, error) }, durationSeconds float64, progressCh chan<- Progress, tail *diagnosticTail) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		tail.add(line)

		m := timeRe.FindStringSubmatch(line)
		if m == nil || durationSeconds <= 0 {
			continue
		}
		h, _ := strconv.Atoi(m[1])
		mins, _ := strconv.Atoi(m[2])
		secs, _ := strconv.Atoi(m[3])
		current := time.Duration(h)*time.Hour + time.Duration(mins)*time.Minute + time.Duration(secs)*time.Second

		pct := current.Seconds() / durationSeconds * 100
		if pct > 100 {
			pct = 100
		}
		if progressCh != nil {
			select {
			case progressCh <- Progress{PercentDone: pct}:
			default:
			}
		}
	}
}
