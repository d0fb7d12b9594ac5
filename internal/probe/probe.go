// Package probe invokes the external media-metadata tool (§4.2, §6) and
// parses its output into a typed Metadata record.
package probe

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/reelwright/hevcsup/internal/storeerr"
)

// Interface is the narrow surface the classifier and encoder depend on, so
// tests can substitute a hand-rolled mock instead of spawning a real probe
// binary.
type Interface interface {
	Probe(ctx context.Context, path string) (*Metadata, error)
	CheckInstalled(ctx context.Context) error
}

// Executor runs the external probe binary.
type Executor struct {
	binaryPath string
}

// NewExecutor builds an Executor invoking binaryPath (conventionally
// "ffprobe" or the SUPERVISOR_PROBE_PATH override).
func NewExecutor(binaryPath string) *Executor {
	if binaryPath == "" {
		binaryPath = "ffprobe"
	}
	return &Executor{binaryPath: binaryPath}
}

var _ Interface = (*Executor)(nil)

// CheckInstalled verifies the probe binary is present and executable. Its
// absence is fatal at startup (§7).
func (e *Executor) CheckInstalled(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, e.binaryPath, "-version")
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("probe tool %q not found or not executable: %w", e.binaryPath, err)
	}
	return nil
}

// Probe runs the probe tool against path and parses its JSON output into a
// Metadata record.
func (e *Executor) Probe(ctx context.Context, path string) (*Metadata, error) {
	cmd := exec.CommandContext(ctx, e.binaryPath,
		"-v", "quiet", "-print_format", "json", "-show_format", "-show_streams", path)

	output, err := cmd.Output()
	if err != nil {
		stderr := ""
		if exitErr, ok := err.(*exec.ExitError); ok {
			stderr = string(exitErr.Stderr)
		}
		return nil, storeerr.Wrapf(storeerr.ErrProbeFailed, "probe %q: %v: %s", path, err, stderr)
	}

	var raw ffprobeOutput
	if err := json.Unmarshal(output, &raw); err != nil {
		return nil, storeerr.Wrapf(storeerr.ErrProbeFailed, "parse probe output for %q: %v", path, err)
	}

	return parseMetadata(&raw)
}

// parseMetadata applies the §4.2 derivation rules to a raw ffprobe output.
func parseMetadata(raw *ffprobeOutput) (*Metadata, error) {
	var video *ffprobeStream
	for i := range raw.Streams {
		if raw.Streams[i].CodecType == "video" {
			video = &raw.Streams[i]
			break
		}
	}
	if video == nil {
		return nil, storeerr.Wrap(storeerr.ErrNoVideoStream, "no video stream present")
	}

	m := &Metadata{
		Codec:  video.CodecName,
		Width:  video.Width,
		Height: video.Height,
	}

	// bitrate: stream bitrate if present, else container bitrate.
	if bitrate := parseOptionalInt(video.BitRate); bitrate > 0 {
		m.Bitrate = bitrate
	} else if bitrate := parseOptionalInt(raw.Format.BitRate); bitrate > 0 {
		m.Bitrate = bitrate
	}

	m.FileSize = parseOptionalInt(raw.Format.Size)
	m.Duration = parseOptionalFloat(raw.Format.Duration)

	m.IsHEVC = isHEVCCodec(video.CodecName)
	m.Is4K = is4KResolution(video.Width, video.Height)
	m.IsHDR = isHDRTransfer(video.ColorTransfer) ||
		isBT2020(video.ColorPrimaries) ||
		sideDataMentionsHDR(video.SideDataList)

	return m, nil
}

func parseOptionalInt(s string) int64 {
	if s == "" {
		return 0
	}
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func parseOptionalFloat(s string) float64 {
	if s == "" {
		return 0
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return f
}
