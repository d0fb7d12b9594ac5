package encoder

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/reelwright/hevcsup/internal/bus"
	"github.com/reelwright/hevcsup/internal/store"
	"github.com/reelwright/hevcsup/internal/transcoder"
)

// resolveSettings reads the reserved encoder setting keys from Store,
// falling back to the §4.5 defaults for anything unset or malformed.
func resolveSettings(db *store.DB) transcoder.Settings {
	s := transcoder.DefaultSettings()

	if v := db.GetSettingOrDefault("scale_4k_to_1080p", ""); v != "" {
		s.Scale4KTo1080p = v == "true" || v == "1"
	}
	if v, err := strconv.ParseFloat(db.GetSettingOrDefault("bitrate_factor", ""), 64); err == nil {
		s.BitrateFactor = v
	}
	if v, err := strconv.ParseFloat(db.GetSettingOrDefault("bitrate_cap_1080p", ""), 64); err == nil {
		s.BitrateCap1080p = v
	}
	if v, err := strconv.ParseFloat(db.GetSettingOrDefault("bitrate_cap_720p", ""), 64); err == nil {
		s.BitrateCap720p = v
	}
	if v, err := strconv.ParseFloat(db.GetSettingOrDefault("bitrate_cap_other", ""), 64); err == nil {
		s.BitrateCapOther = v
	}
	if v, err := strconv.Atoi(db.GetSettingOrDefault("crf_fallback", "")); err == nil {
		s.CRFFallback = v
	}
	if v, err := strconv.ParseFloat(db.GetSettingOrDefault("max_bitrate_fallback", ""), 64); err == nil {
		s.MaxBitrateFallback = v
	}
	if v, err := strconv.ParseFloat(db.GetSettingOrDefault("buf_size_fallback", ""), 64); err == nil {
		s.BufSizeFallback = v
	}
	if v := db.GetSettingOrDefault("nvenc_preset", ""); v != "" {
		s.NVENCPreset = v
	}
	return s
}

func resolveReplaceIdentity(db *store.DB) ReplaceIdentity {
	return ParseReplaceIdentity(
		db.GetSettingOrDefault("replace_uid", ""),
		db.GetSettingOrDefault("replace_gid", ""),
		db.GetSettingOrDefault("replace_mode", ""),
	)
}

// pipelineResult is the terminal outcome of one file's transcode
// pipeline, consumed by the worker loop to drive Store transitions and
// stats.
type pipelineResult struct {
	status     store.FileStatus
	newSize    *int64
	errMessage *string
	spaceSaved int64
}

// runPipeline implements steps (a)-(g) of §4.5's transcode pipeline for a
// single file.
func (w *Worker) runPipeline(ctx context.Context, f *store.File) pipelineResult {
	scratchDir, err := os.MkdirTemp(w.scratchDir, "hevcsup-encode-*")
	if err != nil {
		msg := err.Error()
		return pipelineResult{status: store.FileStatusErrored, errMessage: &msg}
	}
	defer os.RemoveAll(scratchDir)

	scratchInput := filepath.Join(scratchDir, "input"+filepath.Ext(f.FilePath))
	if err := copyToScratch(f.FilePath, scratchInput); err != nil {
		msg := "failed to copy source to scratch: " + err.Error()
		return pipelineResult{status: store.FileStatusErrored, errMessage: &msg}
	}

	meta, err := w.probe.Probe(ctx, scratchInput)
	if err != nil {
		msg := "re-probe failed: " + err.Error()
		return pipelineResult{status: store.FileStatusErrored, errMessage: &msg}
	}

	in := transcoder.Input{
		Path:     scratchInput,
		Bitrate:  meta.Bitrate,
		Width:    meta.Width,
		Height:   meta.Height,
		IsHDR:    meta.IsHDR,
		Is4K:     meta.Is4K,
		Duration: meta.Duration,
	}
	settings := resolveSettings(w.store)
	plan := transcoder.BuildPlan(in, settings)

	scratchOutput := filepath.Join(scratchDir, "output.mkv")
	progressCh := make(chan transcoder.Progress, 8)
	go w.drainProgress(f.ID, progressCh)

	args := transcoder.BuildArgs(scratchInput, scratchOutput, plan, true, settings)
	_ = w.store.AppendEncodingLog(f.ID, "ffmpeg_command", strings.Join(args, " "))

	runErr := w.transcoder.Run(ctx, scratchInput, scratchOutput, in, plan, true, settings, progressCh)
	if runErr != nil && errors.Is(runErr, context.Canceled) {
		return pipelineResult{status: store.FileStatusCancelled}
	}
	if runErr != nil {
		_ = w.store.AppendEncodingLog(f.ID, "fallback_cpu_decode", runErr.Error())

		progressCh = make(chan transcoder.Progress, 8)
		go w.drainProgress(f.ID, progressCh)

		args = transcoder.BuildArgs(scratchInput, scratchOutput, plan, false, settings)
		_ = w.store.AppendEncodingLog(f.ID, "ffmpeg_command", strings.Join(args, " "))

		runErr = w.transcoder.Run(ctx, scratchInput, scratchOutput, in, plan, false, settings, progressCh)
	}
	if runErr != nil {
		if errors.Is(runErr, context.Canceled) {
			return pipelineResult{status: store.FileStatusCancelled}
		}
		msg := "FFmpeg encoding failed: " + runErr.Error()
		return pipelineResult{status: store.FileStatusErrored, errMessage: &msg}
	}

	outInfo, err := os.Stat(scratchOutput)
	if err != nil {
		msg := "missing transcoder output: " + err.Error()
		return pipelineResult{status: store.FileStatusErrored, errMessage: &msg}
	}
	outputSize := outInfo.Size()

	originalSize := int64(0)
	if f.OriginalSize != nil {
		originalSize = *f.OriginalSize
	}

	if outputSize >= originalSize {
		return pipelineResult{status: store.FileStatusRejected, newSize: &outputSize}
	}

	identity := resolveReplaceIdentity(w.store)
	if _, err := SafeReplace(scratchInput, scratchOutput, f.FilePath, identity); err != nil {
		msg := "safe replace failed: " + err.Error()
		return pipelineResult{status: store.FileStatusErrored, errMessage: &msg}
	}

	return pipelineResult{
		status:     store.FileStatusFinished,
		newSize:    &outputSize,
		spaceSaved: originalSize - outputSize,
	}
}

func (w *Worker) drainProgress(fileID int64, ch <-chan transcoder.Progress) {
	for p := range ch {
		if w.bus == nil {
			continue
		}
		w.bus.Publish(bus.Event{
			ID:   uuid.New().String(),
			Type: bus.EventEncodingProgress,
			Payload: &bus.EncodingProgressPayload{
				FileID:      fileID,
				PercentDone: p.PercentDone,
				Status:      string(store.FileStatusEncoding),
			},
		})
	}
}

func copyToScratch(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
