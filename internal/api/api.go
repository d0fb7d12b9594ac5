// Package api is the consumer-facing Go method surface over the core
// components: a plain struct of methods with no framework dependency at
// this layer. The net/http adapter in http.go registers these as JSON
// endpoints.
package api

import (
	"context"
	"os"
	"path/filepath"
	"strconv"

	"github.com/reelwright/hevcsup/internal/bus"
	"github.com/reelwright/hevcsup/internal/classifier"
	"github.com/reelwright/hevcsup/internal/encoder"
	"github.com/reelwright/hevcsup/internal/exclusion"
	"github.com/reelwright/hevcsup/internal/probe"
	"github.com/reelwright/hevcsup/internal/scanner"
	"github.com/reelwright/hevcsup/internal/storeerr"
	"github.com/reelwright/hevcsup/internal/store"
	"github.com/reelwright/hevcsup/internal/transcoder"
	"github.com/reelwright/hevcsup/internal/watcher"
)

// API holds references to every core component and exposes the operations
// §6 names. It is intentionally framework-free: no http.Request crosses
// this boundary.
type API struct {
	Store      *store.DB
	Probe      probe.Interface
	Scanner    *scanner.Scanner
	Watchers   *watcher.Set
	Worker     *encoder.Worker
	Bus        *bus.Bus
	Classifier *classifier.Classifier

	TranscoderPath string
	ProbePath      string
}

// New builds an API over already-constructed components.
func New(db *store.DB, p probe.Interface, s *scanner.Scanner, w *watcher.Set, worker *encoder.Worker, b *bus.Bus, cls *classifier.Classifier, transcoderPath, probePath string) *API {
	return &API{
		Store:          db,
		Probe:          p,
		Scanner:        s,
		Watchers:       w,
		Worker:         worker,
		Bus:            b,
		Classifier:     cls,
		TranscoderPath: transcoderPath,
		ProbePath:      probePath,
	}
}

// --- Libraries ---

func (a *API) ListLibraries() ([]*store.Library, error) {
	return a.Store.ListLibraries()
}

func (a *API) CreateLibrary(name, path string, enabled, watchEnabled bool) (*store.Library, error) {
	lib, err := a.Store.CreateLibrary(name, path, enabled, watchEnabled)
	if err != nil {
		return nil, err
	}
	if watchEnabled {
		a.Watchers.Start(lib)
	}
	return lib, nil
}

func (a *API) UpdateLibrary(lib *store.Library) error {
	if err := a.Store.UpdateLibrary(lib); err != nil {
		return err
	}
	a.Watchers.Restart(lib)
	return nil
}

func (a *API) DeleteLibrary(id int64) error {
	a.Watchers.Stop(id)
	return a.Store.DeleteLibrary(id)
}

// --- Exclusions ---

func (a *API) ListExclusions() ([]*store.Exclusion, error) {
	return a.Store.ListExclusions()
}

func (a *API) CreateExclusion(libraryID *int64, pattern string, typ store.ExclusionType, reason *string) (*store.Exclusion, error) {
	excl, err := a.Store.CreateExclusion(libraryID, pattern, typ, reason)
	if err != nil {
		return nil, err
	}
	if err := a.reclassifyQueued(); err != nil {
		return excl, err
	}
	return excl, nil
}

func (a *API) DeleteExclusion(id int64) error {
	if err := a.Store.DeleteExclusion(id); err != nil {
		return err
	}
	return a.reclassifyExcluded()
}

// CheckExclusion reports whether path would be excluded under the current
// rule set, scoped to libraryID when given.
func (a *API) CheckExclusion(path string, libraryID int64) (exclusion.Result, error) {
	rules, err := a.Store.ListExclusions()
	if err != nil {
		return exclusion.Result{}, err
	}
	eval := exclusion.New(rules)
	return eval.Evaluate(path, libraryID), nil
}

// reclassifyQueued re-evaluates every queued file against the current
// exclusion rule set, per §5's "applied as a single bulk update against
// queued rows" ordering guarantee. Each file is excluded under its
// matched rule's own reason, not a single hardcoded string.
func (a *API) reclassifyQueued() error {
	files, err := a.Store.QueuedFilesForReclassification()
	if err != nil {
		return err
	}
	rules, err := a.Store.ListExclusions()
	if err != nil {
		return err
	}
	eval := exclusion.New(rules)

	byReason := make(map[string][]int64)
	for _, f := range files {
		if f.Status != store.FileStatusQueued {
			continue
		}
		res := eval.Evaluate(f.FilePath, f.LibraryID)
		if !res.Excluded {
			continue
		}
		byReason[res.Reason] = append(byReason[res.Reason], f.ID)
	}
	for reason, ids := range byReason {
		if err := a.Store.ExcludeFiles(ids, reason); err != nil {
			return err
		}
	}
	return nil
}

// reclassifyExcluded re-evaluates every currently excluded file against the
// remaining rule set after a rule is deleted, per §4.3/§4.7's excluded →
// queued reactive transition (Testable Property 6). A file that no longer
// matches any rule is re-run through the Classifier in reactive mode so the
// size and already-HEVC checks still apply, rather than being blindly
// requeued.
func (a *API) reclassifyExcluded() error {
	files, err := a.Store.QueuedFilesForReclassification()
	if err != nil {
		return err
	}
	rules, err := a.Store.ListExclusions()
	if err != nil {
		return err
	}
	eval := exclusion.New(rules)

	minFileSizeMB := int64(500)
	if n, perr := strconv.ParseInt(a.Store.GetSettingOrDefault("min_file_size_mb", "500"), 10, 64); perr == nil {
		minFileSizeMB = n
	}

	libraries := make(map[int64]*store.Library)
	for _, f := range files {
		if f.Status != store.FileStatusExcluded {
			continue
		}
		if res := eval.Evaluate(f.FilePath, f.LibraryID); res.Excluded {
			continue // still matches a remaining rule
		}

		lib, ok := libraries[f.LibraryID]
		if !ok {
			lib, err = a.Store.GetLibrary(f.LibraryID)
			if err != nil {
				continue
			}
			libraries[f.LibraryID] = lib
		}
		if _, err := a.Classifier.Classify(context.Background(), f.FilePath, lib, eval, minFileSizeMB, true); err != nil {
			continue
		}
	}
	return nil
}

// --- Files ---

func (a *API) ListFiles(q store.FileQuery) ([]*store.File, error) {
	return a.Store.ListFiles(q)
}

func (a *API) GetFile(id int64) (*store.File, error) {
	return a.Store.GetFile(id)
}

func (a *API) RetryFile(id int64) error {
	return a.Store.RetryFile(id)
}

func (a *API) SkipFile(id int64, reason string) error {
	return a.Store.SkipFile(id, reason)
}

func (a *API) ExcludeFiles(ids []int64, reason string) error {
	return a.Store.ExcludeFiles(ids, reason)
}

// --- Queue control ---

func (a *API) Pause() {
	a.Worker.Pause()
}

func (a *API) Resume() {
	a.Worker.Resume()
}

// CancelCurrent cancels whichever file the worker is actively encoding.
// Returns false if nothing is in flight.
func (a *API) CancelCurrent() bool {
	return a.Worker.CancelCurrent()
}

// --- Settings ---

func (a *API) GetSettings() (map[string]string, error) {
	return a.Store.AllSettings()
}

func (a *API) UpdateSetting(key, value string) error {
	return a.Store.SetSetting(key, value)
}

// --- Scan control ---

func (a *API) ScanAll(ctx context.Context) error {
	return a.Scanner.ScanAll(ctx)
}

func (a *API) ScanLibrary(ctx context.Context, libraryID int64) error {
	lib, err := a.Store.GetLibrary(libraryID)
	if err != nil {
		return err
	}
	return a.Scanner.ScanLibrary(ctx, lib)
}

func (a *API) StopScan() {
	a.Scanner.StopScan()
}

// --- Aggregates ---

func (a *API) StatsDaily(days int) ([]*store.StatsDaily, error) {
	return a.Store.ListStatsDaily(days)
}

func (a *API) StatsHourly(hours int) ([]*store.StatsHourly, error) {
	return a.Store.ListStatsHourly(hours)
}

func (a *API) EncodingLog(fileID int64) ([]*store.EncodingLogEntry, error) {
	return a.Store.ListEncodingLog(fileID)
}

// TestEncodeResult is the §6 "test encode" response shape.
type TestEncodeResult struct {
	Success         bool     `json:"success"`
	OriginalSize    int64    `json:"original_size"`
	OutputSize      int64    `json:"output_size"`
	SavingsPercent  float64  `json:"savings_percent"`
	Metadata        *probe.Metadata `json:"metadata"`
	OutputPath      string   `json:"output_path"`
}

// TestEncode runs the encode pipeline up to producing output, writing the
// result into outputDir with a .test.mkv suffix. The source is read
// directly (no scratch copy); nothing touches the Store or stats, per §6.
func (a *API) TestEncode(ctx context.Context, filePath, outputDir string) (*TestEncodeResult, error) {
	meta, err := a.Probe.Probe(ctx, filePath)
	if err != nil {
		return nil, err
	}

	fi, err := os.Stat(filePath)
	if err != nil {
		return nil, storeerr.Wrapf(storeerr.ErrIO, "stat source: %v", err)
	}

	in := transcoder.Input{
		Path:     filePath,
		Bitrate:  meta.Bitrate,
		Width:    meta.Width,
		Height:   meta.Height,
		IsHDR:    meta.IsHDR,
		Is4K:     meta.Width >= 3840 || meta.Height >= 2160,
		Duration: meta.Duration,
	}
	settings := transcoder.DefaultSettings()
	plan := transcoder.BuildPlan(in, settings)

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, storeerr.Wrapf(storeerr.ErrIO, "create output dir: %v", err)
	}
	stem := filepath.Base(filePath)
	stem = stem[:len(stem)-len(filepath.Ext(stem))]
	outPath := filepath.Join(outputDir, stem+".test.mkv")

	exec := transcoder.NewExecutor(a.TranscoderPath)
	progressCh := make(chan transcoder.Progress, 8)
	go func() {
		for range progressCh {
		}
	}()
	if err := exec.Run(ctx, filePath, outPath, in, plan, true, settings, progressCh); err != nil {
		return nil, err
	}

	outInfo, err := os.Stat(outPath)
	if err != nil {
		return nil, storeerr.Wrapf(storeerr.ErrIO, "stat output: %v", err)
	}

	savings := 0.0
	if fi.Size() > 0 {
		savings = (1 - float64(outInfo.Size())/float64(fi.Size())) * 100
	}

	return &TestEncodeResult{
		Success:        true,
		OriginalSize:   fi.Size(),
		OutputSize:     outInfo.Size(),
		SavingsPercent: savings,
		Metadata:       meta,
		OutputPath:     outPath,
	}, nil
}

// --- internal helpers exposed for the HTTP adapter ---

// ParseID is a small convenience for the http adapter in http.go, since
// every route parameter here is a decimal entity id.
func ParseID(s string) (int64, error) {
	return strconv.ParseInt(s, 10, 64)
}
