// Package app composes the core components into a running process: load
// config, open the store, construct every component by constructor
// injection, wire them together, and hand back something the entrypoint
// can Start and Shutdown.
package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"path/filepath"
	"time"

	"github.com/reelwright/hevcsup/internal/api"
	"github.com/reelwright/hevcsup/internal/bus"
	"github.com/reelwright/hevcsup/internal/classifier"
	"github.com/reelwright/hevcsup/internal/config"
	"github.com/reelwright/hevcsup/internal/encoder"
	"github.com/reelwright/hevcsup/internal/probe"
	"github.com/reelwright/hevcsup/internal/scanner"
	"github.com/reelwright/hevcsup/internal/store"
	"github.com/reelwright/hevcsup/internal/transcoder"
	"github.com/reelwright/hevcsup/internal/watcher"
)

// Server wraps every long-lived component the entrypoint needs to start,
// run, and shut down cleanly.
type Server struct {
	HTTP     *http.Server
	Config   *config.Config
	Store    *store.DB
	Probe    probe.Interface
	Scanner  *scanner.Scanner
	Watchers *watcher.Set
	Worker   *encoder.Worker
	Bus      *bus.Bus
	API      *api.API

	rescan *rescanner
	cancel context.CancelFunc
	done   chan struct{}
}

// CreateServer wires the eight core components per §4.11 and returns a
// Server ready for Start.
func CreateServer(cfg *config.Config) (*Server, error) {
	log.Printf("hevcsup starting...")
	log.Printf("  database: %s", cfg.DBPath)
	log.Printf("  port: %d", cfg.Port)

	db, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	// Crash recovery (§8): any row stuck mid-encode at process start is
	// requeued, never left hung in the encoding state.
	if n, err := db.ResetEncoding(); err != nil {
		db.Close()
		return nil, fmt.Errorf("reset encoding state: %w", err)
	} else if n > 0 {
		log.Printf("  recovered %d file(s) stuck in encoding", n)
	}

	probeExec := probe.NewExecutor(cfg.ProbePath)
	checkCtx, checkCancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := probeExec.CheckInstalled(checkCtx); err != nil {
		log.Printf("warning: probe binary not found at %q: %v", cfg.ProbePath, err)
	}
	checkCancel()

	transcoderExec := transcoder.NewExecutor(cfg.TranscoderPath)
	checkCtx2, checkCancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	if err := transcoderExec.CheckInstalled(checkCtx2); err != nil {
		log.Printf("warning: transcoder binary not found at %q: %v", cfg.TranscoderPath, err)
	}
	checkCancel2()

	eventBus := bus.New()
	cls := classifier.New(db, probeExec)

	extensions := cfg.ScanExtensions
	if len(extensions) == 0 {
		extensions = scanner.DefaultExtensions
	}
	extSet := make(map[string]bool, len(extensions))
	for _, e := range extensions {
		extSet[e] = true
	}

	scan := scanner.New(db, cls, eventBus, extensions)
	watchSet := watcher.NewSet(db, cls, extSet, log.Default())

	// Seed SUPERVISOR_LIBRARY_PATHS as enabled+watched libraries, only
	// while the libraries table is still empty.
	if len(cfg.LibraryPaths) > 0 {
		if existing, err := db.ListLibraries(); err == nil && len(existing) == 0 {
			for _, p := range cfg.LibraryPaths {
				if _, err := db.CreateLibrary(filepath.Base(p), p, true, true); err != nil {
					log.Printf("warning: could not seed library %q: %v", p, err)
				}
			}
		}
	}

	libs, err := db.ListEnabledLibraries()
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("list libraries: %w", err)
	}
	for _, lib := range libs {
		if lib.WatchEnabled {
			if err := watchSet.Start(lib); err != nil {
				log.Printf("warning: could not start watcher for library %q: %v", lib.Name, err)
			}
		}
	}

	fileSort := store.FileSort(db.GetSettingOrDefault("file_sort", string(store.FileSortBitrateAsc)))
	libraryPriority := store.LibraryPriority(db.GetSettingOrDefault("library_priority", string(store.LibraryPriorityRoundRobin)))
	worker := encoder.New(db, probeExec, transcoderExec, eventBus, cfg.ScratchDir, fileSort, libraryPriority)

	a := api.New(db, probeExec, scan, watchSet, worker, eventBus, cls, cfg.TranscoderPath, cfg.ProbePath)

	mux := http.NewServeMux()
	a.RegisterRoutes(mux)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // SSE streams never time out
		IdleTimeout:  60 * time.Second,
	}

	srv := &Server{
		HTTP:     httpServer,
		Config:   cfg,
		Store:    db,
		Probe:    probeExec,
		Scanner:  scan,
		Watchers: watchSet,
		Worker:   worker,
		Bus:      eventBus,
		API:      a,
	}

	if cfg.ScanInterval > 0 {
		srv.rescan = newRescanner(scan, cfg.ScanInterval)
	}

	return srv, nil
}

// Start launches the long-lived background tasks (encoder worker, optional
// rescan timer) as goroutines and begins serving HTTP. It blocks until the
// HTTP server exits (ListenAndServe's own contract).
func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		s.Worker.Start(ctx)
	}()

	if s.rescan != nil {
		s.rescan.start(ctx)
	}

	return s.HTTP.ListenAndServe()
}

// Shutdown implements §4.11's graceful-stop sequence: stop accepting new
// scans, signal the worker and watchers, wait for in-flight work with a
// bounded timeout, then close the store.
func (s *Server) Shutdown(ctx context.Context) error {
	s.Scanner.StopScan()
	if s.rescan != nil {
		s.rescan.stop()
	}

	s.Worker.Stop()
	s.Worker.CancelCurrent()
	s.Watchers.StopAll()

	if err := s.HTTP.Shutdown(ctx); err != nil {
		log.Printf("http shutdown: %v", err)
	}

	if s.cancel != nil {
		s.cancel()
	}
	if s.done != nil {
		select {
		case <-s.done:
		case <-ctx.Done():
			log.Printf("worker did not stop before shutdown deadline")
		}
	}

	return s.Store.Close()
}
