package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/reelwright/hevcsup/internal/store"
	"github.com/reelwright/hevcsup/internal/storeerr"
)

// RegisterRoutes wires the JSON endpoints described in §6 onto mux. This
// adapter is intentionally thin: it parses the request, calls into a, and
// serializes the result. No business logic lives here.
func (a *API) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/libraries", a.handleLibraries)
	mux.HandleFunc("/api/libraries/", a.handleLibraryByID)

	mux.HandleFunc("/api/exclusions", a.handleExclusions)
	mux.HandleFunc("/api/exclusions/", a.handleExclusionByID)
	mux.HandleFunc("/api/exclusions/check", a.handleCheckExclusion)

	mux.HandleFunc("/api/files", a.handleFiles)
	mux.HandleFunc("/api/files/", a.handleFileByID)

	mux.HandleFunc("/api/queue/pause", a.handlePause)
	mux.HandleFunc("/api/queue/resume", a.handleResume)
	mux.HandleFunc("/api/queue/cancel", a.handleCancel)

	mux.HandleFunc("/api/settings", a.handleSettings)

	mux.HandleFunc("/api/scan", a.handleScan)
	mux.HandleFunc("/api/scan/stop", a.handleStopScan)

	mux.HandleFunc("/api/stats/daily", a.handleStatsDaily)
	mux.HandleFunc("/api/stats/hourly", a.handleStatsHourly)

	mux.HandleFunc("/api/test-encode", a.handleTestEncode)

	mux.HandleFunc("/sse/events", a.handleSSE)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, storeerr.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, storeerr.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, storeerr.ErrConflict):
		status = http.StatusConflict
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// idFromPath extracts the decimal {id} segment that follows prefix in an
// /api/x/{id}[/...] route, returning whatever follows it as tail.
func idFromPath(prefix, path string) (int64, string, error) {
	rest := strings.TrimPrefix(path, prefix)
	parts := strings.SplitN(strings.TrimPrefix(rest, "/"), "/", 2)
	id, err := ParseID(parts[0])
	if err != nil {
		return 0, "", storeerr.Wrapf(storeerr.ErrValidation, "bad id: %v", err)
	}
	tail := ""
	if len(parts) > 1 {
		tail = parts[1]
	}
	return id, tail, nil
}

func (a *API) handleLibraries(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		libs, err := a.ListLibraries()
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, libs)
	case http.MethodPost:
		var body struct {
			Name         string `json:"name"`
			Path         string `json:"path"`
			Enabled      bool   `json:"enabled"`
			WatchEnabled bool   `json:"watch_enabled"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, storeerr.Wrapf(storeerr.ErrValidation, "decode body: %v", err))
			return
		}
		lib, err := a.CreateLibrary(body.Name, body.Path, body.Enabled, body.WatchEnabled)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, lib)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (a *API) handleLibraryByID(w http.ResponseWriter, r *http.Request) {
	id, _, err := idFromPath("/api/libraries", r.URL.Path)
	if err != nil {
		writeError(w, err)
		return
	}
	switch r.Method {
	case http.MethodPut:
		var lib store.Library
		if err := json.NewDecoder(r.Body).Decode(&lib); err != nil {
			writeError(w, storeerr.Wrapf(storeerr.ErrValidation, "decode body: %v", err))
			return
		}
		lib.ID = id
		if err := a.UpdateLibrary(&lib); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, lib)
	case http.MethodDelete:
		if err := a.DeleteLibrary(id); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (a *API) handleExclusions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		excl, err := a.ListExclusions()
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, excl)
	case http.MethodPost:
		var body struct {
			LibraryID *int64             `json:"library_id"`
			Pattern   string             `json:"pattern"`
			Type      store.ExclusionType `json:"type"`
			Reason    *string            `json:"reason"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, storeerr.Wrapf(storeerr.ErrValidation, "decode body: %v", err))
			return
		}
		excl, err := a.CreateExclusion(body.LibraryID, body.Pattern, body.Type, body.Reason)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, excl)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (a *API) handleExclusionByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id, _, err := idFromPath("/api/exclusions", r.URL.Path)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := a.DeleteExclusion(id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleCheckExclusion(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	libraryID, _ := strconv.ParseInt(r.URL.Query().Get("library_id"), 10, 64)
	res, err := a.CheckExclusion(path, libraryID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *API) handleFiles(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	q := store.FileQuery{}
	if v := r.URL.Query().Get("library_id"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			q.LibraryID = &id
		}
	}
	if v := r.URL.Query().Get("status"); v != "" {
		status := store.FileStatus(v)
		q.Status = &status
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		q.Limit, _ = strconv.Atoi(v)
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		q.Offset, _ = strconv.Atoi(v)
	}
	files, err := a.ListFiles(q)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, files)
}

func (a *API) handleFileByID(w http.ResponseWriter, r *http.Request) {
	id, tail, err := idFromPath("/api/files", r.URL.Path)
	if err != nil {
		writeError(w, err)
		return
	}

	switch {
	case tail == "" && r.Method == http.MethodGet:
		f, err := a.GetFile(id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, f)
	case tail == "retry" && r.Method == http.MethodPost:
		if err := a.RetryFile(id); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	case tail == "skip" && r.Method == http.MethodPost:
		var body struct {
			Reason string `json:"reason"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		if err := a.SkipFile(id, body.Reason); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	case tail == "exclude" && r.Method == http.MethodPost:
		var body struct {
			Reason string `json:"reason"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		if err := a.ExcludeFiles([]int64{id}, body.Reason); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		http.NotFound(w, r)
	}
}

func (a *API) handlePause(w http.ResponseWriter, r *http.Request) {
	a.Pause()
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleResume(w http.ResponseWriter, r *http.Request) {
	a.Resume()
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleCancel(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"cancelled": a.CancelCurrent()})
}

func (a *API) handleSettings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		settings, err := a.GetSettings()
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, settings)
	case http.MethodPut, http.MethodPost:
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, storeerr.Wrapf(storeerr.ErrValidation, "decode body: %v", err))
			return
		}
		for k, v := range body {
			if err := a.UpdateSetting(k, v); err != nil {
				writeError(w, err)
				return
			}
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (a *API) handleScan(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ctx := context.Background()
	if v := r.URL.Query().Get("library_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeError(w, storeerr.Wrapf(storeerr.ErrValidation, "bad library_id: %v", err))
			return
		}
		go a.ScanLibrary(ctx, id)
	} else {
		go a.ScanAll(ctx)
	}
	w.WriteHeader(http.StatusAccepted)
}

func (a *API) handleStopScan(w http.ResponseWriter, r *http.Request) {
	a.StopScan()
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleStatsDaily(w http.ResponseWriter, r *http.Request) {
	days := 30
	if v := r.URL.Query().Get("days"); v != "" {
		days, _ = strconv.Atoi(v)
	}
	stats, err := a.StatsDaily(days)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (a *API) handleStatsHourly(w http.ResponseWriter, r *http.Request) {
	hours := 48
	if v := r.URL.Query().Get("hours"); v != "" {
		hours, _ = strconv.Atoi(v)
	}
	stats, err := a.StatsHourly(hours)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (a *API) handleTestEncode(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var body struct {
		FilePath  string `json:"file_path"`
		OutputDir string `json:"output_dir"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, storeerr.Wrapf(storeerr.ErrValidation, "decode body: %v", err))
		return
	}
	result, err := a.TestEncode(r.Context(), body.FilePath, body.OutputDir)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
