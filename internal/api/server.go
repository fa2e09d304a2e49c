// Package api serves split datasets as tensors over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/Chiratidzo/EncrypytedTrafficClassifier/internal/config"
	"github.com/Chiratidzo/EncrypytedTrafficClassifier/internal/export"
	"github.com/Chiratidzo/EncrypytedTrafficClassifier/internal/preprocess"
	"github.com/Chiratidzo/EncrypytedTrafficClassifier/internal/split"
)

// Handler holds the dependencies of the API routes.
type Handler struct {
	cfg     *config.Config
	metrics *Metrics
	log     logrus.FieldLogger
}

// NewHandler creates a handler serving the splits under cfg.Paths.SplitDir.
func NewHandler(cfg *config.Config, metrics *Metrics, log logrus.FieldLogger) *Handler {
	return &Handler{cfg: cfg, metrics: metrics, log: log}
}

// NewRouter wires every route.
func NewRouter(h *Handler) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/api/v1/datasets", h.instrument("datasets", h.listDatasets)).Methods("GET")
	r.HandleFunc("/api/v1/datasets/{suffix:[0-9]+_[0-9]+}/manifest", h.instrument("manifest", h.manifest)).Methods("GET")
	r.HandleFunc("/api/v1/datasets/{suffix:[0-9]+_[0-9]+}/vocabulary", h.instrument("vocabulary", h.vocabulary)).Methods("GET")
	r.HandleFunc("/api/v1/datasets/{suffix:[0-9]+_[0-9]+}/{split:train|val|test}/{part:x|y|meta}", h.instrument("tensor", h.tensor)).Methods("GET")
	r.Handle("/metrics", h.metrics.Handler()).Methods("GET")
	return r
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.code = code
	s.ResponseWriter.WriteHeader(code)
}

func (h *Handler) instrument(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		next(rec, r)
		h.metrics.requests.WithLabelValues(route, strconv.Itoa(rec.code)).Inc()
	}
}

func (h *Handler) splitDir(suffix string) string {
	return filepath.Join(h.cfg.Paths.SplitDir, suffix)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(v)
}

// listDatasets returns the suffixes of every directory holding a manifest.
func (h *Handler) listDatasets(w http.ResponseWriter, r *http.Request) {
	entries, err := os.ReadDir(h.cfg.Paths.SplitDir)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		http.Error(w, fmt.Sprintf("failed to list datasets: %v", err), http.StatusInternalServerError)
		return
	}
	suffixes := []string{}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(h.splitDir(e.Name()), split.ManifestName)); err == nil {
			suffixes = append(suffixes, e.Name())
		}
	}
	sort.Strings(suffixes)
	writeJSON(w, map[string][]string{"datasets": suffixes})
}

func (h *Handler) loadManifest(w http.ResponseWriter, suffix string, verify bool) (*split.Manifest, bool) {
	load := split.ReadManifest
	if verify {
		load = split.Verify
	}
	m, err := load(h.splitDir(suffix))
	switch {
	case errors.Is(err, os.ErrNotExist):
		http.Error(w, fmt.Sprintf("dataset '%s' not found", suffix), http.StatusNotFound)
		return nil, false
	case err != nil:
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return nil, false
	}
	return m, true
}

func (h *Handler) manifest(w http.ResponseWriter, r *http.Request) {
	verify := r.URL.Query().Get("verify") == "true"
	m, ok := h.loadManifest(w, mux.Vars(r)["suffix"], verify)
	if !ok {
		return
	}
	writeJSON(w, m)
}

func (h *Handler) vocabulary(w http.ResponseWriter, r *http.Request) {
	m, ok := h.loadManifest(w, mux.Vars(r)["suffix"], false)
	if !ok {
		return
	}
	writeJSON(w, map[string][]string{"labels": preprocess.VocabularyOf(m.Classes).Labels()})
}

// tensorOptions builds preprocessing options from the query string.
func (h *Handler) tensorOptions(r *http.Request) (preprocess.Options, error) {
	q := r.URL.Query()
	name := q.Get("family")
	if name == "" {
		name = h.cfg.Preprocess.Family
	}
	family, err := preprocess.ParseFamily(name)
	if err != nil {
		return preprocess.Options{}, err
	}
	opts := preprocess.OptionsFromConfig(h.cfg, family)
	if v := q.Get("num_bytes"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return preprocess.Options{}, fmt.Errorf("invalid num_bytes '%s'", v)
		}
		opts.NumBytes = n
	}
	if v := q.Get("mask"); v != "" {
		mask, err := strconv.ParseBool(v)
		if err != nil {
			return preprocess.Options{}, fmt.Errorf("invalid mask '%s'", v)
		}
		opts.Mask = mask
	}
	return opts, nil
}

// tensor preprocesses one split and streams X, y or the sidecar.
func (h *Handler) tensor(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	suffix, name, part := vars["suffix"], vars["split"], vars["part"]

	opts, err := h.tensorOptions(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	m, ok := h.loadManifest(w, suffix, false)
	if !ok {
		return
	}
	file, ok := m.File(name)
	if !ok {
		http.Error(w, fmt.Sprintf("split '%s' missing from manifest", name), http.StatusNotFound)
		return
	}

	ds, err := preprocess.LoadDataset(filepath.Join(h.splitDir(suffix), file.Name))
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to load split: %v", err), http.StatusInternalServerError)
		return
	}
	t, err := preprocess.Preprocess(ds, preprocess.VocabularyOf(m.Classes), opts)
	var shapeErr *preprocess.InvalidShapeError
	switch {
	case errors.As(err, &shapeErr):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case err != nil:
		http.Error(w, fmt.Sprintf("failed to preprocess split: %v", err), http.StatusInternalServerError)
		return
	}
	h.metrics.tensorRows.WithLabelValues(name).Add(float64(t.Rows()))

	tensorName := strings.TrimSuffix(file.Name, ".csv")
	switch part {
	case "meta":
		writeJSON(w, export.NewSidecar(tensorName, t))
		return
	case "x":
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.XFile(tensorName)))
		err = export.WriteX(w, t)
	case "y":
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.YFile(tensorName)))
		err = export.WriteY(w, t)
	}
	if err != nil {
		h.log.WithError(err).WithField("split", name).Error("Failed to stream tensor.")
	}
}
