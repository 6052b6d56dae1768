// Command partitionserver exposes the partitioner over HTTP: upload an
// hMetis hypergraph, poll the job, fetch the block assignment and metrics.
package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	hg "github.com/gilchrisn/hypergraph-partitioning-service/pkg/hypergraph"
	"github.com/gilchrisn/hypergraph-partitioning-service/pkg/partition"
	"github.com/gilchrisn/hypergraph-partitioning-service/pkg/partitioner"
)

type jobStatus string

const (
	jobRunning  jobStatus = "running"
	jobFinished jobStatus = "finished"
	jobFailed   jobStatus = "failed"
)

type job struct {
	ID        string            `json:"id"`
	Status    jobStatus         `json:"status"`
	Error     string            `json:"error,omitempty"`
	Metrics   partition.Metrics `json:"metrics,omitempty"`
	RuntimeMS int64             `json:"runtime_ms,omitempty"`
	Partition []hg.PartID       `json:"partition,omitempty"`
}

type jobStore struct {
	mu   sync.RWMutex
	jobs map[string]*job
}

func newJobStore() *jobStore { return &jobStore{jobs: make(map[string]*job)} }

func (s *jobStore) put(j *job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[j.ID] = j
}

// get returns a copy so handlers never observe a job mid-update.
func (s *jobStore) get(id string) (job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[id]
	if !ok {
		return job{}, false
	}
	return *j, true
}

func (s *jobStore) update(id string, fn func(*job)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.jobs[id]; ok {
		fn(j)
	}
}

type partitionRequest struct {
	K         int32   `json:"k"`
	Epsilon   float64 `json:"epsilon"`
	Objective string  `json:"objective"`
	Seed      int64   `json:"seed"`
	Flow      string  `json:"flow"`
}

type server struct {
	store *jobStore
}

func (s *server) handlePartition(w http.ResponseWriter, r *http.Request) {
	file, _, err := r.FormFile("hypergraph")
	if err != nil {
		http.Error(w, "missing hypergraph file upload", http.StatusBadRequest)
		return
	}
	defer file.Close()

	tmp, err := os.CreateTemp("", "upload-*.hgr")
	if err != nil {
		http.Error(w, "storing upload failed", http.StatusInternalServerError)
		return
	}
	if _, err := tmp.ReadFrom(file); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		http.Error(w, "storing upload failed", http.StatusInternalServerError)
		return
	}
	tmp.Close()

	req := partitionRequest{K: 2, Epsilon: 0.03, Objective: "km1", Seed: 42, Flow: "matching"}
	if params := r.FormValue("params"); params != "" {
		if err := json.Unmarshal([]byte(params), &req); err != nil {
			os.Remove(tmp.Name())
			http.Error(w, "malformed params", http.StatusBadRequest)
			return
		}
	}

	j := &job{ID: uuid.New().String(), Status: jobRunning}
	s.store.put(j)

	go func() {
		defer os.Remove(tmp.Name())
		runJob(s.store, j.ID, tmp.Name(), req)
	}()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{"job_id": j.ID})
}

func runJob(store *jobStore, id, path string, req partitionRequest) {
	start := time.Now()
	fail := func(err error) {
		store.update(id, func(j *job) {
			j.Status = jobFailed
			j.Error = err.Error()
		})
	}

	cfg := partition.NewConfig()
	cfg.Set("partition.k", req.K)
	cfg.Set("partition.epsilon", req.Epsilon)
	cfg.Set("partition.objective", req.Objective)
	cfg.Set("partition.seed", req.Seed)
	cfg.Set("refinement.flow.algorithm", req.Flow)

	h, err := hg.BuildFromFile(path, false, cfg.NumThreads())
	if err != nil {
		fail(err)
		return
	}
	maxNodeWeight := hg.Weight(0)
	h.ForNodes(func(u hg.NodeID) {
		if w := h.NodeWeight(u); w > maxNodeWeight {
			maxNodeWeight = w
		}
	})
	ctx, err := partition.NewContext(cfg, h.TotalWeight(), maxNodeWeight)
	if err != nil {
		fail(err)
		return
	}
	result, err := partitioner.New(ctx).Partition(h)
	if err != nil {
		fail(err)
		return
	}

	store.update(id, func(j *job) {
		j.Metrics = result.Metrics
		j.Partition = result.Partition.ExtractPartIDs()
		j.RuntimeMS = time.Since(start).Milliseconds()
		j.Status = jobFinished
	})
}

func (s *server) handleJob(w http.ResponseWriter, r *http.Request) {
	j, ok := s.store.get(mux.Vars(r)["id"])
	if !ok {
		http.Error(w, "unknown job", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(j)
}

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	addr := os.Getenv("PARTITION_SERVER_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	s := &server{store: newJobStore()}
	router := mux.NewRouter()
	router.HandleFunc("/api/partition", s.handlePartition).Methods(http.MethodPost)
	router.HandleFunc("/api/jobs/{id}", s.handleJob).Methods(http.MethodGet)
	router.HandleFunc("/api/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods(http.MethodGet)

	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
	})

	httpServer := &http.Server{
		Addr:         addr,
		Handler:      c.Handler(router),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
	}

	go func() {
		log.Info().Str("address", addr).Msg("partition server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	httpServer.Shutdown(shutdownCtx)
	log.Info().Msg("partition server stopped")
}
