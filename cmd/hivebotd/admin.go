package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/molthive/hivebot/pkg/config"
	"github.com/molthive/hivebot/pkg/orchestrator"
	"github.com/molthive/hivebot/pkg/scoring"
)

// serveAdmin exposes Prometheus metrics plus a small JSON control
// surface for the running fleet.
func serveAdmin(addr string, orch *orchestrator.Orchestrator) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/agents", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, orch.ListAgents())
	})

	mux.HandleFunc("/agents/", func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, "/agents/")
		name, action, _ := strings.Cut(rest, "/")

		switch {
		case action == "" && r.Method == http.MethodGet:
			status, err := orch.AgentStatus(name)
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, status)

		case action == "pause" && r.Method == http.MethodPost:
			if err := orch.PauseAgent(name); err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]string{"agent": name, "state": "paused"})

		case action == "resume" && r.Method == http.MethodPost:
			if err := orch.ResumeAgent(name); err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]string{"agent": name, "state": "running"})

		default:
			http.NotFound(w, r)
		}
	})

	mux.HandleFunc("/config", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			writeJSON(w, http.StatusOK, orch.Runtime())
		case http.MethodPost:
			var patch config.Patch
			if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
				return
			}
			if err := orch.UpdateRuntime(patch); err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, orch.Runtime())
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	})

	mux.HandleFunc("/weights", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			writeJSON(w, http.StatusOK, orch.Weights())
		case http.MethodPost:
			var weights scoring.Weights
			if err := json.NewDecoder(r.Body).Decode(&weights); err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
				return
			}
			if err := orch.UpdateWeights(weights); err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, orch.Weights())
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	})

	mux.HandleFunc("/arbiter", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, orch.Arbiter().Stats())
	})

	logrus.WithField("addr", addr).Info("admin endpoint listening")
	if err := http.ListenAndServe(addr, mux); err != nil {
		logrus.WithError(err).Error("admin endpoint failed")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	var verr *config.ValidationError
	switch {
	case errors.As(err, &verr):
		status = http.StatusBadRequest
	case errors.Is(err, orchestrator.ErrUnknownAgent):
		status = http.StatusNotFound
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
