// Command mock_ai is a local stand-in for the classifier and transcriber
// services. It also tails the NATS alert subject when NATS_URL is set.
//
//	MOCK_THREAT_LEVEL=9 MOCK_TRANSCRIPT="get away" go run ./scripts/mock_ai
//	CLASSIFIER_URL=http://localhost:8090/classify TRANSCRIBER_URL=http://localhost:8090/transcribe sentinel serve
package main

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"os"
	"strconv"

	"github.com/nats-io/nats.go"

	"github.com/technosupport/sentinel/internal/alert"
	"github.com/technosupport/sentinel/internal/platform/logger"
)

type classifyRequest struct {
	Prompt     string   `json:"prompt"`
	Images     []string `json:"images"`
	Transcript string   `json:"transcript"`
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func main() {
	log := logger.New(env("LOG_LEVEL", "info"), "text")

	addr := env("MOCK_ADDR", ":8090")
	level, err := strconv.Atoi(env("MOCK_THREAT_LEVEL", "8"))
	if err != nil {
		log.Error("MOCK_THREAT_LEVEL must be an integer", "error", err)
		os.Exit(1)
	}
	description := env("MOCK_DESCRIPTION", "A person is forcing the side door open.")
	transcript := env("MOCK_TRANSCRIPT", "")

	if natsURL := os.Getenv("NATS_URL"); natsURL != "" {
		nc, err := nats.Connect(natsURL, nats.Name("sentinel-mock-ai"))
		if err != nil {
			log.Warn("NATS connect failed, not tailing alerts", "error", err)
		} else {
			defer nc.Close()
			subject := env("NATS_ALERT_SUBJECT", "sentinel.alerts")
			_, err := nc.Subscribe(subject, func(m *nats.Msg) {
				var job alert.Job
				if err := json.Unmarshal(m.Data, &job); err != nil {
					log.Warn("undecodable alert", "error", err)
					return
				}
				log.Info("alert received", "clip_ref", job.ClipRef, "severity", job.Severity, "summary", job.Summary)
			})
			if err != nil {
				log.Warn("subscribe failed", "subject", subject, "error", err)
			}
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /classify", func(w http.ResponseWriter, r *http.Request) {
		var req classifyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		bytes := 0
		for _, img := range req.Images {
			bytes += base64.StdEncoding.DecodedLen(len(img))
		}
		log.Info("classify", "keyframes", len(req.Images), "approx_bytes", bytes, "transcript", req.Transcript)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"threat_level": level,
			"description":  description,
		})
	})
	mux.HandleFunc("POST /transcribe", func(w http.ResponseWriter, r *http.Request) {
		if _, _, err := r.FormFile("file"); err != nil {
			http.Error(w, "missing file", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"text": transcript})
	})

	log.Info("mock AI listening", "addr", addr, "threat_level", level)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}
