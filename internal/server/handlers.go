package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/argus-v/argus-ml/internal/analytics/frame"
	"github.com/argus-v/argus-ml/internal/errs"
	"github.com/argus-v/argus-ml/internal/feedback"
	"github.com/argus-v/argus-ml/internal/inference"
	"github.com/argus-v/argus-ml/internal/metrics"
)

// SourceIPField is the optional flow field checked against the trust ledger.
const SourceIPField = "src_ip"

// FlowsRequest carries raw flow rows.
type FlowsRequest struct {
	Flows []map[string]any `json:"flows"`
	TopK  int              `json:"top_k,omitempty"`
}

// PredictionResult is one scored row.
type PredictionResult struct {
	inference.Prediction
	SourceIP   string `json:"src_ip,omitempty"`
	Suppressed bool   `json:"suppressed"`
}

// FeedbackRequest names an ip for the trust ledger.
type FeedbackRequest struct {
	IP     string `json:"ip"`
	Reason string `json:"reason,omitempty"`
}

// Predict handles POST /v1/predict
func (s *Server) Predict(w http.ResponseWriter, r *http.Request) {
	engine, f, ok := s.decodeFlows(w, r, nil)
	if !ok {
		return
	}

	preds, err := engine.PredictFlows(f)
	if err != nil {
		s.respondInferenceError(w, err)
		return
	}

	results := make([]PredictionResult, len(preds))
	for i, p := range preds {
		results[i] = PredictionResult{Prediction: p}
		ip, ok := f.Cell(i, SourceIPField)
		if !ok || ip == "" {
			continue
		}
		results[i].SourceIP = ip
		if !p.IsAnomaly {
			continue
		}
		trusted, err := s.feedback.IsTrusted(ip)
		if err != nil {
			s.logger.Warn("trust lookup failed, alert kept", zap.String("ip", ip), zap.Error(err))
			continue
		}
		if trusted {
			results[i].Suppressed = true
			metrics.PredictionsTotal.WithLabelValues("suppressed").Inc()
		}
	}

	respondJSON(w, http.StatusOK, map[string]any{"predictions": results})
}

// Explain handles POST /v1/explain
func (s *Server) Explain(w http.ResponseWriter, r *http.Request) {
	var req FlowsRequest
	engine, f, ok := s.decodeFlows(w, r, &req)
	if !ok {
		return
	}

	out := make([][]string, f.Rows())
	for i := range out {
		expl, err := engine.ExplainRow(f, i, req.TopK)
		if err != nil {
			s.respondInferenceError(w, err)
			return
		}
		out[i] = expl
	}
	respondJSON(w, http.StatusOK, map[string]any{"explanations": out})
}

// ReportFalsePositive handles POST /v1/feedback/false-positive
func (s *Server) ReportFalsePositive(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeFeedback(w, r)
	if !ok {
		return
	}
	if err := s.feedback.ReportFalsePositive(req.IP, req.Reason); err != nil {
		s.respondFeedbackError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"ip": req.IP, "status": string(feedback.StatusActive)})
}

// Revoke handles POST /v1/feedback/revoke
func (s *Server) Revoke(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeFeedback(w, r)
	if !ok {
		return
	}
	if err := s.feedback.Revoke(req.IP); err != nil {
		s.respondFeedbackError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"ip": req.IP, "status": string(feedback.StatusRevoked)})
}

// ListTrusted handles GET /v1/feedback/trusted
func (s *Server) ListTrusted(w http.ResponseWriter, r *http.Request) {
	entries, err := s.feedback.TrustedIPs()
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if entries == nil {
		entries = []feedback.TrustedIP{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"trusted_ips": entries})
}

// TriggerRetrain handles POST /v1/retrain
func (s *Server) TriggerRetrain(w http.ResponseWriter, r *http.Request) {
	if err := s.feedback.TriggerRetrain(); err != nil {
		s.respondFeedbackError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]string{"status": "retrain_requested"})
}

// ReloadModel handles POST /v1/model/reload
func (s *Server) ReloadModel(w http.ResponseWriter, r *http.Request) {
	engine, err := s.loader.Reload()
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	art := engine.Artifact()
	respondJSON(w, http.StatusOK, map[string]any{
		"dataset":         art.Dataset,
		"trained_at":      art.TrainedAt,
		"hyperparameters": art.Hyperparameters,
	})
}

// Health handles GET /healthz
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	_, err := s.loader.Engine()
	respondJSON(w, http.StatusOK, map[string]any{
		"status":       "healthy",
		"model_loaded": err == nil,
	})
}

// decodeFlows parses a FlowsRequest into a frame and acquires the engine.
// It writes the error response itself and reports whether to continue.
func (s *Server) decodeFlows(w http.ResponseWriter, r *http.Request, req *FlowsRequest) (*inference.Engine, *frame.Frame, bool) {
	if req == nil {
		req = &FlowsRequest{}
	}
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return nil, nil, false
	}
	if len(req.Flows) == 0 {
		respondError(w, http.StatusBadRequest, "flows must not be empty")
		return nil, nil, false
	}
	f, err := frame.FromRecords(req.Flows)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return nil, nil, false
	}
	engine, err := s.loader.Engine()
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "model unavailable: "+err.Error())
		return nil, nil, false
	}
	return engine, f, true
}

func decodeFeedback(w http.ResponseWriter, r *http.Request) (FeedbackRequest, bool) {
	var req FeedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return req, false
	}
	req.IP = strings.TrimSpace(req.IP)
	if req.IP == "" {
		respondError(w, http.StatusBadRequest, "ip is required")
		return req, false
	}
	return req, true
}

func (s *Server) respondInferenceError(w http.ResponseWriter, err error) {
	var schemaErr *errs.SchemaError
	if errors.As(err, &schemaErr) {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Error("inference failed", zap.Error(err))
	respondError(w, http.StatusInternalServerError, err.Error())
}

func (s *Server) respondFeedbackError(w http.ResponseWriter, err error) {
	if errors.Is(err, feedback.ErrUnknownIP) {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	s.logger.Error("feedback update failed", zap.Error(err))
	respondError(w, http.StatusInternalServerError, err.Error())
}

// Helper functions
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
