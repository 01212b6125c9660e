package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/termveil/termveil/internal/engine"
	"github.com/termveil/termveil/internal/history"
	"github.com/termveil/termveil/internal/websocket"
)

// maxBodyBytes bounds request bodies; text documents, not uploads.
const maxBodyBytes = 4 << 20

type transformRequest struct {
	Text    string `json:"text"`
	Preview bool   `json:"preview,omitempty"`
}

type textRequest struct {
	Text string `json:"text"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, format string, args ...interface{}) {
	writeJSON(w, status, errorResponse{Error: fmt.Sprintf(format, args...)})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: %v", err)
		return false
	}
	return true
}

func (s *Server) handleEncode(w http.ResponseWriter, r *http.Request) {
	s.handleTransform(w, r, engine.Encode)
}

func (s *Server) handleDecode(w http.ResponseWriter, r *http.Request) {
	s.handleTransform(w, r, engine.Decode)
}

func (s *Server) handleTransform(w http.ResponseWriter, r *http.Request, dir engine.Direction) {
	var req transformRequest
	if !decodeBody(w, r, &req) {
		return
	}

	var (
		result *engine.Result
		err    error
	)
	if dir == engine.Decode {
		result, err = s.engine.Decode(r.Context(), req.Text, req.Preview)
	} else {
		result, err = s.engine.Encode(r.Context(), req.Text, req.Preview)
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "%v", err)
		return
	}

	event := websocket.OperationEvent{
		Direction:         dir.String(),
		SubstitutionCount: result.Summary.Total,
		PerCategory:       result.Summary.PerCategory,
		CacheHit:          result.CacheHit,
		Preview:           req.Preview,
	}
	if result.Operation != nil {
		event.OperationID = result.Operation.ID
	}
	s.wsHub.BroadcastEvent(websocket.Event{
		Type:      websocket.EventTypeOperation,
		Timestamp: time.Now(),
		Data:      event,
	})

	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if !decodeBody(w, r, &req) {
		return
	}

	result := s.engine.Check(req.Text)

	terms := make([]string, 0, len(result.Findings))
	seen := make(map[string]bool)
	for _, f := range result.Findings {
		if !seen[f.Term] {
			seen[f.Term] = true
			terms = append(terms, f.Term)
		}
	}
	s.wsHub.BroadcastEvent(websocket.Event{
		Type:      websocket.EventTypeFinding,
		Timestamp: time.Now(),
		Data: websocket.FindingEvent{
			Clean:         result.Clean,
			TotalFindings: len(result.Findings),
			Terms:         terms,
		},
	})

	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleFindTerms(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if !decodeBody(w, r, &req) {
		return
	}

	findings := s.engine.FindTerms(req.Text)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"findings": findings,
		"total":    len(findings),
	})
}

func (s *Server) handleRules(w http.ResponseWriter, r *http.Request) {
	category := r.URL.Query().Get("category")
	ruleList := s.engine.Rules(category)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"rules":      ruleList,
		"total":      len(ruleList),
		"categories": s.engine.RuleSet().Categories(),
	})
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	conflicts := s.engine.Validate()

	messages := make([]string, 0, len(conflicts))
	for _, c := range conflicts {
		messages = append(messages, c.String())
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"valid":     len(conflicts) == 0,
		"conflicts": messages,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	operationID := r.URL.Query().Get("operation_id")

	summary, err := s.engine.Stats(operationID)
	if err != nil {
		writeError(w, http.StatusNotFound, "%v", err)
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	ops := s.engine.History()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"operations": ops,
		"total":      len(ops),
	})
}

func (s *Server) handleCompletions(w http.ResponseWriter, r *http.Request) {
	prefix := r.URL.Query().Get("prefix")
	completions := s.engine.Completions(prefix)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"completions": completions,
		"total":       len(completions),
	})
}

func (s *Server) handleUndo(w http.ResponseWriter, r *http.Request) {
	restored, op, err := s.engine.Undo()
	if err != nil {
		if errors.Is(err, history.ErrNoHistory) {
			writeError(w, http.StatusConflict, "nothing to undo")
			return
		}
		writeError(w, http.StatusInternalServerError, "%v", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"restored":  restored,
		"operation": op,
	})
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	count, err := s.engine.Reload()
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "reload failed: %v", err)
		return
	}

	s.wsHub.BroadcastEvent(websocket.Event{
		Type:      websocket.EventTypeRulesReload,
		Timestamp: time.Now(),
		Data: websocket.RulesReloadEvent{
			RuleCount:   count,
			Fingerprint: s.engine.RuleSet().Fingerprint(),
		},
	})

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"rules": count,
	})
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}

	totals, err := s.engine.AuditTotals(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, "audit totals unavailable: %v", err)
		return
	}
	recent, err := s.engine.AuditRecent(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusBadGateway, "audit records unavailable: %v", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"totals": totals,
		"recent": recent,
	})
}

func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.engine.CacheStats(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, "cache stats unavailable: %v", err)
		return
	}
	if stats == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"enabled": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"enabled": true,
		"stats":   stats,
	})
}

func (s *Server) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.ClearCache(r.Context()); err != nil {
		writeError(w, http.StatusBadGateway, "cache clear failed: %v", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"cleared": true})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	rs := s.engine.RuleSet()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"name":              "termveil",
		"version":           Version,
		"rules":             rs.Len(),
		"categories":        rs.Categories(),
		"rules_fingerprint": rs.Fingerprint(),
	})
}
