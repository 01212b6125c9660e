package websocket

import (
	"time"
)

// EventType represents the type of WebSocket event
type EventType string

const (
	// EventTypeOperation is emitted after every applied encode or decode.
	EventTypeOperation EventType = "operation"
	// EventTypeFinding is emitted when a check or find-terms call locates
	// sensitive terms.
	EventTypeFinding EventType = "finding"
	// EventTypeRulesReload is emitted after a rules file reload.
	EventTypeRulesReload EventType = "rules_reload"
	// EventTypeSystemStatus represents a system status event
	EventTypeSystemStatus EventType = "system_status"
	// EventTypeConnection represents connection events
	EventTypeConnection EventType = "connection"
)

// Event represents a WebSocket event sent to clients
type Event struct {
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
	RequestID string      `json:"request_id,omitempty"`
}

// OperationEvent mirrors one applied transform. Only hashes and counts are
// broadcast; the text never leaves the process over this channel.
type OperationEvent struct {
	OperationID       string         `json:"operation_id"`
	Direction         string         `json:"direction"`
	SubstitutionCount int            `json:"substitution_count"`
	PerCategory       map[string]int `json:"per_category,omitempty"`
	CacheHit          bool           `json:"cache_hit"`
	Preview           bool           `json:"preview"`
}

// FindingEvent summarizes a check or find-terms result.
type FindingEvent struct {
	Clean         bool     `json:"clean"`
	TotalFindings int      `json:"total_findings"`
	Terms         []string `json:"terms,omitempty"`
}

// RulesReloadEvent announces a completed rules reload.
type RulesReloadEvent struct {
	RuleCount   int    `json:"rule_count"`
	Fingerprint string `json:"fingerprint"`
}

// SystemStatusEvent represents system status information
type SystemStatusEvent struct {
	Status           string `json:"status"`
	Uptime           string `json:"uptime"`
	TotalOperations  int64  `json:"total_operations"`
	ActiveRules      int    `json:"active_rules"`
	ConnectedClients int    `json:"connected_clients"`
}

// ConnectionEvent represents WebSocket connection events
type ConnectionEvent struct {
	Action    string `json:"action"` // "connected", "disconnected"
	ClientID  string `json:"client_id"`
	ClientIP  string `json:"client_ip"`
	UserAgent string `json:"user_agent,omitempty"`
	Message   string `json:"message,omitempty"`
}

// ClientMessage represents messages sent from clients to server
type ClientMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// SubscriptionRequest narrows which event types a client receives.
type SubscriptionRequest struct {
	Events []EventType `json:"events"`
}
