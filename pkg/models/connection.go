package models

import "time"

// TransportType is the mechanism a connection uses to reach a carrier.
type TransportType string

const (
	TransportAPI    TransportType = "api"
	TransportEDI    TransportType = "edi"
	TransportEmail  TransportType = "email"
	TransportWeb    TransportType = "web"
	TransportManual TransportType = "manual"
)

// AllTransports lists every transport in declaration order.
var AllTransports = []TransportType{TransportAPI, TransportEDI, TransportEmail, TransportWeb, TransportManual}

// Valid reports whether t is a known transport.
func (t TransportType) Valid() bool {
	for _, known := range AllTransports {
		if t == known {
			return true
		}
	}
	return false
}

// ConnectionStatus is the lifecycle state of a connection.
type ConnectionStatus string

const (
	ConnectionConnecting ConnectionStatus = "connecting"
	ConnectionConnected  ConnectionStatus = "connected"
	ConnectionError      ConnectionStatus = "error"
	ConnectionInactive   ConnectionStatus = "inactive"
)

// ConnectionMetrics are the running figures the engine and monitor maintain.
type ConnectionMetrics struct {
	Uptime            float64 `json:"uptime"`
	ErrorRate         float64 `json:"errorRate"`
	AvgResponseTimeMs float64 `json:"avgResponseTimeMs"`
	TotalRequests     int64   `json:"totalRequests"`
}

// Connection is one configured integration with a carrier over one transport.
type Connection struct {
	ID          string                 `json:"id"`
	CarrierID   string                 `json:"carrierId"`
	TenantID    string                 `json:"tenantId"`
	Type        TransportType          `json:"type"`
	Credentials string                 `json:"-"`
	Settings    map[string]interface{} `json:"settings,omitempty"`
	Status      ConnectionStatus       `json:"status"`
	CreatedAt   time.Time              `json:"createdAt"`
	LastSync    *time.Time             `json:"lastSync"`
	Metrics     ConnectionMetrics      `json:"metrics"`
}

// Partition is the key that scopes duplicate-detection state for this connection.
func (c *Connection) Partition() string {
	if c.TenantID != "" {
		return c.TenantID
	}
	return c.ID
}

// Active reports whether the connection may serve fetches.
func (c *Connection) Active() bool {
	return c.Status != ConnectionInactive
}

// Clone returns a deep-enough copy for handing out of a store.
func (c *Connection) Clone() *Connection {
	if c == nil {
		return nil
	}
	cp := *c
	if c.Settings != nil {
		cp.Settings = make(map[string]interface{}, len(c.Settings))
		for k, v := range c.Settings {
			cp.Settings[k] = v
		}
	}
	if c.LastSync != nil {
		t := *c.LastSync
		cp.LastSync = &t
	}
	return &cp
}

// HealthStatus is the outcome of one health check.
type HealthStatus string

const (
	HealthHealthy HealthStatus = "healthy"
	HealthError   HealthStatus = "error"
)

// HealthCheck is one entry of a connection's rolling health history.
type HealthCheck struct {
	Status         HealthStatus `json:"status"`
	ResponseTimeMs int64        `json:"responseTimeMs"`
	Timestamp      time.Time    `json:"timestamp"`
	Error          string       `json:"error,omitempty"`
}

// ConnectionHealth summarizes a connection's recent health history.
type ConnectionHealth struct {
	ConnectionID      string        `json:"connectionId"`
	CarrierID         string        `json:"carrierId"`
	Status            HealthStatus  `json:"status"`
	Uptime            float64       `json:"uptime"`
	AvgResponseTimeMs float64       `json:"avgResponseTimeMs"`
	TotalChecks       int           `json:"totalChecks"`
	LastCheck         *HealthCheck  `json:"lastCheck,omitempty"`
	History           []HealthCheck `json:"history,omitempty"`
}
