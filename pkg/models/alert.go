package models

import "time"

// AlertSeverity grades an alert.
type AlertSeverity string

const (
	SeverityWarning AlertSeverity = "warning"
	SeverityError   AlertSeverity = "error"
)

// Alert is raised by the monitor. Alerts are acknowledged, never deleted.
type Alert struct {
	ID             string        `json:"id"`
	ConnectionID   string        `json:"connectionId"`
	CarrierID      string        `json:"carrierId"`
	Message        string        `json:"message"`
	Severity       AlertSeverity `json:"severity"`
	Timestamp      time.Time     `json:"timestamp"`
	Acknowledged   bool          `json:"acknowledged"`
	AcknowledgedAt *time.Time    `json:"acknowledgedAt,omitempty"`
}

// AlertFilter selects alerts. Zero values match everything.
type AlertFilter struct {
	ConnectionID string        `form:"connectionId"`
	CarrierID    string        `form:"carrierId"`
	Severity     AlertSeverity `form:"severity"`
	Acknowledged *bool         `form:"acknowledged"`
	Since        time.Time     `form:"since"`
	Limit        int           `form:"limit"`
}

// Matches reports whether a satisfies the filter.
func (f AlertFilter) Matches(a *Alert) bool {
	if f.ConnectionID != "" && a.ConnectionID != f.ConnectionID {
		return false
	}
	if f.CarrierID != "" && a.CarrierID != f.CarrierID {
		return false
	}
	if f.Severity != "" && a.Severity != f.Severity {
		return false
	}
	if f.Acknowledged != nil && a.Acknowledged != *f.Acknowledged {
		return false
	}
	if !f.Since.IsZero() && a.Timestamp.Before(f.Since) {
		return false
	}
	return true
}
