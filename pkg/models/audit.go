package models

import "time"

// AuditAction names an audited operation.
type AuditAction string

const (
	AuditConnectionCreated     AuditAction = "connection.created"
	AuditConnectionFailed      AuditAction = "connection.failed"
	AuditConnectionDeactivated AuditAction = "connection.deactivated"
	AuditCredentialsEncrypted  AuditAction = "credentials.encrypted"
	AuditCredentialsDecrypted  AuditAction = "credentials.decrypted"
	AuditDataFetched           AuditAction = "data.fetched"
	AuditDataFetchFailed       AuditAction = "data.fetch_failed"
	AuditUploadProcessed       AuditAction = "upload.processed"
	AuditAlertAcknowledged     AuditAction = "alert.acknowledged"
)

// AuditEvent is one append-only audit log entry.
type AuditEvent struct {
	ID           string                 `json:"id"`
	Timestamp    time.Time              `json:"timestamp"`
	Action       AuditAction            `json:"action"`
	ConnectionID string                 `json:"connectionId,omitempty"`
	CarrierID    string                 `json:"carrierId,omitempty"`
	DataType     string                 `json:"dataType,omitempty"`
	Error        string                 `json:"error,omitempty"`
	Details      map[string]interface{} `json:"details,omitempty"`
}
