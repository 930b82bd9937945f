package types

import "time"

// NotificationType identifies a realtime notification
type NotificationType string

const (
	NotificationUploadCompleted NotificationType = "upload_completed"
	NotificationMetricsWiped    NotificationType = "metrics_wiped"
)

// Audience restricts which dashboard clients receive a notification
type Audience string

const (
	AudienceAll    Audience = "all"
	AudienceAdmins Audience = "admins"
)

// Notification is pushed to connected dashboard clients
type Notification struct {
	Type      NotificationType `json:"type"`
	Audience  Audience         `json:"audience"`
	Timestamp time.Time        `json:"timestamp"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	UploadID  string           `json:"uploadId,omitempty"`
	Period    string           `json:"period,omitempty"`
}

// AuditAction names an audited operation
type AuditAction string

const (
	AuditUpload         AuditAction = "upload"
	AuditUploadRejected AuditAction = "upload_rejected"
	AuditMetricsWiped   AuditAction = "metrics_wiped"
	AuditPasswordCheck  AuditAction = "password_policy_check"
)

// AuditEntry records who did what and when
type AuditEntry struct {
	Day       string      `json:"day" dynamodbav:"Day"`             // YYYY-MM-DD (partition key)
	EntryID   string      `json:"entryId" dynamodbav:"EntryID"`     // RFC3339Nano#uuid (sort key)
	Timestamp time.Time   `json:"timestamp" dynamodbav:"Timestamp"`
	Actor     string      `json:"actor" dynamodbav:"Actor"`
	Action    AuditAction `json:"action" dynamodbav:"Action"`
	Detail    string      `json:"detail" dynamodbav:"Detail"`
}
