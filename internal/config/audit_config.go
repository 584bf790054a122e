package config

import "time"

type AuditConfig interface {
	GetAuditQueueSize() int
	GetAuditRetryBaseDelay() time.Duration
	GetAuditRetryMaxDelay() time.Duration
	GetAuditDeadLetterGrace() time.Duration
}

type Audit struct {
	file *FileConfig
}

var _ AuditConfig = Audit{}

func (a Audit) GetAuditQueueSize() int {
	return getInt("AUDIT_QUEUE_SIZE", a.file.Audit.QueueSize, 1024)
}

func (a Audit) GetAuditRetryBaseDelay() time.Duration {
	return getDuration("AUDIT_RETRY_BASE_DELAY", a.file.Audit.RetryBaseDelay, 100*time.Millisecond)
}

func (a Audit) GetAuditRetryMaxDelay() time.Duration {
	return getDuration("AUDIT_RETRY_MAX_DELAY", a.file.Audit.RetryMaxDelay, 10*time.Second)
}

// GetAuditDeadLetterGrace is how long an event may keep failing before it is dead-lettered
func (a Audit) GetAuditDeadLetterGrace() time.Duration {
	return getDuration("AUDIT_DEAD_LETTER_GRACE", a.file.Audit.DeadLetterGrace, 5*time.Minute)
}
