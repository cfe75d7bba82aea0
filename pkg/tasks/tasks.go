// Package tasks defines the structure for tasks that are sent to Kafka.
package tasks

import (
	"fmt"
	"time"
)

// IndexTask asks a worker to rebuild vectors. DocumentID 0 means every document of UserID.
type IndexTask struct {
	DocumentID  uint      `json:"document_id"`
	UserID      uint      `json:"user_id"`
	RequestedAt time.Time `json:"requested_at"`
}

// IsReindexAll reports whether the task covers all documents of the user.
func (t IndexTask) IsReindexAll() bool {
	return t.DocumentID == 0
}

// Key identifies the task for partitioning and retry bookkeeping.
func (t IndexTask) Key() string {
	if t.IsReindexAll() {
		return fmt.Sprintf("user:%d", t.UserID)
	}
	return fmt.Sprintf("document:%d", t.DocumentID)
}
