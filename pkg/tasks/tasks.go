// Package tasks defines the structure for tasks that are sent to Kafka.
package tasks

// DocumentProcessingTask represents the data structure for a document ingestion job.
type DocumentProcessingTask struct {
	DocID      string `json:"doc_id"`
	ObjectName string `json:"object_name"`
	FileName   string `json:"file_name"`
}
