// Package audit emits a best-effort JSON Lines log of document mutations
// and queries, for operators who want activity history alongside the
// engine's own storage (§12). It never blocks or fails a caller's
// operation: write errors are swallowed.
package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType names one kind of audited activity.
type EventType string

const (
	DocumentUpserted EventType = "document_upserted"
	DocumentDeleted  EventType = "document_deleted"
	QueryPerformed   EventType = "query_performed"
)

// Event is one audit log entry.
type Event struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	DocID     string         `json:"doc_id,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
}

// Subscriber receives a copy of every emitted event.
type Subscriber func(Event)

// Emitter appends events to a daily JSONL file and fans them out to any
// subscribers. An Emitter from NewEmitter("") has no file and still fans
// out to subscribers. A nil *Emitter (and a zero-value Emitter) emits
// nothing, which makes an Emitter optional plumbing for the Engine without
// a nil check at every call site.
type Emitter struct {
	subscribers []Subscriber
	file        *os.File
	filePath    string
	mu          sync.RWMutex
	enabled     bool
}

// NewEmitter creates an emitter that appends to a dated JSONL file under
// dir. dir == "" disables file output but subscribers still fire.
func NewEmitter(dir string) (*Emitter, error) {
	e := &Emitter{enabled: true}

	if dir == "" {
		return e, nil
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("audit.NewEmitter: %w", err)
	}

	e.filePath = filepath.Join(dir, fmt.Sprintf("audit_%s.jsonl", time.Now().Format("20060102")))
	file, err := os.OpenFile(e.filePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("audit.NewEmitter: %w", err)
	}
	e.file = file

	return e, nil
}

// Subscribe registers sub to receive a copy of every future event.
func (e *Emitter) Subscribe(sub Subscriber) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.subscribers = append(e.subscribers, sub)
}

// Emit records event, filling in ID/Timestamp if unset, then fans it out
// to subscribers (non-blocking) and appends it to the log file.
func (e *Emitter) Emit(event Event) {
	if e == nil || !e.enabled {
		return
	}
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	e.mu.RLock()
	subs := make([]Subscriber, len(e.subscribers))
	copy(subs, e.subscribers)
	e.mu.RUnlock()

	for _, sub := range subs {
		go sub(event)
	}

	e.writeToFile(event)
}

func (e *Emitter) writeToFile(event Event) {
	if e.file == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.file.Write(data)
	e.file.Write([]byte("\n"))
}

// Close stops emission and closes the backing file, if any.
func (e *Emitter) Close() error {
	if e == nil {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.enabled = false
	if e.file != nil {
		return e.file.Close()
	}
	return nil
}

// DocumentUpsertedEvent builds a document_upserted event.
func DocumentUpsertedEvent(docID string) Event {
	return Event{Type: DocumentUpserted, DocID: docID, Timestamp: time.Now()}
}

// DocumentDeletedEvent builds a document_deleted event.
func DocumentDeletedEvent(docID string) Event {
	return Event{Type: DocumentDeleted, DocID: docID, Timestamp: time.Now()}
}

// QueryPerformedEvent builds a query_performed event carrying the query
// string and the result count.
func QueryPerformedEvent(query string, resultCount int) Event {
	return Event{
		Type:      QueryPerformed,
		Timestamp: time.Now(),
		Data: map[string]any{
			"query":        query,
			"result_count": resultCount,
		},
	}
}
