// Package processlog keeps one log row per source document through its
// lifecycle, newest source first.
package processlog

import (
	"container/list"
	"time"

	"arrears-recon/internal/domain"

	"github.com/google/uuid"
)

const DefaultCapacity = 500

// Book is an ordered map keyed by source name. It is not safe for concurrent
// use; the ledger serialises access.
type Book struct {
	capacity int
	order    *list.List // front is newest
	byName   map[string]*list.Element
}

func NewBook(capacity int) *Book {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Book{
		capacity: capacity,
		order:    list.New(),
		byName:   make(map[string]*list.Element),
	}
}

func NewLogID() string {
	return "log_" + uuid.NewString()
}

// Upsert records the latest status of a source. A known source is updated in
// place, keeping its id and position; a new one goes to the front and the
// oldest entries are evicted past capacity.
func (b *Book) Upsert(sourceName string, status domain.ProcessStatus, message string, now time.Time) domain.ProcessLog {
	if el, ok := b.byName[sourceName]; ok {
		entry := el.Value.(domain.ProcessLog)
		entry.Status = status
		entry.Message = message
		entry.Timestamp = now
		el.Value = entry
		return entry
	}

	entry := domain.ProcessLog{
		ID:         NewLogID(),
		SourceName: sourceName,
		Status:     status,
		Message:    message,
		Timestamp:  now,
	}
	b.byName[sourceName] = b.order.PushFront(entry)
	b.evict()
	return entry
}

func (b *Book) evict() {
	for b.order.Len() > b.capacity {
		oldest := b.order.Back()
		b.order.Remove(oldest)
		delete(b.byName, oldest.Value.(domain.ProcessLog).SourceName)
	}
}

// Entries returns a newest-first copy of the log.
func (b *Book) Entries() []domain.ProcessLog {
	out := make([]domain.ProcessLog, 0, b.order.Len())
	for el := b.order.Front(); el != nil; el = el.Next() {
		out = append(out, el.Value.(domain.ProcessLog))
	}
	return out
}

func (b *Book) Len() int {
	return b.order.Len()
}

func (b *Book) Get(sourceName string) (domain.ProcessLog, bool) {
	el, ok := b.byName[sourceName]
	if !ok {
		return domain.ProcessLog{}, false
	}
	return el.Value.(domain.ProcessLog), true
}

// Remove deletes the entries with the given ids and returns how many went.
func (b *Book) Remove(ids []string) int {
	if len(ids) == 0 {
		return 0
	}
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}

	removed := 0
	for el := b.order.Front(); el != nil; {
		next := el.Next()
		entry := el.Value.(domain.ProcessLog)
		if _, ok := drop[entry.ID]; ok {
			b.order.Remove(el)
			delete(b.byName, entry.SourceName)
			removed++
		}
		el = next
	}
	return removed
}

func (b *Book) Reset() {
	b.order.Init()
	b.byName = make(map[string]*list.Element)
}

// Load replaces the book with persisted entries given newest first. A repeated
// source name keeps its first (newest) row.
func (b *Book) Load(entries []domain.ProcessLog) {
	b.Reset()
	for _, e := range entries {
		if _, dup := b.byName[e.SourceName]; dup {
			continue
		}
		if e.ID == "" {
			e.ID = NewLogID()
		}
		b.byName[e.SourceName] = b.order.PushBack(e)
	}
	b.evict()
}
