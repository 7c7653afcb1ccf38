// Package reporting collects per-operation log entries from the order
// lifecycle and summarizes them into retrospective reports. With no durable
// order store, this journal is the process's audit trail of what it observed.
package reporting

import (
	"sync"
	"time"
)

// Operation names the lifecycle operation a LogEntry describes.
type Operation string

const (
	OpCreate Operation = "create"
	OpQuery  Operation = "query"
	OpCancel Operation = "cancel"
	OpNotify Operation = "notify"
)

// LogEntry is a single observed lifecycle event.
type LogEntry struct {
	Timestamp    time.Time `json:"timestamp"`
	OrderID      string    `json:"orderId"`
	Operation    Operation `json:"operation"`
	Provider     string    `json:"provider,omitempty"`
	Status       string    `json:"status"` // PENDING, SUCCESS, FAILED
	Success      bool      `json:"success"`
	Amount       int64     `json:"amount,omitempty"` // minor units, set on create
	SubCode      string    `json:"subCode,omitempty"`
	ErrorMessage string    `json:"errorMessage,omitempty"`
}

// Journal is a concurrency-safe append-only store of log entries. The
// lifecycle controller records into it; the report endpoint reads from it.
type Journal struct {
	mu      sync.Mutex
	entries []LogEntry
}

// NewJournal creates an empty journal.
func NewJournal() *Journal {
	return &Journal{}
}

// Record appends an entry, stamping it if the caller did not.
func (j *Journal) Record(entry LogEntry) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	j.mu.Lock()
	j.entries = append(j.entries, entry)
	j.mu.Unlock()
}

// Entries returns a snapshot of the journal.
func (j *Journal) Entries() []LogEntry {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]LogEntry, len(j.entries))
	copy(out, j.entries)
	return out
}

// RetrospectiveReport summarizes payment activity over a set of log entries.
type RetrospectiveReport struct {
	TotalOperations      int               `json:"totalOperations"`
	OperationBreakdown   map[Operation]int `json:"operationBreakdown"`
	SuccessfulPayments   int               `json:"successfulPayments"`   // SUCCESS outcomes via query or notify
	FailedOperations     int               `json:"failedOperations"`     // operations that did not complete cleanly
	Cancellations        int               `json:"cancellations"`        // successful cancel operations
	TotalAmountRequested int64             `json:"totalAmountRequested"` // sum of amounts across created orders
	ErrorBreakdown       map[string]int    `json:"errorBreakdown"`       // per sub-code counts for failed operations
	ProviderUsage        map[string]int    `json:"providerUsage"`
	DateFrom             time.Time         `json:"dateFrom"`
	DateTo               time.Time         `json:"dateTo"`
}

// RetrospectiveReporter generates retrospective reports from log entries.
type RetrospectiveReporter struct{}

// NewRetrospectiveReporter creates a new RetrospectiveReporter.
func NewRetrospectiveReporter() *RetrospectiveReporter {
	return &RetrospectiveReporter{}
}

// GenerateRetrospective analyzes entries and produces a report.
func (rr *RetrospectiveReporter) GenerateRetrospective(entries []LogEntry) (*RetrospectiveReport, error) {
	report := &RetrospectiveReport{
		OperationBreakdown: make(map[Operation]int),
		ErrorBreakdown:     make(map[string]int),
		ProviderUsage:      make(map[string]int),
	}

	seenPaid := make(map[string]bool)
	firstSet := false
	for _, e := range entries {
		report.TotalOperations++
		report.OperationBreakdown[e.Operation]++

		if !firstSet || e.Timestamp.Before(report.DateFrom) {
			report.DateFrom = e.Timestamp
			if !firstSet {
				report.DateTo = e.Timestamp
			}
			firstSet = true
		}
		if e.Timestamp.After(report.DateTo) {
			report.DateTo = e.Timestamp
		}

		if e.Provider != "" {
			report.ProviderUsage[e.Provider]++
		}

		if !e.Success {
			report.FailedOperations++
			if e.SubCode != "" {
				report.ErrorBreakdown[e.SubCode]++
			}
			continue
		}

		switch e.Operation {
		case OpCreate:
			report.TotalAmountRequested += e.Amount
		case OpCancel:
			report.Cancellations++
		case OpQuery, OpNotify:
			// Count each order's payment once, whichever path observed it first.
			if e.Status == "SUCCESS" && !seenPaid[e.OrderID] {
				seenPaid[e.OrderID] = true
				report.SuccessfulPayments++
			}
		}
	}
	return report, nil
}
