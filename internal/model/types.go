// Package model defines domain types used by the service.
package model

import (
	"fmt"
	"time"
)

// WorkItem is one product name to be priced.
type WorkItem string

// PriceRecord is the lookup result for one WorkItem. Nil fields are absent;
// every key is always encoded so exported tables keep a uniform shape.
type PriceRecord struct {
	ProductName         string  `json:"product_name"`
	HighestPrice        *int64  `json:"highest_price"`
	HighestPriceProduct *string `json:"highest_price_product"`
	HighestPriceSource  *string `json:"highest_price_source"`
	HighestPriceURL     *string `json:"highest_price_url"`
	LowestPrice         *int64  `json:"lowest_price"`
	LowestPriceProduct  *string `json:"lowest_price_product"`
	LowestPriceSource   *string `json:"lowest_price_source"`
	LowestPriceURL      *string `json:"lowest_price_url"`
}

// Empty reports whether every optional field is absent.
func (r PriceRecord) Empty() bool {
	return r.HighestPrice == nil && r.HighestPriceProduct == nil &&
		r.HighestPriceSource == nil && r.HighestPriceURL == nil &&
		r.LowestPrice == nil && r.LowestPriceProduct == nil &&
		r.LowestPriceSource == nil && r.LowestPriceURL == nil
}

// Row returns the record as a table row in Header order. Absent values are nil.
func (r PriceRecord) Row() []any {
	return []any{
		r.ProductName,
		intCell(r.HighestPrice),
		strCell(r.HighestPriceProduct),
		strCell(r.HighestPriceSource),
		strCell(r.HighestPriceURL),
		intCell(r.LowestPrice),
		strCell(r.LowestPriceProduct),
		strCell(r.LowestPriceSource),
		strCell(r.LowestPriceURL),
	}
}

func intCell(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func strCell(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}

// Header is the fixed first row of every artifact.
var Header = []string{
	"product_name",
	"highest_price",
	"highest_price_product",
	"highest_price_source",
	"highest_price_url",
	"lowest_price",
	"lowest_price_product",
	"lowest_price_source",
	"lowest_price_url",
}

// ProgressEvent is one human-readable status line of a batch.
type ProgressEvent struct {
	BatchID string    `json:"batch_id"`
	Seq     uint64    `json:"seq"`
	Time    time.Time `json:"time"`
	Message string    `json:"message"`
}

// String renders the event as a single line.
func (e ProgressEvent) String() string {
	return fmt.Sprintf("[%s] %s", e.Time.Format("15:04:05"), e.Message)
}

// BatchStatus is the lifecycle state of a BatchRun.
type BatchStatus string

// Batch lifecycle states.
const (
	StatusPending   BatchStatus = "pending"
	StatusRunning   BatchStatus = "running"
	StatusCompleted BatchStatus = "completed"
	StatusFailed    BatchStatus = "failed"
)

// Terminal reports whether no further transitions are allowed.
func (s BatchStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Rank orders states so that transitions only move forward.
func (s BatchStatus) Rank() int {
	switch s {
	case StatusPending:
		return 1
	case StatusRunning:
		return 2
	case StatusCompleted, StatusFailed:
		return 3
	}
	return 0
}

// BatchRun is the externally visible state of one submission.
type BatchRun struct {
	ID         string      `json:"id"`
	Sequence   uint64      `json:"sequence"`
	Status     BatchStatus `json:"status"`
	Total      int         `json:"total"`
	Done       int         `json:"done"`
	Failed     int         `json:"failed"`
	Filename   string      `json:"filename"`
	Model      string      `json:"model"`
	Error      string      `json:"error,omitempty"`
	Retrieved  bool        `json:"retrieved"`
	CreatedAt  time.Time   `json:"created_at"`
	StartedAt  *time.Time  `json:"started_at,omitempty"`
	FinishedAt *time.Time  `json:"finished_at,omitempty"`
}

// Artifact is the finished export of a batch.
type Artifact struct {
	BatchID   string
	Filename  string
	Records   []PriceRecord
	Data      []byte
	CreatedAt time.Time
}

// Table returns the header row followed by one row per record in input order.
func (a *Artifact) Table() [][]any {
	rows := make([][]any, 0, len(a.Records)+1)
	head := make([]any, len(Header))
	for i, h := range Header {
		head[i] = h
	}
	rows = append(rows, head)
	for _, r := range a.Records {
		rows = append(rows, r.Row())
	}
	return rows
}
