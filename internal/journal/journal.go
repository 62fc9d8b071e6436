// Package journal records committed pool operations.
package journal

import "cpamm/internal/model"

// Sink receives committed operation records.
type Sink interface {
	Append(records ...model.OperationRecord) error
}

// Discard drops every record.
type Discard struct{}

func (Discard) Append(...model.OperationRecord) error { return nil }
