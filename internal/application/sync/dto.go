package sync

import (
	"errors"
	"time"

	domain "github.com/stocklens/backend/internal/domain/analytics"
	syncdomain "github.com/stocklens/backend/internal/domain/sync"
)

// ---------------------------------------------------------------------------
// Stage / run status DTOs
// ---------------------------------------------------------------------------

// RunState summarizes one orchestrated run for the external scheduler.
type RunState string

const (
	// RunStateCompleted means every admitted stage completed
	RunStateCompleted RunState = "completed"
	// RunStateFailed means a stage failed and dependents were not admitted
	RunStateFailed RunState = "failed"
	// RunStateSkipped means the dependency gate declined the inventory stage
	RunStateSkipped RunState = "inventory_skipped"
	// RunStateAlreadyRunning means another run holds the pipeline
	RunStateAlreadyRunning RunState = "already_running"
)

// StageStatus is the operator-visible outcome of one ETL stage.
type StageStatus struct {
	BatchID  string                   `json:"batch_id,omitempty"`
	Status   syncdomain.BatchStatus   `json:"status,omitempty"`
	Counters syncdomain.BatchCounters `json:"counters"`
	Duration time.Duration            `json:"duration"`
	// Error describes the failure, when there was one
	Error string `json:"error,omitempty"`
	// ErrorKind is the taxonomy classification of the failure
	ErrorKind domain.ErrorKind `json:"error_kind,omitempty"`
	// Critical reports whether the failure requires operator attention
	Critical bool `json:"critical,omitempty"`
	// Retried reports whether automatic retries were already consumed
	Retried bool `json:"retried,omitempty"`
}

// newStageStatus builds a stage status from its batch and terminal error.
func newStageStatus(batch *syncdomain.ETLBatch, err error) *StageStatus {
	st := &StageStatus{}
	if batch != nil {
		st.BatchID = batch.BatchID.String()
		st.Status = batch.Status
		st.Counters = batch.BatchCounters
		st.Duration = batch.Duration()
	}
	if err != nil {
		st.Error = err.Error()
		var aerr *domain.Error
		if errors.As(err, &aerr) {
			st.ErrorKind = aerr.Kind
			st.Critical = aerr.Critical()
			st.Retried = aerr.Attempts > 0 || aerr.Kind == domain.KindMaxRetries
		}
	}
	return st
}

// RunStatus is the combined status of one orchestrated run.
type RunStatus struct {
	State     RunState     `json:"state"`
	Product   *StageStatus `json:"product,omitempty"`
	Inventory *StageStatus `json:"inventory,omitempty"`
	// GateReason explains why the inventory stage was or was not admitted
	GateReason string    `json:"gate_reason,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}
