package opqueue

import "time"

type Stats struct {
	Pending        int        `json:"pending"`
	TotalEnqueued  int64      `json:"totalEnqueued"`
	TotalDelivered int64      `json:"totalDelivered"`
	TotalRejected  int64      `json:"totalRejected"`
	TotalTransient int64      `json:"totalTransient"`
	Flushing       bool       `json:"flushing"`
	LastFlushAt    *time.Time `json:"lastFlushAt,omitempty"`
	LastError      string     `json:"lastError,omitempty"`
}

func (q *Queue) Stats() Stats {
	st := Stats{
		Pending:        q.Len(),
		TotalEnqueued:  q.totalEnqueued.Load(),
		TotalDelivered: q.totalDelivered.Load(),
		TotalRejected:  q.totalRejected.Load(),
		TotalTransient: q.totalTransient.Load(),
		Flushing:       q.flushing.Load(),
	}
	if n := q.lastFlushNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastFlushAt = &t
	}
	q.lastErrorMu.Lock()
	st.LastError = q.lastError
	q.lastErrorMu.Unlock()
	return st
}
