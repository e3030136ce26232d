package mdbsession

import "github.com/dbbouncer/mdbclient/mdbprepare"

// BatchResult accumulates per-row status for a batch of commands,
// preserving counts up to the first failure (spec 7 "Batch failures
// accumulate per-row status into a batch-update exception that preserves
// counts up to the failure point"). This supplements spec.md's engine
// scope, which specifies batch accounting at contract level only.
type BatchResult struct {
	AffectedRows []int64
	FailedAt     int // -1 if no failure occurred
	Err          error
}

// Succeeded reports whether every row in the batch completed without
// error.
func (b *BatchResult) Succeeded() bool { return b.FailedAt < 0 }

// ExecuteBatch runs each sql statement in order over the same Session,
// stopping at the first failure and recording the affected-row counts of
// everything executed before it.
func (s *Session) ExecuteBatch(statements []string) *BatchResult {
	br := &BatchResult{FailedAt: -1}
	for i, sql := range statements {
		res, err := s.execSimple(sql)
		if err != nil {
			br.FailedAt = i
			br.Err = err
			return br
		}
		br.AffectedRows = append(br.AffectedRows, int64(res.AffectedRows))
	}
	return br
}

// ExecuteBatchPrepared runs a prepared statement once per parameter row,
// in order, stopping at the first failure. Execute does not return the
// server's affected-row count, so each row that returns no result set is
// recorded in AffectedRows as 0, and a row that returns a result set adds
// no entry.
func (s *Session) ExecuteBatchPrepared(stmt *mdbprepare.Result, sqlForReplay string, paramRows [][]any) *BatchResult {
	br := &BatchResult{FailedAt: -1}
	for i, params := range paramRows {
		rs, err := s.Execute(stmt, params, sqlForReplay)
		if err != nil {
			br.FailedAt = i
			br.Err = err
			return br
		}
		if rs.Columns == nil {
			br.AffectedRows = append(br.AffectedRows, 0)
		}
	}
	return br
}
