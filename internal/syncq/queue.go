// Package syncq keeps the durable mutation queue's bookkeeping: ordering,
// status transitions, retry scheduling and the cap on permanently failed
// operations. It performs no I/O and no locking.
package syncq

import (
	"sort"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/unkn0wn-root/offcache/internal/model"
)

// Policy schedules retries: the n-th failure waits
// Initial * Multiplier^(n-1), capped at Max.
type Policy struct {
	MaxRetries int
	Multiplier float64
	Initial    time.Duration
	Max        time.Duration
}

// Delay returns the wait before the attempt following the n-th failure.
func (p Policy) Delay(n int) time.Duration {
	if n <= 0 || p.Initial <= 0 {
		return 0
	}
	b := &backoff.ExponentialBackOff{
		InitialInterval:     p.Initial,
		RandomizationFactor: 0,
		Multiplier:          p.Multiplier,
		MaxInterval:         p.Max,
	}
	if b.Multiplier < 1 {
		b.Multiplier = 1
	}
	if b.MaxInterval < b.InitialInterval {
		b.MaxInterval = b.InitialInterval
	}
	b.Reset()
	var d time.Duration
	for i := 0; i < n; i++ {
		d = b.NextBackOff()
	}
	return d
}

type Summary struct {
	Pending    int
	Processing int
	Failed     int // permanently failed
	Conflicts  int
}

type Queue struct {
	ops       map[string]*model.Operation
	seq       uint64
	maxFailed int
}

// New returns an empty queue keeping at most maxFailed permanently failed
// operations (<= 0 keeps all).
func New(maxFailed int) *Queue {
	return &Queue{ops: make(map[string]*model.Operation), maxFailed: maxFailed}
}

func (q *Queue) SetMaxFailed(n int) { q.maxFailed = n }

// Add appends op as pending with a fresh sequence number and returns it.
func (q *Queue) Add(op model.Operation) model.Operation {
	q.seq++
	op.Seq = q.seq
	op.Status = model.OpPending
	op.RetryCount = 0
	op.ErrorDetails = nil
	op.NextAttemptAt = time.Time{}
	cp := op.Clone()
	q.ops[op.ID] = &cp
	return op
}

func (q *Queue) Get(id string) (model.Operation, bool) {
	op, ok := q.ops[id]
	if !ok {
		return model.Operation{}, false
	}
	return op.Clone(), true
}

// Put stores op as-is, keeping its sequence number.
func (q *Queue) Put(op model.Operation) {
	if op.ID == "" {
		return
	}
	cp := op.Clone()
	q.ops[op.ID] = &cp
	if op.Seq > q.seq {
		q.seq = op.Seq
	}
}

// Remove drops id regardless of status.
func (q *Queue) Remove(id string) (model.Operation, bool) {
	op, ok := q.ops[id]
	if !ok {
		return model.Operation{}, false
	}
	delete(q.ops, id)
	return *op, true
}

func (q *Queue) Len() int { return len(q.ops) }

// Ready returns up to limit pending operations whose backoff has elapsed,
// highest priority first, then FIFO.
func (q *Queue) Ready(now time.Time, limit int) []model.Operation {
	var out []model.Operation
	for _, op := range q.ops {
		if op.Status != model.OpPending || now.Before(op.NextAttemptAt) {
			continue
		}
		out = append(out, op.Clone())
	}
	sortByPriority(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// MarkProcessing moves pending ops to processing and stamps LastAttempt.
func (q *Queue) MarkProcessing(ids []string, now time.Time) {
	for _, id := range ids {
		if op, ok := q.ops[id]; ok && op.Status == model.OpPending {
			op.Status = model.OpProcessing
			op.LastAttempt = now
		}
	}
}

// Complete removes a processing op and returns it with status completed.
func (q *Queue) Complete(id string) (model.Operation, bool) {
	op, ok := q.ops[id]
	if !ok {
		return model.Operation{}, false
	}
	delete(q.ops, id)
	op.Status = model.OpCompleted
	op.ErrorDetails = nil
	return *op, true
}

// Fail records one failed attempt. While retries remain the op goes back to
// pending behind its backoff; otherwise it stays failed for good and the
// failed cap is enforced. payload, when non-nil, replaces the op's payload
// for the next attempt.
func (q *Queue) Fail(id string, details model.ErrorDetails, payload []byte, p Policy) (op model.Operation, permanent, ok bool) {
	cur, ok := q.ops[id]
	if !ok {
		return model.Operation{}, false, false
	}
	cur.RetryCount++
	cur.Status = model.OpFailed
	d := details
	cur.ErrorDetails = &d
	if payload != nil {
		cur.Payload = append([]byte(nil), payload...)
	}
	if cur.RetryCount < cur.MaxRetries {
		cur.Status = model.OpPending
		cur.NextAttemptAt = details.Timestamp.Add(p.Delay(cur.RetryCount))
		return cur.Clone(), false, true
	}
	cur.NextAttemptAt = time.Time{}
	out := cur.Clone()
	q.pruneFailed()
	return out, true, true
}

// Abandon fails id permanently without consuming retries one by one.
func (q *Queue) Abandon(id string, details model.ErrorDetails) (model.Operation, bool) {
	cur, ok := q.ops[id]
	if !ok {
		return model.Operation{}, false
	}
	cur.Status = model.OpFailed
	if cur.RetryCount < cur.MaxRetries {
		cur.RetryCount = cur.MaxRetries
	}
	d := details
	cur.ErrorDetails = &d
	cur.NextAttemptAt = time.Time{}
	out := cur.Clone()
	q.pruneFailed()
	return out, true
}

// Update applies fn to the queued op in place.
func (q *Queue) Update(id string, fn func(*model.Operation)) bool {
	op, ok := q.ops[id]
	if !ok {
		return false
	}
	fn(op)
	return true
}

// Release returns a processing op to pending without counting an attempt.
func (q *Queue) Release(id string) {
	if op, ok := q.ops[id]; ok && op.Status == model.OpProcessing {
		op.Status = model.OpPending
	}
}

// Retry gives a permanently failed op a fresh retry budget.
func (q *Queue) Retry(id string) bool {
	op, ok := q.ops[id]
	if !ok || op.Status != model.OpFailed {
		return false
	}
	op.Status = model.OpPending
	op.RetryCount = 0
	op.NextAttemptAt = time.Time{}
	return true
}

// All returns every op in insertion order.
func (q *Queue) All() []model.Operation {
	out := make([]model.Operation, 0, len(q.ops))
	for _, op := range q.ops {
		out = append(out, op.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

// NeedsAttention returns permanently failed ops in insertion order.
func (q *Queue) NeedsAttention() []model.Operation {
	var out []model.Operation
	for _, op := range q.ops {
		if op.PermanentlyFailed() {
			out = append(out, op.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

func (q *Queue) Summary() Summary {
	var s Summary
	for _, op := range q.ops {
		switch {
		case op.Status == model.OpPending:
			s.Pending++
		case op.Status == model.OpProcessing:
			s.Processing++
		case op.PermanentlyFailed():
			s.Failed++
		}
		if op.ErrorDetails != nil && op.ErrorDetails.Code == model.CodeConflict {
			s.Conflicts++
		}
	}
	return s
}

// Snapshot returns every op in insertion order, ready to persist.
func (q *Queue) Snapshot() []model.Operation { return q.All() }

// Restore replaces the queue with ops loaded from storage. Ops caught in
// processing by a crash go back to pending; completed ones are dropped.
func (q *Queue) Restore(ops []model.Operation) {
	q.ops = make(map[string]*model.Operation, len(ops))
	q.seq = 0
	for _, op := range ops {
		if op.ID == "" || op.Status == model.OpCompleted {
			continue
		}
		if op.Status == model.OpProcessing {
			op.Status = model.OpPending
		}
		cp := op.Clone()
		q.ops[op.ID] = &cp
		if op.Seq > q.seq {
			q.seq = op.Seq
		}
	}
	// ops persisted without a sequence keep their relative order after the rest
	var unseq []*model.Operation
	for _, op := range q.ops {
		if op.Seq == 0 {
			unseq = append(unseq, op)
		}
	}
	sort.Slice(unseq, func(i, j int) bool {
		if !unseq[i].Timestamp.Equal(unseq[j].Timestamp) {
			return unseq[i].Timestamp.Before(unseq[j].Timestamp)
		}
		return unseq[i].ID < unseq[j].ID
	})
	for _, op := range unseq {
		q.seq++
		op.Seq = q.seq
	}
}

func (q *Queue) Clear() {
	q.ops = make(map[string]*model.Operation)
}

func (q *Queue) pruneFailed() {
	if q.maxFailed <= 0 {
		return
	}
	var failed []*model.Operation
	for _, op := range q.ops {
		if op.PermanentlyFailed() {
			failed = append(failed, op)
		}
	}
	if len(failed) <= q.maxFailed {
		return
	}
	sort.Slice(failed, func(i, j int) bool { return failed[i].Seq < failed[j].Seq })
	for _, op := range failed[:len(failed)-q.maxFailed] {
		delete(q.ops, op.ID)
	}
}

func sortByPriority(ops []model.Operation) {
	sort.Slice(ops, func(i, j int) bool {
		wi, wj := ops[i].Priority.Weight(), ops[j].Priority.Weight()
		if wi != wj {
			return wi > wj
		}
		return ops[i].Seq < ops[j].Seq
	})
}
