package tx

import (
	"context"
	"fmt"
	"sync"
)

// fakeResource records every boundary call as a short string such as
// "begin:1", "savepoint:1.1" or "rollback-to:1.1".
type fakeResource struct {
	mu      sync.Mutex
	ops     []string
	handles int

	beginErr     error
	commitErr    error
	rollbackErr  error
	savepointErr error
	releaseErr   error
	begunOpts    []BeginOptions
}

type fakeHandle struct {
	n          int
	savepoints int
}

type fakeSavepoint struct {
	h *fakeHandle
	n int
}

func (r *fakeResource) record(op string) {
	r.ops = append(r.ops, op)
}

func (r *fakeResource) Ops() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.ops...)
}

func (r *fakeResource) Begin(_ context.Context, opts BeginOptions) (Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.beginErr != nil {
		return nil, r.beginErr
	}
	r.handles++
	h := &fakeHandle{n: r.handles}
	r.begunOpts = append(r.begunOpts, opts)
	r.record(fmt.Sprintf("begin:%d", h.n))
	return h, nil
}

func (r *fakeResource) Commit(_ context.Context, h Handle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.commitErr != nil {
		return r.commitErr
	}
	r.record(fmt.Sprintf("commit:%d", h.(*fakeHandle).n))
	return nil
}

func (r *fakeResource) Rollback(_ context.Context, h Handle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record(fmt.Sprintf("rollback:%d", h.(*fakeHandle).n))
	return r.rollbackErr
}

func (r *fakeResource) BeginSavepoint(_ context.Context, parent Handle) (Savepoint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.savepointErr != nil {
		return nil, r.savepointErr
	}
	h := parent.(*fakeHandle)
	h.savepoints++
	sp := &fakeSavepoint{h: h, n: h.savepoints}
	r.record(fmt.Sprintf("savepoint:%d.%d", h.n, sp.n))
	return sp, nil
}

func (r *fakeResource) ReleaseSavepoint(_ context.Context, s Savepoint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	sp := s.(*fakeSavepoint)
	r.record(fmt.Sprintf("release:%d.%d", sp.h.n, sp.n))
	return r.releaseErr
}

func (r *fakeResource) RollbackToSavepoint(_ context.Context, s Savepoint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	sp := s.(*fakeSavepoint)
	r.record(fmt.Sprintf("rollback-to:%d.%d", sp.h.n, sp.n))
	return nil
}
