package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/cellscope/internal/common"
	"github.com/dmitrijs2005/cellscope/internal/cryptox"
	"github.com/dmitrijs2005/cellscope/internal/server/metrics"
	"golang.org/x/sync/semaphore"
)

// Hasher runs Argon2id hashing and verification on a bounded pool of
// goroutines so that concurrent logins cannot exhaust CPU and memory.
//
// If the caller's context is cancelled while a job is running, the call
// returns ctx.Err() immediately; the job itself finishes in the background
// and releases its slot. Wait blocks until all such jobs are done.
type Hasher struct {
	params cryptox.Argon2Params
	sem    *semaphore.Weighted
	wg     sync.WaitGroup
}

// NewHasher returns a Hasher allowing at most workers concurrent jobs.
func NewHasher(workers int, params cryptox.Argon2Params) *Hasher {
	if workers < 1 {
		workers = 1
	}
	return &Hasher{
		params: params,
		sem:    semaphore.NewWeighted(int64(workers)),
	}
}

// Hash returns the encoded Argon2id hash of password.
func (h *Hasher) Hash(ctx context.Context, password string) (string, error) {
	start := time.Now()

	encoded, err := submit(ctx, h, func() (string, error) {
		return cryptox.HashPassword([]byte(password), h.params)
	})

	observe("hash", start, err)
	if err != nil {
		return "", wrapHashErr(err)
	}
	return encoded, nil
}

// Verify reports whether password matches encoded. A mismatch is (false, nil);
// a malformed encoded value is an error matching common.ErrHashingFailed.
func (h *Hasher) Verify(ctx context.Context, password, encoded string) (bool, error) {
	start := time.Now()

	ok, err := submit(ctx, h, func() (bool, error) {
		return cryptox.VerifyPassword([]byte(password), encoded)
	})

	observe("verify", start, err)
	if err != nil {
		return false, wrapHashErr(err)
	}
	return ok, nil
}

// Wait blocks until every job started by the pool has returned.
func (h *Hasher) Wait() {
	h.wg.Wait()
}

type result[T any] struct {
	val T
	err error
}

func submit[T any](ctx context.Context, h *Hasher, fn func() (T, error)) (T, error) {
	var zero T

	if err := h.sem.Acquire(ctx, 1); err != nil {
		return zero, err
	}

	done := make(chan result[T], 1)

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		defer h.sem.Release(1)

		v, err := fn()
		done <- result[T]{val: v, err: err}
	}()

	select {
	case r := <-done:
		return r.val, r.err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

func wrapHashErr(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %v", common.ErrHashingFailed, err)
}

func observe(op string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.PasswordHashDuration.WithLabelValues(op, outcome).Observe(time.Since(start).Seconds())
}
