// Package idempotency replays stored responses for retried requests that
// carry the same Idempotency-Key.
package idempotency

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
)

// Backend is satisfied by the redis adapter and by memory.KV.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unclaim(ctx context.Context, key string) error
}

var ErrInFlight = errors.New("request with this idempotency key is in progress")

const claimTTL = 30 * time.Second

type Idempotency struct {
	backend Backend
	ttl     time.Duration
}

func NewIdempotency(backend Backend, ttl time.Duration) *Idempotency {
	return &Idempotency{backend: backend, ttl: ttl}
}

type Response struct {
	Status int    `json:"status"`
	Result []byte `json:"result"`
}

func (i *Idempotency) Get(ctx context.Context, key string) (*Response, error) {
	raw, ok, err := i.backend.Get(ctx, key)
	if err != nil || !ok {
		return nil, err
	}
	var resp Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, errors.Wrapf(err, "decode stored response for %q", key)
	}
	return &resp, nil
}

func (i *Idempotency) Set(ctx context.Context, key string, resp Response) error {
	raw, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return i.backend.Set(ctx, key, raw, i.ttl)
}

// Begin claims key for the caller. It returns ErrInFlight while another
// request with the same key runs. The returned func drops the claim.
func (i *Idempotency) Begin(ctx context.Context, key string) (func(), error) {
	ok, err := i.backend.Claim(ctx, key, claimTTL)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInFlight
	}
	return func() { _ = i.backend.Unclaim(context.WithoutCancel(ctx), key) }, nil
}
