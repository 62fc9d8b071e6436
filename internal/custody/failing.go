package custody

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"

	"cpamm/internal/amm"
)

// ErrInjected is returned by Failing when its trigger fires.
var ErrInjected = errors.New("injected custodian failure")

// Failing forwards to Next and fails the FailAt-th call (1-based) without
// forwarding it. FailAt of 0 never fails.
type Failing struct {
	Next   amm.Custodian
	FailAt int
	calls  int
}

var _ amm.Custodian = (*Failing)(nil)

func (f *Failing) Move(ctx context.Context, asset, from, to common.Address, amount uint64) error {
	if f.trip() {
		return ErrInjected
	}
	return f.Next.Move(ctx, asset, from, to, amount)
}

func (f *Failing) Mint(ctx context.Context, shareMint, to common.Address, amount uint64) error {
	if f.trip() {
		return ErrInjected
	}
	return f.Next.Mint(ctx, shareMint, to, amount)
}

func (f *Failing) Burn(ctx context.Context, shareMint, from common.Address, amount uint64) error {
	if f.trip() {
		return ErrInjected
	}
	return f.Next.Burn(ctx, shareMint, from, amount)
}

// Calls reports how many instructions reached f.
func (f *Failing) Calls() int {
	return f.calls
}

func (f *Failing) trip() bool {
	f.calls++
	return f.FailAt > 0 && f.calls == f.FailAt
}
