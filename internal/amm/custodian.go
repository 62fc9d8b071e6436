package amm

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// Custodian moves asset balances and mints or burns share tokens on behalf
// of the pool. Each call either completes or fails as a whole; on failure
// the operation is aborted and the custodian is responsible for discarding
// whatever earlier calls of the same operation staged.
type Custodian interface {
	Move(ctx context.Context, asset, from, to common.Address, amount uint64) error
	Mint(ctx context.Context, shareMint, to common.Address, amount uint64) error
	Burn(ctx context.Context, shareMint, from common.Address, amount uint64) error
}
