package indexer

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
)

// ReceiptReader is the slice of ethclient.Client the receipt poller needs.
type ReceiptReader interface {
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// ReceiptPoller treats a mined, successful receipt as indexed. It is used
// when no HTTP indexer is configured.
type ReceiptPoller struct {
	rpc ReceiptReader
}

func NewReceiptPoller(rpc ReceiptReader) *ReceiptPoller {
	return &ReceiptPoller{rpc: rpc}
}

func (p *ReceiptPoller) Indexed(ctx context.Context, txHash string) (bool, error) {
	raw, err := hexHash(txHash)
	if err != nil {
		return false, err
	}

	receipt, err := p.rpc.TransactionReceipt(ctx, raw)
	if errors.Is(err, ethereum.NotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("fetch receipt: %w", err)
	}

	if receipt.Status != types.ReceiptStatusSuccessful {
		return false, fmt.Errorf("%w (status: %d)", ErrTxFailed, receipt.Status)
	}
	return true, nil
}

func hexHash(s string) (common.Hash, error) {
	b, err := hexutil.Decode(s)
	if err != nil || len(b) != common.HashLength {
		return common.Hash{}, fmt.Errorf("invalid transaction hash %q", s)
	}
	return common.BytesToHash(b), nil
}
