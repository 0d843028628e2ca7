// Package chain builds calls against the Farcaster StorageRegistry contract.
// It reads prices and encodes unsigned rent calls; it never signs.
package chain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const (
	// StorageRegistryAddress is the Optimism mainnet deployment.
	StorageRegistryAddress = "0x00000000fcCe7f938e7aE6D3c335bD6a1a7c593D"
	OptimismChainID        = "eip155:10"
)

const storageRegistryABI = `[
  {"type":"function","name":"price","stateMutability":"view",
   "inputs":[{"name":"units","type":"uint256","internalType":"uint256"}],
   "outputs":[{"name":"","type":"uint256","internalType":"uint256"}]},
  {"type":"function","name":"rent","stateMutability":"payable",
   "inputs":[{"name":"fid","type":"uint256","internalType":"uint256"},{"name":"units","type":"uint256","internalType":"uint256"}],
   "outputs":[{"name":"overpayment","type":"uint256","internalType":"uint256"}]}
]`

var (
	ErrContractRead = errors.New("contract read failed")
	ErrInvalidFID   = errors.New("invalid fid")
)

// RentCall is an unsigned rent(fid, units) call for the client to sign.
type RentCall struct {
	ABI          json.RawMessage
	ChainID      string
	FunctionName string
	Args         []*big.Int
	To           common.Address
	Value        *big.Int
	Data         []byte
}

type StorageRegistry struct {
	caller  ethereum.ContractCaller
	address common.Address
	chainID string
	abi     abi.ABI
}

// NewStorageRegistry wraps caller, usually an *ethclient.Client.
func NewStorageRegistry(caller ethereum.ContractCaller, address, chainID string) (*StorageRegistry, error) {
	if address == "" {
		address = StorageRegistryAddress
	}
	if !common.IsHexAddress(address) {
		return nil, fmt.Errorf("invalid storage registry address %q", address)
	}
	if chainID == "" {
		chainID = OptimismChainID
	}
	parsed, err := abi.JSON(strings.NewReader(storageRegistryABI))
	if err != nil {
		return nil, fmt.Errorf("parse storage registry abi: %w", err)
	}
	return &StorageRegistry{
		caller:  caller,
		address: common.HexToAddress(address),
		chainID: chainID,
		abi:     parsed,
	}, nil
}

func (r *StorageRegistry) Address() common.Address { return r.address }

// Price returns the wei cost of renting units storage units.
func (r *StorageRegistry) Price(ctx context.Context, units *big.Int) (*big.Int, error) {
	data, err := r.abi.Pack("price", units)
	if err != nil {
		return nil, fmt.Errorf("pack price: %w", err)
	}

	res, err := r.caller.CallContract(ctx, ethereum.CallMsg{To: &r.address, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: price call: %v", ErrContractRead, err)
	}

	out, err := r.abi.Unpack("price", res)
	if err != nil {
		return nil, fmt.Errorf("%w: unpack price: %v", ErrContractRead, err)
	}
	price, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected price type %T", ErrContractRead, out[0])
	}
	return price, nil
}

// BuildRent reads the current price and encodes rent(fid, units) with the
// price attached as value.
func (r *StorageRegistry) BuildRent(ctx context.Context, fid, units *big.Int) (*RentCall, error) {
	if fid == nil || fid.Sign() <= 0 {
		return nil, ErrInvalidFID
	}

	price, err := r.Price(ctx, units)
	if err != nil {
		return nil, err
	}

	data, err := r.abi.Pack("rent", fid, units)
	if err != nil {
		return nil, fmt.Errorf("pack rent: %w", err)
	}

	return &RentCall{
		ABI:          json.RawMessage(storageRegistryABI),
		ChainID:      r.chainID,
		FunctionName: "rent",
		Args:         []*big.Int{new(big.Int).Set(fid), new(big.Int).Set(units)},
		To:           r.address,
		Value:        price,
		Data:         data,
	}, nil
}
