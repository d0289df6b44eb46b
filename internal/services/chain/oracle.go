package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"ticket-pass/internal/status"
	"ticket-pass/models"
	"ticket-pass/utils"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

const DefaultTimeout = 5 * time.Second

// EVMOracle answers ownership questions by reading an ERC-721 or ERC-1155
// contract through any JSON-RPC endpoint.
type EVMOracle struct {
	caller   ethereum.ContractCaller
	contract common.Address
	timeout  time.Duration
	breaker  *utils.CircuitBreaker
}

func NewEVMOracle(caller ethereum.ContractCaller, contract common.Address, timeout time.Duration, breaker *utils.CircuitBreaker) *EVMOracle {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if breaker == nil {
		breaker = utils.NewCircuitBreaker("ownership-oracle")
	}
	return &EVMOracle{
		caller:   caller,
		contract: contract,
		timeout:  timeout,
		breaker:  breaker,
	}
}

// Dial connects to rpcURL and returns an oracle reading contractAddr.
// The returned close func releases the RPC connection.
func Dial(ctx context.Context, rpcURL, contractAddr string, timeout time.Duration, breaker *utils.CircuitBreaker) (*EVMOracle, func(), error) {
	if !common.IsHexAddress(contractAddr) {
		return nil, nil, fmt.Errorf("chain: invalid contract address %q", contractAddr)
	}

	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, nil, fmt.Errorf("chain: dial rpc: %w", err)
	}

	oracle := NewEVMOracle(client, common.HexToAddress(contractAddr), timeout, breaker)
	return oracle, client.Close, nil
}

// OwnsToken reports whether wallet currently holds tokenID. Every failure to
// obtain an answer wraps status.ErrOracleUnavailable; a binding that can never
// be owned (bad address or token id) wraps status.ErrInvalidBinding.
func (o *EVMOracle) OwnsToken(ctx context.Context, wallet, tokenID string, std models.TokenStandard) (bool, error) {
	wallet = strings.TrimSpace(wallet)
	if !common.IsHexAddress(wallet) {
		return false, fmt.Errorf("%w: wallet %q", status.ErrInvalidBinding, wallet)
	}
	id, ok := parseTokenID(tokenID)
	if !ok {
		return false, fmt.Errorf("%w: token id %q", status.ErrInvalidBinding, tokenID)
	}
	if std != models.StandardSingleOwner && std != models.StandardBalance {
		return false, fmt.Errorf("%w: token standard %q", status.ErrInvalidBinding, std)
	}
	owner := common.HexToAddress(wallet)

	result, err := o.breaker.Execute(ctx, func() (any, error) {
		callCtx, cancel := context.WithTimeout(ctx, o.timeout)
		defer cancel()

		if std == models.StandardSingleOwner {
			return o.ownerOf(callCtx, id, owner)
		}
		return o.balanceOf(callCtx, id, owner)
	})
	if err != nil {
		return false, fmt.Errorf("%w: %v", status.ErrOracleUnavailable, err)
	}

	return result.(bool), nil
}

func (o *EVMOracle) ownerOf(ctx context.Context, id *big.Int, wallet common.Address) (bool, error) {
	data, err := erc721.Pack("ownerOf", id)
	if err != nil {
		return false, fmt.Errorf("pack ownerOf: %w", err)
	}

	out, err := o.caller.CallContract(ctx, ethereum.CallMsg{To: &o.contract, Data: data}, nil)
	if err != nil {
		return false, fmt.Errorf("call ownerOf: %w", err)
	}

	values, err := erc721.Unpack("ownerOf", out)
	if err != nil || len(values) != 1 {
		return false, fmt.Errorf("unpack ownerOf: %v", err)
	}
	current, ok := values[0].(common.Address)
	if !ok {
		return false, errors.New("unpack ownerOf: unexpected type")
	}

	// byte comparison, checksum casing of the stored wallet never matters
	return current == wallet, nil
}

func (o *EVMOracle) balanceOf(ctx context.Context, id *big.Int, wallet common.Address) (bool, error) {
	data, err := erc1155.Pack("balanceOf", wallet, id)
	if err != nil {
		return false, fmt.Errorf("pack balanceOf: %w", err)
	}

	out, err := o.caller.CallContract(ctx, ethereum.CallMsg{To: &o.contract, Data: data}, nil)
	if err != nil {
		return false, fmt.Errorf("call balanceOf: %w", err)
	}

	values, err := erc1155.Unpack("balanceOf", out)
	if err != nil || len(values) != 1 {
		return false, fmt.Errorf("unpack balanceOf: %v", err)
	}
	balance, ok := values[0].(*big.Int)
	if !ok {
		return false, errors.New("unpack balanceOf: unexpected type")
	}

	return balance.Sign() > 0, nil
}

// parseTokenID accepts decimal or 0x-prefixed hex uint256 values.
func parseTokenID(s string) (*big.Int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, false
	}
	base := 10
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		s, base = s[2:], 16
	}
	id, ok := new(big.Int).SetString(s, base)
	if !ok || id.Sign() < 0 || id.BitLen() > 256 {
		return nil, false
	}
	return id, true
}
