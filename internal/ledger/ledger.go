package ledger

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	gethcore "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

var (
	ErrNotFound    = errors.New("transaction not found")
	ErrInvalidHash = errors.New("invalid transaction hash")
	// ErrForeignSender means the transaction exists but was not signed by
	// this issuer, so its payload is not one of our attestations.
	ErrForeignSender = errors.New("transaction not sent by issuer")
)

// Backend is the subset of an EVM node client the ledger needs.
// *ethclient.Client satisfies it.
type Backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, call gethcore.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error)
}

// Ledger anchors payloads on an EVM chain as calldata of zero-value
// transactions from the issuer address to itself.
type Ledger struct {
	backend Backend
	key     *ecdsa.PrivateKey
	from    common.Address

	mu      sync.Mutex // serialises nonce allocation
	chainID *big.Int
}

func New(backend Backend, key *ecdsa.PrivateKey) *Ledger {
	return &Ledger{
		backend: backend,
		key:     key,
		from:    crypto.PubkeyToAddress(key.PublicKey),
	}
}

// Dial connects to the node at rpcURL.
func Dial(ctx context.Context, rpcURL string, key *ecdsa.PrivateKey) (*Ledger, error) {
	rpcURL = strings.TrimSpace(rpcURL)
	if rpcURL == "" {
		return nil, errors.New("chain rpc url is empty")
	}
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial chain: %w", err)
	}
	return New(client, key), nil
}

// Address is the issuer address transactions are sent from.
func (l *Ledger) Address() string {
	return l.from.Hex()
}

// Submit signs and broadcasts a transaction carrying payload and returns its
// hash. It does not wait for inclusion.
func (l *Ledger) Submit(ctx context.Context, payload []byte) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	chainID, err := l.loadChainID(ctx)
	if err != nil {
		return "", err
	}
	nonce, err := l.backend.PendingNonceAt(ctx, l.from)
	if err != nil {
		return "", fmt.Errorf("fetch nonce: %w", err)
	}
	gasPrice, err := l.backend.SuggestGasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("suggest gas price: %w", err)
	}
	to := l.from
	gas, err := l.backend.EstimateGas(ctx, gethcore.CallMsg{
		From: l.from,
		To:   &to,
		Data: payload,
	})
	if err != nil {
		return "", fmt.Errorf("estimate gas: %w", err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gas,
		To:       &to,
		Value:    new(big.Int),
		Data:     payload,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), l.key)
	if err != nil {
		return "", fmt.Errorf("sign transaction: %w", err)
	}
	if err := l.backend.SendTransaction(ctx, signed); err != nil {
		return "", fmt.Errorf("send transaction: %w", err)
	}
	return signed.Hash().Hex(), nil
}

// Fetch returns the payload carried by txHash and whether the transaction is
// still pending.
func (l *Ledger) Fetch(ctx context.Context, txHash string) ([]byte, bool, error) {
	raw, err := hexutil.Decode(strings.TrimSpace(txHash))
	if err != nil || len(raw) != common.HashLength {
		return nil, false, fmt.Errorf("%w: %q", ErrInvalidHash, txHash)
	}

	tx, pending, err := l.backend.TransactionByHash(ctx, common.BytesToHash(raw))
	if errors.Is(err, gethcore.NotFound) {
		return nil, false, ErrNotFound
	}
	if err != nil {
		return nil, false, fmt.Errorf("fetch transaction: %w", err)
	}

	l.mu.Lock()
	chainID, err := l.loadChainID(ctx)
	l.mu.Unlock()
	if err != nil {
		return nil, false, err
	}
	sender, err := types.Sender(types.LatestSignerForChainID(chainID), tx)
	if err != nil {
		return nil, false, fmt.Errorf("recover sender: %w", err)
	}
	if sender != l.from {
		return nil, false, fmt.Errorf("%w: %s", ErrForeignSender, sender.Hex())
	}
	return tx.Data(), pending, nil
}

// Close releases the node connection when the backend holds one.
func (l *Ledger) Close() {
	if c, ok := l.backend.(interface{ Close() }); ok {
		c.Close()
	}
}

// loadChainID must be called with l.mu held.
func (l *Ledger) loadChainID(ctx context.Context) (*big.Int, error) {
	if l.chainID != nil {
		return l.chainID, nil
	}
	id, err := l.backend.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch chain id: %w", err)
	}
	l.chainID = id
	return id, nil
}
