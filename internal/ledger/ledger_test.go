package ledger

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"

	gethcore "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	mu       sync.Mutex
	chainID  *big.Int
	nonces   map[common.Address]uint64
	txs      map[common.Hash]*types.Transaction
	pending  map[common.Hash]bool
	sendErr  error
	chainErr error
	idCalls  int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		chainID: big.NewInt(1337),
		nonces:  make(map[common.Address]uint64),
		txs:     make(map[common.Hash]*types.Transaction),
		pending: make(map[common.Hash]bool),
	}
}

func (f *fakeBackend) ChainID(ctx context.Context) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.idCalls++
	if f.chainErr != nil {
		return nil, f.chainErr
	}
	return new(big.Int).Set(f.chainID), nil
}

func (f *fakeBackend) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.nonces[account], nil
}

func (f *fakeBackend) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (f *fakeBackend) EstimateGas(ctx context.Context, call gethcore.CallMsg) (uint64, error) {
	return 21_000 + 16*uint64(len(call.Data)), nil
}

func (f *fakeBackend) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	sender, err := types.Sender(types.LatestSignerForChainID(f.chainID), tx)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if tx.Nonce() != f.nonces[sender] {
		return errors.New("nonce too low")
	}
	f.nonces[sender]++
	f.txs[tx.Hash()] = tx
	f.pending[tx.Hash()] = true
	return nil
}

func (f *fakeBackend) TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tx, ok := f.txs[hash]
	if !ok {
		return nil, false, gethcore.NotFound
	}
	return tx, f.pending[hash], nil
}

func newTestLedger(t *testing.T) (*Ledger, *fakeBackend) {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	backend := newFakeBackend()
	return New(backend, key), backend
}

func TestSubmitAndFetch(t *testing.T) {
	l, backend := newTestLedger(t)
	ctx := context.Background()
	payload := []byte(`{"agent_id":"agent-7","trust_score":717}`)

	hash, err := l.Submit(ctx, payload)
	require.NoError(t, err)
	assert.Len(t, hash, 66)

	tx := backend.txs[common.HexToHash(hash)]
	require.NotNil(t, tx)
	assert.Equal(t, l.Address(), tx.To().Hex(), "attestation tx is sent to the issuer itself")
	assert.Zero(t, tx.Value().Sign())
	assert.Equal(t, uint64(21_000+16*len(payload)), tx.Gas())

	got, pending, err := l.Fetch(ctx, hash)
	require.NoError(t, err)
	assert.True(t, pending)
	assert.Equal(t, payload, got)
}

func TestSubmit_SequentialNonces(t *testing.T) {
	l, backend := newTestLedger(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := l.Submit(ctx, []byte("payload")); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent submit failed: %v", err)
	}

	assert.Equal(t, uint64(8), backend.nonces[common.HexToAddress(l.Address())])
	assert.Equal(t, 1, backend.idCalls, "chain id is fetched once")
}

func TestSubmit_PropagatesErrors(t *testing.T) {
	l, backend := newTestLedger(t)
	backend.sendErr = errors.New("insufficient funds")

	_, err := l.Submit(context.Background(), []byte("x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "send transaction")
	assert.Contains(t, err.Error(), "insufficient funds")

	l2, backend2 := newTestLedger(t)
	backend2.chainErr = errors.New("node offline")
	_, err = l2.Submit(context.Background(), []byte("x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fetch chain id")
}

func TestFetch_Errors(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	_, _, err := l.Fetch(ctx, "not-a-hash")
	assert.ErrorIs(t, err, ErrInvalidHash)

	_, _, err = l.Fetch(ctx, "0x1234")
	assert.ErrorIs(t, err, ErrInvalidHash)

	_, _, err = l.Fetch(ctx, common.HexToHash("0xdead").Hex())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFetch_RejectsForeignSender(t *testing.T) {
	issuer, backend := newTestLedger(t)
	otherKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	other := New(backend, otherKey)

	hash, err := other.Submit(context.Background(), []byte("forged"))
	require.NoError(t, err)

	_, _, err = issuer.Fetch(context.Background(), hash)
	assert.ErrorIs(t, err, ErrForeignSender)
}
