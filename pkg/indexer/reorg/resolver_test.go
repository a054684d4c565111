package reorg

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/canopy-network/nimiqx/pkg/rpc"
)

type mockChain struct {
	mock.Mock
}

func (m *mockChain) BlockByNumber(ctx context.Context, height uint64, includeTransactions bool) (*rpc.Block, error) {
	args := m.Called(ctx, height, includeTransactions)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*rpc.Block), args.Error(1)
}

type hashStore map[uint64]string

func (s hashStore) BlockHashAt(_ context.Context, height uint64) (string, bool, error) {
	h, ok := s[height]
	return h, ok, nil
}

func storedChain(tip uint64) hashStore {
	s := hashStore{}
	for h := uint64(1); h <= tip; h++ {
		s[h] = fmt.Sprintf("h%d", h)
	}
	return s
}

// liveBlock builds a live block whose parent is either the stored hash or a forked one.
func liveBlock(height uint64, parentForked bool) *rpc.Block {
	parent := fmt.Sprintf("h%d", height-1)
	if parentForked {
		parent = fmt.Sprintf("f%d", height-1)
	}
	return &rpc.Block{Number: height, Hash: fmt.Sprintf("x%d", height), ParentHash: parent}
}

func TestResolveExtension(t *testing.T) {
	chain := &mockChain{}
	chain.On("BlockByNumber", mock.Anything, uint64(11), false).Return(liveBlock(11, false), nil).Once()

	r := NewResolver(chain, storedChain(10), zaptest.NewLogger(t))
	res, err := r.Resolve(context.Background(), 10, 15)
	require.NoError(t, err)
	assert.Equal(t, Resolution{From: 11, Forked: false}, res)
	chain.AssertExpectations(t)
}

func TestResolveForkAtSameHeight(t *testing.T) {
	chain := &mockChain{}
	// Live 98..100 replaced the stored 98..100; 97 is shared.
	chain.On("BlockByNumber", mock.Anything, uint64(100), false).Return(liveBlock(100, true), nil).Once()
	chain.On("BlockByNumber", mock.Anything, uint64(99), false).Return(liveBlock(99, true), nil).Once()
	chain.On("BlockByNumber", mock.Anything, uint64(98), false).Return(liveBlock(98, false), nil).Once()

	r := NewResolver(chain, storedChain(100), zaptest.NewLogger(t))
	res, err := r.Resolve(context.Background(), 100, 100)
	require.NoError(t, err)
	assert.Equal(t, uint64(98), res.From)
	assert.True(t, res.Forked)
	assert.Equal(t, uint64(3), res.Depth)
	chain.AssertExpectations(t)
}

func TestResolveSameHeightWithoutDivergence(t *testing.T) {
	chain := &mockChain{}
	chain.On("BlockByNumber", mock.Anything, uint64(50), false).Return(liveBlock(50, false), nil).Once()

	r := NewResolver(chain, storedChain(50), zaptest.NewLogger(t))
	res, err := r.Resolve(context.Background(), 50, 50)
	require.NoError(t, err)
	assert.Equal(t, uint64(50), res.From)
	assert.True(t, res.Forked, "a tip that did not advance is rewritten")
	assert.Equal(t, uint64(1), res.Depth)
}

func TestResolveLiveBehindLocal(t *testing.T) {
	chain := &mockChain{}
	chain.On("BlockByNumber", mock.Anything, uint64(8), false).Return(liveBlock(8, false), nil).Once()

	r := NewResolver(chain, storedChain(10), zaptest.NewLogger(t))
	res, err := r.Resolve(context.Background(), 10, 8)
	require.NoError(t, err)
	assert.Equal(t, Resolution{From: 8, Forked: true, Depth: 3}, res)
}

func TestResolveMissingLiveBlockKeepsWalking(t *testing.T) {
	chain := &mockChain{}
	chain.On("BlockByNumber", mock.Anything, uint64(6), false).Return(nil, nil).Once()
	chain.On("BlockByNumber", mock.Anything, uint64(5), false).Return(liveBlock(5, false), nil).Once()

	r := NewResolver(chain, storedChain(5), zaptest.NewLogger(t))
	res, err := r.Resolve(context.Background(), 5, 6)
	require.NoError(t, err)
	assert.Equal(t, Resolution{From: 5, Forked: true, Depth: 1}, res)
}

func TestResolveWalksToGenesis(t *testing.T) {
	chain := &mockChain{}
	for h := uint64(1); h <= 3; h++ {
		chain.On("BlockByNumber", mock.Anything, h, false).Return(liveBlock(h, true), nil).Once()
	}

	r := NewResolver(chain, storedChain(3), zaptest.NewLogger(t))
	res, err := r.Resolve(context.Background(), 3, 3)
	require.NoError(t, err)
	assert.Equal(t, Resolution{From: 1, Forked: true, Depth: 3}, res)
}

func TestResolveEmptyStore(t *testing.T) {
	chain := &mockChain{}
	chain.On("BlockByNumber", mock.Anything, uint64(1), false).Return(liveBlock(1, false), nil).Once()

	r := NewResolver(chain, hashStore{}, zaptest.NewLogger(t))
	res, err := r.Resolve(context.Background(), 0, 20)
	require.NoError(t, err)
	assert.Equal(t, Resolution{From: 1}, res)
}

func TestResolveFetchError(t *testing.T) {
	chain := &mockChain{}
	boom := errors.New("node down")
	chain.On("BlockByNumber", mock.Anything, uint64(11), false).Return(nil, boom).Once()

	r := NewResolver(chain, storedChain(10), zaptest.NewLogger(t))
	_, err := r.Resolve(context.Background(), 10, 12)
	require.ErrorIs(t, err, boom)
}
