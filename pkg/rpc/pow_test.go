package rpc_test

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/canopy-network/nimiqx/pkg/rpc"
	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const powURL = "http://pow-node:8648/rpc"

// newMockedPoW routes the PoW client through httpmock, answering each method with results[method].
func newMockedPoW(t *testing.T, results map[string]func(params []json.RawMessage) any) *rpc.PoW {
	t.Helper()
	httpClient := &http.Client{}
	httpmock.ActivateNonDefault(httpClient)
	t.Cleanup(httpmock.DeactivateAndReset)

	httpmock.RegisterResponder(http.MethodPost, powURL, func(req *http.Request) (*http.Response, error) {
		var in wireRequest
		if err := json.NewDecoder(req.Body).Decode(&in); err != nil {
			return httpmock.NewStringResponse(http.StatusBadRequest, err.Error()), nil
		}
		fn, ok := results[in.Method]
		if !ok {
			return httpmock.NewJsonResponse(http.StatusOK, map[string]any{
				"jsonrpc": "2.0", "id": in.ID, "error": map[string]any{"code": -32601, "message": "Method not found"},
			})
		}
		return httpmock.NewJsonResponse(http.StatusOK, map[string]any{"jsonrpc": "2.0", "id": in.ID, "result": fn(in.Params)})
	})

	caller := rpc.NewHTTPWithOpts(rpc.Opts{Endpoints: []string{powURL}, HTTPClient: httpClient})
	return rpc.NewPoW(caller)
}

func TestPoW_BlockWithTransactions(t *testing.T) {
	client := newMockedPoW(t, map[string]func([]json.RawMessage) any{
		"getBlockByNumber": func(params []json.RawMessage) any {
			return map[string]any{
				"number":       100,
				"hash":         "h100",
				"parentHash":   "h99",
				"difficulty":   "12.5",
				"timestamp":    1_500_000_000,
				"minerAddress": "NQ99",
				"extraData":    "beef",
				"size":         321,
				"transactions": []any{map[string]any{
					"hash": "t1", "blockNumber": 100, "timestamp": 1_500_000_000,
					"fromAddress": "NQ01", "fromType": 0, "toAddress": "NQ02", "toType": 1,
					"value": 10, "fee": 2, "data": "00112233", "proof": "ff", "flags": 0, "validityStartHeight": 98,
				}},
			}
		},
	})

	b, err := client.BlockByNumber(context.Background(), 100, true)
	require.NoError(t, err)
	require.NotNil(t, b)
	assert.Equal(t, rpc.BlockKindPoW, b.Kind())
	assert.Equal(t, "NQ99", b.PoW.Miner)
	assert.InDelta(t, 12.5, b.PoW.Difficulty, 0.0001)
	assert.Equal(t, time.Unix(1_500_000_000, 0).UTC(), b.Timestamp)
	require.NotNil(t, b.Size)
	assert.Equal(t, uint64(321), *b.Size)
	assert.Equal(t, []byte{0xbe, 0xef}, b.ExtraData)

	require.Len(t, b.Transactions, 1)
	tx := b.Transactions[0]
	assert.Equal(t, "NQ01", tx.From)
	assert.Equal(t, "NQ02", tx.To)
	assert.Equal(t, []byte{0x00, 0x11, 0x22, 0x33}, tx.RecipientData)
	assert.Nil(t, tx.SenderData)
}

func TestPoW_NullBlockIsNil(t *testing.T) {
	client := newMockedPoW(t, map[string]func([]json.RawMessage) any{
		"getBlockByNumber": func([]json.RawMessage) any { return nil },
	})
	b, err := client.BlockByNumber(context.Background(), 1, false)
	require.NoError(t, err)
	assert.Nil(t, b)
}

func TestPoW_HashOnlyBlock(t *testing.T) {
	client := newMockedPoW(t, map[string]func([]json.RawMessage) any{
		"getBlockByNumber": func(params []json.RawMessage) any {
			assert.False(t, param[bool](params, 1))
			return map[string]any{"number": 5, "hash": "h5", "parentHash": "h4", "difficulty": 1, "timestamp": 1, "transactions": []string{"t1"}}
		},
	})
	b, err := client.BlockByNumber(context.Background(), 5, false)
	require.NoError(t, err)
	assert.Equal(t, "h4", b.ParentHash)
	assert.False(t, b.TransactionsIncluded)
	assert.Empty(t, b.Transactions)
}

func TestPoW_HeightAccountMempool(t *testing.T) {
	client := newMockedPoW(t, map[string]func([]json.RawMessage) any{
		"blockNumber": func([]json.RawMessage) any { return 12345 },
		"getAccount": func(params []json.RawMessage) any {
			return map[string]any{"id": "00", "address": param[string](params, 0), "balance": 900, "type": 1}
		},
		"mempoolContent": func(params []json.RawMessage) any {
			return []string{"a", "b"}
		},
		"getTransactionByHash": func(params []json.RawMessage) any {
			if param[string](params, 0) == "gone" {
				return nil
			}
			return map[string]any{"hash": "a", "fromAddress": "NQ1", "toAddress": "NQ2", "timestamp": 0}
		},
	})
	ctx := context.Background()

	h, err := client.CurrentHeight(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(12345), h)

	acc, err := client.Account(ctx, "NQ55")
	require.NoError(t, err)
	assert.Equal(t, rpc.AccountVesting, acc.Type)
	assert.Equal(t, uint64(900), acc.Balance)

	hashes, err := client.MempoolHashes(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, hashes)

	tx, err := client.TransactionByHash(ctx, "a")
	require.NoError(t, err)
	require.NotNil(t, tx)
	assert.Nil(t, tx.Timestamp)

	tx, err = client.TransactionByHash(ctx, "gone")
	require.NoError(t, err)
	assert.Nil(t, tx)

	inh, err := client.InherentsByHeight(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, inh)
}
