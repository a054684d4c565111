package transform

import (
	"time"

	chainmodels "github.com/canopy-network/nimiqx/pkg/db/models/chain"
	"github.com/canopy-network/nimiqx/pkg/rpc"
	"github.com/canopy-network/nimiqx/pkg/utils"
)

// PendingRow maps a mempool transaction; block height and timestamp stay empty.
func PendingRow(tx *rpc.Transaction) *chainmodels.Transaction {
	return transactionRow(tx, nil, nil)
}

func touchParties(rows *chainmodels.RowSet, height uint64, tx *rpc.Transaction) {
	rows.TouchAccount(&chainmodels.Account{
		Address:   tx.From,
		Type:      uint8(tx.FromType),
		FirstSeen: height,
		LastSent:  utils.Ptr(height),
	})
	recipient := &chainmodels.Account{
		Address:      tx.To,
		Type:         uint8(tx.ToType),
		FirstSeen:    height,
		LastReceived: utils.Ptr(height),
	}
	if tx.ToType != rpc.AccountBasic && len(tx.RecipientData) > 0 {
		recipient.CreationData = tx.RecipientData
	}
	rows.TouchAccount(recipient)
}

func transactionRow(tx *rpc.Transaction, height *uint64, fallback *time.Time) *chainmodels.Transaction {
	row := &chainmodels.Transaction{
		Hash:                tx.Hash,
		BlockHeight:         height,
		Timestamp:           tx.Timestamp,
		SenderAddress:       tx.From,
		SenderType:          uint8(tx.FromType),
		SenderData:          tx.SenderData,
		RecipientAddress:    tx.To,
		RecipientType:       uint8(tx.ToType),
		RecipientData:       tx.RecipientData,
		Value:               tx.Value,
		Fee:                 tx.Fee,
		ValidityStartHeight: tx.ValidityStartHeight,
		Flags:               tx.Flags,
		Proof:               tx.Proof,
	}
	if row.Timestamp == nil {
		row.Timestamp = fallback
	}
	for _, addr := range tx.RelatedAddresses {
		if addr != tx.From && addr != tx.To {
			row.RelatedAddresses = append(row.RelatedAddresses, addr)
		}
	}
	return row
}
