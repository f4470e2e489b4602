package models

import "time"

// Transfer is an outbound movement from the platform to a connected account.
type Transfer struct {
	ID                   string    `json:"id"`
	DestinationAccountID string    `json:"destination_account_id"`
	Amount               Money     `json:"amount"`
	AmountReversed       int64     `json:"amount_reversed"`
	Description          string    `json:"description,omitempty"`
	CreatedAt            time.Time `json:"created_at"`

	Reversals []*TransferReversal `json:"reversals,omitempty"`
}

// Reversible is the part of the transfer that has not been reversed yet.
func (t *Transfer) Reversible() int64 {
	if r := t.Amount.Cents - t.AmountReversed; r > 0 {
		return r
	}
	return 0
}

type TransferReversal struct {
	ID         string            `json:"id"`
	TransferID string            `json:"transfer_id"`
	Amount     Money             `json:"amount"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// ReversalTagged returns the reversals whose metadata has key set to value.
func (t *Transfer) ReversalTagged(key, value string) []*TransferReversal {
	var out []*TransferReversal
	for _, r := range t.Reversals {
		if r.Metadata[key] == value {
			out = append(out, r)
		}
	}
	return out
}

// InternalTransfer is a transfer the platform made and indexed itself.
type InternalTransfer struct {
	ID                string    `json:"id"`
	TransferID        string    `json:"transfer_id"`
	MerchantAccountID string    `json:"merchant_account_id"`
	Amount            Money     `json:"amount"`
	CreatedAt         time.Time `json:"created_at"`
}
