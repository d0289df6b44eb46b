package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type TicketStatus string

const (
	TicketActive TicketStatus = "active"
	TicketUsed   TicketStatus = "used"
)

// TokenStandard selects how on-chain ownership is queried.
type TokenStandard string

const (
	// StandardSingleOwner is an ERC-721 style token: ownerOf(tokenId).
	StandardSingleOwner TokenStandard = "single-owner"
	// StandardBalance is an ERC-1155 style token: balanceOf(wallet, tokenId) > 0.
	StandardBalance TokenStandard = "balance-based"
)

// ParseTokenStandard accepts both the standard names and the ERC aliases
// ("erc721", "erc1155") used in deployment configuration.
func ParseTokenStandard(s string) (TokenStandard, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "single-owner", "erc721", "erc-721":
		return StandardSingleOwner, true
	case "balance-based", "erc1155", "erc-1155":
		return StandardBalance, true
	}
	return "", false
}

type Ticket struct {
	ID         string          `json:"id"`
	EventID    string          `json:"event_id"`
	OrderID    string          `json:"order_id,omitempty"`
	OwnerEmail string          `json:"owner_email,omitempty"`
	Status     TicketStatus    `json:"status"` // active, used
	Price      decimal.Decimal `json:"price"`
	Binding    *ChainBinding   `json:"binding,omitempty"`
	ScannedAt  *time.Time      `json:"scanned_at,omitempty"`
}

// ChainBinding ties a ticket to a token held by a wallet.
type ChainBinding struct {
	WalletAddress string        `json:"wallet_address"`
	TokenID       string        `json:"token_id"`
	Standard      TokenStandard `json:"token_standard"`
}

func (t *Ticket) IsUsed() bool {
	return t.Status == TicketUsed
}

// OnChain reports whether ownership must be proven against the ledger.
func (t *Ticket) OnChain() bool {
	return t.Binding != nil && t.Binding.WalletAddress != "" && t.Binding.TokenID != ""
}
