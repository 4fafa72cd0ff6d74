package service

import (
	"context"

	"github.com/Noah-Huppert/wallet-service/internal/model"
)

// WalletService defines the business operations of the wallet ledger.
// Transports and workers depend on this interface, not on the concrete
// repository.
type WalletService interface {
	// Authority looks up one authority by ID. Read path of the authority
	// directory, used by the authentication protocol.
	Authority(ctx context.Context, id string) (model.Authority, error)

	// CreateAuthority provisions a new authority. Out-of-band administrative
	// operation; this is how the first trust anchor is established, so it is
	// not itself gated by authentication.
	CreateAuthority(ctx context.Context, name string, owner model.Owner, publicKey string) (model.Authority, error)

	// CreateEntry appends a ledger entry attributed to authorityID.
	CreateEntry(ctx context.Context, authorityID string, req model.EntryRequest) (model.Entry, error)

	// Entries returns entries matching the filter, stably ordered.
	Entries(ctx context.Context, filter model.EntryFilter) ([]model.Entry, error)

	// ConsumeItem marks the inventory item of an entry as used.
	ConsumeItem(ctx context.Context, entryID string) (model.Entry, error)

	// Wallets aggregates per-user balances over entries matching the filter.
	Wallets(ctx context.Context, filter model.WalletFilter) ([]model.Wallet, error)

	// RecordEvent journals an entry event into the audit table. Called by
	// the NATS audit worker.
	RecordEvent(ctx context.Context, event model.EntryEvent) error
}
