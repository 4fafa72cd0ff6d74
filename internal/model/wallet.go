package model

import "time"

// Authority is a credit issuer. The service stores only its public key; the
// matching private key stays with the authority and signs its request tokens.
type Authority struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Owner     Owner  `json:"owner"`
	PublicKey string `json:"public_key"`
}

// Owner identifies the person responsible for an authority.
type Owner struct {
	Contact  string `json:"contact"`
	Nickname string `json:"nickname"`
}

// Entry is one ledger record: a signed credit or debit for a user, optionally
// carrying a single-use inventory item. Financial fields never change after
// creation; only the item's used flag does.
type Entry struct {
	ID          string    `json:"entry_id"`
	AuthorityID string    `json:"authority_id"`
	UserID      string    `json:"user_id"`
	CreatedOn   time.Time `json:"created_on"`
	Amount      int64     `json:"amount"`
	Reason      string    `json:"reason"`
	Item        *Item     `json:"item,omitempty"`
}

// Item is a consumable good embedded in an entry. Used transitions
// false -> true exactly once and never reverts.
type Item struct {
	Name string         `json:"name"`
	Used bool           `json:"used"`
	Data map[string]any `json:"data,omitempty"`
}

// Wallet is a derived per-user balance. It is recomputed from entries on
// every query and never stored.
type Wallet struct {
	UserID string `json:"user_id"`
	Total  int64  `json:"total"`
}

// EntryFilter narrows entry queries. An empty slice (or nil tri-state)
// places no restriction on that dimension.
type EntryFilter struct {
	EntryIDs     []string
	UserIDs      []string
	AuthorityIDs []string
	HasItem      *bool
	Used         *bool
}

// WalletFilter narrows balance aggregation.
type WalletFilter struct {
	UserIDs      []string
	AuthorityIDs []string
}

// Entry event kinds published to the bus and journaled by the audit worker.
const (
	EventEntryCreated  = "created"
	EventEntryConsumed = "consumed"
)

// EntryEvent describes a mutation of the ledger. Published to NATS when an
// entry is created or its item consumed, and journaled into the audit table
// by the worker.
type EntryEvent struct {
	EntryID     string    `json:"entry_id"`
	Kind        string    `json:"kind"`
	AuthorityID string    `json:"authority_id"`
	UserID      string    `json:"user_id"`
	Amount      int64     `json:"amount"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// EntryRequest is the POST /entry body. Amount is a pointer so a missing
// field is rejected while an explicit zero is accepted.
type EntryRequest struct {
	UserID string       `json:"user_id" validate:"required"`
	Amount *int64       `json:"amount" validate:"required"`
	Reason string       `json:"reason" validate:"required"`
	Item   *ItemRequest `json:"item,omitempty"`
}

// ItemRequest is the optional item part of an entry request. Items always
// start out unused; the request cannot set the used flag.
type ItemRequest struct {
	Name string         `json:"name" validate:"required"`
	Data map[string]any `json:"data,omitempty"`
}

// AuthorityRequest is the JSON file passed to the create-authority command.
type AuthorityRequest struct {
	APIBaseURL string `json:"api_base_url" validate:"required"`
	Name       string `json:"name" validate:"required"`
	Owner      struct {
		Contact  string `json:"contact" validate:"required"`
		Nickname string `json:"nickname" validate:"required"`
	} `json:"owner" validate:"required"`
}

// ClientConfig is printed by create-authority for the new authority's
// client. It is the only place the private key ever appears.
type ClientConfig struct {
	ConfigSchemaVersion string `json:"config_schema_version"`
	APIBaseURL          string `json:"api_base_url"`
	AuthorityID         string `json:"authority_id"`
	PrivateKey          string `json:"private_key"`
}
