// Package repository implements the persistent side of the wallet service:
// the authority directory and entry ledger in Postgres, a read-through Redis
// cache for authority lookups, and entry event publication to the message
// bus.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/Noah-Huppert/wallet-service/internal/model"
)

// authorityCacheTTL bounds staleness of cached authority records. Records
// are immutable once created, so the TTL only matters for cache size.
const authorityCacheTTL = 5 * time.Minute

const entryColumns = "id, authority_id, user_id, created_on, amount, reason, item_name, item_used, item_data"

// WalletRepo is the Postgres-backed implementation of
// service.WalletService.
type WalletRepo struct {
	dbPool      *pgxpool.Pool
	redisClient *redis.Client
	bus         MessageBus

	// strictConsume rejects re-consumption of an already-used item instead
	// of silently succeeding.
	strictConsume bool

	logger *slog.Logger
}

// NewWalletRepo creates a repository over the given connections.
func NewWalletRepo(db *pgxpool.Pool, rdb *redis.Client, bus MessageBus, strictConsume bool, logger *slog.Logger) *WalletRepo {
	return &WalletRepo{
		dbPool:        db,
		redisClient:   rdb,
		bus:           bus,
		strictConsume: strictConsume,
		logger:        logger,
	}
}

// Authority looks up an authority, consulting the Redis cache first and
// falling back to Postgres. Cache faults degrade to database reads.
func (r *WalletRepo) Authority(ctx context.Context, id string) (model.Authority, error) {
	cacheKey := "authority:" + id

	if r.redisClient != nil {
		cached, err := r.redisClient.Get(ctx, cacheKey).Bytes()
		switch {
		case err == nil:
			var authority model.Authority
			if err := json.Unmarshal(cached, &authority); err == nil {
				return authority, nil
			}
			r.logger.Warn("corrupt authority cache record", "authority_id", id)
		case !errors.Is(err, redis.Nil):
			r.logger.Warn("authority cache read failed", "error", err)
		}
	}

	var authority model.Authority
	query := `SELECT id, name, owner_contact, owner_nickname, public_key FROM authorities WHERE id = $1`
	err := r.dbPool.QueryRow(ctx, query, id).Scan(&authority.ID, &authority.Name,
		&authority.Owner.Contact, &authority.Owner.Nickname, &authority.PublicKey)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Authority{}, ErrAuthorityNotFound
		}
		return model.Authority{}, fmt.Errorf("failed to query authority: %w", err)
	}

	r.cacheAuthority(ctx, authority)

	return authority, nil
}

// CreateAuthority inserts a new authority record.
func (r *WalletRepo) CreateAuthority(ctx context.Context, name string, owner model.Owner, publicKey string) (model.Authority, error) {
	authority := model.Authority{
		ID:        uuid.NewString(),
		Name:      name,
		Owner:     owner,
		PublicKey: publicKey,
	}

	query := `INSERT INTO authorities (id, name, owner_contact, owner_nickname, public_key)
		VALUES ($1, $2, $3, $4, $5)`
	_, err := r.dbPool.Exec(ctx, query, authority.ID, authority.Name,
		authority.Owner.Contact, authority.Owner.Nickname, authority.PublicKey)
	if err != nil {
		return model.Authority{}, fmt.Errorf("failed to insert authority: %w", err)
	}

	r.cacheAuthority(ctx, authority)

	return authority, nil
}

func (r *WalletRepo) cacheAuthority(ctx context.Context, authority model.Authority) {
	if r.redisClient == nil {
		return
	}

	data, err := json.Marshal(authority)
	if err != nil {
		return
	}
	if err := r.redisClient.Set(ctx, "authority:"+authority.ID, data, authorityCacheTTL).Err(); err != nil {
		r.logger.Warn("failed to cache authority", "authority_id", authority.ID, "error", err)
	}
}

// CreateEntry appends a ledger entry attributed to authorityID. The
// authority attribution and timestamp come from the server, never the
// request.
func (r *WalletRepo) CreateEntry(ctx context.Context, authorityID string, req model.EntryRequest) (model.Entry, error) {
	var amount int64
	if req.Amount != nil {
		amount = *req.Amount
	}

	entry := model.Entry{
		ID:          uuid.NewString(),
		AuthorityID: authorityID,
		UserID:      req.UserID,
		CreatedOn:   time.Now().UTC(),
		Amount:      amount,
		Reason:      req.Reason,
	}

	var itemName *string
	var itemData []byte
	if req.Item != nil {
		entry.Item = &model.Item{Name: req.Item.Name, Used: false, Data: req.Item.Data}
		itemName = &req.Item.Name
		if req.Item.Data != nil {
			var err error
			itemData, err = json.Marshal(req.Item.Data)
			if err != nil {
				return model.Entry{}, fmt.Errorf("failed to encode item data: %w", err)
			}
		}
	}

	query := `INSERT INTO entries (id, authority_id, user_id, created_on, amount, reason, item_name, item_used, item_data)
		VALUES ($1, $2, $3, $4, $5, $6, $7, FALSE, $8)`
	_, err := r.dbPool.Exec(ctx, query, entry.ID, entry.AuthorityID, entry.UserID,
		entry.CreatedOn, entry.Amount, entry.Reason, itemName, itemData)
	if err != nil {
		return model.Entry{}, fmt.Errorf("failed to insert entry: %w", err)
	}

	r.publishEvent(entry, model.EventEntryCreated)

	return entry, nil
}

// Entries returns entries matching the filter, ordered by creation time then
// ID so a fixed data set always lists in the same order.
func (r *WalletRepo) Entries(ctx context.Context, filter model.EntryFilter) ([]model.Entry, error) {
	where, args := entryWhere(filter)
	query := fmt.Sprintf("SELECT %s FROM entries %s ORDER BY created_on, id", entryColumns, where)

	rows, err := r.dbPool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer rows.Close()

	var entries []model.Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read entries: %w", err)
	}

	return entries, nil
}

// ConsumeItem marks an entry's inventory item as used. The transition is a
// single conditional UPDATE so concurrent consumes of the same entry cannot
// interleave into a lost update. Returns ErrEntryNotFound when the entry
// does not exist or carries no item. With strict consume enabled an
// already-used item yields ErrItemUsed; otherwise re-consumption silently
// re-asserts used.
func (r *WalletRepo) ConsumeItem(ctx context.Context, entryID string) (model.Entry, error) {
	query := fmt.Sprintf(`UPDATE entries SET item_used = TRUE
		WHERE id = $1 AND item_name IS NOT NULL%s
		RETURNING %s`, r.strictConsumeCond(), entryColumns)

	entry, err := scanEntry(r.dbPool.QueryRow(ctx, query, entryID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Entry{}, r.classifyConsumeMiss(ctx, entryID)
		}
		return model.Entry{}, fmt.Errorf("failed to consume item: %w", err)
	}

	r.publishEvent(entry, model.EventEntryConsumed)

	return entry, nil
}

func (r *WalletRepo) strictConsumeCond() string {
	if r.strictConsume {
		return " AND item_used = FALSE"
	}
	return ""
}

// classifyConsumeMiss distinguishes a nonexistent (or item-less) entry from
// an already-used item when strict consume made the UPDATE match nothing.
func (r *WalletRepo) classifyConsumeMiss(ctx context.Context, entryID string) error {
	if !r.strictConsume {
		return ErrEntryNotFound
	}

	var used bool
	query := `SELECT item_used FROM entries WHERE id = $1 AND item_name IS NOT NULL`
	err := r.dbPool.QueryRow(ctx, query, entryID).Scan(&used)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrEntryNotFound
		}
		return fmt.Errorf("failed to inspect entry: %w", err)
	}
	if used {
		return ErrItemUsed
	}
	return ErrEntryNotFound
}

// Wallets aggregates per-user balances with integer summation in the
// database. Users with no matching entries do not appear.
func (r *WalletRepo) Wallets(ctx context.Context, filter model.WalletFilter) ([]model.Wallet, error) {
	where, args := walletWhere(filter)
	query := fmt.Sprintf(`SELECT user_id, SUM(amount)::BIGINT AS total FROM entries %s
		GROUP BY user_id ORDER BY user_id`, where)

	rows, err := r.dbPool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate wallets: %w", err)
	}
	defer rows.Close()

	var wallets []model.Wallet
	for rows.Next() {
		var w model.Wallet
		if err := rows.Scan(&w.UserID, &w.Total); err != nil {
			return nil, fmt.Errorf("failed to read wallet row: %w", err)
		}
		wallets = append(wallets, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read wallets: %w", err)
	}

	return wallets, nil
}

// RecordEvent journals an entry event. The conflict clause makes redelivered
// bus messages harmless.
func (r *WalletRepo) RecordEvent(ctx context.Context, event model.EntryEvent) error {
	query := `INSERT INTO entry_events (entry_id, kind, authority_id, user_id, amount, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (entry_id, kind, occurred_at) DO NOTHING`
	_, err := r.dbPool.Exec(ctx, query, event.EntryID, event.Kind,
		event.AuthorityID, event.UserID, event.Amount, event.OccurredAt)
	if err != nil {
		return fmt.Errorf("failed to record entry event: %w", err)
	}
	return nil
}

// publishEvent emits an entry event to the bus. Publication is best-effort;
// the ledger write already committed.
func (r *WalletRepo) publishEvent(entry model.Entry, kind string) {
	if r.bus == nil {
		return
	}

	event := model.EntryEvent{
		EntryID:     entry.ID,
		Kind:        kind,
		AuthorityID: entry.AuthorityID,
		UserID:      entry.UserID,
		Amount:      entry.Amount,
		OccurredAt:  time.Now().UTC(),
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	topic := TopicEntryCreated
	if kind == model.EventEntryConsumed {
		topic = TopicEntryConsumed
	}
	if err := r.bus.Publish(topic, data); err != nil {
		r.logger.Warn("failed to publish entry event",
			"entry_id", entry.ID, "kind", kind, "error", err)
	}
}

// scanEntry reads one entry row, folding the flattened item columns back
// into the optional item struct.
func scanEntry(row pgx.Row) (model.Entry, error) {
	var entry model.Entry
	var itemName *string
	var itemUsed bool
	var itemData []byte

	err := row.Scan(&entry.ID, &entry.AuthorityID, &entry.UserID, &entry.CreatedOn,
		&entry.Amount, &entry.Reason, &itemName, &itemUsed, &itemData)
	if err != nil {
		return model.Entry{}, err
	}

	if itemName != nil {
		item := &model.Item{Name: *itemName, Used: itemUsed}
		if len(itemData) > 0 {
			if err := json.Unmarshal(itemData, &item.Data); err != nil {
				return model.Entry{}, fmt.Errorf("corrupt item data on entry %s: %w", entry.ID, err)
			}
		}
		entry.Item = item
	}

	return entry, nil
}
