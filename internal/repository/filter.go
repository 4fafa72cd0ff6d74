package repository

import (
	"fmt"
	"strings"

	"github.com/Noah-Huppert/wallet-service/internal/model"
)

// entryWhere builds the WHERE clause for an entry filter. An empty dimension
// places no restriction. Returns the clause (possibly empty) and its
// positional arguments.
func entryWhere(f model.EntryFilter) (string, []any) {
	var conds []string
	var args []any

	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if len(f.EntryIDs) > 0 {
		conds = append(conds, "id = ANY("+arg(f.EntryIDs)+")")
	}
	if len(f.UserIDs) > 0 {
		conds = append(conds, "user_id = ANY("+arg(f.UserIDs)+")")
	}
	if len(f.AuthorityIDs) > 0 {
		conds = append(conds, "authority_id = ANY("+arg(f.AuthorityIDs)+")")
	}
	if f.HasItem != nil {
		if *f.HasItem {
			conds = append(conds, "item_name IS NOT NULL")
		} else {
			conds = append(conds, "item_name IS NULL")
		}
	}
	if f.Used != nil {
		conds = append(conds, "item_used = "+arg(*f.Used))
	}

	if len(conds) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(conds, " AND "), args
}

// walletWhere builds the WHERE clause for balance aggregation.
func walletWhere(f model.WalletFilter) (string, []any) {
	return entryWhere(model.EntryFilter{
		UserIDs:      f.UserIDs,
		AuthorityIDs: f.AuthorityIDs,
	})
}
