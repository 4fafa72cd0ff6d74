package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/Noah-Huppert/wallet-service/internal/auth"
	"github.com/Noah-Huppert/wallet-service/internal/metrics"
	"github.com/Noah-Huppert/wallet-service/internal/model"
	"github.com/Noah-Huppert/wallet-service/internal/repository"
	"github.com/Noah-Huppert/wallet-service/internal/service"
)

type handler struct {
	svc        service.WalletService
	validate   *validator.Validate
	mc         *metrics.Client
	apiNotOkay string
	logger     *slog.Logger
}

func newHandler(svc service.WalletService, mc *metrics.Client, apiNotOkay string, logger *slog.Logger) *handler {
	validate := validator.New(validator.WithRequiredStructEnabled())

	// Report violations by JSON field name, the name the caller actually
	// sent.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return &handler{
		svc:        svc,
		validate:   validate,
		mc:         mc,
		apiNotOkay: apiNotOkay,
		logger:     logger,
	}
}

// entryPayload is the wire shape of an entry; created_on is unix seconds.
type entryPayload struct {
	EntryID     string      `json:"entry_id"`
	AuthorityID string      `json:"authority_id"`
	UserID      string      `json:"user_id"`
	CreatedOn   int64       `json:"created_on"`
	Amount      int64       `json:"amount"`
	Reason      string      `json:"reason"`
	Item        *model.Item `json:"item,omitempty"`
}

func toEntryPayload(e model.Entry) entryPayload {
	return entryPayload{
		EntryID:     e.ID,
		AuthorityID: e.AuthorityID,
		UserID:      e.UserID,
		CreatedOn:   e.CreatedOn.Unix(),
		Amount:      e.Amount,
		Reason:      e.Reason,
		Item:        e.Item,
	}
}

// inventoryPayload is one row of the inventory listing.
type inventoryPayload struct {
	EntryID     string      `json:"entry_id"`
	AuthorityID string      `json:"authority_id"`
	UserID      string      `json:"user_id"`
	Item        *model.Item `json:"item"`
}

// Health reports service liveness. A configured not-okay message turns the
// response into a failure so load balancers drain the node.
func (h *handler) Health(w http.ResponseWriter, r *http.Request) {
	if h.apiNotOkay != "" {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"ok":      false,
			"error":   h.apiNotOkay,
			"version": APIVersion,
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok":      true,
		"version": APIVersion,
	})
}

// Wallets lists derived per-user balances, optionally filtered.
func (h *handler) Wallets(w http.ResponseWriter, r *http.Request) {
	filter := model.WalletFilter{
		UserIDs:      paramList(r, "user_ids"),
		AuthorityIDs: paramList(r, "authority_ids"),
	}

	wallets, err := h.svc.Wallets(r.Context(), filter)
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	if wallets == nil {
		wallets = []model.Wallet{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"wallets": wallets})
}

// CreateEntry appends a ledger entry attributed to the verified authority.
// The authority ID always comes from the authenticated context, never the
// body.
func (h *handler) CreateEntry(w http.ResponseWriter, r *http.Request) {
	var req model.EntryRequest
	if !h.decodeBody(w, r, &req) {
		return
	}

	authority := auth.FromContext(r.Context())
	entry, err := h.svc.CreateEntry(r.Context(), authority.Authority.ID, req)
	if err != nil {
		h.internalError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"entry": toEntryPayload(entry)})
}

// Inventory lists entries carrying items, optionally filtered, including by
// used state.
func (h *handler) Inventory(w http.ResponseWriter, r *http.Request) {
	hasItem := true
	filter := model.EntryFilter{
		EntryIDs:     paramList(r, "entry_ids"),
		UserIDs:      paramList(r, "user_ids"),
		AuthorityIDs: paramList(r, "authority_ids"),
		HasItem:      &hasItem,
	}

	if usedParam := r.URL.Query().Get("used"); usedParam != "" {
		switch usedParam {
		case "true", "false":
			used := usedParam == "true"
			filter.Used = &used
		default:
			writeJSON(w, http.StatusBadRequest,
				map[string]string{"error": "used must be \"true\" or \"false\""})
			return
		}
	}

	entries, err := h.svc.Entries(r.Context(), filter)
	if err != nil {
		h.internalError(w, r, err)
		return
	}

	inventory := make([]inventoryPayload, 0, len(entries))
	for _, entry := range entries {
		inventory = append(inventory, inventoryPayload{
			EntryID:     entry.ID,
			AuthorityID: entry.AuthorityID,
			UserID:      entry.UserID,
			Item:        entry.Item,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{"inventory": inventory})
}

// ConsumeItem marks an entry's item used. Any verified authority may consume
// any entry's item, including entries it did not create; this mirrors the
// source system's behavior.
func (h *handler) ConsumeItem(w http.ResponseWriter, r *http.Request) {
	entryID := chi.URLParam(r, "entry_id")

	entry, err := h.svc.ConsumeItem(r.Context(), entryID)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrEntryNotFound):
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		case errors.Is(err, repository.ErrItemUsed):
			writeJSON(w, http.StatusConflict, map[string]string{"error": "item already used"})
		default:
			h.internalError(w, r, err)
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"entry": toEntryPayload(entry)})
}

// decodeBody parses and validates a JSON request body. Validation failures
// are reported with the offending field; they are not security sensitive.
func (h *handler) decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest,
			map[string]string{"error": "invalid request body: " + err.Error()})
		return false
	}

	if err := h.validate.Struct(dst); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "invalid request body",
				"field": fieldErrs[0].Field(),
			})
			return false
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return false
	}

	return true
}

// internalError logs the fault in full and reports an opaque failure.
func (h *handler) internalError(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.Error("request handler error",
		"method", r.Method,
		"path", r.URL.Path,
		"user_agent", r.UserAgent(),
		"error", err)
	h.mc.CountInternalError(r.Method, r.URL.Path)

	writeJSON(w, http.StatusInternalServerError,
		map[string]string{"error": "an internal error has occurred"})
}

// paramList reads a comma separated list from a URL query parameter.
func paramList(r *http.Request, name string) []string {
	val := r.URL.Query().Get(name)
	if val == "" {
		return nil
	}
	return strings.Split(val, ",")
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
