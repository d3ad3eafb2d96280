package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"storyflow/internal/domain"
	"storyflow/internal/sqlinline"
)

// Balance returns the caller's current token balance.
func (a *App) Balance(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	var current int
	if err := a.SQL.QueryRow(r.Context(), sqlinline.QGetUserBalance, userID).Scan(&current); err != nil {
		a.error(w, http.StatusNotFound, "user_not_found", "用户不存在")
		return
	}
	a.data(w, http.StatusOK, map[string]any{"balance": current})
}

// BalanceRecords lists the caller's ledger history, newest first.
func (a *App) BalanceRecords(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}

	page := queryInt(r, "page", 1)
	pageSize := queryInt(r, "pageSize", 20)
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	var total int
	if err := a.SQL.QueryRow(r.Context(), sqlinline.QCountBalanceRecords, userID).Scan(&total); err != nil {
		a.error(w, http.StatusInternalServerError, "internal", "failed to count balance records")
		return
	}

	rows, err := a.SQL.Query(r.Context(), sqlinline.QListBalanceRecords, userID, pageSize, (page-1)*pageSize)
	if err != nil {
		a.error(w, http.StatusInternalServerError, "internal", "failed to list balance records")
		return
	}
	defer rows.Close()

	records := make([]map[string]any, 0, pageSize)
	for rows.Next() {
		var id, typ, description, relatedID string
		var amount, balanceAfter int
		var createdAt time.Time
		if err := rows.Scan(&id, &typ, &amount, &balanceAfter, &description, &relatedID, &createdAt); err != nil {
			a.error(w, http.StatusInternalServerError, "internal", "failed to read balance records")
			return
		}
		records = append(records, map[string]any{
			"id":          id,
			"type":        typ,
			"amount":      amount,
			"balance":     balanceAfter,
			"description": description,
			"related_id":  relatedID,
			"created_at":  createdAt,
		})
	}
	if err := rows.Err(); err != nil {
		a.error(w, http.StatusInternalServerError, "internal", "failed to read balance records")
		return
	}

	a.data(w, http.StatusOK, map[string]any{
		"records":  records,
		"total":    total,
		"page":     page,
		"pageSize": pageSize,
	})
}

type rechargeRequest struct {
	Amount      int    `json:"amount"`
	Description string `json:"description"`
}

// BalanceRecharge credits tokens to the caller. Exposed for operator and
// development use; the production recharge path runs through payment
// callbacks outside this service.
func (a *App) BalanceRecharge(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	var req rechargeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if req.Amount <= 0 {
		a.error(w, http.StatusBadRequest, "bad_request", "amount must be positive")
		return
	}
	description := req.Description
	if description == "" {
		description = "代币充值"
	}

	res := a.Ledger.Credit(r.Context(), userID, req.Amount, domain.BalanceRecharge, description, "")
	if !res.Success {
		a.error(w, http.StatusInternalServerError, "internal", "failed to credit balance")
		return
	}
	a.data(w, http.StatusOK, map[string]any{"balance": res.Balance})
}

func queryInt(r *http.Request, key string, fallback int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
