package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"storyflow/internal/balance"
	"storyflow/internal/domain"
	"storyflow/internal/infra"
	"storyflow/internal/middleware"
	"storyflow/internal/poller"
	"storyflow/internal/sora"
)

// ledgerAPI is the slice of *balance.Ledger the handlers use.
type ledgerAPI interface {
	Debit(ctx context.Context, userID string, amount int, description, relatedID string) balance.Result
	Credit(ctx context.Context, userID string, amount int, typ domain.BalanceRecordType, description, relatedID string) balance.Result
	Refund(ctx context.Context, userID string, amount int, description, relatedID string) balance.Result
}

// generationAPI is the slice of *sora.Client the handlers use.
type generationAPI interface {
	Submit(ctx context.Context, req sora.GenerationRequest) (string, error)
	FetchStatus(ctx context.Context, taskID string) (*sora.TaskStatus, error)
}

// jobStore is the slice of *store.VideoJobs the handlers use.
type jobStore interface {
	CreatePending(ctx context.Context, kind domain.VideoJobKind, id, userID string, tokenCost int) error
	MarkSubmitted(ctx context.Context, kind domain.VideoJobKind, id, taskID string) error
	ApplyUpdate(ctx context.Context, kind domain.VideoJobKind, id string, upd domain.VideoStatusUpdate) error
	Get(ctx context.Context, kind domain.VideoJobKind, id, userID string) (*domain.VideoJob, error)
}

// tracker is the slice of *poller.Registry the handlers use.
type tracker interface {
	Track(taskID, targetID string, kind domain.VideoJobKind)
	Status() []poller.TrackedTask
}

// App bundles the dependencies the route handlers need.
type App struct {
	SQL    infra.SQLExecutor
	Ledger ledgerAPI
	Jobs   jobStore
	Videos generationAPI
	Poller tracker
	Costs  balance.Costs
	Log    infra.Logger
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// data wraps a successful payload in the response envelope.
func (a *App) data(w http.ResponseWriter, code int, v any) {
	a.json(w, code, map[string]any{"success": true, "data": v})
}

func (a *App) error(w http.ResponseWriter, status int, code, message string) {
	a.json(w, status, map[string]any{
		"success": false,
		"error":   map[string]string{"code": code, "message": message},
	})
}

func (a *App) currentUserID(r *http.Request) string {
	return middleware.UserIDFromContext(r.Context())
}
