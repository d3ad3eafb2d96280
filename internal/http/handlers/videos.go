package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"storyflow/internal/domain"
	"storyflow/internal/sora"
)

type storyboardToVideoRequest struct {
	Prompt          string            `json:"prompt"`
	Model           string            `json:"model"`
	AspectRatio     string            `json:"aspect_ratio"`
	Duration        string            `json:"duration"`
	Private         bool              `json:"private"`
	ReferenceImages []string          `json:"reference_images"`
	LinkedAssets    sora.LinkedAssets `json:"linked_assets"`
}

type generationResponse struct {
	ID        string `json:"id"`
	TaskID    string `json:"task_id"`
	Status    string `json:"status"`
	TokenCost int    `json:"token_cost"`
	Balance   int    `json:"balance"`
}

// StoryboardToVideo debits the user, submits the storyboard to the video
// generation API, persists the variant record, and hands the task to the
// poller. The poller drives the record to a terminal state independently of
// this request's lifetime.
func (a *App) StoryboardToVideo(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	var req storyboardToVideoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if !normalizeGenerationRequest(&req.Prompt, &req.Model, &req.AspectRatio, &req.Duration, "15") {
		a.error(w, http.StatusBadRequest, "bad_request", "prompt required; aspect_ratio must be 16:9 or 9:16; duration must be 10 or 15")
		return
	}

	a.generate(w, r, generateParams{
		userID:    userID,
		kind:      domain.KindStoryboardVariant,
		recordID:  uuid.NewString(),
		tokenCost: a.Costs.StoryboardVideo,
		debitDesc: "分镜视频生成",
		submit: sora.GenerationRequest{
			Prompt:      sora.ComposePrompt(req.Prompt, req.ReferenceImages, req.LinkedAssets),
			Model:       req.Model,
			AspectRatio: req.AspectRatio,
			Duration:    req.Duration,
			Private:     req.Private,
			Images:      sora.BuildReferenceImages(req.ReferenceImages, req.LinkedAssets),
		},
	})
}

type characterVideoRequest struct {
	Prompt         string `json:"prompt"`
	Model          string `json:"model"`
	AspectRatio    string `json:"aspect_ratio"`
	Duration       string `json:"duration"`
	Private        bool   `json:"private"`
	ReferenceImage string `json:"reference_image"`
}

// CharacterVideo runs the same debit/submit/persist/track flow for a
// character video.
func (a *App) CharacterVideo(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	var req characterVideoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if !normalizeGenerationRequest(&req.Prompt, &req.Model, &req.AspectRatio, &req.Duration, "10") {
		a.error(w, http.StatusBadRequest, "bad_request", "prompt required; aspect_ratio must be 16:9 or 9:16; duration must be 10 or 15")
		return
	}

	var images []string
	if req.ReferenceImage != "" {
		images = []string{req.ReferenceImage}
	}

	a.generate(w, r, generateParams{
		userID:    userID,
		kind:      domain.KindCharacterVideo,
		recordID:  uuid.NewString(),
		tokenCost: a.Costs.CharacterVideo,
		debitDesc: "角色视频生成",
		submit: sora.GenerationRequest{
			Prompt:      req.Prompt,
			Model:       req.Model,
			AspectRatio: req.AspectRatio,
			Duration:    req.Duration,
			Private:     req.Private,
			Images:      images,
		},
	})
}

type generateParams struct {
	userID    string
	kind      domain.VideoJobKind
	recordID  string
	tokenCost int
	debitDesc string
	submit    sora.GenerationRequest
}

func (a *App) generate(w http.ResponseWriter, r *http.Request, p generateParams) {
	ctx := r.Context()

	res := a.Ledger.Debit(ctx, p.userID, p.tokenCost, p.debitDesc, p.recordID)
	if !res.Success {
		switch {
		case errors.Is(res.Err, domain.ErrInsufficientBalance):
			a.error(w, http.StatusPaymentRequired, "insufficient_balance", "代币余额不足")
		case errors.Is(res.Err, domain.ErrUserNotFound):
			a.error(w, http.StatusNotFound, "user_not_found", "用户不存在")
		default:
			a.error(w, http.StatusInternalServerError, "internal", "failed to debit balance")
		}
		return
	}

	if err := a.Jobs.CreatePending(ctx, p.kind, p.recordID, p.userID, p.tokenCost); err != nil {
		a.Log.Error().Err(err).Str("record_id", p.recordID).Msg("create job record failed")
		a.Ledger.Refund(ctx, p.userID, p.tokenCost, p.debitDesc+"失败，代币已返还", p.recordID)
		a.error(w, http.StatusInternalServerError, "internal", "failed to create job record")
		return
	}

	taskID, err := a.Videos.Submit(ctx, p.submit)
	if err != nil {
		a.Log.Error().Err(err).Str("record_id", p.recordID).Msg("video submission failed")
		reason := err.Error()
		failed := domain.VideoStatusUpdate{Status: domain.VideoFailed, FailReason: &reason, Finished: true}
		if updErr := a.Jobs.ApplyUpdate(ctx, p.kind, p.recordID, failed); updErr != nil {
			a.Log.Warn().Err(updErr).Str("record_id", p.recordID).Msg("mark failed record failed")
		}
		a.Ledger.Refund(ctx, p.userID, p.tokenCost, p.debitDesc+"失败，代币已返还", p.recordID)
		a.error(w, http.StatusBadGateway, "provider_failure", "video generation submission failed")
		return
	}

	if err := a.Jobs.MarkSubmitted(ctx, p.kind, p.recordID, taskID); err != nil {
		// The in-memory tracking below still drives this record; only a
		// restart before the next successful write would lose the task id.
		a.Log.Warn().Err(err).Str("record_id", p.recordID).Str("task_id", taskID).Msg("persist task id failed")
	}

	a.Poller.Track(taskID, p.recordID, p.kind)

	a.data(w, http.StatusAccepted, generationResponse{
		ID:        p.recordID,
		TaskID:    taskID,
		Status:    string(domain.VideoGenerating),
		TokenCost: p.tokenCost,
		Balance:   res.Balance,
	})
}

// GenerationStatus proxies the external task status endpoint, adding the
// locally mapped status.
func (a *App) GenerationStatus(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskId")
	if taskID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "taskId required")
		return
	}
	status, err := a.Videos.FetchStatus(r.Context(), taskID)
	if err != nil {
		a.error(w, http.StatusBadGateway, "provider_failure", "status unavailable")
		return
	}
	a.data(w, http.StatusOK, map[string]any{
		"status":        status.Status,
		"mapped_status": string(status.LocalStatus()),
		"progress":      status.Progress,
		"output":        status.VideoURL,
		"thumbnail":     status.ThumbnailURL,
		"fail_reason":   status.FailReason,
	})
}

// VariantStatus returns one storyboard variant record owned by the caller.
func (a *App) VariantStatus(w http.ResponseWriter, r *http.Request) {
	a.jobStatus(w, r, domain.KindStoryboardVariant)
}

// CharacterVideoStatus returns one character video record owned by the caller.
func (a *App) CharacterVideoStatus(w http.ResponseWriter, r *http.Request) {
	a.jobStatus(w, r, domain.KindCharacterVideo)
}

func (a *App) jobStatus(w http.ResponseWriter, r *http.Request, kind domain.VideoJobKind) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	id := chi.URLParam(r, "id")
	if id == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "id required")
		return
	}
	job, err := a.Jobs.Get(r.Context(), kind, id, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "record not found")
			return
		}
		a.error(w, http.StatusInternalServerError, "internal", "failed to load record")
		return
	}
	a.data(w, http.StatusOK, map[string]any{
		"id":            job.ID,
		"task_id":       job.TaskID,
		"status":        string(job.Status),
		"progress":      job.Progress,
		"video_url":     job.VideoURL,
		"thumbnail_url": job.ThumbnailURL,
		"fail_reason":   job.FailReason,
		"token_cost":    job.TokenCost,
		"started_at":    job.StartedAt,
		"finished_at":   job.FinishedAt,
	})
}

// PollingStatus exposes the poller's tracking snapshot for debugging.
func (a *App) PollingStatus(w http.ResponseWriter, r *http.Request) {
	a.data(w, http.StatusOK, a.Poller.Status())
}

func normalizeGenerationRequest(prompt, model, aspectRatio, duration *string, defaultDuration string) bool {
	if *prompt == "" {
		return false
	}
	if *model == "" {
		*model = "sora-2"
	}
	switch *aspectRatio {
	case "":
		*aspectRatio = "9:16"
	case "16:9", "9:16":
	default:
		return false
	}
	switch *duration {
	case "":
		*duration = defaultDuration
	case "10", "15":
	default:
		return false
	}
	return true
}
