package domain

import "time"

// VideoJobKind distinguishes the two persisted video job records.
type VideoJobKind string

const (
	KindStoryboardVariant VideoJobKind = "variant"
	KindCharacterVideo    VideoJobKind = "character"
)

// VideoStatus enumerates the local job lifecycle.
type VideoStatus string

const (
	VideoPending    VideoStatus = "pending"
	VideoQueued     VideoStatus = "queued"
	VideoGenerating VideoStatus = "generating"
	VideoCompleted  VideoStatus = "completed"
	VideoFailed     VideoStatus = "failed"
)

// Terminal reports whether no further polling should happen for s.
func (s VideoStatus) Terminal() bool {
	return s == VideoCompleted || s == VideoFailed
}

// VideoJob is a persisted video generation record: a storyboard variant or a
// character video. TaskID is empty until the external submission succeeds.
// TokenCost is recorded at submission time so a later refund does not depend
// on pricing config still agreeing with what was charged.
type VideoJob struct {
	ID           string
	UserID       string
	Kind         VideoJobKind
	TokenCost    int
	TaskID       string
	Status       VideoStatus
	Progress     string
	VideoURL     string
	ThumbnailURL string
	FailReason   string
	StartedAt    time.Time
	FinishedAt   *time.Time
}

// PendingPoll identifies a persisted job whose polling must be reconstructed
// after a restart: the durable record plus its external task id is the whole
// recovery state.
type PendingPoll struct {
	TaskID   string
	TargetID string
	Kind     VideoJobKind
}

// VideoStatusUpdate carries one poll cycle's observation. Nil-able fields are
// pointers so a cycle that reports no progress string does not erase the last
// one written.
type VideoStatusUpdate struct {
	Status       VideoStatus
	Progress     *string
	VideoURL     *string
	ThumbnailURL *string
	FailReason   *string
	Finished     bool
}
