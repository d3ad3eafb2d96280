package sora

import "storyflow/internal/domain"

// External status vocabulary.
const (
	StatusNotStart   = "NOT_START"
	StatusInProgress = "IN_PROGRESS"
	StatusSuccess    = "SUCCESS"
	StatusFailure    = "FAILURE"
)

// MapStatus translates the external vocabulary into the local one. Anything
// unrecognized counts as still-in-progress rather than an error.
func MapStatus(external string) domain.VideoStatus {
	switch external {
	case StatusNotStart:
		return domain.VideoQueued
	case StatusInProgress:
		return domain.VideoGenerating
	case StatusSuccess:
		return domain.VideoCompleted
	case StatusFailure:
		return domain.VideoFailed
	}
	return domain.VideoGenerating
}

// LocalStatus maps the observation's external status.
func (t *TaskStatus) LocalStatus() domain.VideoStatus {
	return MapStatus(t.Status)
}

// Update converts the observation into a persistable status update. Empty
// strings stay nil so partial observations do not erase earlier fields.
func (t *TaskStatus) Update() domain.VideoStatusUpdate {
	local := t.LocalStatus()
	upd := domain.VideoStatusUpdate{
		Status:   local,
		Finished: local.Terminal(),
	}
	if t.Progress != "" {
		upd.Progress = &t.Progress
	}
	if t.VideoURL != "" {
		upd.VideoURL = &t.VideoURL
	}
	if t.ThumbnailURL != "" {
		upd.ThumbnailURL = &t.ThumbnailURL
	}
	if t.FailReason != "" {
		upd.FailReason = &t.FailReason
	}
	return upd
}
