package models

import "time"

// TrackingStatus is the shipment status of an inventory lot
type TrackingStatus string

const (
	StatusConfirmed        TrackingStatus = "CONFIRMED"
	StatusInTransit        TrackingStatus = "IN_TRANSIT"
	StatusReadyForDelivery TrackingStatus = "READY_FOR_DELIVERY"
	StatusDelivered        TrackingStatus = "DELIVERED"
	StatusDelayed          TrackingStatus = "DELAYED"
	StatusIssueReported    TrackingStatus = "ISSUE_REPORTED"
)

// PipelineStages is the ordered four-stage delivery pipeline. DELIVERED is terminal.
var PipelineStages = []TrackingStatus{
	StatusConfirmed,
	StatusInTransit,
	StatusReadyForDelivery,
	StatusDelivered,
}

// OverlayStages maps the non-pipeline statuses to the stage they report as
var OverlayStages = map[TrackingStatus]TrackingStatus{
	StatusDelayed:       StatusInTransit,
	StatusIssueReported: StatusInTransit,
}

var statusLabels = map[TrackingStatus]string{
	StatusConfirmed:        "Confirmed",
	StatusInTransit:        "In Transit",
	StatusReadyForDelivery: "Ready for Delivery",
	StatusDelivered:        "Delivered",
	StatusDelayed:          "Delayed",
	StatusIssueReported:    "Issue Reported",
}

// StatusEntry is one row of a lot's status history
type StatusEntry struct {
	At     time.Time      `json:"at"`
	Status TrackingStatus `json:"status"`
}

// StageIndex returns the position of a pipeline stage, or -1 when status is not a stage
func StageIndex(status TrackingStatus) int {
	for i, stage := range PipelineStages {
		if stage == status {
			return i
		}
	}
	return -1
}

// IsKnownStatus reports whether status is a pipeline stage or an overlay
func IsKnownStatus(status TrackingStatus) bool {
	if StageIndex(status) >= 0 {
		return true
	}
	_, ok := OverlayStages[status]
	return ok
}

// stagePosition resolves overlays first, then direct stages.
func stagePosition(status TrackingStatus) int {
	if mapped, ok := OverlayStages[status]; ok {
		return StageIndex(mapped)
	}
	return StageIndex(status)
}

// PipelineIndex returns the lot's position in the delivery pipeline.
//
// Overlay statuses report the stage they map to. A status this build does not know
// (snapshots published by a newer client) falls back to the most recent known entry
// in the history, and finally to CONFIRMED.
func PipelineIndex(status TrackingStatus, history []StatusEntry) int {
	if idx := stagePosition(status); idx >= 0 {
		return idx
	}
	for i := len(history) - 1; i >= 0; i-- {
		if idx := stagePosition(history[i].Status); idx >= 0 {
			return idx
		}
	}
	return StageIndex(StatusConfirmed)
}

// StatusLabel returns the customer-facing label for a status
func StatusLabel(status TrackingStatus) string {
	if label, ok := statusLabels[status]; ok {
		return label
	}
	return string(status)
}
