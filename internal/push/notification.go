package push

import (
	"encoding/json"
	"fmt"
)

// NotificationKind discriminates the parsed update/control/occupancy/error
// notifications a Client emits on its channel.
type NotificationKind int

const (
	NotificationSplitUpdate NotificationKind = iota
	NotificationSplitKill
	NotificationSegmentUpdate
	NotificationControl
	NotificationOccupancy
	NotificationError
)

// Notification is the decoded form of one SSE frame, ready for the sync
// manager / reconciler to act on without touching wire details.
type Notification struct {
	Kind NotificationKind

	ChangeNumber     int64
	PreviousChangeNo int64
	FlagName         string
	DefaultTreatment string
	SegmentName      string

	Control ControlEvent

	Occupancy OccupancyEvent

	Error AblyError
}

// parseFrame decodes one raw SSE frame into a Notification, or returns
// (Notification{}, false, nil) for frames this client ignores (e.g. a
// bare comment or keep-alive with no payload).
func parseFrame(f rawFrame) (Notification, bool, error) {
	if f.event == "error" {
		var e errorEnvelope
		if err := json.Unmarshal([]byte(f.data), &e); err != nil {
			return Notification{}, false, fmt.Errorf("push: decode error frame: %w", err)
		}
		return Notification{Kind: NotificationError, Error: AblyError{
			Code:       e.Code,
			StatusCode: e.StatusCode,
			Message:    e.Message,
		}}, true, nil
	}

	if f.data == "" {
		return Notification{}, false, nil
	}

	var env envelope
	if err := json.Unmarshal([]byte(f.data), &env); err != nil {
		return Notification{}, false, fmt.Errorf("push: decode envelope: %w", err)
	}

	var inner notificationEnvelope
	if err := json.Unmarshal([]byte(env.Data), &inner); err != nil {
		return Notification{}, false, fmt.Errorf("push: decode notification: %w", err)
	}

	if env.Name == occupancyTag {
		return Notification{
			Kind: NotificationOccupancy,
			Occupancy: OccupancyEvent{
				Channel:    env.Channel,
				Publishers: inner.Metrics.Publishers,
				Timestamp:  env.Timestamp,
			},
		}, true, nil
	}

	switch inner.Type {
	case "CONTROL":
		return Notification{
			Kind:    NotificationControl,
			Control: ControlEvent{ControlType: ControlType(inner.ControlType), Timestamp: env.Timestamp},
		}, true, nil
	case "SPLIT_UPDATE":
		return Notification{
			Kind:             NotificationSplitUpdate,
			ChangeNumber:     inner.ChangeNumber,
			PreviousChangeNo: inner.PreviousChangeNum,
		}, true, nil
	case "SPLIT_KILL":
		return Notification{
			Kind:             NotificationSplitKill,
			ChangeNumber:     inner.ChangeNumber,
			FlagName:         inner.SplitName,
			DefaultTreatment: inner.DefaultTreatment,
		}, true, nil
	case "SEGMENT_UPDATE":
		return Notification{
			Kind:         NotificationSegmentUpdate,
			ChangeNumber: inner.ChangeNumber,
			SegmentName:  inner.SegmentName,
		}, true, nil
	default:
		return Notification{}, false, fmt.Errorf("push: unrecognized notification type %q", inner.Type)
	}
}
