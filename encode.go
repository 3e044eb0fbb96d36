package splitkit

import (
	"encoding/json"

	"github.com/splitkit/splitkit-go/internal/engine"
)

// wireImpression and wireEvent mirror the JSON shape the reference SDK
// posts to the events backend; consumer mode RPUSHes the same payloads
// so an external synchronizer can forward them unchanged.
type wireImpression struct {
	KeyName      string `json:"keyName"`
	Treatment    string `json:"treatment"`
	Time         int64  `json:"time"`
	ChangeNumber int64  `json:"changeNumber"`
	Label        string `json:"label"`
	BucketingKey string `json:"bucketingKey,omitempty"`
	PreviousTime int64  `json:"pt,omitempty"`
}

type wireEvent struct {
	Key             string         `json:"key"`
	TrafficTypeName string         `json:"trafficTypeName"`
	EventTypeID     string         `json:"eventTypeId"`
	Value           *float64       `json:"value,omitempty"`
	Timestamp       int64          `json:"timestamp"`
	Properties      map[string]any `json:"properties,omitempty"`
}

func encodeImpressionJSON(imp engine.Impression) ([]byte, error) {
	return json.Marshal(wireImpression{
		KeyName:      imp.MatchingKey,
		Treatment:    imp.Treatment,
		Time:         imp.Timestamp,
		ChangeNumber: imp.ChangeNumber,
		Label:        imp.Label,
		BucketingKey: imp.BucketingKey,
		PreviousTime: imp.PreviousTime,
	})
}

func encodeEventJSON(ev engine.Event) ([]byte, error) {
	return json.Marshal(wireEvent{
		Key:             ev.Key,
		TrafficTypeName: ev.TrafficType,
		EventTypeID:     ev.EventType,
		Value:           ev.Value,
		Timestamp:       ev.Timestamp,
		Properties:      ev.Properties,
	})
}
