package grpc

import (
	"encoding/json"
	"fmt"
	"time"

	"ats-dashboard-feed/pkg/models"

	"github.com/google/uuid"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

func generateSubscriberID() string {
	return uuid.NewString()
}

func convertSnapshotToProto(snap *models.Snapshot) (*structpb.Struct, error) {
	payload := &structpb.Struct{}
	if err := protojson.Unmarshal(snap.Payload, payload); err != nil {
		return nil, fmt.Errorf("snapshot %s payload: %w", snap.Symbol, err)
	}

	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"symbol":      structpb.NewStringValue(snap.Symbol),
		"timestamp":   structpb.NewNumberValue(float64(snap.Timestamp)),
		"sequence":    structpb.NewNumberValue(float64(snap.Sequence)),
		"received_at": structpb.NewStringValue(snap.ReceivedAt.UTC().Format(time.RFC3339Nano)),
		"payload":     structpb.NewStructValue(payload),
	}}, nil
}

func convertSnapshotFromProto(s *structpb.Struct) (*models.Snapshot, error) {
	fields := s.GetFields()

	payload, err := protojson.Marshal(fields["payload"].GetStructValue())
	if err != nil {
		return nil, fmt.Errorf("snapshot payload: %w", err)
	}

	snap := &models.Snapshot{
		Symbol:    fields["symbol"].GetStringValue(),
		Timestamp: int64(fields["timestamp"].GetNumberValue()),
		Sequence:  uint64(fields["sequence"].GetNumberValue()),
		Payload:   payload,
	}
	if receivedAt, err := time.Parse(time.RFC3339Nano, fields["received_at"].GetStringValue()); err == nil {
		snap.ReceivedAt = receivedAt
	}
	return snap, nil
}

func convertAlertToProto(alert *models.Alert) *structpb.Struct {
	fields := map[string]*structpb.Value{
		"id":         structpb.NewStringValue(alert.ID),
		"symbol":     structpb.NewStringValue(alert.Symbol),
		"field":      structpb.NewStringValue(alert.Field),
		"comparator": structpb.NewStringValue(alert.Comparator.String()),
		"threshold":  structpb.NewNumberValue(alert.Threshold),
		"note":       structpb.NewStringValue(alert.Note),
		"enabled":    structpb.NewBoolValue(alert.Enabled),
	}
	if alert.LastTrigger != nil {
		fields["last_trigger"] = structpb.NewStringValue(alert.LastTrigger.UTC().Format(time.RFC3339Nano))
	}
	return &structpb.Struct{Fields: fields}
}

func convertAlertFromProto(s *structpb.Struct) *models.Alert {
	fields := s.GetFields()

	alert := &models.Alert{
		ID:         fields["id"].GetStringValue(),
		Symbol:     fields["symbol"].GetStringValue(),
		Field:      fields["field"].GetStringValue(),
		Comparator: models.ParseComparator(fields["comparator"].GetStringValue()),
		Threshold:  fields["threshold"].GetNumberValue(),
		Note:       fields["note"].GetStringValue(),
		Enabled:    fields["enabled"].GetBoolValue(),
	}
	if lastTrigger, err := time.Parse(time.RFC3339Nano, fields["last_trigger"].GetStringValue()); err == nil {
		alert.LastTrigger = &lastTrigger
	}
	return alert
}

func convertAlertTriggerToProto(trigger *models.AlertTrigger) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"alert":         structpb.NewStructValue(convertAlertToProto(trigger.Alert)),
		"value":         structpb.NewNumberValue(trigger.Value),
		"snapshot_time": structpb.NewNumberValue(float64(trigger.SnapshotTime)),
		"timestamp":     structpb.NewStringValue(trigger.Timestamp.UTC().Format(time.RFC3339Nano)),
	}}
}

func convertAlertTriggerFromProto(s *structpb.Struct) *models.AlertTrigger {
	fields := s.GetFields()

	trigger := &models.AlertTrigger{
		Alert:        convertAlertFromProto(fields["alert"].GetStructValue()),
		Value:        fields["value"].GetNumberValue(),
		SnapshotTime: int64(fields["snapshot_time"].GetNumberValue()),
	}
	if ts, err := time.Parse(time.RFC3339Nano, fields["timestamp"].GetStringValue()); err == nil {
		trigger.Timestamp = ts
	}
	return trigger
}

// convertToStruct maps any JSON-encodable value onto a Struct.
func convertToStruct(v interface{}) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	s := &structpb.Struct{}
	if err := protojson.Unmarshal(data, s); err != nil {
		return nil, err
	}
	return s, nil
}
