package oracle

import (
	"fmt"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/signalsfoundry/midcourse-planner/model"
)

// Wire messages are google.protobuf.Struct values. Times travel as RFC 3339
// strings with nanosecond precision.
const (
	fieldSatelliteID = "satellite_id"
	fieldMissileID   = "missile_id"
	fieldStart       = "start"
	fieldEnd         = "end"
	fieldIntervals   = "intervals"
)

type query struct {
	SatelliteID string
	MissileID   string
	Start       time.Time
	End         time.Time
}

func encodeQuery(q query) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		fieldSatelliteID: q.SatelliteID,
		fieldMissileID:   q.MissileID,
		fieldStart:       formatTime(q.Start),
		fieldEnd:         formatTime(q.End),
	})
}

func decodeQuery(msg *structpb.Struct) (query, error) {
	var q query
	var err error
	if q.SatelliteID, err = stringField(msg, fieldSatelliteID); err != nil {
		return query{}, err
	}
	if q.MissileID, err = stringField(msg, fieldMissileID); err != nil {
		return query{}, err
	}
	if q.Start, err = timeField(msg, fieldStart); err != nil {
		return query{}, err
	}
	if q.End, err = timeField(msg, fieldEnd); err != nil {
		return query{}, err
	}
	return q, nil
}

func encodeIntervals(ivs []model.VisibilityInterval) (*structpb.Struct, error) {
	list := make([]any, 0, len(ivs))
	for _, iv := range ivs {
		list = append(list, map[string]any{
			fieldSatelliteID: iv.SatelliteID,
			fieldMissileID:   iv.MissileID,
			fieldStart:       formatTime(iv.Start),
			fieldEnd:         formatTime(iv.End),
		})
	}
	return structpb.NewStruct(map[string]any{fieldIntervals: list})
}

// decodeIntervals is strict: anything unexpected is ErrMalformedResponse.
func decodeIntervals(msg *structpb.Struct) ([]model.VisibilityInterval, error) {
	if msg == nil {
		return nil, fmt.Errorf("%w: empty message", ErrMalformedResponse)
	}
	raw, ok := msg.GetFields()[fieldIntervals]
	if !ok {
		return nil, fmt.Errorf("%w: missing %q", ErrMalformedResponse, fieldIntervals)
	}
	list := raw.GetListValue()
	if list == nil {
		return nil, fmt.Errorf("%w: %q is not a list", ErrMalformedResponse, fieldIntervals)
	}

	out := make([]model.VisibilityInterval, 0, len(list.GetValues()))
	for i, v := range list.GetValues() {
		item := v.GetStructValue()
		if item == nil {
			return nil, fmt.Errorf("%w: interval %d is not an object", ErrMalformedResponse, i)
		}
		var iv model.VisibilityInterval
		var err error
		if iv.SatelliteID, err = stringField(item, fieldSatelliteID); err != nil {
			return nil, malformed(i, err)
		}
		if iv.MissileID, err = stringField(item, fieldMissileID); err != nil {
			return nil, malformed(i, err)
		}
		if iv.Start, err = timeField(item, fieldStart); err != nil {
			return nil, malformed(i, err)
		}
		if iv.End, err = timeField(item, fieldEnd); err != nil {
			return nil, malformed(i, err)
		}
		if iv.End.Before(iv.Start) {
			return nil, fmt.Errorf("%w: interval %d ends before it starts", ErrMalformedResponse, i)
		}
		out = append(out, iv)
	}
	return out, nil
}

func malformed(i int, err error) error {
	return fmt.Errorf("%w: interval %d: %v", ErrMalformedResponse, i, err)
}

func stringField(msg *structpb.Struct, key string) (string, error) {
	v, ok := msg.GetFields()[key]
	if !ok {
		return "", fmt.Errorf("missing %q", key)
	}
	s, ok := v.GetKind().(*structpb.Value_StringValue)
	if !ok {
		return "", fmt.Errorf("%q is not a string", key)
	}
	return s.StringValue, nil
}

func timeField(msg *structpb.Struct, key string) (time.Time, error) {
	s, err := stringField(msg, key)
	if err != nil {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%q: %v", key, err)
	}
	return t, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
