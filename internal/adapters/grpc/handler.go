package grpc

import (
	"context"
	"errors"
	"math"

	"github.com/rs/zerolog/log"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/chootka/sLLM/internal/domain"
	"github.com/chootka/sLLM/internal/interlock"
	"github.com/chootka/sLLM/pkg/pb"
)

const (
	defaultHistoryLimit = 100
	defaultEventLimit   = 50
	maxEventLimit       = 1000
)

// LightController changes lights under the safety policy
type LightController interface {
	Apply(ctx context.Context, name domain.LightName, req interlock.LightRequest) (interlock.Result, error)
}

// MonitorServiceHandler implements the gRPC MonitorService
type MonitorServiceHandler struct {
	pb.UnimplementedMonitorServiceServer
	state  *domain.SharedState
	lights LightController
	events domain.EventRepository
}

// NewMonitorServiceHandler creates a new gRPC handler. events may be nil.
func NewMonitorServiceHandler(state *domain.SharedState, lights LightController, events domain.EventRepository) *MonitorServiceHandler {
	return &MonitorServiceHandler{
		state:  state,
		lights: lights,
		events: events,
	}
}

// GetCurrentSample returns the most recent sample
func (h *MonitorServiceHandler) GetCurrentSample(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	log.Debug().Msg("GetCurrentSample called")

	sample, ok := h.state.CurrentSample()
	if !ok {
		return nil, status.Error(codes.NotFound, "no sample yet")
	}
	return toStruct(sampleFields(sample))
}

// GetHistory returns up to limit recent samples, oldest first, with statistics
func (h *MonitorServiceHandler) GetHistory(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	limit, err := intField(req, "limit", defaultHistoryLimit)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	log.Debug().Int("limit", limit).Msg("GetHistory called")

	samples := h.state.History(limit)
	readings := make([]interface{}, len(samples))
	for i, s := range samples {
		readings[i] = sampleFields(s)
	}

	stats := calculateStatistics(samples)
	return toStruct(map[string]interface{}{
		"readings": readings,
		"count":    len(samples),
		"average":  stats.average,
		"min":      stats.min,
		"max":      stats.max,
	})
}

// GetEnvironment returns the latest temperature and humidity
func (h *MonitorServiceHandler) GetEnvironment(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	log.Debug().Msg("GetEnvironment called")

	env, ok := h.state.Environment()
	if !ok {
		return nil, status.Error(codes.NotFound, "no environment reading yet")
	}
	return toStruct(environmentFields(env))
}

// SetLight applies an on/off/toggle request under the interlock
func (h *MonitorServiceHandler) SetLight(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	fields := req.GetFields()

	name := domain.ExposureLight
	if v, ok := fields["light"]; ok {
		parsed, err := domain.ParseLightName(v.GetStringValue())
		if err != nil {
			return nil, status.Error(codes.NotFound, err.Error())
		}
		name = parsed
	}

	lr := interlock.LightRequest{State: interlock.StateToggle}
	if v, ok := fields["state"]; ok {
		lr.State = v.GetStringValue()
	}
	if v, ok := fields["duration"]; ok {
		if _, isNum := v.GetKind().(*structpb.Value_NumberValue); !isNum {
			return nil, status.Error(codes.InvalidArgument, "duration must be a number")
		}
		lr.Duration = v.GetNumberValue()
	}

	log.Info().
		Str("light", string(name)).
		Str("state", lr.State).
		Float64("duration", lr.Duration).
		Msg("SetLight called")

	res, err := h.lights.Apply(ctx, name, lr)
	if err != nil {
		return nil, statusFromError(err)
	}

	return toStruct(map[string]interface{}{
		"light":            string(res.Light),
		"light_state":      domain.LightState{IsOn: res.IsOn}.Label(),
		"auto_off_seconds": res.AutoOff.Seconds(),
	})
}

// GetStatus returns the aggregate status
func (h *MonitorServiceHandler) GetStatus(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	log.Debug().Msg("GetStatus called")

	st := h.state.Status()
	lights := make(map[string]interface{}, len(st.Lights))
	for name, ls := range st.Lights {
		lights[string(name)] = ls.Label()
	}

	out := map[string]interface{}{
		"status":           "online",
		"lights":           lights,
		"readings_count":   st.ReadingsCount,
		"history_capacity": st.HistoryCapacity,
		"total_samples":    float64(st.TotalSamples),
		"serial_connected": st.SerialConnected,
		"mock_mode":        st.Sensors.MockMode,
		"sensors": map[string]interface{}{
			"electrical":           st.Sensors.Electrical,
			"electrical_source":    st.Sensors.ElectricalSource,
			"temperature_humidity": st.Sensors.TemperatureHumidity,
			"environment_source":   st.Sensors.EnvironmentSource,
			"camera":               st.Sensors.Camera,
		},
	}
	if st.HasSample {
		out["current_reading"] = sampleFields(st.Sample)
	}
	if st.HasEnvironment {
		out["environment"] = environmentFields(st.Environment)
	}
	return toStruct(out)
}

// ListEvents returns the newest journal events
func (h *MonitorServiceHandler) ListEvents(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	limit, err := intField(req, "limit", defaultEventLimit)
	if err != nil || limit < 1 || limit > maxEventLimit {
		return nil, status.Error(codes.InvalidArgument, "limit must be between 1 and 1000")
	}

	var events []*domain.Event
	if h.events != nil {
		events, err = h.events.GetRecentEvents(ctx, limit)
		if err != nil {
			log.Error().Err(err).Msg("failed to get events")
			return nil, status.Error(codes.Internal, "failed to get events")
		}
	}

	list := make([]interface{}, len(events))
	for i, e := range events {
		list[i] = map[string]interface{}{
			"id":        float64(e.ID),
			"kind":      string(e.Kind),
			"light":     string(e.Light),
			"detail":    e.Detail,
			"timestamp": domain.UnixSeconds(e.Timestamp),
		}
	}
	return toStruct(map[string]interface{}{"events": list})
}

func sampleFields(s domain.Sample) map[string]interface{} {
	return map[string]interface{}{
		"timestamp": s.Timestamp,
		"value":     s.Value,
	}
}

// environmentFields reports missing quantities as null
func environmentFields(e domain.EnvironmentReading) map[string]interface{} {
	out := map[string]interface{}{
		"temperature": nil,
		"humidity":    nil,
		"timestamp":   e.Timestamp,
	}
	if e.Temperature != nil {
		out["temperature"] = *e.Temperature
	}
	if e.Humidity != nil {
		out["humidity"] = *e.Humidity
	}
	return out
}

func toStruct(m map[string]interface{}) (*structpb.Struct, error) {
	s, err := structpb.NewStruct(m)
	if err != nil {
		log.Error().Err(err).Msg("failed to build response")
		return nil, status.Error(codes.Internal, "failed to build response")
	}
	return s, nil
}

// intField reads an optional whole-number field
func intField(req *structpb.Struct, key string, def int) (int, error) {
	v, ok := req.GetFields()[key]
	if !ok {
		return def, nil
	}
	n, isNum := v.GetKind().(*structpb.Value_NumberValue)
	if !isNum || n.NumberValue != math.Trunc(n.NumberValue) {
		return 0, errors.New(key + " must be a whole number")
	}
	return int(n.NumberValue), nil
}

// statusFromError maps domain errors to gRPC codes
func statusFromError(err error) error {
	switch {
	case errors.Is(err, domain.ErrInvalidLightRequest):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, domain.ErrUnknownLight):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, domain.ErrDeviceUnavailable):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return status.FromContextError(err).Err()
	}
	log.Error().Err(err).Msg("request failed")
	return status.Error(codes.Internal, "internal error")
}

// statistics holds calculated statistics
type statistics struct {
	average float64
	min     float64
	max     float64
}

// calculateStatistics computes stats for a set of samples
func calculateStatistics(samples []domain.Sample) statistics {
	if len(samples) == 0 {
		return statistics{}
	}

	var sum float64
	min := samples[0].Value
	max := samples[0].Value

	for _, s := range samples {
		sum += s.Value
		if s.Value < min {
			min = s.Value
		}
		if s.Value > max {
			max = s.Value
		}
	}

	return statistics{
		average: sum / float64(len(samples)),
		min:     min,
		max:     max,
	}
}
