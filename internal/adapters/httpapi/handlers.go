package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/hlog"

	"github.com/chootka/sLLM/internal/domain"
	"github.com/chootka/sLLM/internal/interlock"
	"github.com/chootka/sLLM/internal/publish"
)

// DefaultHistoryLimit is used when ?limit= is absent
const DefaultHistoryLimit = 100

const maxEventLimit = 1000

func (s *Server) getReading(w http.ResponseWriter, r *http.Request) {
	sample, ok := s.State.CurrentSample()
	if !ok {
		writeJSON(w, http.StatusOK, publish.Reading{})
		return
	}
	writeJSON(w, http.StatusOK, publish.NewReading(sample))
}

func (s *Server) getHistory(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit", DefaultHistoryLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, "limit must be an integer")
		return
	}

	samples := s.State.History(limit)
	out := make([]publish.Reading, len(samples))
	for i, sample := range samples {
		out[i] = publish.NewReading(sample)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getEnvironment(w http.ResponseWriter, r *http.Request) {
	env, _ := s.State.Environment()
	writeJSON(w, http.StatusOK, publish.NewEnvironment(env))
}

type lightRequest struct {
	State    *string  `json:"state"`
	Duration *float64 `json:"duration"`
}

type lightResponse struct {
	Status         string  `json:"status"`
	Light          string  `json:"light"`
	LightState     string  `json:"light_state"`
	AutoOffSeconds float64 `json:"auto_off_seconds,omitempty"`
}

// decodeLightRequest defaults a missing state to toggle and a missing
// duration to zero
func decodeLightRequest(r *http.Request) (interlock.LightRequest, error) {
	var body lightRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 4096)).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		return interlock.LightRequest{}, err
	}

	req := interlock.LightRequest{State: interlock.StateToggle}
	if body.State != nil {
		req.State = *body.State
	}
	if body.Duration != nil {
		req.Duration = *body.Duration
	}
	return req, nil
}

func (s *Server) triggerExposure(w http.ResponseWriter, r *http.Request) {
	s.applyLight(w, r, domain.ExposureLight)
}

func (s *Server) setLight(w http.ResponseWriter, r *http.Request) {
	name, err := domain.ParseLightName(mux.Vars(r)["name"])
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	s.applyLight(w, r, name)
}

func (s *Server) applyLight(w http.ResponseWriter, r *http.Request, name domain.LightName) {
	req, err := decodeLightRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	res, err := s.Lights.Apply(r.Context(), name, req)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, lightResponse{
		Status:         "success",
		Light:          string(res.Light),
		LightState:     domain.LightState{IsOn: res.IsOn}.Label(),
		AutoOffSeconds: res.AutoOff.Seconds(),
	})
}

type lightInfo struct {
	Light     string  `json:"light"`
	State     string  `json:"state"`
	Pin       string  `json:"pin"`
	AutoOffAt float64 `json:"auto_off_at,omitempty"`
}

func (s *Server) getLight(w http.ResponseWriter, r *http.Request) {
	name, err := domain.ParseLightName(mux.Vars(r)["name"])
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	st, err := s.State.Light(name)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	info := lightInfo{Light: string(name), State: st.Label(), Pin: st.Pin}
	if at, ok := s.Lights.PendingOff(name); ok {
		info.AutoOffAt = domain.UnixSeconds(at)
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) captureImage(w http.ResponseWriter, r *http.Request) {
	if s.Camera == nil || !s.Camera.Available() {
		writeDomainError(w, r, domain.ErrCameraUnavailable)
		return
	}

	img, err := s.Camera.Capture(r.Context(), "request")
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	f, err := os.Open(img.Path)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Content-Disposition", `inline; filename="`+img.Filename+`"`)
	if _, err := io.Copy(w, f); err != nil {
		hlog.FromRequest(r).Warn().Err(err).Msg("failed to send image")
	}
}

type sensorsResponse struct {
	Electrical          bool   `json:"electrical"`
	ElectricalSource    string `json:"electrical_source"`
	TemperatureHumidity bool   `json:"temperature_humidity"`
	EnvironmentSource   string `json:"environment_source,omitempty"`
	Camera              bool   `json:"camera"`
}

type statusResponse struct {
	Status          string               `json:"status"`
	ExposureLight   string               `json:"exposure_light"`
	RingLight       string               `json:"ring_light"`
	ReadingsCount   int                  `json:"readings_count"`
	HistoryCapacity int                  `json:"history_capacity"`
	TotalSamples    uint64               `json:"total_samples"`
	CurrentReading  float64              `json:"current_reading"`
	SerialConnected bool                 `json:"serial_connected"`
	MockMode        bool                 `json:"mock_mode"`
	Uptime          float64              `json:"uptime_seconds"`
	Timestamp       string               `json:"timestamp"`
	Sensors         sensorsResponse      `json:"sensors"`
	Environment     *publish.Environment `json:"environment"`
}

func (s *Server) getStatus(w http.ResponseWriter, r *http.Request) {
	st := s.State.Status()
	now := s.now()

	resp := statusResponse{
		Status:          "online",
		ExposureLight:   st.Lights[domain.ExposureLight].Label(),
		RingLight:       st.Lights[domain.RingLight].Label(),
		ReadingsCount:   st.ReadingsCount,
		HistoryCapacity: st.HistoryCapacity,
		TotalSamples:    st.TotalSamples,
		SerialConnected: st.SerialConnected,
		MockMode:        st.Sensors.MockMode,
		Uptime:          now.Sub(s.started).Seconds(),
		Timestamp:       now.Format(time.RFC3339),
		Sensors: sensorsResponse{
			Electrical:          st.Sensors.Electrical,
			ElectricalSource:    st.Sensors.ElectricalSource,
			TemperatureHumidity: st.Sensors.TemperatureHumidity,
			EnvironmentSource:   st.Sensors.EnvironmentSource,
			Camera:              st.Sensors.Camera,
		},
	}
	if st.HasSample {
		resp.CurrentReading = st.Sample.Value
	}
	if st.HasEnvironment {
		env := publish.NewEnvironment(st.Environment)
		resp.Environment = &env
	}
	writeJSON(w, http.StatusOK, resp)
}

type configResponse struct {
	ImageCaptureInterval float64 `json:"image_capture_interval"`
	MaxExposureDuration  float64 `json:"max_exposure_duration"`
	AutoLightOff         bool    `json:"auto_light_off"`
	MockMode             bool    `json:"mock_mode"`
	SampleRate           float64 `json:"electrical_sample_rate"`
	EmitInterval         float64 `json:"socket_emit_interval"`
	HistoryCapacity      int     `json:"max_readings_buffer"`
}

func (s *Server) getConfig(w http.ResponseWriter, r *http.Request) {
	lights := s.Lights.Config()
	resp := configResponse{
		MaxExposureDuration: lights.MaxDuration.Seconds(),
		AutoLightOff:        lights.AutoOff,
		MockMode:            s.Info.MockMode,
		SampleRate:          s.Info.SampleRate,
		EmitInterval:        s.Info.EmitInterval.Seconds(),
		HistoryCapacity:     s.Info.HistoryCapacity,
	}
	if s.Camera != nil {
		resp.ImageCaptureInterval = s.Camera.Config().Interval.Seconds()
	}
	writeJSON(w, http.StatusOK, resp)
}

type eventResponse struct {
	ID        int64   `json:"id"`
	Kind      string  `json:"kind"`
	Light     string  `json:"light,omitempty"`
	Detail    string  `json:"detail,omitempty"`
	Timestamp float64 `json:"timestamp"`
}

func toEventResponse(e *domain.Event) eventResponse {
	return eventResponse{
		ID:        e.ID,
		Kind:      string(e.Kind),
		Light:     string(e.Light),
		Detail:    e.Detail,
		Timestamp: domain.UnixSeconds(e.Timestamp),
	}
}

// listEvents returns the newest events, or those in [start, end) when
// both unix-second bounds are given
func (s *Server) listEvents(w http.ResponseWriter, r *http.Request) {
	if s.Events == nil {
		writeJSON(w, http.StatusOK, []eventResponse{})
		return
	}

	q := r.URL.Query()
	var (
		events []*domain.Event
		err    error
	)
	if q.Get("start") != "" || q.Get("end") != "" {
		start, serr := strconv.ParseFloat(q.Get("start"), 64)
		end, eerr := strconv.ParseFloat(q.Get("end"), 64)
		if serr != nil || eerr != nil || end < start {
			writeError(w, http.StatusBadRequest, "start and end must be unix seconds with start <= end")
			return
		}
		events, err = s.Events.GetEventsInRange(r.Context(), domain.FromUnixSeconds(start), domain.FromUnixSeconds(end))
	} else {
		limit, perr := intParam(r, "limit", 50)
		if perr != nil || limit < 1 || limit > maxEventLimit {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 1000")
			return
		}
		events, err = s.Events.GetRecentEvents(r.Context(), limit)
	}
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	out := make([]eventResponse, len(events))
	for i, e := range events {
		out[i] = toEventResponse(e)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getEvent(w http.ResponseWriter, r *http.Request) {
	if s.Events == nil {
		writeDomainError(w, r, domain.ErrEventNotFound)
		return
	}
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid event id")
		return
	}

	event, err := s.Events.GetEvent(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEventResponse(event))
}

func intParam(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}
