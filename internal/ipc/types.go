package ipc

// TrackRequest enables or disables autonomous tracking.
type TrackRequest struct {
	Enabled bool `json:"enabled"`
}

// TrackResponse reports the resulting gate state.
type TrackResponse struct {
	Enabled bool `json:"enabled"`
	Changed bool `json:"changed"`
}

// StatusRequest fetches station status.
type StatusRequest struct{}

// StatusResponse represents combined station, controller and producer state.
type StatusResponse struct {
	SessionID       string  `json:"session_id"`
	PID             int     `json:"pid"`
	StartedAt       string  `json:"started_at"`
	UptimeSeconds   int64   `json:"uptime_seconds"`
	Source          string  `json:"source"`
	FramesPublished uint64  `json:"frames_published"`
	LastFrameID     int64   `json:"last_frame_id"`
	BusFrameID      int64   `json:"bus_frame_id"`
	FrameWidth      int     `json:"frame_width"`
	FrameHeight     int     `json:"frame_height"`
	FrameBytes      int     `json:"frame_bytes"`
	BusInitialized  bool    `json:"bus_initialized"`
	LinkInterface   string  `json:"link_interface"`
	JournalPath     string  `json:"journal_path"`
	Tracking        bool    `json:"tracking"`
	Airborne        bool    `json:"airborne"`
	ErrorX          float32 `json:"error_x"`
	ErrorY          float32 `json:"error_y"`
	ErrorZ          float32 `json:"error_z"`
	TrackPulses     uint64  `json:"track_pulses"`
	ManualPulses    uint64  `json:"manual_pulses"`
	LastAction      string  `json:"last_action"`
	LastPulseAt     string  `json:"last_pulse_at"`
	XThreshold      float32 `json:"x_threshold"`
	ZThreshold      float32 `json:"z_threshold"`
	PulseMillis     int64   `json:"pulse_ms"`
	RepeatMillis    int64   `json:"repeat_ms"`
	ManualGain      float32 `json:"manual_gain"`
}

// ManualRequest issues one manual pulse by action name.
type ManualRequest struct {
	Action string `json:"action"`
}

// ManualResponse echoes the normalized action.
type ManualResponse struct {
	Action  string `json:"action"`
	Message string `json:"message"`
}

// TakeoffRequest asks the aircraft to take off.
type TakeoffRequest struct{}

// TakeoffResponse reports the airborne state after takeoff.
type TakeoffResponse struct {
	Airborne bool   `json:"airborne"`
	Message  string `json:"message"`
}

// LandRequest asks the aircraft to land. Tracking is disabled first.
type LandRequest struct{}

// LandResponse reports the airborne state after landing.
type LandResponse struct {
	Airborne bool   `json:"airborne"`
	Message  string `json:"message"`
}

// HistoryRequest filters the pulse journal. An empty SessionID selects the
// running session unless AllSessions is set.
type HistoryRequest struct {
	SessionID   string `json:"session_id"`
	AllSessions bool   `json:"all_sessions"`
	Source      string `json:"source"`
	Limit       int    `json:"limit"`
}

// PulseEntry is the wire form of a journaled pulse.
type PulseEntry struct {
	ID         int64   `json:"id"`
	SessionID  string  `json:"session_id"`
	Source     string  `json:"source"`
	Action     string  `json:"action"`
	Flags      int32   `json:"flags"`
	Roll       float32 `json:"roll"`
	Pitch      float32 `json:"pitch"`
	Gaz        float32 `json:"gaz"`
	Yaw        float32 `json:"yaw"`
	ErrorX     float32 `json:"error_x"`
	ErrorY     float32 `json:"error_y"`
	ErrorZ     float32 `json:"error_z"`
	DurationMS int64   `json:"duration_ms"`
	Repeats    int     `json:"repeats"`
	IssuedAt   string  `json:"issued_at"`
}

// SourceCount totals pulses for one source.
type SourceCount struct {
	Source string `json:"source"`
	Count  int    `json:"count"`
}

// HistoryResponse carries journal entries, newest first, and per-source
// totals for the selected session.
type HistoryResponse struct {
	SessionID string        `json:"session_id"`
	Entries   []PulseEntry  `json:"entries"`
	Counts    []SourceCount `json:"counts"`
}
