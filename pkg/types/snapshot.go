package types

// SessionView is the read-only state snapshot served by GET /sessions/{code}.
type SessionView struct {
	Code         string  `json:"code"`
	Phase        string  `json:"phase"`
	NumPeers     int     `json:"num_peers"`
	RunnerPeer   int64   `json:"runner_peer"`
	OperatorPeer int64   `json:"operator_peer"`
	Circuit      int     `json:"circuit"`
	Hazard       int     `json:"hazard"`
	TimerActive  bool    `json:"timer_active"`
	RemainingSec float64 `json:"remaining_sec"`
}
