package dto

import "time"

const StatusMessageType = "status"

// PublicStatus is what anyone holding the share link may see. It never
// carries contacts or the internal id.
type PublicStatus struct {
	Username         string     `json:"username"`
	DisplayName      string     `json:"displayName"`
	LastCheckInAt    *time.Time `json:"lastCheckInAt"`
	IsSafe           bool       `json:"isSafe"`
	State            string     `json:"state"`
	SecondsElapsed   *float64   `json:"secondsElapsed"`
	TimeoutThreshold int        `json:"timeoutThreshold"`
	Version          int64      `json:"version"`
	ServerTime       time.Time  `json:"serverTime"`
}

type StatusMessage struct {
	Type    string       `json:"type"`
	Payload PublicStatus `json:"payload"`
}
