package dto

import "time"

// OwnerRecord is the full record as its owner sees it, with the status derived
// at ServerTime.
type OwnerRecord struct {
	ID               string     `json:"id"`
	Username         string     `json:"username"`
	DisplayName      string     `json:"displayName"`
	Contact1Name     string     `json:"contact1Name"`
	Contact1Phone    string     `json:"contact1Phone"`
	Contact2Name     string     `json:"contact2Name"`
	Contact2Phone    string     `json:"contact2Phone"`
	LastCheckInAt    *time.Time `json:"lastCheckInAt"`
	TimeoutThreshold int        `json:"timeoutThreshold"`
	Version          int64      `json:"version"`
	CreatedAt        time.Time  `json:"createdAt"`
	IsSafe           bool       `json:"isSafe"`
	State            string     `json:"state"`
	SecondsElapsed   *float64   `json:"secondsElapsed"`
	ServerTime       time.Time  `json:"serverTime"`
}

type ProfileRequest struct {
	DisplayName   *string `json:"displayName,omitempty" validate:"omitempty,min=1,max=64"`
	Contact1Name  *string `json:"contact1Name,omitempty" validate:"omitempty,max=64"`
	Contact1Phone *string `json:"contact1Phone,omitempty"`
	Contact2Name  *string `json:"contact2Name,omitempty" validate:"omitempty,max=64"`
	Contact2Phone *string `json:"contact2Phone,omitempty"`
}

type ThresholdRequest struct {
	TimeoutThreshold int `json:"timeoutThreshold" validate:"required,gt=0"`
}

type ThresholdResponse struct {
	TimeoutThreshold int   `json:"timeoutThreshold"`
	Version          int64 `json:"version"`
}

type CheckInResponse struct {
	Success   bool      `json:"success"`
	Timestamp time.Time `json:"timestamp"`
	Version   int64     `json:"version"`
}

type ThresholdPreset struct {
	Key         string `json:"key"`
	Label       string `json:"label"`
	Seconds     int    `json:"seconds"`
	Description string `json:"description"`
}
