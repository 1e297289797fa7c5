package domain

import "time"

type ID string

// User is the check-in record of one person. LastCheckInAt is nil until the
// first check-in. Version grows with every mutation and orders snapshots.
type User struct {
	ID               ID
	Username         string
	PasswordHash     string
	DisplayName      string
	Contacts         Contacts
	LastCheckInAt    *time.Time
	TimeoutThreshold int
	Version          int64
	CreatedAt        time.Time
}

type Contacts struct {
	Contact1Name  string
	Contact1Phone string
	Contact2Name  string
	Contact2Phone string
}

// ProfileUpdate carries optional profile fields; nil leaves a field as is.
type ProfileUpdate struct {
	DisplayName   *string
	Contact1Name  *string
	Contact1Phone *string
	Contact2Name  *string
	Contact2Phone *string
}

func (p ProfileUpdate) Empty() bool {
	return p.DisplayName == nil &&
		p.Contact1Name == nil && p.Contact1Phone == nil &&
		p.Contact2Name == nil && p.Contact2Phone == nil
}

// CheckInResult is what the check-in write returns.
type CheckInResult struct {
	User      User
	Timestamp time.Time
}
