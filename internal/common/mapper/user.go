package mapper

import (
	"time"

	"github.com/AlibekovAA/safecheck/internal/common/dto"
	"github.com/AlibekovAA/safecheck/internal/status"
	userdomain "github.com/AlibekovAA/safecheck/internal/user/domain"
)

func OwnerRecordToDTO(user userdomain.User, now time.Time) dto.OwnerRecord {
	res := status.Evaluate(user.LastCheckInAt, user.TimeoutThreshold, now)
	return dto.OwnerRecord{
		ID:               string(user.ID),
		Username:         user.Username,
		DisplayName:      user.DisplayName,
		Contact1Name:     user.Contacts.Contact1Name,
		Contact1Phone:    user.Contacts.Contact1Phone,
		Contact2Name:     user.Contacts.Contact2Name,
		Contact2Phone:    user.Contacts.Contact2Phone,
		LastCheckInAt:    utcPtr(user.LastCheckInAt),
		TimeoutThreshold: user.TimeoutThreshold,
		Version:          user.Version,
		CreatedAt:        user.CreatedAt.UTC(),
		IsSafe:           res.IsSafe,
		State:            string(res.Phase),
		SecondsElapsed:   res.SecondsElapsed(),
		ServerTime:       now.UTC(),
	}
}

func OwnerRecordFromDTO(rec dto.OwnerRecord) userdomain.User {
	return userdomain.User{
		ID:          userdomain.ID(rec.ID),
		Username:    rec.Username,
		DisplayName: rec.DisplayName,
		Contacts: userdomain.Contacts{
			Contact1Name:  rec.Contact1Name,
			Contact1Phone: rec.Contact1Phone,
			Contact2Name:  rec.Contact2Name,
			Contact2Phone: rec.Contact2Phone,
		},
		LastCheckInAt:    rec.LastCheckInAt,
		TimeoutThreshold: rec.TimeoutThreshold,
		Version:          rec.Version,
		CreatedAt:        rec.CreatedAt,
	}
}

func PublicStatusToDTO(user userdomain.User, now time.Time) dto.PublicStatus {
	res := status.Evaluate(user.LastCheckInAt, user.TimeoutThreshold, now)
	return dto.PublicStatus{
		Username:         user.Username,
		DisplayName:      user.DisplayName,
		LastCheckInAt:    utcPtr(user.LastCheckInAt),
		IsSafe:           res.IsSafe,
		State:            string(res.Phase),
		SecondsElapsed:   res.SecondsElapsed(),
		TimeoutThreshold: user.TimeoutThreshold,
		Version:          user.Version,
		ServerTime:       now.UTC(),
	}
}

func PresetsToDTO(presets []status.Preset) []dto.ThresholdPreset {
	result := make([]dto.ThresholdPreset, len(presets))
	for i, p := range presets {
		result[i] = dto.ThresholdPreset{
			Key:         p.Key,
			Label:       p.Label,
			Seconds:     p.Seconds,
			Description: p.Description,
		}
	}
	return result
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
