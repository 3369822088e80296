package services

import (
	"time"

	"git.solsynth.dev/hypernet/meet/pkg/internal/database"
	"git.solsynth.dev/hypernet/meet/pkg/internal/models"
)

type CallStatusCount struct {
	Status models.CallStatus `json:"status"`
	Count  int64             `json:"count"`
}

type AccountAnalytics struct {
	Calls         []CallStatusCount `json:"calls"`
	TotalDuration int64             `json:"total_duration"`
}

// GetAccountAnalytics counts the calls the account owns by status, and the
// seconds it spent in calls as a participant.
func GetAccountAnalytics(account models.Account) (AccountAnalytics, error) {
	var out AccountAnalytics

	if err := database.C.
		Model(&models.Call{}).
		Select("status, COUNT(id) AS count").
		Where("account_id = ?", account.ID).
		Group("status").
		Order("status").
		Scan(&out.Calls).Error; err != nil {
		return out, err
	}

	if err := database.C.
		Model(&models.Participant{}).
		Select("COALESCE(SUM(duration), 0)").
		Where("account_id = ?", account.ID).
		Scan(&out.TotalDuration).Error; err != nil {
		return out, err
	}

	// Seats still held only accrue on leave, count their running time too
	var live []models.Participant
	if err := database.C.
		Select("id", "joined_at").
		Where("account_id = ? AND status = ?", account.ID, models.ParticipantJoined).
		Find(&live).Error; err != nil {
		return out, err
	}
	now := time.Now()
	for _, item := range live {
		out.TotalDuration += secondsBetween(item.JoinedAt, now)
	}

	return out, nil
}
