package utils

import (
	"strings"
	"time"

	"tutorhub_go/models"
)

// Compact representations used across APIs
type UserShort struct {
	ID        uint   `json:"id"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Nickname  string `json:"nickname,omitempty"`
}

type NotificationDTO struct {
	ID        uint        `json:"id"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
	UserID    uint        `json:"user_id"`
	Title     string      `json:"title"`
	Message   string      `json:"message"`
	Type      string      `json:"type"`
	Read      bool        `json:"read"`
	ReadAt    *time.Time  `json:"read_at,omitempty"`
	Data      models.JSON `json:"data,omitempty"`
	User      UserShort   `json:"user"`
}

// ToNotificationDTO maps a models.Notification to the compact DTO.
// Assumption: caller has preloaded User and its profile when possible.
func ToNotificationDTO(n models.Notification) NotificationDTO {
	var us UserShort

	switch {
	case n.User.Learner != nil:
		us = UserShort{
			ID:        n.User.ID,
			FirstName: n.User.Learner.FirstName,
			LastName:  n.User.Learner.LastName,
			Nickname:  n.User.Learner.Nickname,
		}
	case n.User.Teacher != nil:
		us = UserShort{
			ID:        n.User.ID,
			FirstName: n.User.Teacher.FirstName,
			LastName:  n.User.Teacher.LastName,
			Nickname:  n.User.Teacher.Nickname,
		}
	default:
		// Fallback: derive a display name from username or email local-part
		name := n.User.Username
		if name == "" && n.User.Email != "" {
			parts := strings.Split(n.User.Email, "@")
			name = parts[0]
		}
		parts := strings.Fields(name)
		us = UserShort{ID: n.User.ID}
		if len(parts) > 0 {
			us.FirstName = parts[0]
		}
		if len(parts) > 1 {
			us.LastName = strings.Join(parts[1:], " ")
		}
	}

	return NotificationDTO{
		ID:        n.ID,
		CreatedAt: n.CreatedAt,
		UpdatedAt: n.UpdatedAt,
		UserID:    n.UserID,
		Title:     n.Title,
		Message:   n.Message,
		Type:      n.Type,
		Read:      n.Read,
		ReadAt:    n.ReadAt,
		Data:      n.Data,
		User:      us,
	}
}
