package entity

import (
	"errors"
	"time"
)

type NotificationType string

const (
	NotifFollow  NotificationType = "follow"
	NotifLike    NotificationType = "like"
	NotifComment NotificationType = "comment"
	NotifSystem  NotificationType = "system"
)

// Notification is a per-user inbox document delivered live via Subscribe.
type Notification struct {
	ID            string           `bson:"_id" json:"id"`
	UserID        string           `bson:"userId" json:"user_id"`
	Type          NotificationType `bson:"type" json:"type"`
	TriggerUserID string           `bson:"triggerUserId,omitempty" json:"trigger_user_id,omitempty"`
	Message       string           `bson:"message" json:"message"`
	Read          bool             `bson:"read" json:"read"`
	CreatedAt     time.Time        `bson:"createdAt" json:"created_at"`
}

func (n *Notification) Kind() Kind       { return KindNotification }
func (n *Notification) EntityID() string { return n.ID }

func (n *Notification) Clone() Entity {
	cp := *n
	return &cp
}

func (n *Notification) Validate() error {
	if n.ID == "" {
		return errors.New("notification: missing id")
	}
	if n.UserID == "" {
		return errors.New("notification: missing user id")
	}
	return nil
}
