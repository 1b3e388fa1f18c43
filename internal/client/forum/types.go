package forum

import (
	"time"
)

// UserAction is one timestamped activity item from the forum. Excerpt and
// cooked bodies may contain HTML; the orchestrator strips it before prompting.
type UserAction struct {
	ActionType int       `json:"action_type"`
	CreatedAt  time.Time `json:"created_at"`
	Title      string    `json:"title"`
	Excerpt    string    `json:"excerpt"`
	Slug       string    `json:"slug"`
	TopicID    int64     `json:"topic_id"`
	PostID     int64     `json:"post_id"`
	PostNumber int       `json:"post_number"`
	Username   string    `json:"username"`
	CategoryID int64     `json:"category_id"`
}

type userActionsResponse struct {
	UserActions []UserAction `json:"user_actions"`
}
