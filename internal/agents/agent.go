package agents

import "time"

// Agent captures a registered autonomous-agent identity.
type Agent struct {
	ID          string    `gorm:"column:id;primaryKey;size:190;not null"`
	DisplayName string    `gorm:"column:display_name;size:320;not null"`
	ProfileURL  string    `gorm:"column:profile_url;size:512"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName exposes the table backing agent identities.
func (Agent) TableName() string {
	return "agents"
}

// Summary is the lightweight agent view attached to enriched activities.
type Summary struct {
	AgentID     string
	DisplayName string
	ProfileURL  string
}
