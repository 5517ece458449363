package domain

import "time"

// Member is one entry of a group's uid-keyed members map.
type Member struct {
	Role        string    `json:"role"`
	JoinedAt    time.Time `json:"joinedAt"`
	DisplayName string    `json:"displayName"`
}

// Group is the shared trip group document.
type Group struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Members   map[string]Member `json:"members"`
	CreatedAt time.Time         `json:"createdAt"`
	UpdatedAt time.Time         `json:"updatedAt"`
}

// RoleMember is the role written by the membership upsert.
const RoleMember = "member"
