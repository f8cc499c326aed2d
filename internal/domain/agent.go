// Package domain holds OpenGoat's core data model: agents, providers,
// sessions, and tasks.
package domain

// AgentType distinguishes the two role-skill variants an agent can have.
type AgentType string

const (
	AgentTypeManager    AgentType = "manager"
	AgentTypeIndividual AgentType = "individual"
)

// Agent is OpenGoat's persistent identity record, persisted at
// <home>/agents/<id>/config.json.
type Agent struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"displayName"`
	Role        string    `json:"role,omitempty"`
	Description string    `json:"description,omitempty"`
	Type        AgentType `json:"type"`
	ReportsTo   *string   `json:"reportsTo"`
	ProviderID  string    `json:"providerId"`
	Discoverable bool     `json:"discoverable"`
	Tags        []string  `json:"tags,omitempty"`
	Priority    int       `json:"priority"`
	Skills      []string  `json:"skills,omitempty"`
}

// AgentPatch carries the mutable subset of Agent accepted by update().
// Nil fields are left unchanged.
type AgentPatch struct {
	DisplayName *string
	Role        *string
	Description *string
	Type        *AgentType
	ReportsTo   **string
	ProviderID  *string
	Discoverable *bool
	Tags        *[]string
	Priority    *int
	Skills      *[]string
}

// AgentInfo is the summarized view returned by getInfo.
type AgentInfo struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Role            string   `json:"role,omitempty"`
	TotalReportees  int      `json:"totalReportees"`
	DirectReportees []string `json:"directReportees"`
}
