package domain

// ProviderKind distinguishes provider transport/execution styles.
type ProviderKind string

const (
	ProviderKindAgent ProviderKind = "agent"
	ProviderKindModel ProviderKind = "model"
)

// Capabilities is the orthogonal-axis boolean record every provider
// declares; modeled as a flat struct rather than an inheritance
// hierarchy per provider.
type Capabilities struct {
	Agent       bool `json:"agent"`
	Model       bool `json:"model"`
	Auth        bool `json:"auth"`
	Passthrough bool `json:"passthrough"`
	Reportees   bool `json:"reportees"`
	AgentCreate bool `json:"agentCreate"`
	AgentDelete bool `json:"agentDelete"`
}

// WorkingDirPolicy selects where a provider process's cwd is set.
type WorkingDirPolicy string

const (
	WorkingDirProviderDefault WorkingDirPolicy = "provider-default"
	WorkingDirAgentWorkspace  WorkingDirPolicy = "agent-workspace"
)

// RuntimeProfile is the value-object describing how a provider expects
// its working directory, skill directories, and role-skill ids to be
// laid out.
type RuntimeProfile struct {
	WorkingDirPolicy WorkingDirPolicy
	SkillDirs        []string // relative to the agent workspace, e.g. "skills" or ".agents/skills"
	RoleSkillIDs     map[AgentType]string
}

// ProviderDescriptor is the static identity of a provider adapter.
type ProviderDescriptor struct {
	ID           string
	DisplayName  string
	Kind         ProviderKind
	Capabilities Capabilities
	Profile      RuntimeProfile
}
