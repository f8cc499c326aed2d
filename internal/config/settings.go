// Package config loads and persists OpenGoat's settings file at
// <home>/ui-settings.json, including the legacy-key migration rule
// that forces the task cron off when the old on-disk schema disabled
// it explicitly.
package config

import (
	"encoding/json"

	"golang.org/x/crypto/bcrypt"

	"opengoat/internal/ports"
)

const settingsFileName = "ui-settings.json"

// TopDownStrategy gates the top-down guidance dispatch kind.
type TopDownStrategy struct {
	Enabled            bool `json:"enabled"`
	OpenTasksThreshold int  `json:"openTasksThreshold"`
}

// NotificationTarget selects who is notified about inactive agents.
type NotificationTarget string

const (
	NotifyAllManagers NotificationTarget = "all-managers"
	NotifyRootOnly    NotificationTarget = "root-only"
)

// BottomUpStrategy gates the inactive-agents dispatch kind.
type BottomUpStrategy struct {
	Enabled                          bool               `json:"enabled"`
	MaxInactivityMinutes             int                `json:"maxInactivityMinutes"`
	InactiveAgentNotificationTarget  NotificationTarget `json:"inactiveAgentNotificationTarget"`
}

// TaskDelegationStrategies bundles the two cron delegation strategies.
type TaskDelegationStrategies struct {
	TopDown   TopDownStrategy   `json:"topDown"`
	BottomUp  BottomUpStrategy  `json:"bottomUp"`
}

// Authentication holds the (optional) UI login configuration.
type Authentication struct {
	Enabled      bool   `json:"enabled"`
	Username     string `json:"username,omitempty"`
	PasswordHash string `json:"passwordHash,omitempty"`
}

// Settings is the canonical schema persisted at <home>/ui-settings.json.
type Settings struct {
	TaskCronEnabled          bool                     `json:"taskCronEnabled"`
	MaxInProgressMinutes     int                      `json:"maxInProgressMinutes"`
	MaxParallelFlows         int                      `json:"maxParallelFlows"`
	TaskDelegationStrategies TaskDelegationStrategies `json:"taskDelegationStrategies"`
	Authentication           Authentication           `json:"authentication"`

	// legacyTaskCronEnabledPresent records whether the on-disk JSON
	// carried "taskCronEnabled": false, whatever other keys the file
	// holds. Not persisted.
	legacyTaskCronEnabledPresent bool `json:"-"`
}

// Defaults returns the settings schema's documented defaults.
func Defaults() Settings {
	return Settings{
		TaskCronEnabled:      true,
		MaxInProgressMinutes: 240,
		MaxParallelFlows:     3,
		TaskDelegationStrategies: TaskDelegationStrategies{
			TopDown: TopDownStrategy{Enabled: true, OpenTasksThreshold: 5},
			BottomUp: BottomUpStrategy{
				Enabled:                         true,
				MaxInactivityMinutes:            30,
				InactiveAgentNotificationTarget: NotifyAllManagers,
			},
		},
	}
}

// legacyShape mirrors the pre-migration settings file: a bare
// "taskCronEnabled" flag and the deprecated
// "notifyManagersOfInactiveAgents" key, with none of the newer nested
// strategy fields guaranteed to be present.
type legacyShape struct {
	TaskCronEnabled                 *bool `json:"taskCronEnabled"`
	NotifyManagersOfInactiveAgents  *bool `json:"notifyManagersOfInactiveAgents"`
}

// Load reads <home>/ui-settings.json, applying defaults for any field
// absent from the file and the legacy-migration rule: a legacy
// "taskCronEnabled": false forces the scheduler off even if the newer
// strategy flags default to true.
func Load(fs ports.FilesystemPort, paths ports.PathPort) (Settings, error) {
	path := paths.Join(settingsFileName)
	s := Defaults()

	if !fs.Exists(path) {
		return s, nil
	}

	data, err := fs.ReadFile(path)
	if err != nil {
		return Settings{}, err
	}

	// Capture the legacy-only view before unmarshalling into the
	// current schema so we can tell a present-and-false legacy key
	// apart from an absent one, regardless of what else is in the file.
	var legacy legacyShape
	_ = json.Unmarshal(data, &legacy)

	if err := json.Unmarshal(data, &s); err != nil {
		return Settings{}, err
	}

	if legacy.NotifyManagersOfInactiveAgents != nil {
		s.TaskDelegationStrategies.BottomUp.Enabled = *legacy.NotifyManagersOfInactiveAgents
	}

	if legacy.TaskCronEnabled != nil && !*legacy.TaskCronEnabled {
		s.TaskCronEnabled = false
		s.legacyTaskCronEnabledPresent = true
	}

	return s, nil
}

// Save writes the settings file via write-temp-then-rename.
func Save(fs ports.FilesystemPort, paths ports.PathPort, s Settings) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return fs.WriteFile(paths.Join(settingsFileName), data, 0o644)
}

// HashPassword hashes a plaintext password for storage in
// Authentication.PasswordHash.
func HashPassword(plain string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword checks plain against a stored bcrypt hash.
func VerifyPassword(hash, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}
