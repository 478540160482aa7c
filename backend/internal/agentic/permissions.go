package agentic

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed permissions.yaml
var permissionsYAML []byte

// Agent actions
const (
	ActionEditCommunity     = "edit_community"
	ActionModerateUsers     = "moderate_users"
	ActionSendAnnouncements = "send_announcements"
	ActionManageMemory      = "manage_memory"
	ActionViewLogs          = "view_logs"
)

// ActionDef describes one grantable action
type ActionDef struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description"`
}

// AgentType is a named bundle of actions
type AgentType struct {
	Name        string   `yaml:"name" json:"name"`
	Description string   `yaml:"description" json:"description"`
	Actions     []string `yaml:"actions" json:"actions"`
}

// Permissions is the static permission dictionary
type Permissions struct {
	Actions    []ActionDef `yaml:"actions" json:"actions"`
	AgentTypes []AgentType `yaml:"agent_types" json:"agent_types"`

	actions map[string]bool
	types   map[string]map[string]bool
}

// LoadPermissions parses the embedded dictionary
func LoadPermissions() (*Permissions, error) {
	return ParsePermissions(permissionsYAML)
}

// ParsePermissions parses a dictionary; every type action must be declared
func ParsePermissions(data []byte) (*Permissions, error) {
	var p Permissions
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse permissions: %w", err)
	}
	p.actions = make(map[string]bool, len(p.Actions))
	for _, a := range p.Actions {
		p.actions[a.Name] = true
	}
	p.types = make(map[string]map[string]bool, len(p.AgentTypes))
	for _, t := range p.AgentTypes {
		set := make(map[string]bool, len(t.Actions))
		for _, a := range t.Actions {
			if !p.actions[a] {
				return nil, fmt.Errorf("agent type %s references unknown action %q", t.Name, a)
			}
			set[a] = true
		}
		p.types[t.Name] = set
	}
	if len(p.types) == 0 {
		return nil, fmt.Errorf("permissions define no agent types")
	}
	return &p, nil
}

// HasType reports whether name is a known agent type
func (p *Permissions) HasType(name string) bool {
	_, ok := p.types[name]
	return ok
}

// TypeActions returns the actions of an agent type in declaration order
func (p *Permissions) TypeActions(name string) []string {
	for _, t := range p.AgentTypes {
		if t.Name == name {
			return append([]string(nil), t.Actions...)
		}
	}
	return nil
}

// Allowed reports whether the agent type may hold action
func (p *Permissions) Allowed(agentType, action string) bool {
	return p.types[agentType][action]
}

// Subset returns the first action in actions the type may not hold
func (p *Permissions) Subset(agentType string, actions []string) (string, bool) {
	for _, a := range actions {
		if !p.Allowed(agentType, a) {
			return a, false
		}
	}
	return "", true
}
