package rbac

import (
	"log/slog"
	"sort"
	"sync"
)

// Store is the durable backing of the permission matrix. Seed must be
// idempotent across restarts and process instances: it records completion
// in the store itself, not in process memory.
type Store interface {
	Seed(defaults map[string][]string) (seeded bool, err error)
	LoadAll() (map[string][]string, error)
	ReplaceForRole(role string, permissions []string) error
}

// DefaultPermissions is the seed matrix, keyed by namespaced permission
// name. Membership is exact: roles absent from a list are denied regardless
// of rank.
var DefaultPermissions = map[string][]string{
	"crm.leads.read":        {"sales", "manager", "admin", "master"},
	"crm.leads.delete":      {"manager", "admin", "master"},
	"crm.clients.read":      {"sales", "manager", "admin", "master"},
	"crm.clients.delete":    {"manager", "admin", "master"},
	"crm.proposals.manage":  {"sales", "manager", "admin", "master"},
	"visits.schedule.read":  {"technician", "agent", "sales", "manager", "admin", "master"},
	"visits.schedule.write": {"agent", "manager", "admin", "master"},
	"fleet.vehicles.read":   {"technician", "manager", "admin", "master"},
	"fleet.vehicles.manage": {"manager", "admin", "master"},
	"sessions.admin":        {"admin", "master"},
	"permissions.manage":    {"master"},
}

// Matrix is the in-memory view of the permission allow-lists, loaded once
// at bootstrap and refreshed on admin updates.
type Matrix struct {
	mu           sync.RWMutex
	byPermission map[string]map[Role]bool
	store        Store
	logger       *slog.Logger
}

func NewMatrix(store Store, logger *slog.Logger) *Matrix {
	return &Matrix{
		byPermission: make(map[string]map[Role]bool),
		store:        store,
		logger:       logger,
	}
}

// Bootstrap seeds the default matrix if the store has never been seeded,
// then loads whatever the store holds.
func (m *Matrix) Bootstrap() error {
	seeded, err := m.store.Seed(DefaultPermissions)
	if err != nil {
		return err
	}
	if seeded {
		m.logger.Info("permission matrix seeded", "permissions", len(DefaultPermissions))
	}
	return m.reload()
}

func (m *Matrix) reload() error {
	loaded, err := m.store.LoadAll()
	if err != nil {
		return err
	}

	byPermission := make(map[string]map[Role]bool, len(loaded))
	for permission, roles := range loaded {
		set := make(map[Role]bool, len(roles))
		for _, role := range roles {
			set[Role(role)] = true
		}
		byPermission[permission] = set
	}

	m.mu.Lock()
	m.byPermission = byPermission
	m.mu.Unlock()
	return nil
}

// HasPermission reports exact allow-list membership. No rank elevation.
func (m *Matrix) HasPermission(role Role, permission string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	allowed, ok := m.byPermission[permission]
	if !ok {
		return false
	}
	return allowed[role]
}

// PermissionsForRole lists every permission whose allow-list contains the
// role, sorted for stable output.
func (m *Matrix) PermissionsForRole(role Role) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var permissions []string
	for permission, allowed := range m.byPermission {
		if allowed[role] {
			permissions = append(permissions, permission)
		}
	}
	sort.Strings(permissions)
	return permissions
}

// ReplaceForRole swaps the full permission set for one role: the store is
// updated first, then the cache is rebuilt from it.
func (m *Matrix) ReplaceForRole(role Role, permissions []string) error {
	if err := m.store.ReplaceForRole(string(role), permissions); err != nil {
		return err
	}
	m.logger.Info("permissions replaced for role", "role", role, "count", len(permissions))
	return m.reload()
}
