package rbac

// Engine is the pure decision component: rank comparisons over the static
// role table plus allow-list membership in the permission matrix.
type Engine struct {
	matrix *Matrix
}

func NewEngine(matrix *Matrix) *Engine {
	return &Engine{matrix: matrix}
}

func (e *Engine) Rank(role Role) int {
	return Rank(role)
}

func (e *Engine) HasMinimumRole(actual, required Role) bool {
	return HasMinimumRole(actual, required)
}

func (e *Engine) HasPermission(actual Role, permission string) bool {
	return e.matrix.HasPermission(actual, permission)
}
