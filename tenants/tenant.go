package tenants

import "fmt"

// IsolationLevel controls how strictly a tenant's sessions are bound to the
// device and network they were created from.
type IsolationLevel string

const (
	// IsolationStrict additionally binds each session to its device fingerprint
	IsolationStrict   IsolationLevel = "strict"
	IsolationStandard IsolationLevel = "standard"
	IsolationMinimal  IsolationLevel = "minimal"
)

// Tenant represents one school, the unit of data isolation.
type Tenant struct {
	ID             string         `json:"id"`
	Name           string         `json:"name"`
	Code           string         `json:"code"`   // Short login code typed by users (e.g. "springfield")
	Domain         string         `json:"domain"` // Primary web domain of the school
	IsolationLevel IsolationLevel `json:"isolation_level"`
}

// Isolation returns the tenant's isolation level, defaulting to standard
func (t *Tenant) Isolation() IsolationLevel {
	if t == nil || t.IsolationLevel == "" {
		return IsolationStandard
	}
	return t.IsolationLevel
}

// ParseIsolationLevel validates an isolation level name
func ParseIsolationLevel(level string) (IsolationLevel, error) {
	switch l := IsolationLevel(level); l {
	case IsolationStrict, IsolationStandard, IsolationMinimal:
		return l, nil
	case "":
		return IsolationStandard, nil
	}
	return "", fmt.Errorf("unknown isolation level %q", level)
}
