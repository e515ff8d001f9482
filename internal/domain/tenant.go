package domain

import (
	"fmt"
	"strings"
)

// Tenant names one of the two independent account populations.
type Tenant string

const (
	TenantRider     Tenant = "rider"
	TenantPassenger Tenant = "passenger"
)

// Tenants lists every tenant in account lookup order.
var Tenants = []Tenant{TenantRider, TenantPassenger}

func (t Tenant) Valid() bool {
	return t == TenantRider || t == TenantPassenger
}

// ParseTenant accepts the tenant name or its short key ("A" rider, "B" passenger).
func ParseTenant(s string) (Tenant, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "rider", "a":
		return TenantRider, nil
	case "passenger", "b":
		return TenantPassenger, nil
	}
	return "", fmt.Errorf("unknown tenant %q: %w", s, ErrBadRequest)
}

// Subject is an account reference resolved to its tenant.
type Subject struct {
	Tenant Tenant
	ID     string
}

func (s Subject) String() string { return string(s.Tenant) + ":" + s.ID }
