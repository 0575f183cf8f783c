package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
)

// SuperAdminRoleCode is the role code that grants unrestricted administrative
// access. The value matches the role record provisioned by the host CMS.
const SuperAdminRoleCode = "strapi-super-admin"

type Role struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

type Principal struct {
	ID         int64  `json:"id"`
	Email      string `json:"email"`
	SuperAdmin bool   `json:"isSuperAdmin"`
	Roles      []Role `json:"roles"`
}

// GetPrincipal returns the full principal record including roles,
// or nil when no principal exists with the given id.
func (m *Module) GetPrincipal(ctx context.Context, id int64) (*Principal, error) {
	p := &Principal{}
	err := m.db.QueryRowContext(ctx, "SELECT id, email, super_admin FROM principals WHERE id = ? LIMIT 1", id).Scan(&p.ID, &p.Email, &p.SuperAdmin)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying principal: %w", err)
	}

	rows, err := m.db.QueryContext(ctx, `
		SELECT roles.code, roles.name FROM roles
		JOIN principal_roles ON principal_roles.role = roles.id
		WHERE principal_roles.principal = ?
		ORDER BY roles.id`, id)
	if err != nil {
		return nil, fmt.Errorf("querying principal roles: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var role Role
		if err := rows.Scan(&role.Code, &role.Name); err != nil {
			return nil, fmt.Errorf("scanning role: %w", err)
		}
		p.Roles = append(p.Roles, role)
	}
	return p, rows.Err()
}

// IsAuthorized reports whether the given principal may read or modify
// protected configuration. It fails closed: anonymous principals, missing
// records, and lookup errors all resolve to denial rather than an error.
func (m *Module) IsAuthorized(ctx context.Context, id int64) bool {
	if id <= 0 {
		return false
	}

	principal, err := m.GetPrincipal(ctx, id)
	if err != nil {
		slog.Error("authorization lookup failed, denying access", "principal", id, "error", err)
		return false
	}
	if principal == nil {
		return false
	}

	if principal.SuperAdmin {
		return true
	}
	for _, role := range principal.Roles {
		if role.Code == SuperAdminRoleCode {
			return true
		}
	}
	return false
}
