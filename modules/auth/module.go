package auth

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/mail"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/julienschmidt/httprouter"
	"github.com/paydesk/paydesk/engine"
)

const migration = `
CREATE TABLE IF NOT EXISTS principals (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    created INTEGER NOT NULL DEFAULT (strftime('%s', 'now')),
    email TEXT NOT NULL UNIQUE,
    super_admin INTEGER NOT NULL DEFAULT 0
) STRICT;

CREATE TABLE IF NOT EXISTS roles (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    code TEXT NOT NULL UNIQUE,
    name TEXT NOT NULL DEFAULT ''
) STRICT;

CREATE TABLE IF NOT EXISTS principal_roles (
    principal INTEGER NOT NULL REFERENCES principals(id) ON DELETE CASCADE,
    role INTEGER NOT NULL REFERENCES roles(id) ON DELETE CASCADE,
    PRIMARY KEY (principal, role)
) STRICT;

INSERT OR IGNORE INTO roles (code, name) VALUES ('strapi-super-admin', 'Super Admin');
`

const tokenAudience = "paydesk"

type Module struct {
	db     *sql.DB
	issuer *engine.TokenIssuer
}

func New(db *sql.DB, issuer *engine.TokenIssuer, bootstrapEmail string) (*Module, error) {
	engine.MustMigrate(db, migration)
	m := &Module{db: db, issuer: issuer}

	// Seed an initial super admin so the config endpoints are reachable on a
	// fresh database. The signed token is logged once - operators are expected
	// to mint additional principals through the API afterwards.
	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM principals").Scan(&count); err != nil {
		return nil, err
	}
	if count == 0 {
		var id int64
		err := db.QueryRow("INSERT INTO principals (email, super_admin) VALUES (?, 1) RETURNING id", bootstrapEmail).Scan(&id)
		if err != nil {
			return nil, err
		}
		token, err := m.SignToken(id, time.Hour*24*365)
		if err != nil {
			return nil, err
		}
		slog.Info("generated initial super admin", "email", bootstrapEmail, "token", token)
	}

	return m, nil
}

func (m *Module) AttachRoutes(router *engine.Router) {
	router.Handle("GET", "/whoami", m.WithAuthn(m.handleWhoami))
	router.Handle("GET", "/principals/:id", m.WithSuperAdmin(m.handleGetPrincipal))
	router.Handle("POST", "/principals", m.WithSuperAdmin(m.handleCreatePrincipal))
}

// SignToken mints a bearer token for the given principal.
func (m *Module) SignToken(principalID int64, ttl time.Duration) (string, error) {
	return m.issuer.Sign(&jwt.RegisteredClaims{
		Issuer:    tokenAudience,
		Subject:   strconv.FormatInt(principalID, 10),
		Audience:  jwt.ClaimStrings{tokenAudience},
		ExpiresAt: &jwt.NumericDate{Time: time.Now().Add(ttl)},
	})
}

// WithAuthn authenticates incoming requests by their bearer token and exposes
// the principal ID through the request context.
func (m *Module) WithAuthn(next engine.Handler) engine.Handler {
	return func(r *http.Request, ps httprouter.Params) engine.Response {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			return engine.Unauthorized(nil)
		}

		claims, err := m.issuer.Verify(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			return engine.Unauthorized(err)
		}
		if len(claims.Audience) == 0 || claims.Audience[0] != tokenAudience {
			return engine.Unauthorized(errors.New("unexpected token audience"))
		}

		id, err := strconv.ParseInt(claims.Subject, 10, 64)
		if err != nil || id <= 0 {
			return engine.Unauthorized(errors.New("invalid token subject"))
		}

		r = r.WithContext(withPrincipalID(r.Context(), id))
		return next(r, ps)
	}
}

// WithSuperAdmin authenticates the request and requires the principal to pass
// the super admin check. Denials never reach the wrapped handler.
func (m *Module) WithSuperAdmin(next engine.Handler) engine.Handler {
	return m.WithAuthn(func(r *http.Request, ps httprouter.Params) engine.Response {
		if !m.IsAuthorized(r.Context(), GetPrincipalID(r.Context())) {
			return engine.Forbiddenf("Forbidden")
		}
		return next(r, ps)
	})
}

func (m *Module) handleWhoami(r *http.Request, ps httprouter.Params) engine.Response {
	principal, err := m.GetPrincipal(r.Context(), GetPrincipalID(r.Context()))
	if err != nil {
		return engine.Error(err)
	}
	if principal == nil {
		return engine.NotFoundf("principal not found")
	}
	return engine.JSON(principal)
}

func (m *Module) handleGetPrincipal(r *http.Request, ps httprouter.Params) engine.Response {
	id, err := strconv.ParseInt(ps.ByName("id"), 10, 64)
	if err != nil {
		return engine.ClientErrorf("invalid principal id")
	}

	principal, err := m.GetPrincipal(r.Context(), id)
	if err != nil {
		return engine.Error(err)
	}
	if principal == nil {
		return engine.NotFoundf("principal not found")
	}
	return engine.JSON(principal)
}

type createPrincipalRequest struct {
	Email      string   `json:"email"`
	SuperAdmin bool     `json:"isSuperAdmin"`
	Roles      []string `json:"roles"`
}

func (m *Module) handleCreatePrincipal(r *http.Request, ps httprouter.Params) engine.Response {
	req := &createPrincipalRequest{}
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		return engine.ClientErrorf("invalid request body: %s", err)
	}
	if _, err := mail.ParseAddress(req.Email); err != nil {
		return engine.ClientErrorf("a valid email address is required")
	}

	id, err := m.createPrincipal(r.Context(), req)
	if err != nil {
		return engine.Error(err)
	}

	principal, err := m.GetPrincipal(r.Context(), id)
	if err != nil {
		return engine.Error(err)
	}
	return engine.JSON(principal)
}

func (m *Module) createPrincipal(ctx context.Context, req *createPrincipalRequest) (int64, error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var id int64
	err = tx.QueryRowContext(ctx, "INSERT INTO principals (email, super_admin) VALUES (?, ?) RETURNING id", strings.ToLower(req.Email), req.SuperAdmin).Scan(&id)
	if err != nil {
		return 0, err
	}

	for _, code := range req.Roles {
		_, err = tx.ExecContext(ctx, "INSERT OR IGNORE INTO roles (code) VALUES (?)", code)
		if err != nil {
			return 0, err
		}
		_, err = tx.ExecContext(ctx, "INSERT INTO principal_roles (principal, role) SELECT ?, id FROM roles WHERE code = ?", id, code)
		if err != nil {
			return 0, err
		}
	}

	return id, tx.Commit()
}
