package compliance

import (
	"context"

	"github.com/jrsteele09/school-auth/sessions"
)

type sessionData struct {
	repo sessions.Repo
}

// SessionData exposes a session repo as a DataSource.
func SessionData(repo sessions.Repo) DataSource {
	return &sessionData{repo: repo}
}

func (d *sessionData) Name() string {
	return "sessions"
}

func (d *sessionData) ExportTenant(_ context.Context, tenantID string) (any, error) {
	return d.repo.ListByTenant(tenantID)
}

func (d *sessionData) DeleteTenant(_ context.Context, tenantID string) (int, error) {
	return d.repo.DeleteTenant(tenantID)
}
