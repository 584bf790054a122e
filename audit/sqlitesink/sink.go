// Package sqlitesink stores security events in the append-only
// security_events table.
package sqlitesink

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jrsteele09/school-auth/audit"
)

var _ audit.Sink = (*Sink)(nil)

// Sink implements audit.Sink on SQLite. Seq on listed events is the storage
// row id, so it is ordered across every process writing to the file.
type Sink struct {
	db *sql.DB
}

func New(db *sql.DB) *Sink {
	return &Sink{db: db}
}

func (s *Sink) Append(ctx context.Context, ev audit.SecurityEvent) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO security_events (id, type, identity_id, tenant_id, ip, user_agent, detail, severity, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, string(ev.Type), ev.IdentityID, ev.TenantID, ev.IP, ev.UserAgent, ev.Detail,
		string(ev.Severity), ev.Timestamp.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("inserting security event: %w", err)
	}
	return nil
}

func (s *Sink) List(ctx context.Context, filter audit.Filter) ([]audit.SecurityEvent, error) {
	var where []string
	var args []any
	if !filter.AllTenants {
		where = append(where, "tenant_id = ?")
		args = append(args, filter.TenantID)
	}
	if !filter.Since.IsZero() {
		where = append(where, "created_at >= ?")
		args = append(args, filter.Since.UnixNano())
	}
	if len(filter.Types) > 0 {
		marks := make([]string, len(filter.Types))
		for i, t := range filter.Types {
			marks[i] = "?"
			args = append(args, string(t))
		}
		where = append(where, "type IN ("+strings.Join(marks, ",")+")")
	}

	query := `SELECT seq, id, type, identity_id, tenant_id, ip, user_agent, detail, severity, created_at FROM security_events`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY seq ASC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying security events: %w", err)
	}
	defer rows.Close()

	events := make([]audit.SecurityEvent, 0)
	for rows.Next() {
		var ev audit.SecurityEvent
		var evType, severity string
		var identityID, tenantID, ip, userAgent, detail sql.NullString
		var created int64
		if err := rows.Scan(&ev.Seq, &ev.ID, &evType, &identityID, &tenantID, &ip, &userAgent, &detail, &severity, &created); err != nil {
			return nil, fmt.Errorf("scanning security event: %w", err)
		}
		ev.Type = audit.EventType(evType)
		ev.Severity = audit.Severity(severity)
		ev.IdentityID = identityID.String
		ev.TenantID = tenantID.String
		ev.IP = ip.String
		ev.UserAgent = userAgent.String
		ev.Detail = detail.String
		ev.Timestamp = time.Unix(0, created).UTC()
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating security events: %w", err)
	}
	return events, nil
}
