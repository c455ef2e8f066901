package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/saralbooks/ledgerhooks/internal/models"
)

// SQLiteStore implements Store on a single SQLite file. The event_queue
// table gives the queue contract FIFO semantics via its autoincrement seq.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS tenants (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			api_key TEXT NOT NULL UNIQUE,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS endpoints (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
			url TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			secret TEXT NOT NULL,
			event_types TEXT NOT NULL DEFAULT '[]',
			headers TEXT NOT NULL DEFAULT '{}',
			timeout_ms INTEGER NOT NULL DEFAULT 0,
			retry_attempts INTEGER NOT NULL DEFAULT 0,
			active INTEGER NOT NULL DEFAULT 1,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS events (
			id TEXT PRIMARY KEY,
			type TEXT NOT NULL,
			tenant_id TEXT NOT NULL,
			data TEXT NOT NULL,
			metadata TEXT NOT NULL DEFAULT '{}',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS event_queue (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			event_id TEXT NOT NULL REFERENCES events(id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS deliveries (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL DEFAULT '',
			endpoint_id TEXT NOT NULL,
			event_id TEXT NOT NULL REFERENCES events(id) ON DELETE CASCADE,
			status TEXT NOT NULL DEFAULT 'pending',
			attempts INTEGER NOT NULL DEFAULT 0,
			last_attempt_at DATETIME,
			next_retry_at DATETIME,
			response_status INTEGER,
			response_body TEXT,
			response_headers TEXT,
			error_message TEXT,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tenants_api_key ON tenants(api_key)`,
		`CREATE INDEX IF NOT EXISTS idx_endpoints_tenant ON endpoints(tenant_id)`,
		`CREATE INDEX IF NOT EXISTS idx_events_type_tenant ON events(type, tenant_id, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_deliveries_endpoint ON deliveries(endpoint_id)`,
		`CREATE INDEX IF NOT EXISTS idx_deliveries_due ON deliveries(status, next_retry_at) WHERE status = 'retrying'`,
	}

	for _, q := range queries {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Events ---

func (s *SQLiteStore) StoreEvent(ctx context.Context, ev *models.Event) error {
	meta, err := json.Marshal(ev.Metadata)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO events (id, type, tenant_id, data, metadata, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.Type, ev.Metadata.TenantID, string(ev.Data), string(meta), ev.Metadata.Timestamp.UTC(),
	)
	return err
}

func (s *SQLiteStore) StoreEvents(ctx context.Context, evs []*models.Event) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, ev := range evs {
		meta, err := json.Marshal(ev.Metadata)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO events (id, type, tenant_id, data, metadata, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
			ev.ID, ev.Type, ev.Metadata.TenantID, string(ev.Data), string(meta), ev.Metadata.Timestamp.UTC(),
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) GetEvent(ctx context.Context, id string) (*models.Event, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, type, data, metadata FROM events WHERE id = ?`, id)
	ev, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return ev, err
}

func (s *SQLiteStore) ListEventsByType(ctx context.Context, eventType, tenantID string) ([]models.Event, error) {
	query := `SELECT id, type, data, metadata FROM events WHERE type = ?`
	args := []any{eventType}
	if tenantID != "" {
		query += ` AND tenant_id = ?`
		args = append(args, tenantID)
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []models.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, *ev)
	}
	return events, rows.Err()
}

func scanEvent(row interface{ Scan(...any) error }) (*models.Event, error) {
	var ev models.Event
	var data, meta string
	if err := row.Scan(&ev.ID, &ev.Type, &data, &meta); err != nil {
		return nil, err
	}
	ev.Data = json.RawMessage(data)
	if err := json.Unmarshal([]byte(meta), &ev.Metadata); err != nil {
		return nil, err
	}
	return &ev, nil
}

// --- Event queue ---

func (s *SQLiteStore) Enqueue(ctx context.Context, ev *models.Event) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO event_queue (event_id) VALUES (?)`, ev.ID)
	return err
}

func (s *SQLiteStore) EnqueueBatch(ctx context.Context, evs []*models.Event) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, ev := range evs {
		if _, err := tx.ExecContext(ctx, `INSERT INTO event_queue (event_id) VALUES (?)`, ev.ID); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) Dequeue(ctx context.Context) (*models.Event, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var seq int64
	var eventID string
	err = tx.QueryRowContext(ctx,
		`SELECT seq, event_id FROM event_queue ORDER BY seq LIMIT 1`).Scan(&seq, &eventID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	row := tx.QueryRowContext(ctx, `SELECT id, type, data, metadata FROM events WHERE id = ?`, eventID)
	ev, err := scanEvent(row)
	if err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM event_queue WHERE seq = ?`, seq); err != nil {
		return nil, err
	}
	return ev, tx.Commit()
}

func (s *SQLiteStore) Peek(ctx context.Context) (*models.Event, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT e.id, e.type, e.data, e.metadata
		 FROM event_queue q JOIN events e ON e.id = q.event_id
		 ORDER BY q.seq LIMIT 1`)
	ev, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return ev, err
}

func (s *SQLiteStore) QueueSize(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM event_queue`).Scan(&n)
	return n, err
}

// --- Endpoints ---

func (s *SQLiteStore) CreateEndpoint(ctx context.Context, ep *models.Endpoint) error {
	eventTypes, _ := json.Marshal(ep.EventTypes)
	headers, _ := json.Marshal(ep.Headers)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO endpoints (id, tenant_id, url, description, secret, event_types, headers, timeout_ms, retry_attempts, active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ep.ID, ep.TenantID, ep.URL, ep.Description, ep.Secret, string(eventTypes), string(headers),
		ep.TimeoutMs, ep.RetryAttempts, boolToInt(ep.Active), ep.CreatedAt, ep.UpdatedAt,
	)
	return err
}

const endpointColumns = `id, tenant_id, url, description, secret, event_types, headers, timeout_ms, retry_attempts, active, created_at, updated_at`

func scanEndpoint(row interface{ Scan(...any) error }) (*models.Endpoint, error) {
	var ep models.Endpoint
	var eventTypes, headers string
	var active int
	err := row.Scan(&ep.ID, &ep.TenantID, &ep.URL, &ep.Description, &ep.Secret, &eventTypes, &headers,
		&ep.TimeoutMs, &ep.RetryAttempts, &active, &ep.CreatedAt, &ep.UpdatedAt)
	if err != nil {
		return nil, err
	}
	json.Unmarshal([]byte(eventTypes), &ep.EventTypes)
	json.Unmarshal([]byte(headers), &ep.Headers)
	ep.Active = active == 1
	return &ep, nil
}

func (s *SQLiteStore) GetEndpoint(ctx context.Context, id string) (*models.Endpoint, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+endpointColumns+` FROM endpoints WHERE id = ?`, id)
	ep, err := scanEndpoint(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return ep, err
}

func (s *SQLiteStore) ListEndpoints(ctx context.Context, tenantID string) ([]models.Endpoint, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+endpointColumns+` FROM endpoints WHERE tenant_id = ? ORDER BY created_at DESC`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEndpoints(rows)
}

func (s *SQLiteStore) UpdateEndpoint(ctx context.Context, ep *models.Endpoint) error {
	eventTypes, _ := json.Marshal(ep.EventTypes)
	headers, _ := json.Marshal(ep.Headers)
	_, err := s.db.ExecContext(ctx,
		`UPDATE endpoints SET url = ?, description = ?, event_types = ?, headers = ?, timeout_ms = ?, retry_attempts = ?, active = ?, updated_at = ? WHERE id = ?`,
		ep.URL, ep.Description, string(eventTypes), string(headers), ep.TimeoutMs, ep.RetryAttempts,
		boolToInt(ep.Active), time.Now().UTC(), ep.ID,
	)
	return err
}

func (s *SQLiteStore) DeleteEndpoint(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM endpoints WHERE id = ?`, id)
	return err
}

func (s *SQLiteStore) FindEndpointsByEventType(ctx context.Context, tenantID, eventType string) ([]models.Endpoint, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+endpointColumns+` FROM endpoints WHERE tenant_id = ? AND active = 1 ORDER BY created_at DESC`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	all, err := collectEndpoints(rows)
	if err != nil {
		return nil, err
	}
	var matched []models.Endpoint
	for _, ep := range all {
		if ep.Subscribed(eventType) {
			matched = append(matched, ep)
		}
	}
	return matched, nil
}

func collectEndpoints(rows *sql.Rows) ([]models.Endpoint, error) {
	var endpoints []models.Endpoint
	for rows.Next() {
		ep, err := scanEndpoint(rows)
		if err != nil {
			return nil, err
		}
		endpoints = append(endpoints, *ep)
	}
	return endpoints, rows.Err()
}

// --- Deliveries ---

const deliveryColumns = `id, tenant_id, endpoint_id, event_id, status, attempts, last_attempt_at, next_retry_at, response_status, response_body, response_headers, error_message, created_at, updated_at`

func (s *SQLiteStore) CreateDelivery(ctx context.Context, d *models.Delivery) error {
	headers := marshalHeaders(d.ResponseHeaders)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO deliveries (`+deliveryColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.TenantID, d.EndpointID, d.EventID, string(d.Status), d.Attempts,
		d.LastAttemptAt, d.NextRetryAt, d.ResponseStatus, d.ResponseBody, headers, d.ErrorMessage,
		d.CreatedAt, d.UpdatedAt,
	)
	return err
}

func (s *SQLiteStore) UpdateDelivery(ctx context.Context, d *models.Delivery) error {
	headers := marshalHeaders(d.ResponseHeaders)
	d.UpdatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`UPDATE deliveries SET status = ?, attempts = ?, last_attempt_at = ?, next_retry_at = ?,
		 response_status = ?, response_body = ?, response_headers = ?, error_message = ?, updated_at = ?
		 WHERE id = ?`,
		string(d.Status), d.Attempts, d.LastAttemptAt, d.NextRetryAt,
		d.ResponseStatus, d.ResponseBody, headers, d.ErrorMessage, d.UpdatedAt, d.ID,
	)
	return err
}

func scanDelivery(row interface{ Scan(...any) error }) (*models.Delivery, error) {
	var d models.Delivery
	var status string
	var headers sql.NullString
	err := row.Scan(&d.ID, &d.TenantID, &d.EndpointID, &d.EventID, &status, &d.Attempts,
		&d.LastAttemptAt, &d.NextRetryAt, &d.ResponseStatus, &d.ResponseBody, &headers, &d.ErrorMessage,
		&d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	d.Status = models.DeliveryStatus(status)
	if headers.Valid && headers.String != "" {
		json.Unmarshal([]byte(headers.String), &d.ResponseHeaders)
	}
	return &d, nil
}

func (s *SQLiteStore) GetDelivery(ctx context.Context, id string) (*models.Delivery, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+deliveryColumns+` FROM deliveries WHERE id = ?`, id)
	d, err := scanDelivery(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return d, err
}

func (s *SQLiteStore) ListDeliveriesByEndpoint(ctx context.Context, endpointID string, limit int) ([]models.Delivery, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+deliveryColumns+` FROM deliveries WHERE endpoint_id = ? ORDER BY created_at DESC LIMIT ?`,
		endpointID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectDeliveries(rows)
}

func (s *SQLiteStore) FindDueRetries(ctx context.Context, now time.Time, limit int) ([]models.Delivery, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+deliveryColumns+` FROM deliveries
		 WHERE status = 'retrying' AND next_retry_at <= ?
		 ORDER BY next_retry_at LIMIT ?`,
		now.UTC(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectDeliveries(rows)
}

func collectDeliveries(rows *sql.Rows) ([]models.Delivery, error) {
	var deliveries []models.Delivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		deliveries = append(deliveries, *d)
	}
	return deliveries, rows.Err()
}

func (s *SQLiteStore) GetEndpointStats(ctx context.Context, endpointID string) (*models.Stats, error) {
	return s.stats(ctx,
		`SELECT status, COUNT(*) FROM deliveries WHERE endpoint_id = ? GROUP BY status`, endpointID)
}

func (s *SQLiteStore) GetTenantStats(ctx context.Context, tenantID string) (*models.Stats, error) {
	return s.stats(ctx,
		`SELECT status, COUNT(*) FROM deliveries WHERE tenant_id = ? GROUP BY status`, tenantID)
}

func (s *SQLiteStore) stats(ctx context.Context, query string, arg any) (*models.Stats, error) {
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats models.Stats
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats.Total += count
		switch models.DeliveryStatus(status) {
		case models.DeliveryDelivered:
			stats.Delivered = count
		case models.DeliveryFailed:
			stats.Failed = count
		case models.DeliveryPending:
			stats.Pending = count
		case models.DeliveryRetrying:
			stats.Retrying = count
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if stats.Total > 0 {
		stats.SuccessRate = float64(stats.Delivered) / float64(stats.Total)
	}
	return &stats, nil
}

// --- Tenants ---

func (s *SQLiteStore) CreateTenant(ctx context.Context, t *models.Tenant) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tenants (id, name, api_key, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		t.ID, t.Name, t.APIKey, t.CreatedAt, t.UpdatedAt,
	)
	return err
}

func (s *SQLiteStore) GetTenant(ctx context.Context, id string) (*models.Tenant, error) {
	var t models.Tenant
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, api_key, created_at, updated_at FROM tenants WHERE id = ?`, id,
	).Scan(&t.ID, &t.Name, &t.APIKey, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return &t, err
}

func (s *SQLiteStore) GetTenantByAPIKey(ctx context.Context, apiKey string) (*models.Tenant, error) {
	var t models.Tenant
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, api_key, created_at, updated_at FROM tenants WHERE api_key = ?`, apiKey,
	).Scan(&t.ID, &t.Name, &t.APIKey, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return &t, err
}

func (s *SQLiteStore) ListTenants(ctx context.Context) ([]models.Tenant, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, api_key, created_at, updated_at FROM tenants ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tenants []models.Tenant
	for rows.Next() {
		var t models.Tenant
		if err := rows.Scan(&t.ID, &t.Name, &t.APIKey, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		tenants = append(tenants, t)
	}
	return tenants, rows.Err()
}

func (s *SQLiteStore) DeleteTenant(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM tenants WHERE id = ?`, id)
	return err
}

func (s *SQLiteStore) UpdateTenantAPIKey(ctx context.Context, id, newKey string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE tenants SET api_key = ?, updated_at = ? WHERE id = ?`,
		newKey, time.Now().UTC(), id,
	)
	return err
}

func marshalHeaders(h map[string]string) *string {
	if h == nil {
		return nil
	}
	b, _ := json.Marshal(h)
	s := string(b)
	return &s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
