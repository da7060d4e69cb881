/*
Copyright 2025 The Edgeplane Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package postgres implements the store on PostgreSQL. Two tables hold the
// whole model: crds keyed by name and resources keyed by an internal UUID,
// with specs and statuses stored as JSONB. Cluster scoped instances have a
// NULL namespace; the identity constraint coalesces it so uniqueness holds
// across scopes.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // Registers the pgx database/sql driver.
	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	ktypes "k8s.io/apimachinery/pkg/types"
	kname "k8s.io/apiserver/pkg/storage/names"
	"k8s.io/utils/clock"

	"github.com/crossplane/crossplane-runtime/pkg/errors"

	v1 "github.com/edgeplane/edgeplane/apis/apiextensions/v1"
	"github.com/edgeplane/edgeplane/internal/store"
	"github.com/edgeplane/edgeplane/internal/xresource"
)

//go:embed migrations/*.sql
var migrations embed.FS

const pgUniqueViolation = "23505"

const maxGenerateTries = 10

// Error strings.
const (
	errOpen         = "cannot open database"
	errMigrate      = "cannot run migrations"
	errBeginTx      = "cannot begin transaction"
	errEncode       = "cannot encode row"
	errDecode       = "cannot decode row"
	errGenerateName = "cannot generate an available name"
)

// A Store persists CRDs and instances in PostgreSQL.
type Store struct {
	db    *sqlx.DB
	clock clock.Clock
	namer kname.NameGenerator
}

// An Option configures the store.
type Option func(*Store)

// WithClock configures the clock used for creation timestamps.
func WithClock(c clock.Clock) Option {
	return func(s *Store) {
		s.clock = c
	}
}

// Open connects to the database at the supplied DSN.
func Open(dsn string, o ...Option) (*Store, error) {
	db, err := sqlx.Open("pgx", dsn)
	if err != nil {
		return nil, errors.Wrap(err, errOpen)
	}
	return New(db, o...), nil
}

// New wraps an existing database handle.
func New(db *sqlx.DB, o ...Option) *Store {
	s := &Store{
		db:    db,
		clock: clock.RealClock{},
		namer: kname.SimpleNameGenerator,
	}
	for _, fn := range o {
		fn(s)
	}
	return s
}

// Migrate brings the schema up to date using the embedded migrations.
func (s *Store) Migrate(ctx context.Context) error {
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return errors.Wrap(err, errMigrate)
	}
	return errors.Wrap(goose.UpContext(ctx, s.db.DB, "migrations"), errMigrate)
}

// Ping verifies database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

type crdRow struct {
	Name       string       `db:"name"`
	Group      string       `db:"api_group"`
	Version    string       `db:"version"`
	Kind       string       `db:"kind"`
	Plural     string       `db:"plural"`
	ShortNames []byte       `db:"short_names"`
	Schema     []byte       `db:"schema"`
	Scope      string       `db:"scope"`
	CreatedAt  sql.NullTime `db:"created_at"`
}

type resourceRow struct {
	ID        string         `db:"id"`
	Group     string         `db:"api_group"`
	Version   string         `db:"version"`
	Plural    string         `db:"plural"`
	Kind      string         `db:"kind"`
	Namespace sql.NullString `db:"namespace"`
	Name      string         `db:"name"`
	Spec      []byte         `db:"spec"`
	Status    []byte         `db:"status"`
	CreatedAt sql.NullTime   `db:"created_at"`
}

// CreateCRD stores a new definition.
func (s *Store) CreateCRD(ctx context.Context, crd *v1.CustomResourceDefinition) error {
	shortNames, err := json.Marshal(crd.Spec.ShortNames)
	if err != nil {
		return errors.Wrap(err, errEncode)
	}

	var schema []byte
	if crd.Spec.Schema.Raw != nil {
		schema = crd.Spec.Schema.Raw
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO crds (name, api_group, version, kind, plural, short_names, schema, scope, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		crd.Name, crd.Spec.Group, crd.Spec.Version, crd.Spec.Kind, crd.Spec.Plural,
		shortNames, schema, string(crd.Spec.Scope), s.clock.Now())

	if isUniqueViolation(err) {
		return errors.Wrap(store.ErrAlreadyExists, crd.Name)
	}
	return err
}

// GetCRD returns the definition of the supplied kind identity.
func (s *Store) GetCRD(ctx context.Context, group, version, plural string) (*v1.CustomResourceDefinition, error) {
	var row crdRow
	err := s.db.GetContext(ctx, &row, `
		SELECT name, api_group, version, kind, plural, short_names, schema, scope, created_at
		FROM crds WHERE api_group = $1 AND version = $2 AND plural = $3`,
		group, version, plural)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrap(store.ErrNotFound, v1.DefinitionName(plural, group))
	}
	if err != nil {
		return nil, err
	}
	return decodeCRD(row)
}

// GetCRDByName returns the definition stored under the supplied name.
func (s *Store) GetCRDByName(ctx context.Context, name string) (*v1.CustomResourceDefinition, error) {
	var row crdRow
	err := s.db.GetContext(ctx, &row, `
		SELECT name, api_group, version, kind, plural, short_names, schema, scope, created_at
		FROM crds WHERE name = $1`, name)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrap(store.ErrNotFound, name)
	}
	if err != nil {
		return nil, err
	}
	return decodeCRD(row)
}

// DeleteCRD removes the named definition and every instance of its kind in
// one transaction.
func (s *Store) DeleteCRD(ctx context.Context, name string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, errBeginTx)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback after commit is a no-op.

	var row crdRow
	err = tx.GetContext(ctx, &row, `SELECT name, api_group, version, kind, plural, short_names, schema, scope, created_at FROM crds WHERE name = $1`, name)
	if errors.Is(err, sql.ErrNoRows) {
		return errors.Wrap(store.ErrNotFound, name)
	}
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM resources WHERE api_group = $1 AND version = $2 AND plural = $3`, row.Group, row.Version, row.Plural); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM crds WHERE name = $1`, name); err != nil {
		return err
	}

	return tx.Commit()
}

// ListCRDs returns all stored definitions ordered by name.
func (s *Store) ListCRDs(ctx context.Context) ([]v1.CustomResourceDefinition, error) {
	var rows []crdRow
	if err := s.db.SelectContext(ctx, &rows, `
		SELECT name, api_group, version, kind, plural, short_names, schema, scope, created_at
		FROM crds ORDER BY name`); err != nil {
		return nil, err
	}

	out := make([]v1.CustomResourceDefinition, 0, len(rows))
	for _, row := range rows {
		crd, err := decodeCRD(row)
		if err != nil {
			return nil, err
		}
		out = append(out, *crd)
	}
	return out, nil
}

// ListVersions returns the distinct versions declared for a group.
func (s *Store) ListVersions(ctx context.Context, group string) ([]string, error) {
	var out []string
	err := s.db.SelectContext(ctx, &out, `SELECT DISTINCT version FROM crds WHERE api_group = $1 ORDER BY version`, group)
	return out, err
}

// CreateResource stores a new instance of a declared kind.
func (s *Store) CreateResource(ctx context.Context, r *xresource.Resource) error {
	var exists bool
	if err := s.db.GetContext(ctx, &exists, `
		SELECT EXISTS (SELECT 1 FROM crds WHERE api_group = $1 AND version = $2 AND plural = $3)`,
		r.Group, r.Version, r.Plural); err != nil {
		return err
	}
	if !exists {
		return errors.Wrapf(store.ErrUnknownKind, "%s/%s, Resource=%s", r.Group, r.Version, r.Plural)
	}

	if r.Name == "" {
		name, err := s.generateName(ctx, r)
		if err != nil {
			return err
		}
		r.Name = name
	}

	spec, err := json.Marshal(orEmpty(r.Spec))
	if err != nil {
		return errors.Wrap(err, errEncode)
	}

	r.UID = ktypes.UID(uuid.NewString())
	r.CreationTimestamp = metav1.NewTime(s.clock.Now())

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO resources (id, api_group, version, plural, kind, namespace, name, spec, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		string(r.UID), r.Group, r.Version, r.Plural, r.Kind, nullable(r.Namespace), r.Name, spec, r.CreationTimestamp.Time)

	if isUniqueViolation(err) {
		return errors.Wrap(store.ErrAlreadyExists, r.Key().String())
	}
	return err
}

// GetResource returns the instance with the supplied key.
func (s *Store) GetResource(ctx context.Context, key xresource.Key) (*xresource.Resource, error) {
	var row resourceRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, api_group, version, plural, kind, namespace, name, spec, status, created_at
		FROM resources
		WHERE api_group = $1 AND version = $2 AND plural = $3 AND name = $4 AND COALESCE(namespace, '') = $5`,
		key.Group, key.Version, key.Plural, key.Name, key.Namespace)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrap(store.ErrNotFound, key.String())
	}
	if err != nil {
		return nil, err
	}
	return decodeResource(row)
}

// ListResources returns instances matching the query.
func (s *Store) ListResources(ctx context.Context, q store.ResourceQuery) ([]xresource.Resource, error) {
	query := `
		SELECT id, api_group, version, plural, kind, namespace, name, spec, status, created_at
		FROM resources WHERE api_group = :api_group`
	args := map[string]any{"api_group": q.Group}

	if q.Kind != "" {
		query += ` AND kind = :kind`
		args["kind"] = q.Kind
	}
	if q.Plural != "" {
		query += ` AND plural = :plural`
		args["plural"] = q.Plural
	}
	if q.ClusterOnly {
		query += ` AND namespace IS NULL`
	} else if q.Namespace != "" {
		query += ` AND namespace = :namespace`
		args["namespace"] = q.Namespace
	}
	query += ` ORDER BY COALESCE(namespace, ''), name`

	rows, err := s.db.NamedQueryContext(ctx, query, args)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck // Read-only cursor.

	var out []xresource.Resource
	for rows.Next() {
		var row resourceRow
		if err := rows.StructScan(&row); err != nil {
			return nil, errors.Wrap(err, errDecode)
		}
		r, err := decodeResource(row)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// DeleteResource removes an instance and returns its last stored form.
func (s *Store) DeleteResource(ctx context.Context, key xresource.Key) (*xresource.Resource, error) {
	r, err := s.GetResource(ctx, key)
	if err != nil {
		return nil, err
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM resources WHERE id = $1`, string(r.UID)); err != nil {
		return nil, err
	}
	return r, nil
}

// PatchResourceSpec overlays the partial spec onto the stored spec. The merge
// is computed in SQL with jsonb concatenation, which is exactly a top-level
// key overlay.
func (s *Store) PatchResourceSpec(ctx context.Context, key xresource.Key, partial map[string]any) (*xresource.Resource, error) {
	patch, err := json.Marshal(orEmpty(partial))
	if err != nil {
		return nil, errors.Wrap(err, errEncode)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE resources SET spec = spec || $1::jsonb
		WHERE api_group = $2 AND version = $3 AND plural = $4 AND name = $5 AND COALESCE(namespace, '') = $6`,
		patch, key.Group, key.Version, key.Plural, key.Name, key.Namespace)
	if err != nil {
		return nil, err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, errors.Wrap(store.ErrNotFound, key.String())
	}

	return s.GetResource(ctx, key)
}

// SetStatus overwrites the instance's status.
func (s *Store) SetStatus(ctx context.Context, key xresource.Key, status map[string]any) error {
	encoded, err := json.Marshal(orEmpty(status))
	if err != nil {
		return errors.Wrap(err, errEncode)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE resources SET status = $1::jsonb
		WHERE api_group = $2 AND version = $3 AND plural = $4 AND name = $5 AND COALESCE(namespace, '') = $6`,
		encoded, key.Group, key.Version, key.Plural, key.Name, key.Namespace)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.Wrap(store.ErrNotFound, key.String())
	}
	return nil
}

// QueryPending returns instances of the kind whose status state is Pending.
func (s *Store) QueryPending(ctx context.Context, group, kind string) ([]xresource.Resource, error) {
	var rows []resourceRow
	if err := s.db.SelectContext(ctx, &rows, `
		SELECT id, api_group, version, plural, kind, namespace, name, spec, status, created_at
		FROM resources
		WHERE api_group = $1 AND kind = $2 AND status ->> 'state' = 'Pending'
		ORDER BY COALESCE(namespace, ''), name`, group, kind); err != nil {
		return nil, err
	}

	out := make([]xresource.Resource, 0, len(rows))
	for _, row := range rows {
		r, err := decodeResource(row)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, nil
}

func (s *Store) generateName(ctx context.Context, r *xresource.Resource) (string, error) {
	if r.GenerateName == "" {
		return uuid.NewString(), nil
	}

	for range maxGenerateTries {
		name := s.namer.GenerateName(r.GenerateName)
		key := r.Key()
		key.Name = name
		_, err := s.GetResource(ctx, key)
		if store.IsNotFound(err) {
			return name, nil
		}
		if err != nil {
			return "", err
		}
	}
	return "", errors.New(errGenerateName)
}

func decodeCRD(row crdRow) (*v1.CustomResourceDefinition, error) {
	crd := &v1.CustomResourceDefinition{
		Spec: v1.CustomResourceDefinitionSpec{
			Group:   row.Group,
			Version: row.Version,
			Kind:    row.Kind,
			Plural:  row.Plural,
			Scope:   v1.ResourceScope(row.Scope),
		},
	}
	crd.APIVersion = v1.APIVersion
	crd.Kind = v1.CustomResourceDefinitionKind
	crd.Name = row.Name
	if row.CreatedAt.Valid {
		crd.CreationTimestamp = metav1.NewTime(row.CreatedAt.Time)
	}
	if len(row.ShortNames) > 0 {
		if err := json.Unmarshal(row.ShortNames, &crd.Spec.ShortNames); err != nil {
			return nil, errors.Wrap(err, errDecode)
		}
	}
	if len(row.Schema) > 0 {
		crd.Spec.Schema = runtime.RawExtension{Raw: row.Schema}
	}
	return crd, nil
}

func decodeResource(row resourceRow) (*xresource.Resource, error) {
	r := &xresource.Resource{
		Group:   row.Group,
		Version: row.Version,
		Plural:  row.Plural,
	}
	r.TypeMeta.Kind = row.Kind
	r.TypeMeta.APIVersion = row.Group + "/" + row.Version
	r.Name = row.Name
	r.Namespace = row.Namespace.String
	r.UID = ktypes.UID(row.ID)
	if row.CreatedAt.Valid {
		r.CreationTimestamp = metav1.NewTime(row.CreatedAt.Time)
	}

	if len(row.Spec) > 0 {
		if err := json.Unmarshal(row.Spec, &r.Spec); err != nil {
			return nil, errors.Wrap(err, errDecode)
		}
	}
	if len(row.Status) > 0 {
		if err := json.Unmarshal(row.Status, &r.Status); err != nil {
			return nil, errors.Wrap(err, errDecode)
		}
	}
	return r, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
