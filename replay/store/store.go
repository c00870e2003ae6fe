// Package store persists fitted encoding models in a SQLite database.
// Models are kept as opaque serialized blobs keyed by their ID.
package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/LdDl/replay-go/replay/likelihoods"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

var (
	ErrModelNotFound = errors.New("model not found")
)

const schema = `
	CREATE TABLE IF NOT EXISTS encoding_models (
		model_id          TEXT PRIMARY KEY,
		name              TEXT NOT NULL,
		algorithm         TEXT NOT NULL,
		num_bins          BIGINT NOT NULL,
		payload           BLOB NOT NULL,
		created_at_ns     BIGINT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_encoding_models_name ON encoding_models(name);
`

// ModelInfo describes a stored model without decoding it
type ModelInfo struct {
	ID        uuid.UUID
	Name      string
	Algorithm string
	NumBins   int
	Size      int
	CreatedAt time.Time
}

// Store is a model store backed by one SQLite file
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (creating if needed) the store at path
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrapf(err, "can't open model store %q", path)
	}
	// A single connection keeps ":memory:" databases shared between calls
	db.SetMaxOpenConns(1)
	pragmas := []string{
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA temp_store=MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, errors.Wrapf(err, "can't apply %q", pragma)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "can't create model store schema")
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close releases the database
func (s *Store) Close() error {
	return s.db.Close()
}

// Save serializes the model and stores it under its ID. Saving a model with
// an existing ID replaces the stored copy.
func (s *Store) Save(ctx context.Context, name string, model likelihoods.EncodingModel) (ModelInfo, error) {
	payload, err := likelihoods.MarshalModel(model)
	if err != nil {
		return ModelInfo{}, errors.Wrap(err, "can't serialize model")
	}
	info := ModelInfo{
		ID:        model.ID(),
		Name:      name,
		Algorithm: model.Algorithm(),
		NumBins:   model.NumBins(),
		Size:      len(payload),
		CreatedAt: s.now().UTC(),
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO encoding_models (model_id, name, algorithm, num_bins, payload, created_at_ns)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(model_id) DO UPDATE SET
			name = excluded.name,
			algorithm = excluded.algorithm,
			num_bins = excluded.num_bins,
			payload = excluded.payload,
			created_at_ns = excluded.created_at_ns
	`, info.ID.String(), info.Name, info.Algorithm, info.NumBins, payload, info.CreatedAt.UnixNano())
	if err != nil {
		return ModelInfo{}, errors.Wrapf(err, "can't save model %s", info.ID)
	}
	return info, nil
}

// Load decodes the model stored under id
func (s *Store) Load(ctx context.Context, id uuid.UUID) (likelihoods.EncodingModel, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM encoding_models WHERE model_id = ?`, id.String()).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(ErrModelNotFound, "id %s", id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "can't load model %s", id)
	}
	model, err := likelihoods.UnmarshalModel(payload)
	if err != nil {
		return nil, errors.Wrapf(err, "stored model %s is unreadable", id)
	}
	return model, nil
}

// List returns every stored model, oldest first
func (s *Store) List(ctx context.Context) ([]ModelInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT model_id, name, algorithm, num_bins, length(payload), created_at_ns
		FROM encoding_models
		ORDER BY created_at_ns, model_id
	`)
	if err != nil {
		return nil, errors.Wrap(err, "can't list models")
	}
	defer rows.Close()

	infos := make([]ModelInfo, 0)
	for rows.Next() {
		var (
			rawID     string
			createdNs int64
			info      ModelInfo
		)
		if err := rows.Scan(&rawID, &info.Name, &info.Algorithm, &info.NumBins, &info.Size, &createdNs); err != nil {
			return nil, errors.Wrap(err, "can't scan model row")
		}
		info.ID, err = uuid.Parse(rawID)
		if err != nil {
			return nil, errors.Wrapf(err, "stored model id %q", rawID)
		}
		info.CreatedAt = time.Unix(0, createdNs).UTC()
		infos = append(infos, info)
	}
	return infos, errors.Wrap(rows.Err(), "can't iterate models")
}

// Delete removes the model stored under id
func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM encoding_models WHERE model_id = ?`, id.String())
	if err != nil {
		return errors.Wrapf(err, "can't delete model %s", id)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "can't count deleted models")
	}
	if n == 0 {
		return errors.Wrapf(ErrModelNotFound, "id %s", id)
	}
	return nil
}
