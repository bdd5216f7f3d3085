package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"ctpy/internal/model"
)

const (
	tableModeDefinitions = "mode_definitions"
	tableClassifications = "classifications"
	tableSamples         = "individual_samples"
	tableClassified      = "classified_samples"
	tableGenerationStats = "pergeneration_stats"
	tableSimRunStats     = "persimrun_stats"
	tableTraitStats      = "pergeneration_stats_traits"
	tableExperiments     = "experiment_tracking"
)

var recordTables = []string{
	tableModeDefinitions,
	tableClassifications,
	tableSamples,
	tableClassified,
	tableGenerationStats,
	tableSimRunStats,
	tableTraitStats,
	tableExperiments,
}

// dialect captures the differences between the SQL backends.
type dialect struct {
	driver     string
	blobType   string
	positional bool
	// maxOpenConns caps the pool; zero leaves database/sql's default.
	maxOpenConns int
}

func (d dialect) rebind(query string) string {
	if !d.positional {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// row is the indexed envelope every record kind is stored in.
type row struct {
	id               string
	classificationID string
	runID            string
	dimensionality   int
	version          model.VersionedRecord
	payload          []byte
}

// SQLStore persists records as versioned JSON payloads with a few indexed key columns.
type SQLStore struct {
	dialect dialect
	dsn     string

	mu sync.RWMutex
	db *sql.DB
}

func (s *SQLStore) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dsn == "" {
		return fmt.Errorf("%s data source is required", s.dialect.driver)
	}
	if s.db != nil {
		return nil
	}

	db, err := sql.Open(s.dialect.driver, s.dsn)
	if err != nil {
		return err
	}
	if s.dialect.maxOpenConns > 0 {
		db.SetMaxOpenConns(s.dialect.maxOpenConns)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return err
	}

	if err := s.createTables(ctx, db); err != nil {
		_ = db.Close()
		return err
	}

	s.db = db
	return nil
}

func (s *SQLStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *SQLStore) createTables(ctx context.Context, db *sql.DB) error {
	for _, name := range recordTables {
		ddl := fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				id TEXT PRIMARY KEY,
				classification_id TEXT NOT NULL DEFAULT '',
				run_id TEXT NOT NULL DEFAULT '',
				dimensionality INTEGER NOT NULL DEFAULT 0,
				schema_version INTEGER NOT NULL,
				codec_version INTEGER NOT NULL,
				payload %s NOT NULL
			)`, name, s.dialect.blobType)
		if _, err := db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("create table %s: %w", name, err)
		}
		index := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_keys ON %s (classification_id, run_id, dimensionality)`, name, name)
		if _, err := db.ExecContext(ctx, index); err != nil {
			return fmt.Errorf("create index on %s: %w", name, err)
		}
	}
	return nil
}

func (s *SQLStore) getDB() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, errors.New("store is not initialized")
	}
	return s.db, nil
}

func (s *SQLStore) saveRows(ctx context.Context, tableName string, rows []row) error {
	if len(rows) == 0 {
		return nil
	}
	db, err := s.getDB()
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, s.dialect.rebind(fmt.Sprintf(`
		INSERT INTO %s (id, classification_id, run_id, dimensionality, schema_version, codec_version, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			classification_id = excluded.classification_id,
			run_id = excluded.run_id,
			dimensionality = excluded.dimensionality,
			schema_version = excluded.schema_version,
			codec_version = excluded.codec_version,
			payload = excluded.payload
	`, tableName)))
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx, r.id, r.classificationID, r.runID, r.dimensionality,
			r.version.SchemaVersion, r.version.CodecVersion, r.payload); err != nil {
			return fmt.Errorf("save %s %s: %w", tableName, r.id, err)
		}
	}
	return tx.Commit()
}

func (s *SQLStore) getPayload(ctx context.Context, tableName, id string) ([]byte, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, false, err
	}

	var payload []byte
	query := s.dialect.rebind(fmt.Sprintf(`SELECT payload FROM %s WHERE id = ?`, tableName))
	err = db.QueryRowContext(ctx, query, id).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return payload, true, nil
}

func (s *SQLStore) listPayloads(ctx context.Context, tableName string, filter Filter) ([][]byte, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	var (
		where []string
		args  []any
	)
	if filter.ClassificationID != "" {
		where = append(where, "classification_id = ?")
		args = append(args, filter.ClassificationID)
	}
	if filter.RunID != "" {
		where = append(where, "run_id = ?")
		args = append(args, filter.RunID)
	}
	if filter.Dimensionality != 0 {
		where = append(where, "dimensionality = ?")
		args = append(args, filter.Dimensionality)
	}
	query := fmt.Sprintf(`SELECT payload FROM %s`, tableName)
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id"

	rows, err := db.QueryContext(ctx, s.dialect.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out [][]byte
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		out = append(out, payload)
	}
	return out, rows.Err()
}

// updatePayload rewrites one record inside a transaction.
func updatePayload[T versioned](ctx context.Context, s *SQLStore, tableName, id string, mutate func(*T)) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var payload []byte
	err = tx.QueryRowContext(ctx, s.dialect.rebind(fmt.Sprintf(`SELECT payload FROM %s WHERE id = ?`, tableName)), id).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %s %s", ErrNotFound, tableName, id)
		}
		return err
	}
	record, err := DecodeRecord[T](payload)
	if err != nil {
		return fmt.Errorf("decode %s %s: %w", tableName, id, err)
	}
	mutate(&record)
	updated, err := EncodeRecord(record)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, s.dialect.rebind(fmt.Sprintf(`UPDATE %s SET payload = ? WHERE id = ?`, tableName)), updated, id); err != nil {
		return err
	}
	return tx.Commit()
}

func saveRecords[T versioned](ctx context.Context, s *SQLStore, tableName string, records []T, key func(T) row) error {
	rows := make([]row, 0, len(records))
	for _, record := range records {
		payload, err := EncodeRecord(record)
		if err != nil {
			return err
		}
		r := key(record)
		r.version = record.Version()
		r.payload = payload
		rows = append(rows, r)
	}
	return s.saveRows(ctx, tableName, rows)
}

func getRecord[T versioned](ctx context.Context, s *SQLStore, tableName, id string) (T, bool, error) {
	var zero T
	payload, ok, err := s.getPayload(ctx, tableName, id)
	if err != nil || !ok {
		return zero, ok, err
	}
	record, err := DecodeRecord[T](payload)
	if err != nil {
		return zero, false, fmt.Errorf("decode %s %s: %w", tableName, id, err)
	}
	return record, true, nil
}

func listRecords[T versioned](ctx context.Context, s *SQLStore, tableName string, filter Filter) ([]T, error) {
	payloads, err := s.listPayloads(ctx, tableName, filter)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(payloads))
	for _, payload := range payloads {
		record, err := DecodeRecord[T](payload)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", tableName, err)
		}
		out = append(out, record)
	}
	return out, nil
}

func (s *SQLStore) SaveModeDefinitions(ctx context.Context, defs []model.ModeDefinition) error {
	return saveRecords(ctx, s, tableModeDefinitions, defs, func(d model.ModeDefinition) row {
		return row{id: d.ID}
	})
}

func (s *SQLStore) GetModeDefinition(ctx context.Context, id string) (model.ModeDefinition, bool, error) {
	return getRecord[model.ModeDefinition](ctx, s, tableModeDefinitions, id)
}

func (s *SQLStore) ListModeDefinitions(ctx context.Context) ([]model.ModeDefinition, error) {
	return listRecords[model.ModeDefinition](ctx, s, tableModeDefinitions, Filter{})
}

func (s *SQLStore) SaveClassifications(ctx context.Context, classifications []model.Classification) error {
	return saveRecords(ctx, s, tableClassifications, classifications, func(c model.Classification) row {
		return row{id: c.ID, classificationID: c.ID, dimensionality: c.Dimensionality}
	})
}

func (s *SQLStore) GetClassification(ctx context.Context, id string) (model.Classification, bool, error) {
	return getRecord[model.Classification](ctx, s, tableClassifications, id)
}

func (s *SQLStore) ListClassifications(ctx context.Context, filter Filter) ([]model.Classification, error) {
	filter.RunID = ""
	return listRecords[model.Classification](ctx, s, tableClassifications, filter)
}

func (s *SQLStore) SaveIndividualSamples(ctx context.Context, samples []model.IndividualSample) error {
	return saveRecords(ctx, s, tableSamples, samples, func(sample model.IndividualSample) row {
		return row{id: sample.ID, runID: sample.RunID, dimensionality: sample.Dimensionality}
	})
}

func (s *SQLStore) ListIndividualSamples(ctx context.Context, filter Filter) ([]model.IndividualSample, error) {
	filter.ClassificationID = ""
	return listRecords[model.IndividualSample](ctx, s, tableSamples, filter)
}

func (s *SQLStore) ListRunIDs(ctx context.Context) ([]string, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, fmt.Sprintf(`SELECT DISTINCT run_id FROM %s ORDER BY run_id`, tableSamples))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *SQLStore) SaveClassifiedSamples(ctx context.Context, samples []model.ClassifiedSample) error {
	return saveRecords(ctx, s, tableClassified, samples, func(sample model.ClassifiedSample) row {
		return row{id: sample.ID, classificationID: sample.ClassificationID, runID: sample.RunID, dimensionality: sample.Dimensionality}
	})
}

func (s *SQLStore) ListClassifiedSamples(ctx context.Context, filter Filter) ([]model.ClassifiedSample, error) {
	return listRecords[model.ClassifiedSample](ctx, s, tableClassified, filter)
}

func (s *SQLStore) SaveGenerationStats(ctx context.Context, stats []model.GenerationStats) error {
	return saveRecords(ctx, s, tableGenerationStats, stats, func(st model.GenerationStats) row {
		return row{id: st.ID, classificationID: st.ClassificationID, runID: st.RunID, dimensionality: st.Dimensionality}
	})
}

func (s *SQLStore) ListGenerationStats(ctx context.Context, filter Filter) ([]model.GenerationStats, error) {
	return listRecords[model.GenerationStats](ctx, s, tableGenerationStats, filter)
}

func (s *SQLStore) UpdateGenerationStatsNeutrality(ctx context.Context, id string, probability float64) error {
	return updatePayload(ctx, s, tableGenerationStats, id, func(st *model.GenerationStats) {
		st.ClassNeutrality = &probability
	})
}

func (s *SQLStore) SaveSimRunStats(ctx context.Context, stats []model.SimRunStats) error {
	return saveRecords(ctx, s, tableSimRunStats, stats, func(st model.SimRunStats) row {
		return row{id: st.ID, classificationID: st.ClassificationID, runID: st.RunID, dimensionality: st.Dimensionality}
	})
}

func (s *SQLStore) ListSimRunStats(ctx context.Context, filter Filter) ([]model.SimRunStats, error) {
	return listRecords[model.SimRunStats](ctx, s, tableSimRunStats, filter)
}

func (s *SQLStore) SaveTraitStats(ctx context.Context, stats []model.TraitStats) error {
	return saveRecords(ctx, s, tableTraitStats, stats, func(st model.TraitStats) row {
		return row{id: st.ID, runID: st.RunID, dimensionality: st.Dimensionality}
	})
}

func (s *SQLStore) ListTraitStats(ctx context.Context, filter Filter) ([]model.TraitStats, error) {
	filter.ClassificationID = ""
	return listRecords[model.TraitStats](ctx, s, tableTraitStats, filter)
}

func (s *SQLStore) UpdateTraitStatsNeutrality(ctx context.Context, id string, loci []float64, mean float64) error {
	return updatePayload(ctx, s, tableTraitStats, id, func(st *model.TraitStats) {
		st.LociNeutrality = append([]float64(nil), loci...)
		st.MeanNeutrality = &mean
	})
}

func (s *SQLStore) SaveExperiment(ctx context.Context, experiment model.ExperimentTracking) error {
	return saveRecords(ctx, s, tableExperiments, []model.ExperimentTracking{experiment}, func(e model.ExperimentTracking) row {
		return row{id: e.Name}
	})
}

func (s *SQLStore) GetExperiment(ctx context.Context, name string) (model.ExperimentTracking, bool, error) {
	return getRecord[model.ExperimentTracking](ctx, s, tableExperiments, name)
}
