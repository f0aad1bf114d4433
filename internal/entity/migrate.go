package entity

import (
	"context"
	"fmt"
	"time"

	"github.com/strixun/edgecore/internal/kv"
)

// LegacySource is the read side of a legacy key space being retired. The
// Postgres-backed implementation (pgsource.go) reads from the flat
// legacy_kv table; a kv.Store-backed implementation can equally serve a
// legacy prefix still living in KV.
type LegacySource interface {
	// Scan returns up to limit (key, value) pairs with the given prefix,
	// continuing from cursor.
	Scan(ctx context.Context, prefix, cursor string, limit int) (pairs []LegacyPair, nextCursor string, complete bool, err error)
	// Delete removes the legacy key. Only called when deleteOld is set.
	Delete(ctx context.Context, key string) error
}

// LegacyPair is one raw (key, value) pair read from a LegacySource.
type LegacyPair struct {
	Key   string
	Value []byte
}

// TransformResult is what a service-provided Transform returns for a
// legacy pair it wants migrated. A nil *TransformResult (transform returns
// nil, nil) means skip.
type TransformResult struct {
	Service    string
	EntityType string
	ID         string
	Data       any
	// Indexes lists secondary indexes to merge for the migrated entity.
	Indexes []IndexMerge
}

// IndexMerge describes one index entry to add for a migrated entity.
type IndexMerge struct {
	Relationship string
	Parent       string
	ChildID      string // child ID to index; for Single, empty means the entity's ID
	Single       bool   // true: IndexSetSingle(parent->ChildID or ID if ChildID empty)
}

// TransformFunc maps a legacy (key, value) pair to a TransformResult, or
// (nil, nil) to skip it.
type TransformFunc func(ctx context.Context, pair LegacyPair) (*TransformResult, error)

// MigrationStatus is the lifecycle state of a MigrationRecord.
type MigrationStatus string

const (
	MigrationRunning   MigrationStatus = "running"
	MigrationCompleted MigrationStatus = "completed"
	MigrationFailed    MigrationStatus = "failed"
)

// MigrationRecord tracks progress of one migration run, stored at
// "migration:{id}".
type MigrationRecord struct {
	ID             string          `json:"id"`
	Service        string          `json:"service"`
	Prefix         string          `json:"prefix"`
	Status         MigrationStatus `json:"status"`
	ProcessedCount int             `json:"processedCount"`
	ErrorCount     int             `json:"errorCount"`
	Errors         []string        `json:"errors"` // truncated to maxTrackedErrors
	DryRun         bool            `json:"dryRun"`
	StartedAt      time.Time       `json:"startedAt"`
	FinishedAt     *time.Time      `json:"finishedAt,omitempty"`
}

const (
	migrationBatchSize  = 1000
	maxTrackedErrors    = 20
	migrationRecordTTL  = 30 * 24 * time.Hour
)

// Migrator runs the legacy-key migration engine against a Store.
type Migrator struct {
	store *Store
	kv    kv.Store
}

// NewMigrator creates a Migrator backed by the given Store (for writing
// migrated entities/indexes) and kv.Store (for MigrationRecord bookkeeping;
// normally the same backend as store).
func NewMigrator(store *Store, kvStore kv.Store) *Migrator {
	return &Migrator{store: store, kv: kvStore}
}

// Run migrates all keys with prefix from src, applying transform to each
// raw pair in batches of up to 1000. In dry-run mode no writes occur beyond
// the MigrationRecord itself. deleteOld, if true and not dryRun, deletes
// each successfully migrated legacy key.
func (m *Migrator) Run(ctx context.Context, id, service, prefix string, src LegacySource, transform TransformFunc, dryRun, deleteOld bool) (*MigrationRecord, error) {
	rec := &MigrationRecord{
		ID:        id,
		Service:   service,
		Prefix:    prefix,
		Status:    MigrationRunning,
		DryRun:    dryRun,
		StartedAt: time.Now().UTC(),
	}
	if err := m.save(ctx, rec); err != nil {
		return nil, fmt.Errorf("saving initial migration record: %w", err)
	}

	cursor := ""
	for {
		pairs, nextCursor, complete, err := src.Scan(ctx, prefix, cursor, migrationBatchSize)
		if err != nil {
			return nil, fmt.Errorf("scanning legacy prefix %q: %w", prefix, err)
		}

		for _, pair := range pairs {
			if err := m.migrateOne(ctx, pair, transform, src, dryRun, deleteOld); err != nil {
				rec.ErrorCount++
				if len(rec.Errors) < maxTrackedErrors {
					rec.Errors = append(rec.Errors, fmt.Sprintf("%s: %v", pair.Key, err))
				}
				continue
			}
			rec.ProcessedCount++
		}

		if complete {
			break
		}
		cursor = nextCursor
	}

	finished := time.Now().UTC()
	rec.FinishedAt = &finished
	if rec.ErrorCount > 0 {
		rec.Status = MigrationFailed
	} else {
		rec.Status = MigrationCompleted
	}

	if err := m.save(ctx, rec); err != nil {
		return rec, fmt.Errorf("saving final migration record: %w", err)
	}
	return rec, nil
}

func (m *Migrator) migrateOne(ctx context.Context, pair LegacyPair, transform TransformFunc, src LegacySource, dryRun, deleteOld bool) error {
	result, err := transform(ctx, pair)
	if err != nil {
		return fmt.Errorf("transform: %w", err)
	}
	if result == nil {
		return nil // skip
	}

	if dryRun {
		return nil
	}

	if err := PutEntity(ctx, m.store, result.Service, result.EntityType, result.ID, result.Data); err != nil {
		return fmt.Errorf("writing migrated entity: %w", err)
	}

	for _, idx := range result.Indexes {
		if idx.Single {
			childID := idx.ChildID
			if childID == "" {
				childID = result.ID
			}
			if err := m.store.IndexSetSingle(ctx, result.Service, idx.Relationship, idx.Parent, childID); err != nil {
				return fmt.Errorf("merging single index: %w", err)
			}
			continue
		}
		if err := m.store.IndexAdd(ctx, result.Service, idx.Relationship, idx.Parent, idx.ChildID); err != nil {
			return fmt.Errorf("merging index: %w", err)
		}
	}

	if deleteOld {
		if err := src.Delete(ctx, pair.Key); err != nil {
			return fmt.Errorf("deleting legacy key: %w", err)
		}
	}

	return nil
}

func (m *Migrator) save(ctx context.Context, rec *MigrationRecord) error {
	return kv.PutJSON(ctx, m.kv, fmt.Sprintf("migration:%s", rec.ID), rec, kv.PutOptions{TTL: migrationRecordTTL})
}

// GetMigrationRecord loads a previously saved MigrationRecord by id.
func (m *Migrator) GetMigrationRecord(ctx context.Context, id string) (*MigrationRecord, bool, error) {
	var rec MigrationRecord
	ok, err := kv.GetJSON(ctx, m.kv, fmt.Sprintf("migration:%s", id), &rec)
	if err != nil || !ok {
		return nil, ok, err
	}
	return &rec, true, nil
}
