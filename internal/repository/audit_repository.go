package repository

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-sales-proposals/internal/platform/database"
	"github.com/pesio-ai/be-sales-proposals/internal/platform/errors"
)

// AuditRepository appends and reads immutable proposal audit log entries.
type AuditRepository struct {
	db *database.DB
}

// NewAuditRepository creates a new AuditRepository.
func NewAuditRepository(db *database.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Append inserts one audit entry. This is the only mutation exposed.
func (r *AuditRepository) Append(ctx context.Context, entry *AuditEntry) error {
	var metadataJSON []byte
	if entry.Metadata != nil {
		var err error
		metadataJSON, err = json.Marshal(entry.Metadata)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to marshal audit metadata")
		}
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}

	query := `
		INSERT INTO proposal_audit_log
		    (id, proposal_id, workflow_id, step_id, entity_id,
		     action, performed_by, performed_at,
		     status_before, status_after,
		     metadata)
		VALUES ($1, $2, $3, $4, $5,
		        $6, $7, $8,
		        $9, $10,
		        $11)
	`

	_, err := r.db.Exec(ctx, query,
		entry.ID,
		entry.ProposalID,
		entry.WorkflowID,
		entry.StepID,
		entry.EntityID,
		entry.Action,
		entry.PerformedBy,
		entry.PerformedAt,
		entry.StatusBefore,
		entry.StatusAfter,
		metadataJSON,
	)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to append audit entry")
	}
	return nil
}

// ListByProposalID returns the full audit trail for a proposal, oldest first.
func (r *AuditRepository) ListByProposalID(ctx context.Context, proposalID string) ([]*AuditEntry, error) {
	query := `
		SELECT id, proposal_id, workflow_id, step_id, entity_id,
		       action, performed_by, performed_at,
		       status_before, status_after,
		       metadata
		FROM proposal_audit_log
		WHERE proposal_id = $1
		ORDER BY performed_at ASC
	`

	rows, err := r.db.Query(ctx, query, proposalID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get audit log")
	}
	defer rows.Close()

	return r.scanRows(rows)
}

// ── scan helpers ──────────────────────────────────────────────────────────────

func (r *AuditRepository) scanRows(rows pgx.Rows) ([]*AuditEntry, error) {
	entries := []*AuditEntry{}
	for rows.Next() {
		entry, err := r.scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to read audit log")
	}
	return entries, nil
}

func (r *AuditRepository) scanEntry(sc rowScanner) (*AuditEntry, error) {
	entry := &AuditEntry{}
	var metadataJSON []byte

	err := sc.Scan(
		&entry.ID,
		&entry.ProposalID,
		&entry.WorkflowID,
		&entry.StepID,
		&entry.EntityID,
		&entry.Action,
		&entry.PerformedBy,
		&entry.PerformedAt,
		&entry.StatusBefore,
		&entry.StatusAfter,
		&metadataJSON,
	)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan audit entry")
	}

	if metadataJSON != nil {
		if err := json.Unmarshal(metadataJSON, &entry.Metadata); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to unmarshal audit metadata")
		}
	}

	return entry, nil
}
