package cache

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// OpStatus is a pending operation's replay state.
type OpStatus string

const (
	OpPending   OpStatus = "pending"
	OpSyncing   OpStatus = "syncing"
	OpCompleted OpStatus = "completed"
	OpFailed    OpStatus = "failed"
)

// Operation names understood by the sync engine's replay.
const (
	OpAddFeature    = "add_feature"
	OpUpdateFeature = "update_feature"
	OpDeleteFeature = "delete_feature"
)

// PendingOperation is one queued mutation awaiting replay against the
// workstation.
type PendingOperation struct {
	ID           int64     `json:"id"`
	ProjectName  string    `json:"project_name"`
	Operation    string    `json:"operation"`
	PayloadJSON  string    `json:"payload_json"`
	CreatedAt    time.Time `json:"created_at"`
	Status       OpStatus  `json:"status"`
	ErrorMessage string    `json:"error_message,omitempty"`
}

// Payload decodes the operation payload into v.
func (op *PendingOperation) Payload(v any) error {
	return json.Unmarshal([]byte(op.PayloadJSON), v)
}

// QueueOperation records a mutation for later replay and returns its
// assigned identifier.
func (db *DB) QueueOperation(projectName, operation string, payload any) (int64, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal payload: %w", err)
	}
	res, err := db.conn.Exec(`
		INSERT INTO pending_operations (project_name, operation, payload_json, created_at, status)
		VALUES (?, ?, ?, ?, ?)
	`, projectName, operation, string(data), time.Now().UTC(), OpPending)
	if err != nil {
		return 0, fmt.Errorf("failed to queue operation: %w", err)
	}
	return res.LastInsertId()
}

// GetPending returns un-replayed operations ordered by creation time.
// An empty projectName selects all projects.
func (db *DB) GetPending(projectName string) ([]*PendingOperation, error) {
	query := `
		SELECT id, project_name, operation, payload_json, created_at, status, error_message
		FROM pending_operations
		WHERE status IN (?, ?)
	`
	args := []any{OpPending, OpSyncing}
	if projectName != "" {
		query += " AND project_name = ?"
		args = append(args, projectName)
	}
	query += " ORDER BY created_at, id"

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get pending operations: %w", err)
	}
	defer rows.Close()
	return scanOperations(rows)
}

func scanOperations(rows *sql.Rows) ([]*PendingOperation, error) {
	var ops []*PendingOperation
	for rows.Next() {
		op := &PendingOperation{}
		var errMsg sql.NullString
		if err := rows.Scan(&op.ID, &op.ProjectName, &op.Operation, &op.PayloadJSON,
			&op.CreatedAt, &op.Status, &errMsg); err != nil {
			return nil, err
		}
		op.ErrorMessage = errMsg.String
		ops = append(ops, op)
	}
	return ops, rows.Err()
}

// MarkOperationSyncing flags an operation as in-flight.
func (db *DB) MarkOperationSyncing(id int64) error {
	return db.setOperationStatus(id, OpSyncing, "")
}

// MarkOperationCompleted flags an operation as replayed.
func (db *DB) MarkOperationCompleted(id int64) error {
	return db.setOperationStatus(id, OpCompleted, "")
}

// MarkOperationFailed flags an operation as failed with the error text.
func (db *DB) MarkOperationFailed(id int64, message string) error {
	return db.setOperationStatus(id, OpFailed, message)
}

func (db *DB) setOperationStatus(id int64, status OpStatus, message string) error {
	var errMsg any
	if message != "" {
		errMsg = message
	}
	res, err := db.conn.Exec(`
		UPDATE pending_operations SET status = ?, error_message = ? WHERE id = ?
	`, status, errMsg, id)
	if err != nil {
		return fmt.Errorf("failed to mark operation %d %s: %w", id, status, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("operation %d not found", id)
	}
	return nil
}

// ClearCompleted deletes replayed operations and returns the count.
func (db *DB) ClearCompleted() (int64, error) {
	res, err := db.conn.Exec("DELETE FROM pending_operations WHERE status = ?", OpCompleted)
	if err != nil {
		return 0, fmt.Errorf("failed to clear completed operations: %w", err)
	}
	return res.RowsAffected()
}
