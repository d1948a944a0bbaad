package meta

import "database/sql"

// Connection is one recorded connection event.
type Connection struct {
	SessionID   string
	ConnectedAt int64 // epoch millis
	SelfJID     string
}

// Recorder is implemented by whatever stores connection records. The session
// lifecycle depends on this rather than on *DB so tests can substitute a
// fake.
type Recorder interface {
	RecordConnection(c *Connection) error
}

// RecordConnection appends a connection record for a session.
func (db *DB) RecordConnection(c *Connection) error {
	_, err := db.Exec(`
		INSERT INTO connections (session_id, connected_at, self_jid)
		VALUES (?, ?, ?)`,
		c.SessionID, c.ConnectedAt, c.SelfJID)
	return err
}

// LastConnection returns the most recent connection record for a session,
// or nil when none exists.
func (db *DB) LastConnection(sessionID string) (*Connection, error) {
	var c Connection
	err := db.QueryRow(`
		SELECT session_id, connected_at, self_jid
		FROM connections
		WHERE session_id = ?
		ORDER BY connected_at DESC
		LIMIT 1`, sessionID).
		Scan(&c.SessionID, &c.ConnectedAt, &c.SelfJID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ConnectionCount returns how many times a session has connected.
func (db *DB) ConnectionCount(sessionID string) (int64, error) {
	var count int64
	err := db.QueryRow(`SELECT COUNT(*) FROM connections WHERE session_id = ?`, sessionID).Scan(&count)
	return count, err
}
