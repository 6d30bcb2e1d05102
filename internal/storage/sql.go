package storage

import (
	_ "embed"
)

//go:embed schema.sql
var initSchemaSQL string

const (
	initIndexesSQL = `
CREATE INDEX IF NOT EXISTS idx_uplinks_session_time ON uplinks (session_id, received_at);
CREATE INDEX IF NOT EXISTS idx_receptions_uplink ON receptions (uplink_id);`

	insertSessionSQL = `
INSERT INTO sessions (
                      start_time,
                      source,
                      description,
                      config)
VALUES (CURRENT_TIMESTAMP, ?, ?, ?)`

	selectSessionSQL = `
SELECT
    id,
    start_time,
    source,
    description,
    config
FROM sessions
WHERE
    id = ?`

	selectSessionsSQL = `
SELECT
    id,
    start_time,
    source,
    description,
    config
FROM sessions
ORDER BY start_time, id`

	insertUplinkSQL = `
INSERT OR IGNORE INTO uplinks (session_id,
                               received_at,
                               device_id,
                               frequency,
                               channel,
                               message)
VALUES (?, ?, ?, ?, ?, ?)`

	insertReceptionSQL = `
INSERT INTO receptions (uplink_id,
                        gateway_id,
                        eui,
                        rssi)
VALUES (?, ?, ?, ?)`

	selectUplinksSQL = `
SELECT
    message
FROM uplinks
WHERE
    session_id = ?
    AND received_at >= ?
    AND received_at <= ?
ORDER BY received_at, id`

	selectGatewayStatsSQL = `
SELECT
    r.gateway_id,
    COUNT(*),
    AVG(r.rssi),
    MIN(r.rssi),
    MAX(r.rssi)
FROM receptions r
    JOIN uplinks u ON u.id = r.uplink_id
WHERE
    u.session_id = ?
GROUP BY r.gateway_id
ORDER BY r.gateway_id`
)
