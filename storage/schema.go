package storage

import "strings"

// Migrations returns the schema statements for a dialect, one statement per
// string. The two dialects share table and column names; only column types
// differ.
func Migrations(dialect string) []string {
	t := sqliteTypes
	if dialect == DialectPostgres {
		t = postgresTypes
	}
	stmts := make([]string, len(schema))
	for i, stmt := range schema {
		stmts[i] = t.Replace(stmt)
	}
	return stmts
}

var (
	sqliteTypes = strings.NewReplacer(
		"{id}", "TEXT",
		"{num}", "TEXT",
		"{ts}", "TIMESTAMP",
		"{serial}", "INTEGER PRIMARY KEY AUTOINCREMENT",
	)
	postgresTypes = strings.NewReplacer(
		"{id}", "UUID",
		"{num}", "NUMERIC(14,2)",
		"{ts}", "TIMESTAMPTZ",
		"{serial}", "BIGSERIAL PRIMARY KEY",
	)
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS lands (
		id          {id} PRIMARY KEY,
		name        TEXT NOT NULL UNIQUE,
		location    TEXT NOT NULL DEFAULT '',
		total_area  {num} NOT NULL DEFAULT 0,
		total_lots  INTEGER NOT NULL DEFAULT 0,
		available   INTEGER NOT NULL DEFAULT 0,
		lots_sold   INTEGER NOT NULL DEFAULT 0,
		created_at  {ts} NOT NULL,
		updated_at  {ts} NOT NULL,
		CHECK (available >= 0 AND lots_sold >= 0)
	)`,

	`CREATE TABLE IF NOT EXISTS lots (
		id            {id} PRIMARY KEY,
		land_id       {id} NOT NULL REFERENCES lands(id) ON DELETE CASCADE,
		block_number  TEXT NOT NULL,
		lot_number    TEXT NOT NULL,
		size          {num} NOT NULL DEFAULT 0,
		price_per_sqm {num} NOT NULL DEFAULT 0,
		total_amount  {num} NOT NULL DEFAULT 0,
		lot_type      TEXT NOT NULL DEFAULT '',
		status        TEXT NOT NULL DEFAULT 'available' CHECK (status IN ('available', 'reserved', 'sold')),
		created_at    {ts} NOT NULL,
		updated_at    {ts} NOT NULL,
		UNIQUE (land_id, block_number, lot_number)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_lots_land_status ON lots(land_id, status)`,

	`CREATE TABLE IF NOT EXISTS agents (
		id         {id} PRIMARY KEY,
		full_name  TEXT NOT NULL,
		email      TEXT NOT NULL DEFAULT '',
		phone      TEXT NOT NULL DEFAULT '',
		role       TEXT NOT NULL DEFAULT 'agent',
		created_at {ts} NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS clients (
		id             {id} PRIMARY KEY,
		first_name     TEXT NOT NULL,
		middle_name    TEXT NOT NULL DEFAULT '',
		last_name      TEXT NOT NULL,
		email          TEXT NOT NULL UNIQUE,
		contact        TEXT NOT NULL DEFAULT '',
		address        TEXT NOT NULL DEFAULT '',
		marital_status TEXT NOT NULL DEFAULT '',
		status         TEXT NOT NULL DEFAULT 'active',
		photo_ref      TEXT,
		created_at     {ts} NOT NULL,
		updated_at     {ts} NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS applications (
		id               {id} PRIMARY KEY,
		land_id          {id} NOT NULL REFERENCES lands(id),
		client_id        {id} NOT NULL,
		agent_dealer_id  {id} NOT NULL REFERENCES agents(id),
		appointment_date {ts} NOT NULL,
		status           TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending', 'approved', 'rejected')),
		rejection_note   TEXT,
		created_at       {ts} NOT NULL,
		updated_at       {ts} NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_applications_client_land ON applications(client_id, land_id, status)`,

	`CREATE TABLE IF NOT EXISTS application_lots (
		application_id {id} NOT NULL REFERENCES applications(id) ON DELETE CASCADE,
		lot_id         {id} NOT NULL REFERENCES lots(id),
		position       INTEGER NOT NULL,
		PRIMARY KEY (application_id, lot_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_application_lots_lot ON application_lots(lot_id)`,

	`CREATE TABLE IF NOT EXISTS application_agents (
		application_id {id} NOT NULL REFERENCES applications(id) ON DELETE CASCADE,
		agent_id       {id} NOT NULL REFERENCES agents(id),
		position       INTEGER NOT NULL,
		PRIMARY KEY (application_id, agent_id)
	)`,

	`CREATE TABLE IF NOT EXISTS reservations (
		id               {id} PRIMARY KEY,
		application_id   {id} UNIQUE REFERENCES applications(id) ON DELETE SET NULL,
		client_name      TEXT NOT NULL,
		status           TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending', 'cancellation', 'on_contract', 'no_show')),
		notes            TEXT,
		appointment_date {ts} NOT NULL,
		created_at       {ts} NOT NULL,
		updated_at       {ts} NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS contracts (
		id                {id} PRIMARY KEY,
		client_id         {id} NOT NULL,
		application_id    {id} NOT NULL UNIQUE REFERENCES applications(id),
		reservation_id    {id} NOT NULL UNIQUE REFERENCES reservations(id),
		document_ref      TEXT,
		document_error    TEXT,
		document_attempts INTEGER NOT NULL DEFAULT 0,
		document_claimed_at {ts},
		term              TEXT NOT NULL,
		created_at        {ts} NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_contracts_document ON contracts(document_attempts) WHERE document_ref IS NULL`,

	`CREATE TABLE IF NOT EXISTS contract_agents (
		contract_id {id} NOT NULL REFERENCES contracts(id) ON DELETE CASCADE,
		agent_id    {id} NOT NULL REFERENCES agents(id),
		position    INTEGER NOT NULL,
		PRIMARY KEY (contract_id, agent_id)
	)`,

	`CREATE TABLE IF NOT EXISTS activity_logs (
		id         {serial},
		entity     TEXT NOT NULL,
		entity_id  TEXT NOT NULL,
		action     TEXT NOT NULL,
		message    TEXT NOT NULL DEFAULT '',
		created_at {ts} NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_activity_entity ON activity_logs(entity, entity_id, created_at)`,
}
