// ABOUTME: Database schema definitions and migrations
// ABOUTME: Handles SQLite table creation and initialization
package db

import (
	"database/sql"
)

const schema = `
CREATE TABLE IF NOT EXISTS companies (
	account_number TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	description TEXT,
	external_id INTEGER NOT NULL,
	external_source TEXT NOT NULL,
	head_user_id INTEGER,
	head_name TEXT,
	prime_user_id INTEGER,
	prime_user_name TEXT,
	domains TEXT,
	custom_fields TEXT,
	billing_plan TEXT,
	managed_users INTEGER,
	managed_devices INTEGER,
	managed_network TEXT,
	contract_term_length TEXT,
	contract_start_date TEXT,
	contract_end_date TEXT,
	support_level TEXT,
	profit_or_non_profit TEXT,
	company_main_number TEXT,
	address TEXT,
	company_start_date TEXT,
	phone_system TEXT,
	email_system TEXT,
	created_at TEXT,
	updated_at TEXT,
	UNIQUE(external_id, external_source)
);

CREATE INDEX IF NOT EXISTS idx_companies_name ON companies(name);

CREATE TABLE IF NOT EXISTS contacts (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	external_id INTEGER NOT NULL,
	external_source TEXT NOT NULL,
	first_name TEXT,
	last_name TEXT,
	name TEXT,
	email TEXT,
	mobile_phone TEXT,
	work_phone TEXT,
	job_title TEXT,
	active INTEGER NOT NULL DEFAULT 1,
	is_agent INTEGER NOT NULL DEFAULT 0,
	vip_user INTEGER NOT NULL DEFAULT 0,
	department_ids TEXT,
	address TEXT,
	time_zone TEXT,
	language TEXT,
	user_number TEXT,
	created_at TEXT,
	updated_at TEXT,
	UNIQUE(external_id, external_source)
);

CREATE INDEX IF NOT EXISTS idx_contacts_email ON contacts(email);

CREATE TABLE IF NOT EXISTS contact_company_links (
	contact_id INTEGER NOT NULL,
	company_account_number TEXT NOT NULL,
	source TEXT NOT NULL,
	PRIMARY KEY (contact_id, company_account_number, source),
	FOREIGN KEY (contact_id) REFERENCES contacts(id),
	FOREIGN KEY (company_account_number) REFERENCES companies(account_number)
);

CREATE INDEX IF NOT EXISTS idx_links_company ON contact_company_links(company_account_number);

CREATE TABLE IF NOT EXISTS psa_agents (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	external_id INTEGER NOT NULL,
	external_source TEXT NOT NULL,
	first_name TEXT,
	last_name TEXT,
	email TEXT,
	job_title TEXT,
	active INTEGER NOT NULL DEFAULT 1,
	group_ids TEXT,
	department_ids TEXT,
	created_at TEXT,
	updated_at TEXT,
	UNIQUE(external_id, external_source)
);

CREATE TABLE IF NOT EXISTS assets (
	id TEXT PRIMARY KEY,
	hostname TEXT NOT NULL,
	company_account_number TEXT NOT NULL,
	external_id TEXT,
	site_name TEXT,
	device_type TEXT,
	operating_system TEXT,
	last_logged_in_user TEXT,
	int_ip_address TEXT,
	ext_ip_address TEXT,
	domain TEXT,
	online INTEGER NOT NULL DEFAULT 0,
	last_seen DATETIME,
	last_reboot DATETIME,
	last_audit_date DATETIME,
	patch_status TEXT,
	antivirus_product TEXT,
	description TEXT,
	portal_url TEXT,
	web_remote_url TEXT,
	custom_fields TEXT,
	UNIQUE(company_account_number, hostname),
	FOREIGN KEY (company_account_number) REFERENCES companies(account_number)
);

CREATE INDEX IF NOT EXISTS idx_assets_company ON assets(company_account_number);

CREATE TABLE IF NOT EXISTS tickets (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	external_id INTEGER NOT NULL,
	external_source TEXT NOT NULL,
	ticket_number TEXT,
	subject TEXT,
	description TEXT,
	description_text TEXT,
	status TEXT NOT NULL,
	status_id INTEGER,
	priority TEXT,
	priority_id INTEGER,
	ticket_type TEXT,
	requester_id INTEGER,
	requester_email TEXT,
	requester_name TEXT,
	responder_id INTEGER,
	group_id INTEGER,
	company_account_number TEXT,
	created_at TEXT,
	updated_at TEXT,
	closed_at TEXT,
	fr_due_by TEXT,
	due_by TEXT,
	first_responded_at TEXT,
	agent_responded_at TEXT,
	total_hours_spent REAL NOT NULL DEFAULT 0,
	conversations TEXT,
	notes TEXT,
	UNIQUE(external_id, external_source)
);

CREATE INDEX IF NOT EXISTS idx_tickets_status ON tickets(status);
CREATE INDEX IF NOT EXISTS idx_tickets_company ON tickets(company_account_number);

CREATE TABLE IF NOT EXISTS rmm_site_links (
	id TEXT PRIMARY KEY,
	company_account_number TEXT NOT NULL,
	site_uid TEXT NOT NULL,
	provider TEXT NOT NULL,
	site_name TEXT,
	created_at DATETIME NOT NULL,
	UNIQUE(provider, site_uid),
	FOREIGN KEY (company_account_number) REFERENCES companies(account_number)
);

CREATE INDEX IF NOT EXISTS idx_site_links_company ON rmm_site_links(company_account_number);

CREATE TABLE IF NOT EXISTS sync_jobs (
	id TEXT PRIMARY KEY,
	script TEXT NOT NULL,
	provider TEXT NOT NULL,
	sync_type TEXT NOT NULL,
	status TEXT NOT NULL,
	started_at DATETIME NOT NULL,
	completed_at DATETIME,
	output TEXT
);

CREATE INDEX IF NOT EXISTS idx_sync_jobs_started ON sync_jobs(started_at);

CREATE TABLE IF NOT EXISTS sync_state (
	provider TEXT NOT NULL,
	sync_type TEXT NOT NULL,
	last_success_at DATETIME,
	run_counter INTEGER NOT NULL DEFAULT 0,
	status TEXT NOT NULL DEFAULT 'idle',
	error_message TEXT,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (provider, sync_type)
);
`

// InitSchema creates all tables if they don't exist.
func InitSchema(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}
