// ABOUTME: Database operations for contacts and contact-company links
// ABOUTME: Upsert by external identity plus per-source link replacement
package db

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/hivematrix/codex/models"
)

const contactColumns = `id, external_id, external_source, first_name, last_name, name, email,
	mobile_phone, work_phone, job_title, active, is_agent, vip_user, department_ids,
	address, time_zone, language, user_number, created_at, updated_at`

// UpsertContact inserts or updates a contact keyed by (external_id,
// external_source) and returns its local id.
func UpsertContact(db *sql.DB, c *models.Contact) (int64, error) {
	_, err := db.Exec(`
		INSERT INTO contacts (external_id, external_source, first_name, last_name, name, email,
			mobile_phone, work_phone, job_title, active, is_agent, vip_user, department_ids,
			address, time_zone, language, user_number, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(external_id, external_source) DO UPDATE SET
			first_name = excluded.first_name,
			last_name = excluded.last_name,
			name = excluded.name,
			email = excluded.email,
			mobile_phone = excluded.mobile_phone,
			work_phone = excluded.work_phone,
			job_title = excluded.job_title,
			active = excluded.active,
			is_agent = excluded.is_agent,
			vip_user = excluded.vip_user,
			department_ids = excluded.department_ids,
			address = excluded.address,
			time_zone = excluded.time_zone,
			language = excluded.language,
			user_number = excluded.user_number,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at
	`,
		c.ExternalID, c.ExternalSource, c.FirstName, c.LastName, c.Name, c.Email,
		c.MobilePhone, c.WorkPhone, c.JobTitle, c.Active, c.IsAgent, c.VIPUser,
		marshalJSON(c.DepartmentIDs), c.Address, c.TimeZone, c.Language,
		c.UserNumber, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert contact %d: %w", c.ExternalID, err)
	}

	var id int64
	err = db.QueryRow(`SELECT id FROM contacts WHERE external_id = ? AND external_source = ?`,
		c.ExternalID, c.ExternalSource).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to read back contact id: %w", err)
	}
	return id, nil
}

// GetContactByExternalID retrieves a contact by its external identity.
// Returns nil if not found.
func GetContactByExternalID(db *sql.DB, externalID int64, source string) (*models.Contact, error) {
	row := db.QueryRow(`SELECT `+contactColumns+` FROM contacts WHERE external_id = ? AND external_source = ?`,
		externalID, source)
	c, err := scanContact(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return c, err
}

// ListContacts retrieves all contacts ordered by name.
func ListContacts(db *sql.DB) ([]models.Contact, error) {
	rows, err := db.Query(`SELECT ` + contactColumns + ` FROM contacts ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query contacts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var contacts []models.Contact
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, err
		}
		contacts = append(contacts, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating contacts: %w", err)
	}
	return contacts, nil
}

// DeleteContactsAbsent removes contacts from the given source whose external
// ids are not in the provided complete listing, along with their links.
// Returns the number of contacts removed.
func DeleteContactsAbsent(db *sql.DB, source string, presentExternalIDs []int64) (int64, error) {
	args := []any{source}
	where := `external_source = ?`
	if len(presentExternalIDs) > 0 {
		placeholders := make([]string, len(presentExternalIDs))
		for i, id := range presentExternalIDs {
			placeholders[i] = "?"
			args = append(args, id)
		}
		where += ` AND external_id NOT IN (` + strings.Join(placeholders, ",") + `)`
	}

	_, err := db.Exec(`DELETE FROM contact_company_links WHERE contact_id IN (SELECT id FROM contacts WHERE `+where+`)`, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete links of absent contacts: %w", err)
	}

	res, err := db.Exec(`DELETE FROM contacts WHERE `+where, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete absent contacts: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// ReplaceContactLinks replaces the company links a given source asserts for
// a contact. Links asserted by other sources are left untouched, so the
// final set is the union across providers with each provider owning only
// its own rows.
func ReplaceContactLinks(db *sql.DB, contactID int64, source string, accountNumbers []string) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin link transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM contact_company_links WHERE contact_id = ? AND source = ?`, contactID, source); err != nil {
		return fmt.Errorf("failed to clear contact links: %w", err)
	}
	for _, acct := range accountNumbers {
		if _, err := tx.Exec(`
			INSERT OR IGNORE INTO contact_company_links (contact_id, company_account_number, source)
			VALUES (?, ?, ?)
		`, contactID, acct, source); err != nil {
			return fmt.Errorf("failed to insert contact link: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit contact links: %w", err)
	}
	return nil
}

// ContactCompanies returns the account numbers a contact is linked to,
// across all sources.
func ContactCompanies(db *sql.DB, contactID int64) ([]string, error) {
	rows, err := db.Query(`
		SELECT DISTINCT company_account_number FROM contact_company_links
		WHERE contact_id = ? ORDER BY company_account_number
	`, contactID)
	if err != nil {
		return nil, fmt.Errorf("failed to query contact links: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var accounts []string
	for rows.Next() {
		var a string
		if err := rows.Scan(&a); err != nil {
			return nil, fmt.Errorf("failed to scan contact link: %w", err)
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating contact links: %w", err)
	}
	return accounts, nil
}

// CompanyContacts returns all contacts linked to a company.
func CompanyContacts(db *sql.DB, accountNumber string) ([]models.Contact, error) {
	rows, err := db.Query(`
		SELECT `+contactColumns+` FROM contacts
		WHERE id IN (SELECT contact_id FROM contact_company_links WHERE company_account_number = ?)
		ORDER BY name
	`, accountNumber)
	if err != nil {
		return nil, fmt.Errorf("failed to query company contacts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var contacts []models.Contact
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, err
		}
		contacts = append(contacts, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating company contacts: %w", err)
	}
	return contacts, nil
}

func scanContact(s rowScanner) (*models.Contact, error) {
	var c models.Contact
	var firstName, lastName, name, email, mobile, work, title sql.NullString
	var departmentIDs, address, timeZone, language, userNumber sql.NullString
	var createdAt, updatedAt sql.NullString

	err := s.Scan(
		&c.ID, &c.ExternalID, &c.ExternalSource, &firstName, &lastName, &name, &email,
		&mobile, &work, &title, &c.Active, &c.IsAgent, &c.VIPUser, &departmentIDs,
		&address, &timeZone, &language, &userNumber, &createdAt, &updatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan contact: %w", err)
	}

	c.FirstName = firstName.String
	c.LastName = lastName.String
	c.Name = name.String
	c.Email = email.String
	c.MobilePhone = mobile.String
	c.WorkPhone = work.String
	c.JobTitle = title.String
	c.DepartmentIDs = unmarshalInt64s(departmentIDs.String)
	c.Address = address.String
	c.TimeZone = timeZone.String
	c.Language = language.String
	c.UserNumber = userNumber.String
	c.CreatedAt = createdAt.String
	c.UpdatedAt = updatedAt.String
	return &c, nil
}
