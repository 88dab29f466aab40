// ABOUTME: Database operations for the companies table
// ABOUTME: Upsert by account number, listing-based deletion, and account number inventory
package db

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/hivematrix/codex/models"
)

const companyColumns = `account_number, name, description, external_id, external_source,
	head_user_id, head_name, prime_user_id, prime_user_name, domains, custom_fields,
	billing_plan, managed_users, managed_devices, managed_network, contract_term_length,
	contract_start_date, contract_end_date, support_level, profit_or_non_profit,
	company_main_number, address, company_start_date, phone_system, email_system,
	created_at, updated_at`

// UpsertCompany inserts or updates a company keyed by account number.
func UpsertCompany(db *sql.DB, c *models.Company) error {
	if c.AccountNumber == "" {
		return fmt.Errorf("company %q has no account number", c.Name)
	}

	_, err := db.Exec(`
		INSERT INTO companies (`+companyColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(account_number) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			external_id = excluded.external_id,
			external_source = excluded.external_source,
			head_user_id = excluded.head_user_id,
			head_name = excluded.head_name,
			prime_user_id = excluded.prime_user_id,
			prime_user_name = excluded.prime_user_name,
			domains = excluded.domains,
			custom_fields = excluded.custom_fields,
			billing_plan = excluded.billing_plan,
			managed_users = excluded.managed_users,
			managed_devices = excluded.managed_devices,
			managed_network = excluded.managed_network,
			contract_term_length = excluded.contract_term_length,
			contract_start_date = excluded.contract_start_date,
			contract_end_date = excluded.contract_end_date,
			support_level = excluded.support_level,
			profit_or_non_profit = excluded.profit_or_non_profit,
			company_main_number = excluded.company_main_number,
			address = excluded.address,
			company_start_date = excluded.company_start_date,
			phone_system = excluded.phone_system,
			email_system = excluded.email_system,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at
	`,
		c.AccountNumber, c.Name, c.Description, c.ExternalID, c.ExternalSource,
		c.HeadUserID, c.HeadName, c.PrimeUserID, c.PrimeUserName,
		marshalJSON(c.Domains), marshalJSON(c.CustomFields),
		c.BillingPlan, c.ManagedUsers, c.ManagedDevices, c.ManagedNetwork,
		c.ContractTermLength, c.ContractStartDate, c.ContractEndDate,
		c.SupportLevel, c.ProfitOrNonProfit, c.CompanyMainNumber, c.Address,
		c.CompanyStartDate, c.PhoneSystem, c.EmailSystem,
		c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert company %s: %w", c.AccountNumber, err)
	}
	return nil
}

// GetCompany retrieves a company by account number. Returns nil if not found.
func GetCompany(db *sql.DB, accountNumber string) (*models.Company, error) {
	row := db.QueryRow(`SELECT `+companyColumns+` FROM companies WHERE account_number = ?`, accountNumber)
	return scanCompany(row)
}

// GetCompanyByExternalID retrieves a company by its id in the external
// system. Returns nil if not found.
func GetCompanyByExternalID(db *sql.DB, externalID int64, source string) (*models.Company, error) {
	row := db.QueryRow(`SELECT `+companyColumns+` FROM companies WHERE external_id = ? AND external_source = ?`, externalID, source)
	return scanCompany(row)
}

// ListCompanies retrieves all companies ordered by name.
func ListCompanies(db *sql.DB) ([]models.Company, error) {
	rows, err := db.Query(`SELECT ` + companyColumns + ` FROM companies ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query companies: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var companies []models.Company
	for rows.Next() {
		c, err := scanCompanyRow(rows)
		if err != nil {
			return nil, err
		}
		companies = append(companies, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating companies: %w", err)
	}
	return companies, nil
}

// AccountNumbersInUse returns the set of assigned account numbers.
func AccountNumbersInUse(db *sql.DB) (map[string]bool, error) {
	rows, err := db.Query(`SELECT account_number FROM companies`)
	if err != nil {
		return nil, fmt.Errorf("failed to query account numbers: %w", err)
	}
	defer func() { _ = rows.Close() }()

	inUse := make(map[string]bool)
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("failed to scan account number: %w", err)
		}
		inUse[n] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating account numbers: %w", err)
	}
	return inUse, nil
}

// DeleteCompaniesAbsent removes companies from the given source whose
// external ids are not in the provided complete listing. Returns the number
// of rows removed. An empty listing deletes every company for the source.
func DeleteCompaniesAbsent(db *sql.DB, source string, presentExternalIDs []int64) (int64, error) {
	args := []any{source}
	query := `DELETE FROM companies WHERE external_source = ?`
	if len(presentExternalIDs) > 0 {
		placeholders := make([]string, len(presentExternalIDs))
		for i, id := range presentExternalIDs {
			placeholders[i] = "?"
			args = append(args, id)
		}
		query += ` AND external_id NOT IN (` + strings.Join(placeholders, ",") + `)`
	}

	res, err := db.Exec(query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete absent companies: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCompany(row *sql.Row) (*models.Company, error) {
	c, err := scanCompanyFrom(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return c, err
}

func scanCompanyRow(rows *sql.Rows) (*models.Company, error) {
	return scanCompanyFrom(rows)
}

func scanCompanyFrom(s rowScanner) (*models.Company, error) {
	var c models.Company
	var description, headName, primeUserName sql.NullString
	var domains, customFields sql.NullString
	var billingPlan, managedNetwork, contractTerm sql.NullString
	var contractStart, contractEnd, supportLevel, profit sql.NullString
	var mainNumber, address, startDate, phoneSystem, emailSystem sql.NullString
	var createdAt, updatedAt sql.NullString
	var headUserID, primeUserID, managedUsers, managedDevices sql.NullInt64

	err := s.Scan(
		&c.AccountNumber, &c.Name, &description, &c.ExternalID, &c.ExternalSource,
		&headUserID, &headName, &primeUserID, &primeUserName, &domains, &customFields,
		&billingPlan, &managedUsers, &managedDevices, &managedNetwork, &contractTerm,
		&contractStart, &contractEnd, &supportLevel, &profit,
		&mainNumber, &address, &startDate, &phoneSystem, &emailSystem,
		&createdAt, &updatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan company: %w", err)
	}

	c.Description = description.String
	c.HeadName = headName.String
	c.PrimeUserName = primeUserName.String
	c.Domains = unmarshalStrings(domains.String)
	c.CustomFields = unmarshalStringMap(customFields.String)
	c.BillingPlan = billingPlan.String
	c.ManagedNetwork = managedNetwork.String
	c.ContractTermLength = contractTerm.String
	c.ContractStartDate = contractStart.String
	c.ContractEndDate = contractEnd.String
	c.SupportLevel = supportLevel.String
	c.ProfitOrNonProfit = profit.String
	c.CompanyMainNumber = mainNumber.String
	c.Address = address.String
	c.CompanyStartDate = startDate.String
	c.PhoneSystem = phoneSystem.String
	c.EmailSystem = emailSystem.String
	c.CreatedAt = createdAt.String
	c.UpdatedAt = updatedAt.String
	if headUserID.Valid {
		c.HeadUserID = &headUserID.Int64
	}
	if primeUserID.Valid {
		c.PrimeUserID = &primeUserID.Int64
	}
	if managedUsers.Valid {
		c.ManagedUsers = &managedUsers.Int64
	}
	if managedDevices.Valid {
		c.ManagedDevices = &managedDevices.Int64
	}

	return &c, nil
}
