// ABOUTME: Database operations for the assets table
// ABOUTME: Upsert keyed by (company, hostname) and hostname-based deletion
package db

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hivematrix/codex/models"
)

const assetColumns = `id, hostname, company_account_number, external_id, site_name,
	device_type, operating_system, last_logged_in_user, int_ip_address, ext_ip_address,
	domain, online, last_seen, last_reboot, last_audit_date, patch_status,
	antivirus_product, description, portal_url, web_remote_url, custom_fields`

// UpsertAsset inserts or updates an asset keyed by (company, hostname).
// Telemetry is overwritten wholesale; a fresh row gets a generated id.
func UpsertAsset(db *sql.DB, a *models.Asset) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}

	_, err := db.Exec(`
		INSERT INTO assets (`+assetColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(company_account_number, hostname) DO UPDATE SET
			external_id = excluded.external_id,
			site_name = excluded.site_name,
			device_type = excluded.device_type,
			operating_system = excluded.operating_system,
			last_logged_in_user = excluded.last_logged_in_user,
			int_ip_address = excluded.int_ip_address,
			ext_ip_address = excluded.ext_ip_address,
			domain = excluded.domain,
			online = excluded.online,
			last_seen = excluded.last_seen,
			last_reboot = excluded.last_reboot,
			last_audit_date = excluded.last_audit_date,
			patch_status = excluded.patch_status,
			antivirus_product = excluded.antivirus_product,
			description = excluded.description,
			portal_url = excluded.portal_url,
			web_remote_url = excluded.web_remote_url,
			custom_fields = excluded.custom_fields
	`,
		a.ID, a.Hostname, a.CompanyAccountNumber, a.ExternalID, a.SiteName,
		a.DeviceType, a.OperatingSystem, a.LastLoggedInUser, a.IntIPAddress,
		a.ExtIPAddress, a.Domain, a.Online, a.LastSeen, a.LastReboot,
		a.LastAuditDate, a.PatchStatus, a.AntivirusProduct, a.Description,
		a.PortalURL, a.WebRemoteURL, marshalJSON(a.CustomFields),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert asset %s: %w", a.Hostname, err)
	}
	return nil
}

// GetAsset retrieves an asset by company and hostname. Returns nil if not
// found.
func GetAsset(db *sql.DB, accountNumber, hostname string) (*models.Asset, error) {
	row := db.QueryRow(`SELECT `+assetColumns+` FROM assets WHERE company_account_number = ? AND hostname = ?`,
		accountNumber, hostname)
	a, err := scanAsset(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return a, err
}

// ListAssetsForCompany retrieves all assets belonging to a company.
func ListAssetsForCompany(db *sql.DB, accountNumber string) ([]models.Asset, error) {
	rows, err := db.Query(`SELECT `+assetColumns+` FROM assets WHERE company_account_number = ? ORDER BY hostname`,
		accountNumber)
	if err != nil {
		return nil, fmt.Errorf("failed to query assets: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var assets []models.Asset
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		assets = append(assets, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating assets: %w", err)
	}
	return assets, nil
}

// DeleteAssetsAbsent removes a company's assets whose hostnames are not in
// the provided complete listing. Returns the number removed. An empty
// listing deletes every asset for the company.
func DeleteAssetsAbsent(db *sql.DB, accountNumber string, presentHostnames []string) (int64, error) {
	args := []any{accountNumber}
	query := `DELETE FROM assets WHERE company_account_number = ?`
	if len(presentHostnames) > 0 {
		placeholders := make([]string, len(presentHostnames))
		for i, h := range presentHostnames {
			placeholders[i] = "?"
			args = append(args, h)
		}
		query += ` AND hostname NOT IN (` + strings.Join(placeholders, ",") + `)`
	}

	res, err := db.Exec(query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete absent assets: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func scanAsset(s rowScanner) (*models.Asset, error) {
	var a models.Asset
	var externalID, siteName, deviceType, osName, user sql.NullString
	var intIP, extIP, domain, patch, av, desc, portal, remote sql.NullString
	var customFields sql.NullString
	var lastSeen, lastReboot, lastAudit sql.NullTime

	err := s.Scan(
		&a.ID, &a.Hostname, &a.CompanyAccountNumber, &externalID, &siteName,
		&deviceType, &osName, &user, &intIP, &extIP, &domain, &a.Online,
		&lastSeen, &lastReboot, &lastAudit, &patch, &av, &desc, &portal,
		&remote, &customFields,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan asset: %w", err)
	}

	a.ExternalID = externalID.String
	a.SiteName = siteName.String
	a.DeviceType = deviceType.String
	a.OperatingSystem = osName.String
	a.LastLoggedInUser = user.String
	a.IntIPAddress = intIP.String
	a.ExtIPAddress = extIP.String
	a.Domain = domain.String
	a.PatchStatus = patch.String
	a.AntivirusProduct = av.String
	a.Description = desc.String
	a.PortalURL = portal.String
	a.WebRemoteURL = remote.String
	a.CustomFields = unmarshalStringMap(customFields.String)
	a.LastSeen = nullTimePtr(lastSeen)
	a.LastReboot = nullTimePtr(lastReboot)
	a.LastAuditDate = nullTimePtr(lastAudit)
	return &a, nil
}

func nullTimePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
