// ABOUTME: Database operations for the rmm_site_links table
// ABOUTME: Manages site-to-company joins including multi-site customers
package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hivematrix/codex/models"
)

// UpsertSiteLink inserts or updates a site link keyed by (provider,
// site_uid). A site can only ever point at one company.
func UpsertSiteLink(db *sql.DB, l *models.SiteLink) error {
	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now().UTC()
	}

	_, err := db.Exec(`
		INSERT INTO rmm_site_links (id, company_account_number, site_uid, provider, site_name, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(provider, site_uid) DO UPDATE SET
			company_account_number = excluded.company_account_number,
			site_name = excluded.site_name
	`, l.ID, l.CompanyAccountNumber, l.SiteUID, l.Provider, l.SiteName, l.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert site link %s: %w", l.SiteUID, err)
	}
	return nil
}

// GetSiteLink retrieves a site link by provider and site uid. Returns nil
// if not found.
func GetSiteLink(db *sql.DB, provider, siteUID string) (*models.SiteLink, error) {
	var l models.SiteLink
	var siteName sql.NullString
	err := db.QueryRow(`
		SELECT id, company_account_number, site_uid, provider, site_name, created_at
		FROM rmm_site_links WHERE provider = ? AND site_uid = ?
	`, provider, siteUID).Scan(&l.ID, &l.CompanyAccountNumber, &l.SiteUID, &l.Provider, &siteName, &l.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get site link: %w", err)
	}
	l.SiteName = siteName.String
	return &l, nil
}

// ListSiteLinks retrieves all site links for a provider.
func ListSiteLinks(db *sql.DB, provider string) ([]models.SiteLink, error) {
	rows, err := db.Query(`
		SELECT id, company_account_number, site_uid, provider, site_name, created_at
		FROM rmm_site_links WHERE provider = ? ORDER BY site_name
	`, provider)
	if err != nil {
		return nil, fmt.Errorf("failed to query site links: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var links []models.SiteLink
	for rows.Next() {
		var l models.SiteLink
		var siteName sql.NullString
		if err := rows.Scan(&l.ID, &l.CompanyAccountNumber, &l.SiteUID, &l.Provider, &siteName, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan site link: %w", err)
		}
		l.SiteName = siteName.String
		links = append(links, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating site links: %w", err)
	}
	return links, nil
}

// ListSiteLinksForCompany retrieves all site links pointing at a company.
// Multi-site customers have several.
func ListSiteLinksForCompany(db *sql.DB, accountNumber string) ([]models.SiteLink, error) {
	rows, err := db.Query(`
		SELECT id, company_account_number, site_uid, provider, site_name, created_at
		FROM rmm_site_links WHERE company_account_number = ? ORDER BY site_name
	`, accountNumber)
	if err != nil {
		return nil, fmt.Errorf("failed to query company site links: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var links []models.SiteLink
	for rows.Next() {
		var l models.SiteLink
		var siteName sql.NullString
		if err := rows.Scan(&l.ID, &l.CompanyAccountNumber, &l.SiteUID, &l.Provider, &siteName, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan site link: %w", err)
		}
		l.SiteName = siteName.String
		links = append(links, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating company site links: %w", err)
	}
	return links, nil
}
