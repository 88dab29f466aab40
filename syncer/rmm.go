// ABOUTME: RMM asset sync grouped by the AccountNumber site variable
// ABOUTME: Links sites to companies, mirrors device telemetry, and deletes assets by hostname absence
package syncer

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/hivematrix/codex/db"
	"github.com/hivematrix/codex/models"
	"github.com/hivematrix/codex/rmm"
)

// AccountNumberVariable is the site variable joining an RMM site to a
// company.
const AccountNumberVariable = "AccountNumber"

// SyncAssets pulls every site, groups them by the AccountNumber variable,
// and mirrors each company's device fleet. Sites without the variable (or
// pointing at a company we don't know) are skipped. Deletion is per
// company across all its sites: an asset survives as long as any of the
// company's sites still lists its hostname.
func (s *Syncer) SyncAssets(ctx context.Context, r rmm.Provider) (*Result, error) {
	defer s.lock(r.Name(), "assets")()

	source := r.Name()
	result := &Result{Provider: source, Entity: "assets"}
	logger := log.WithFields(log.Fields{"provider": source, "entity": "assets"})

	sites, err := r.SyncSites(ctx)
	if err != nil {
		_ = db.RecordSyncFailure(s.db, source, "assets", err.Error())
		return nil, fmt.Errorf("fetching sites: %w", err)
	}
	logger.WithField("count", len(sites)).Info("fetched sites")

	// Group sites by company; multi-site customers share an account number.
	sitesByAccount := make(map[string][]rmm.SiteRecord)
	for _, site := range sites {
		acct, err := r.GetSiteVariable(ctx, site.UID, AccountNumberVariable)
		if err != nil {
			result.recordError("site %s variable: %v", site.Name, err)
			continue
		}
		if acct == "" {
			logger.WithField("site", site.Name).Warn("site has no account number, skipping")
			result.Skipped++
			continue
		}

		company, err := db.GetCompany(s.db, acct)
		if err != nil {
			return nil, err
		}
		if company == nil {
			logger.WithFields(log.Fields{"site": site.Name, "account": acct}).Warn("site points at unknown company, skipping")
			result.Skipped++
			continue
		}

		if err := db.UpsertSiteLink(s.db, &models.SiteLink{
			CompanyAccountNumber: acct,
			SiteUID:              site.UID,
			Provider:             source,
			SiteName:             site.Name,
		}); err != nil {
			result.recordError("site link %s: %v", site.Name, err)
			continue
		}
		sitesByAccount[acct] = append(sitesByAccount[acct], site)
	}
	logger.WithField("companies", len(sitesByAccount)).Info("grouped sites by account number")

	for acct, companySites := range sitesByAccount {
		presentHostnames := make(map[string]bool)
		fleetComplete := true

		for _, site := range companySites {
			devices, err := r.SyncDevices(ctx, site.UID)
			if err != nil {
				// A partial fleet must not trigger hostname deletion.
				result.recordError("devices for site %s: %v", site.Name, err)
				fleetComplete = false
				continue
			}

			for i := range devices {
				dev := &devices[i]
				if dev.Hostname == "" {
					result.Skipped++
					continue
				}
				presentHostnames[dev.Hostname] = true

				if err := db.UpsertAsset(s.db, assetFromDevice(dev, acct, s.now())); err != nil {
					result.recordError("asset %s: %v", dev.Hostname, err)
					continue
				}
				result.Synced++
			}
		}

		if !fleetComplete {
			continue
		}
		hostnames := make([]string, 0, len(presentHostnames))
		for h := range presentHostnames {
			hostnames = append(hostnames, h)
		}
		deleted, err := db.DeleteAssetsAbsent(s.db, acct, hostnames)
		if err != nil {
			result.recordError("asset cleanup for %s: %v", acct, err)
			continue
		}
		result.Deleted += deleted
	}

	if err := db.RecordSyncSuccess(s.db, source, "assets", s.now().UTC()); err != nil {
		return nil, err
	}
	return result, nil
}

func assetFromDevice(dev *rmm.DeviceRecord, acct string, now time.Time) *models.Asset {
	online := dev.Online
	if !online {
		// Some vendors report a stale flag; a very recent check-in wins.
		online = rmm.OnlineFromLastSeen(dev.LastSeen, now)
	}

	return &models.Asset{
		Hostname:             dev.Hostname,
		CompanyAccountNumber: acct,
		ExternalID:           dev.UID,
		SiteName:             dev.SiteName,
		DeviceType:           dev.DeviceType,
		OperatingSystem:      dev.OperatingSystem,
		LastLoggedInUser:     dev.LastLoggedInUser,
		IntIPAddress:         dev.IntIPAddress,
		ExtIPAddress:         dev.ExtIPAddress,
		Domain:               dev.Domain,
		Online:               online,
		LastSeen:             dev.LastSeen,
		LastReboot:           dev.LastReboot,
		LastAuditDate:        dev.LastAuditDate,
		PatchStatus:          dev.PatchStatus,
		AntivirusProduct:     dev.AntivirusProduct,
		Description:          dev.Description,
		PortalURL:            dev.PortalURL,
		WebRemoteURL:         dev.WebRemoteURL,
		CustomFields:         dev.UDF,
	}
}
