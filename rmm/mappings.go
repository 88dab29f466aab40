// ABOUTME: Device type and patch status normalization tables
// ABOUTME: Maps vendor-specific values to the fixed vocabulary, with online detection fallback
package rmm

import (
	"time"
)

// Normalized device types.
const (
	DeviceWorkstation    = "workstation"
	DeviceLaptop         = "laptop"
	DeviceServer         = "server"
	DeviceNetworkDevice  = "network_device"
	DeviceMobile         = "mobile"
	DeviceVirtualMachine = "virtual_machine"
	DeviceOther          = "other"
)

// Normalized patch statuses.
const (
	PatchUpToDate       = "up_to_date"
	PatchMissing        = "missing_patches"
	PatchRebootRequired = "reboot_required"
	PatchFailed         = "failed"
	PatchUnknown        = "unknown"
)

// onlineThreshold is how recently a device must have checked in to count as
// online when the vendor gives no explicit flag.
const onlineThreshold = 30 * time.Minute

var deviceTypeMappings = map[string]map[string]string{
	"datto": {
		"Workstation": DeviceWorkstation,
		"Laptop":      DeviceLaptop,
		"Server":      DeviceServer,
		// Hypervisor hosts count as servers
		"ESXI Host":       DeviceServer,
		"Virtual Machine": DeviceVirtualMachine,
		"Network Device":  DeviceNetworkDevice,
		"Mobile Device":   DeviceMobile,
		"Printer":         DeviceOther,
		"Unknown":         DeviceOther,
	},
	"superops": {
		"Desktop": DeviceWorkstation,
		"Laptop":  DeviceLaptop,
		"Server":  DeviceServer,
		"VM":      DeviceVirtualMachine,
		"Network": DeviceNetworkDevice,
		"Mobile":  DeviceMobile,
	},
}

var patchStatusMappings = map[string]map[string]string{
	"datto": {
		"Up to Date":      PatchUpToDate,
		"Missing Patches": PatchMissing,
		"Reboot Required": PatchRebootRequired,
		"Patch Failed":    PatchFailed,
		"Unknown":         PatchUnknown,
	},
	"superops": {
		"Up to date":        PatchUpToDate,
		"Updates available": PatchMissing,
		"Reboot required":   PatchRebootRequired,
		"Update failed":     PatchFailed,
	},
}

var deviceTypeDisplayNames = map[string]string{
	DeviceWorkstation:    "Workstation",
	DeviceLaptop:         "Laptop",
	DeviceServer:         "Server",
	DeviceNetworkDevice:  "Network Device",
	DeviceMobile:         "Mobile Device",
	DeviceVirtualMachine: "Virtual Machine",
	DeviceOther:          "Other",
}

var patchStatusDisplayNames = map[string]string{
	PatchUpToDate:       "Up to Date",
	PatchMissing:        "Missing Patches",
	PatchRebootRequired: "Reboot Required",
	PatchFailed:         "Failed",
	PatchUnknown:        "Unknown",
}

// MapDeviceType converts a vendor device category to the normalized
// vocabulary. Unrecognized values become "other", never an error.
func MapDeviceType(providerName, nativeType string) string {
	if m, ok := deviceTypeMappings[providerName]; ok {
		if t, ok := m[nativeType]; ok {
			return t
		}
	}
	return DeviceOther
}

// MapPatchStatus converts a vendor patch status to the normalized
// vocabulary. Unrecognized or empty values become "unknown".
func MapPatchStatus(providerName, nativeStatus string) string {
	if m, ok := patchStatusMappings[providerName]; ok {
		if s, ok := m[nativeStatus]; ok {
			return s
		}
	}
	return PatchUnknown
}

// DeviceTypeDisplayName resolves a human-readable name for a normalized
// device type.
func DeviceTypeDisplayName(deviceType string) string {
	if name, ok := deviceTypeDisplayNames[deviceType]; ok {
		return name
	}
	return "Other"
}

// PatchStatusDisplayName resolves a human-readable name for a normalized
// patch status.
func PatchStatusDisplayName(patchStatus string) string {
	if name, ok := patchStatusDisplayNames[patchStatus]; ok {
		return name
	}
	return "Unknown"
}

// OnlineFromLastSeen infers online status from the last check-in time for
// vendors without an explicit flag. A device with no check-in at all is
// offline.
func OnlineFromLastSeen(lastSeen *time.Time, now time.Time) bool {
	if lastSeen == nil {
		return false
	}
	return now.Sub(*lastSeen) <= onlineThreshold
}
