package session

import (
	"github.com/mileusna/useragent"
)

const deviceUnknown = "unknown"

// ParseDeviceInfo extracts browser and OS details from a raw User-Agent
// string. An empty or unrecognized string yields "unknown" fields rather
// than an error; device info is descriptive, never load-bearing.
func ParseDeviceInfo(rawUserAgent string) DeviceInfo {
	if rawUserAgent == "" {
		return DeviceInfo{
			BrowserName: deviceUnknown,
			OSName:      deviceUnknown,
			DeviceType:  deviceUnknown,
		}
	}

	ua := useragent.Parse(rawUserAgent)

	info := DeviceInfo{
		BrowserName:    ua.Name,
		BrowserVersion: ua.Version,
		OSName:         ua.OS,
		OSVersion:      ua.OSVersion,
		DeviceType:     deviceType(ua),
	}
	if info.BrowserName == "" {
		info.BrowserName = deviceUnknown
	}
	if info.OSName == "" {
		info.OSName = deviceUnknown
	}
	return info
}

func deviceType(ua useragent.UserAgent) string {
	switch {
	case ua.Bot:
		return "bot"
	case ua.Mobile:
		return "mobile"
	case ua.Tablet:
		return "tablet"
	case ua.Desktop:
		return "desktop"
	default:
		return deviceUnknown
	}
}
