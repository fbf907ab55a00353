// Package useragent reduces a User-Agent header to a short device label for
// session logs.
package useragent

import "strings"

type Device struct {
	OS      string
	Browser string
}

func (d Device) String() string {
	return d.Browser + " on " + d.OS
}

// Parse matches mobile platforms before desktop ones since their headers
// also mention Linux or Mac OS.
func Parse(ua string) Device {
	s := strings.ToLower(ua)
	d := Device{OS: "Unknown", Browser: "Unknown"}

	switch {
	case strings.Contains(s, "android"):
		d.OS = "Android"
	case strings.Contains(s, "iphone"), strings.Contains(s, "ipad"):
		d.OS = "iOS"
	case strings.Contains(s, "windows"):
		d.OS = "Windows"
	case strings.Contains(s, "mac os"):
		d.OS = "macOS"
	case strings.Contains(s, "linux"):
		d.OS = "Linux"
	}

	switch {
	case strings.Contains(s, "edg/"), strings.Contains(s, "edge"):
		d.Browser = "Edge"
	case strings.Contains(s, "firefox"):
		d.Browser = "Firefox"
	case strings.Contains(s, "chrome"):
		d.Browser = "Chrome"
	case strings.Contains(s, "safari"):
		d.Browser = "Safari"
	case strings.Contains(s, "curl"):
		d.Browser = "curl"
	}

	return d
}
