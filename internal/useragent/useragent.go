// Package useragent derives the coarse browser family and device class recorded with feedback.
package useragent

import (
	"regexp"
	"strings"
)

const (
	BrowserFirefox = "Firefox"
	BrowserChrome  = "Chrome"
	BrowserSafari  = "Safari"
	BrowserEdge    = "Edge"
	BrowserOpera   = "Opera"
	BrowserUnknown = "Unknown"

	DeviceMobile  = "Mobile"
	DeviceTablet  = "Tablet"
	DeviceDesktop = "Desktop"
)

type browserRule struct {
	family  string
	markers []string
}

// The order is the contract: the first rule with a matching marker wins.
var browserRules = []browserRule{
	{family: BrowserFirefox, markers: []string{"Firefox"}},
	{family: BrowserChrome, markers: []string{"Chrome"}},
	{family: BrowserSafari, markers: []string{"Safari"}},
	{family: BrowserEdge, markers: []string{"Edge"}},
	{family: BrowserOpera, markers: []string{"Opera", "OPR"}},
}

var (
	mobilePattern = regexp.MustCompile(`(?i)mobile`)
	tabletPattern = regexp.MustCompile(`(?i)tablet`)
)

// Browser returns the browser family for a user agent string.
func Browser(userAgent string) string {
	for _, rule := range browserRules {
		for _, marker := range rule.markers {
			if strings.Contains(userAgent, marker) {
				return rule.family
			}
		}
	}
	return BrowserUnknown
}

// Device returns the device class for a user agent string.
func Device(userAgent string) string {
	if mobilePattern.MatchString(userAgent) {
		return DeviceMobile
	}
	if tabletPattern.MatchString(userAgent) {
		return DeviceTablet
	}
	return DeviceDesktop
}

// Classification pairs the derived browser family and device class.
type Classification struct {
	Browser string
	Device  string
}

// Classify derives both labels at once.
func Classify(userAgent string) Classification {
	return Classification{
		Browser: Browser(userAgent),
		Device:  Device(userAgent),
	}
}
