package useragent

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const (
	userAgentFirefoxDesktop = "Mozilla/5.0 (X11; Linux x86_64; rv:128.0) Gecko/20100101 Firefox/128.0"
	userAgentChromeDesktop  = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0 Safari/537.36"
	userAgentSafariIPhone   = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_5 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.5 Mobile/15E148 Safari/604.1"
	userAgentLegacyEdge     = "Mozilla/5.0 (Windows NT 10.0) AppleWebKit/537.36 (KHTML, like Gecko) Edge/18.19041"
	userAgentChromiumEdge   = "Mozilla/5.0 (Windows NT 10.0) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0 Safari/537.36 Edg/126.0"
	userAgentOperaPresto    = "Opera/9.80 (Windows NT 6.1) Presto/2.12.388 Version/12.18"
	userAgentAndroidTablet  = "Mozilla/5.0 (Linux; Android 13; SM-X700) Tablet AppleWebKit/537.36"
	userAgentCurl           = "curl/8.5.0"
)

func TestBrowserPrecedence(testingT *testing.T) {
	testCases := []struct {
		name      string
		userAgent string
		expected  string
	}{
		{name: "firefox", userAgent: userAgentFirefoxDesktop, expected: BrowserFirefox},
		{name: "chrome wins over safari", userAgent: userAgentChromeDesktop, expected: BrowserChrome},
		{name: "safari alone", userAgent: userAgentSafariIPhone, expected: BrowserSafari},
		{name: "legacy edge", userAgent: userAgentLegacyEdge, expected: BrowserEdge},
		{name: "chromium edge reports chrome", userAgent: userAgentChromiumEdge, expected: BrowserChrome},
		{name: "opera presto", userAgent: userAgentOperaPresto, expected: BrowserOpera},
		{name: "opera marker", userAgent: "Mozilla/5.0 OPR/100.0", expected: BrowserOpera},
		{name: "firefox wins over everything", userAgent: "Firefox Chrome Safari Edge Opera", expected: BrowserFirefox},
		{name: "safari wins over edge and opera", userAgent: "Safari Edge Opera", expected: BrowserSafari},
		{name: "edge wins over opera", userAgent: "Edge Opera", expected: BrowserEdge},
		{name: "unknown", userAgent: userAgentCurl, expected: BrowserUnknown},
		{name: "empty", userAgent: "", expected: BrowserUnknown},
	}

	for _, testCase := range testCases {
		testCase := testCase
		testingT.Run(testCase.name, func(testingT *testing.T) {
			require.Equal(testingT, testCase.expected, Browser(testCase.userAgent))
		})
	}
}

func TestDeviceClass(testingT *testing.T) {
	testCases := []struct {
		name      string
		userAgent string
		expected  string
	}{
		{name: "iphone", userAgent: userAgentSafariIPhone, expected: DeviceMobile},
		{name: "tablet", userAgent: userAgentAndroidTablet, expected: DeviceTablet},
		{name: "case insensitive", userAgent: "SOME MOBILE BROWSER", expected: DeviceMobile},
		{name: "mobile wins over tablet", userAgent: "tablet mobile", expected: DeviceMobile},
		{name: "desktop", userAgent: userAgentChromeDesktop, expected: DeviceDesktop},
	}

	for _, testCase := range testCases {
		testCase := testCase
		testingT.Run(testCase.name, func(testingT *testing.T) {
			require.Equal(testingT, testCase.expected, Device(testCase.userAgent))
		})
	}
}

func TestClassify(testingT *testing.T) {
	classification := Classify(userAgentSafariIPhone)
	require.Equal(testingT, Classification{Browser: BrowserSafari, Device: DeviceMobile}, classification)
}
