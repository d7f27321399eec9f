package auth

import (
	"errors"
	"net/http"
	"net/url"
	"strings"
)

const (
	headerForwarded        = "Forwarded"
	headerXForwardedProto  = "X-Forwarded-Proto"
	headerXForwardedScheme = "X-Forwarded-Scheme"
	headerXForwardedHost   = "X-Forwarded-Host"
	headerXForwardedPort   = "X-Forwarded-Port"
	forwardedProtoPrefix   = "proto="
	forwardedHostPrefix    = "host="
	headerValueSeparator   = ","
	forwardedPairSeparator = ";"
	urlSchemeHTTPS         = "https"

	// DefaultRedirectPath is where an admin lands after signing in.
	DefaultRedirectPath = "/dashboard"
	// AuthPagePath serves the login and sign-up page.
	AuthPagePath = "/auth"
)

var errEmptyHost = errors.New("auth: resolve request base url: empty host")

// NormalizeBaseURL trims whitespace and trailing slashes from a configured base URL.
func NormalizeBaseURL(value string) string {
	return strings.TrimRight(strings.TrimSpace(value), "/")
}

// RequestBaseURL returns the externally visible scheme and host of the request.
// A non-empty configured base URL always wins.
func RequestBaseURL(request *http.Request, configuredBaseURL string) (string, error) {
	trimmedConfigured := NormalizeBaseURL(configuredBaseURL)
	if trimmedConfigured != "" {
		return trimmedConfigured, nil
	}

	host := resolveHost(request)
	if host == "" {
		return "", errEmptyHost
	}
	if port := firstHeaderValue(request.Header.Get(headerXForwardedPort)); port != "" && !strings.Contains(host, ":") {
		host = host + ":" + port
	}
	resolved := url.URL{Scheme: resolveScheme(request), Host: host}
	return resolved.String(), nil
}

// SafeRedirectPath accepts only same-site absolute paths and falls back to the dashboard.
func SafeRedirectPath(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || !strings.HasPrefix(trimmed, "/") || strings.HasPrefix(trimmed, "//") || strings.Contains(trimmed, "\\") {
		return DefaultRedirectPath
	}
	parsed, parseErr := url.Parse(trimmed)
	if parseErr != nil || parsed.Scheme != "" || parsed.Host != "" {
		return DefaultRedirectPath
	}
	if parsed.Path == AuthPagePath {
		return DefaultRedirectPath
	}
	return trimmed
}

func resolveScheme(request *http.Request) string {
	if forwardedProto := extractForwardedDirective(request.Header.Get(headerForwarded), forwardedProtoPrefix); forwardedProto != "" {
		return strings.ToLower(forwardedProto)
	}
	if protoHeader := firstHeaderValue(request.Header.Get(headerXForwardedProto)); protoHeader != "" {
		return strings.ToLower(protoHeader)
	}
	if schemeHeader := firstHeaderValue(request.Header.Get(headerXForwardedScheme)); schemeHeader != "" {
		return strings.ToLower(schemeHeader)
	}
	if request.TLS != nil {
		return urlSchemeHTTPS
	}
	if request.URL != nil && request.URL.Scheme != "" {
		return strings.ToLower(request.URL.Scheme)
	}
	return "http"
}

func resolveHost(request *http.Request) string {
	if forwardedHost := extractForwardedDirective(request.Header.Get(headerForwarded), forwardedHostPrefix); forwardedHost != "" {
		return forwardedHost
	}
	if hostHeader := firstHeaderValue(request.Header.Get(headerXForwardedHost)); hostHeader != "" {
		return hostHeader
	}
	return request.Host
}

func firstHeaderValue(rawValue string) string {
	for _, segment := range strings.Split(rawValue, headerValueSeparator) {
		if trimmedSegment := strings.TrimSpace(segment); trimmedSegment != "" {
			return trimmedSegment
		}
	}
	return ""
}

func extractForwardedDirective(headerValue string, prefix string) string {
	for _, directive := range strings.Split(headerValue, headerValueSeparator) {
		for _, pair := range strings.Split(directive, forwardedPairSeparator) {
			trimmedPair := strings.TrimSpace(pair)
			if !strings.HasPrefix(strings.ToLower(trimmedPair), prefix) {
				continue
			}
			value := strings.Trim(strings.TrimSpace(trimmedPair[len(prefix):]), "\"")
			if value != "" {
				return value
			}
		}
	}
	return ""
}
