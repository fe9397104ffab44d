// Copyright (c) 2025 Medquery
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package httperrors turns network failures talking to the text-generation
// provider or a remote database into short troubleshooting notes.
package httperrors

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"syscall"

	"github.com/pterm/pterm"
)

// Category is the recognized class of a network failure.
type Category int

const (
	CategoryNone Category = iota
	CategoryTimeout
	CategoryDNS
	CategoryRefused
	CategoryTLS
	CategoryServer
	CategoryOther
)

var (
	timeoutMarkers = []string{"timeout", "deadline exceeded"}
	refusedMarkers = []string{"connection refused"}
	tlsMarkers     = []string{"tls", "ssl", "certificate", "handshake", "x509"}
	serverMarkers  = []string{
		" 500 ", " 502 ", " 503 ", " 504 ",
		"internal server error", "bad gateway", "service unavailable", "gateway timeout",
	}
)

// Classify returns the category of err. Errors that do not look like network
// failures at all, such as SQL errors, are CategoryNone.
func Classify(err error) Category {
	if err == nil {
		return CategoryNone
	}
	msg := " " + strings.ToLower(err.Error()) + " "

	var netErr net.Error
	if (errors.As(err, &netErr) && netErr.Timeout()) || containsAny(msg, timeoutMarkers) {
		return CategoryTimeout
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return CategoryDNS
	}
	if errors.Is(err, syscall.ECONNREFUSED) || containsAny(msg, refusedMarkers) {
		return CategoryRefused
	}
	if containsAny(msg, tlsMarkers) {
		return CategoryTLS
	}
	if containsAny(msg, serverMarkers) {
		return CategoryServer
	}
	var opErr *net.OpError
	var urlErr *url.Error
	if errors.As(err, &opErr) || errors.As(err, &urlErr) {
		return CategoryOther
	}
	return CategoryNone
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}

// Note is the troubleshooting text shown for one failure.
type Note struct {
	Title  string
	Checks []string
}

// Describe builds the note for a category. action reads like "verifying the
// API key"; host names the remote end.
func Describe(category Category, action, host string) Note {
	switch category {
	case CategoryTimeout:
		return Note{
			Title:  "Timed out while " + action,
			Checks: []string{"the provider or database may be overloaded", "a proxy or firewall may be dropping the connection"},
		}
	case CategoryDNS:
		return Note{
			Title:  fmt.Sprintf("Cannot resolve %s while %s", host, action),
			Checks: []string{"the host name in the base URL or DSN", "your DNS settings"},
		}
	case CategoryRefused:
		return Note{
			Title:  fmt.Sprintf("%s refused the connection while %s", host, action),
			Checks: []string{"the service is running", "the port in the base URL or DSN"},
		}
	case CategoryTLS:
		return Note{
			Title:  "Secure connection failed while " + action,
			Checks: []string{"the server certificate", "your system clock", "sslmode in the DSN"},
		}
	case CategoryServer:
		return Note{
			Title:  fmt.Sprintf("%s returned a server error while %s", host, action),
			Checks: []string{"provider outages and rate limits usually clear up; try again in a few minutes"},
		}
	default:
		return Note{
			Title:  fmt.Sprintf("Cannot reach %s while %s", host, action),
			Checks: []string{"your network connection", "proxy or firewall settings"},
		}
	}
}

// FormatNetworkError prints a troubleshooting note when err is a network
// failure talking to host and returns err wrapped. Other errors come back
// unchanged and nothing is printed.
func FormatNetworkError(err error, action, host string) error {
	category := Classify(err)
	if category == CategoryNone {
		return err
	}
	note := Describe(category, action, host)
	pterm.Warning.Println(note.Title)
	items := make([]pterm.BulletListItem, 0, len(note.Checks))
	for _, c := range note.Checks {
		items = append(items, pterm.BulletListItem{Level: 1, Text: c})
	}
	_ = pterm.DefaultBulletList.WithItems(items).Render()
	pterm.Debug.Printf("details: %s\n", truncate(err.Error(), 120))
	return fmt.Errorf("network error: %w", err)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// ExtractHostFromURL returns host[:port] of urlStr, or "server" when it has none.
func ExtractHostFromURL(urlStr string) string {
	u, err := url.Parse(urlStr)
	if err != nil || u.Host == "" {
		return "server"
	}
	return u.Host
}
