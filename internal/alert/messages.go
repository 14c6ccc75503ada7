package alert

import (
	"fmt"

	"go-healthwatch/internal/threshold"
)

// Alert texts shared by the live checks and the analyzer.

func SiteDown(url, reason string) string {
	return fmt.Sprintf("⚠ ALERT: %s is DOWN! (%s)", url, reason)
}

func CertUnavailable(url string) string {
	return fmt.Sprintf("⚠ ALERT: Could not retrieve SSL certificate for %s.", url)
}

func CertExpiring(url string, daysLeft int) string {
	return fmt.Sprintf("⚠ ALERT: %s SSL Certificate expires in %d days!", url, daysLeft)
}

func HighUsage(d threshold.Decision, server, project string) string {
	icon := "🔥"
	switch d.Metric {
	case threshold.MetricMemory:
		icon = "💾"
	case threshold.MetricDisk:
		icon = "📦"
	}
	return fmt.Sprintf("%s *High %s usage on %s (Project: %s):* %.2f%%", icon, d.Metric, server, project, d.Value)
}

func SamplingFailed(server string, err error) string {
	return fmt.Sprintf("🚨 *Could not sample system health on %s:* %v", server, err)
}

func DatabaseInactive(db, project string) string {
	return fmt.Sprintf("🚨 *Database %s (Project: %s) status is INACTIVE!* Please check immediately.", db, project)
}

func AnalyzedCertExpiring(url string, daysLeft int) string {
	return fmt.Sprintf("🔐 *SSL certificate for %s expires in %d days.* Please renew.", url, daysLeft)
}

func AnalyzedSiteDown(url string, status int) string {
	return fmt.Sprintf("❌ *App at %s is down.* HTTP Status: %d. Please check the server.", url, status)
}

func StoreUnavailable(err error) string {
	return fmt.Sprintf("🚨 *Database connection failed:* %v", err)
}

func StoreQueryFailed(table string, err error) string {
	return fmt.Sprintf("🚨 *Status store query failed (%s):* %v", table, err)
}

func ScriptError(err any) string {
	return fmt.Sprintf("🚨 *Script error:* %v", err)
}
