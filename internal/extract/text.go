package extract

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	whitespacePattern  = regexp.MustCompile(`\s+`)
	moneyPattern       = regexp.MustCompile(`\$?(\d+(?:\.\d{1,2})?)`)
	intPattern         = regexp.MustCompile(`(\d+)`)
	hourlyRangePattern = regexp.MustCompile(`\$([\d,.]+)\s*[-–]\s*\$([\d,.]+)`)
)

// cleanText collapses runs of whitespace and trims the result.
func cleanText(text string) string {
	if text == "" {
		return ""
	}
	return strings.TrimSpace(whitespacePattern.ReplaceAllString(text, " "))
}

// parseMoney extracts the leading numeric token from text like "$1,500.00",
// ignoring thousands separators.
func parseMoney(text string) *float64 {
	if text == "" {
		return nil
	}
	match := moneyPattern.FindStringSubmatch(strings.ReplaceAll(text, ",", ""))
	if match == nil {
		return nil
	}
	v, err := strconv.ParseFloat(match[1], 64)
	if err != nil {
		return nil
	}
	return &v
}

// parseCount extracts the leading integer token from text like "15 proposals".
func parseCount(text string) *int {
	if text == "" {
		return nil
	}
	match := intPattern.FindStringSubmatch(text)
	if match == nil {
		return nil
	}
	v, err := strconv.Atoi(match[1])
	if err != nil {
		return nil
	}
	return &v
}

// parseHourlyRange pulls both bounds out of text like "Hourly: $30.00-$45.00".
func parseHourlyRange(text string) (low, high *float64) {
	match := hourlyRangePattern.FindStringSubmatch(text)
	if match == nil {
		return nil, nil
	}
	return parseMoney(match[1]), parseMoney(match[2])
}

// isHourly reports whether budget text describes hourly pricing.
func isHourly(text string) bool {
	lower := strings.ToLower(text)
	return strings.Contains(lower, "hourly") || strings.Contains(lower, "/hr")
}
