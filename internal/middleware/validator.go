package middleware

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Input validation and sanitization utilities

const maxTextLength = 4000

var analysisIDPattern = regexp.MustCompile(`^[a-f0-9]{8}-[a-f0-9]{4}-[a-f0-9]{4}-[a-f0-9]{4}-[a-f0-9]{12}$`)

// ParseID parses a positive numeric identifier from a URL parameter
func ParseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id: %q", raw)
	}
	return id, nil
}

// ValidateAnalysisID validates the uuid form of analysis identifiers
func ValidateAnalysisID(id string) error {
	if id == "" {
		return fmt.Errorf("analysis ID cannot be empty")
	}
	if !analysisIDPattern.MatchString(strings.ToLower(id)) {
		return fmt.Errorf("invalid analysis ID format")
	}
	return nil
}

// ValidateText checks user-supplied entry/message text
func ValidateText(text string) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("text cannot be empty")
	}
	if len(text) > maxTextLength {
		return fmt.Errorf("text exceeds %d characters", maxTextLength)
	}
	return nil
}

// ValidateEmail does a shape check, not RFC validation
func ValidateEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return fmt.Errorf("email cannot be empty")
	}
	at := strings.Index(email, "@")
	if at <= 0 || at == len(email)-1 || len(email) > 254 {
		return fmt.Errorf("invalid email format")
	}
	return nil
}

// ParsePagination bounds the page parameters
func ParsePagination(pageRaw, sizeRaw string) (page, pageSize int) {
	page, _ = strconv.Atoi(pageRaw)
	if page <= 0 {
		page = 1
	}
	pageSize, _ = strconv.Atoi(sizeRaw)
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	return page, pageSize
}

// SanitizeString removes dangerous characters from strings
func SanitizeString(input string) string {
	// Remove null bytes
	input = strings.ReplaceAll(input, "\x00", "")

	// Remove control characters
	var result strings.Builder
	for _, r := range input {
		if r >= 32 || r == '\t' || r == '\n' {
			result.WriteRune(r)
		}
	}

	return strings.TrimSpace(result.String())
}
