// Package validation holds length/charset rules and sanitization
// helpers shared by every handler, grounded on the exact constants and
// predicates of the reference domain's validation rules.
package validation

import (
	"strings"
	"unicode"

	"github.com/iohzrd/echora/internal/apperror"
)

const (
	MaxMessageLength      = 4000
	MaxChannelNameLength  = 50
	MinUsernameLength     = 2
	MaxUsernameLength     = 32
	MaxEmailLength        = 254
	MinPasswordLength     = 8
	MaxPasswordLength     = 128
	MaxEmojiLength        = 32
	ReplyPreviewLength    = 200
	MaxReasonLength       = 500
	MaxServerNameLength   = 100
	MaxImageProxySize     = 10 * 1024 * 1024
	BroadcastCapacity     = 256
	MaxAttachmentSize     = 250 * 1024 * 1024
	MaxCustomEmojiSize    = 256 * 1024
	MaxCustomEmojiName    = 32
	MaxAttachmentsPerMsg  = 5
	MaxFilenameLength     = 255
	MessageRateCapacity   = 5.0
	MessageRateRefillRate = 1.0
	MaxAvatarSize         = 2 * 1024 * 1024
	MaxDisplayNameLength  = 64
	LinkPreviewDescMax    = 300
)

var AllowedAttachmentTypes = map[string]bool{
	"image/jpeg": true, "image/png": true, "image/gif": true, "image/webp": true,
	"image/svg+xml": true, "video/mp4": true, "video/webm": true,
	"audio/mpeg": true, "audio/ogg": true, "audio/wav": true, "audio/webm": true,
	"application/pdf": true, "text/plain": true, "application/zip": true,
	"application/gzip": true, "application/x-tar": true,
}

var AllowedEmojiTypes = map[string]bool{
	"image/png": true, "image/gif": true, "image/webp": true, "image/jpeg": true,
}

var AllowedAvatarTypes = AllowedEmojiTypes

// Truncate truncates s to at most n chars, appending an ellipsis
// sentinel if truncation occurred. Truncating a string already <= n
// runes is the identity.
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

func ValidateUsername(name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if len([]rune(trimmed)) < MinUsernameLength || len([]rune(trimmed)) > MaxUsernameLength {
		return "", apperror.BadRequestf("Username must be between 2 and 32 characters")
	}
	for _, c := range trimmed {
		if !isAsciiAlnum(c) && c != '_' && c != '-' {
			return "", apperror.BadRequestf("Username can only contain ASCII letters, numbers, underscores, and hyphens")
		}
	}
	return trimmed, nil
}

func ValidateEmail(email string) (string, error) {
	e := strings.ToLower(strings.TrimSpace(email))
	if e == "" || len(e) > MaxEmailLength {
		return "", apperror.BadRequestf("Invalid email address")
	}
	local, domain, ok := strings.Cut(e, "@")
	if !ok || local == "" || strings.Contains(local, " ") ||
		len(domain) < 3 || strings.Contains(domain, " ") ||
		!strings.Contains(domain, ".") ||
		strings.HasPrefix(domain, ".") || strings.HasSuffix(domain, ".") ||
		strings.Contains(domain, "..") {
		return "", apperror.BadRequestf("Invalid email address")
	}
	return e, nil
}

func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return apperror.BadRequestf("Password must be at least 8 characters")
	}
	if len(password) > MaxPasswordLength {
		return apperror.BadRequestf("Password must be at most 128 characters")
	}
	return nil
}

func ValidateMessageContent(content string) error {
	if strings.TrimSpace(content) == "" || len([]rune(content)) > MaxMessageLength {
		return apperror.BadRequestf("Message must be between 1 and 4000 characters")
	}
	return nil
}

// ValidateMessageContentOptional allows empty content when attachments
// are present.
func ValidateMessageContentOptional(content string, hasAttachments bool) error {
	if strings.TrimSpace(content) != "" {
		return ValidateMessageContent(content)
	}
	if hasAttachments {
		return nil
	}
	return apperror.BadRequestf("Message must have content or attachments")
}

func ValidateChannelName(name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" || len([]rune(trimmed)) > MaxChannelNameLength {
		return "", apperror.BadRequestf("Channel name must be between 1 and 50 characters")
	}
	for _, c := range trimmed {
		if !isAlnum(c) && c != '-' && c != '_' && c != ' ' {
			return "", apperror.BadRequestf("Channel name can only contain letters, numbers, hyphens, underscores, and spaces")
		}
	}
	return trimmed, nil
}

func ValidateEmojiName(name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" || len([]rune(trimmed)) > MaxCustomEmojiName {
		return "", apperror.BadRequestf("Emoji name must be between 1 and 32 characters")
	}
	for _, c := range trimmed {
		if !isAsciiAlnum(c) && c != '_' && c != '-' {
			return "", apperror.BadRequestf("Emoji name can only contain ASCII letters, numbers, underscores, and hyphens")
		}
	}
	return trimmed, nil
}

func ValidateDisplayName(name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" || len([]rune(trimmed)) > MaxDisplayNameLength {
		return "", apperror.BadRequestf("Display name must be between 1 and 64 characters")
	}
	return trimmed, nil
}

func ValidateReason(reason string) error {
	if len(reason) > MaxReasonLength {
		return apperror.BadRequestf("Reason must be at most %d characters", MaxReasonLength)
	}
	return nil
}

func ValidateFilename(name string) (string, error) {
	var b strings.Builder
	for _, c := range name {
		switch c {
		case '/', '\\', 0, ':', '*', '?', '"', '<', '>', '|':
			continue
		}
		b.WriteRune(c)
	}
	sanitized := strings.TrimSpace(b.String())
	if sanitized == "" || len(sanitized) > MaxFilenameLength {
		return "", apperror.BadRequestf("Invalid filename")
	}
	return sanitized, nil
}

func ValidateAttachmentContentType(contentType string) error {
	if !AllowedAttachmentTypes[contentType] {
		return apperror.BadRequestf("File type '%s' is not allowed", contentType)
	}
	return nil
}

func ValidateEmojiContentType(contentType string) error {
	if !AllowedEmojiTypes[contentType] {
		return apperror.BadRequestf("Emoji image type '%s' is not allowed. Use PNG, GIF, WebP, or JPEG.", contentType)
	}
	return nil
}

func ValidateAvatarContentType(contentType string) error {
	if !AllowedAvatarTypes[contentType] {
		return apperror.BadRequestf("Avatar image type '%s' is not allowed. Use PNG, GIF, WebP, or JPEG.", contentType)
	}
	return nil
}

func isAsciiAlnum(c rune) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

func isAlnum(c rune) bool {
	return unicode.IsLetter(c) || unicode.IsDigit(c)
}
