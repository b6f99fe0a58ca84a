// Package party normalizes and validates encounter participant identifiers.
//
// A participant is identified either by a platform handle (leading "@") or by
// a free-text legal name. Handles are canonicalized to a lower-case form with
// a single leading "@"; legal names are only trimmed.
package party

import (
	"sort"
	"strings"
	"unicode"

	apperrors "github.com/pmyapp/accord/internal/platform/errors"
)

const (
	// maxHandleLength bounds the handle length excluding the leading "@".
	maxHandleLength = 30
	// minNameLength is the minimum count of non-whitespace characters in a
	// free-text legal name.
	minNameLength = 2
)

var (
	// ErrHandleInvalid indicates a handle with characters outside the allowed set.
	ErrHandleInvalid = apperrors.New(apperrors.CodePartyHandleInvalid, "handle may only contain letters, digits, underscore, and period")
	// ErrHandleTooLong indicates a handle beyond the maximum length.
	ErrHandleTooLong = apperrors.New(apperrors.CodePartyHandleTooLong, "handle is too long")
	// ErrNameTooShort indicates a legal name with too few characters.
	ErrNameTooShort = apperrors.New(apperrors.CodePartyNameTooShort, "name is too short")
	// ErrRequired indicates a missing participant where one is required.
	ErrRequired = apperrors.New(apperrors.CodeFlowPartyRequired, "participant is required")
	// ErrDuplicate indicates a participant handle already used by another slot.
	ErrDuplicate = apperrors.New(apperrors.CodePartyDuplicate, "participant is already listed")
)

// IsHandle reports whether the raw value is meant as a platform handle.
func IsHandle(raw string) bool {
	return strings.HasPrefix(strings.TrimSpace(raw), "@")
}

// Canonicalize trims and normalizes a raw participant identifier.
//
// An empty value after trimming is not an error; it means "not yet filled".
// Handle values are lower-cased and returned with a single leading "@".
// Legal names are returned trimmed with only a minimum-length check.
func Canonicalize(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", nil
	}

	if !strings.HasPrefix(trimmed, "@") {
		if countNonSpace(trimmed) < minNameLength {
			return "", ErrNameTooShort
		}
		return trimmed, nil
	}

	handle := strings.ToLower(strings.TrimLeft(trimmed, "@"))
	if handle == "" {
		return "", ErrHandleInvalid
	}
	if len(handle) > maxHandleLength {
		return "", ErrHandleTooLong
	}
	for _, r := range handle {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') && r != '_' && r != '.' {
			return "", ErrHandleInvalid
		}
	}
	return "@" + handle, nil
}

// Validate canonicalizes every party slot and returns a per-index error map.
//
// When required is true, empty slots are reported as missing. Duplicate
// handles (case-insensitive on canonical form) are reported on every slot
// after the first occurrence and are never removed automatically.
func Validate(parties []string, required bool) ErrorMap {
	errs := ErrorMap{}
	seen := make(map[string]int, len(parties))
	for i, raw := range parties {
		canonical, err := Canonicalize(raw)
		if err != nil {
			errs[i] = err
			continue
		}
		if canonical == "" {
			if required {
				errs[i] = ErrRequired
			}
			continue
		}
		if !strings.HasPrefix(canonical, "@") {
			continue
		}
		if _, dup := seen[canonical]; dup {
			errs[i] = ErrDuplicate
			continue
		}
		seen[canonical] = i
	}
	return errs
}

// ErrorMap records validation errors keyed by party index.
type ErrorMap map[int]error

// RemoveIndex drops the error recorded for index i and re-keys every error
// above i down by one, keeping errors aligned after a party is removed.
func (m ErrorMap) RemoveIndex(i int) {
	if m == nil {
		return
	}
	delete(m, i)
	indexes := make([]int, 0, len(m))
	for idx := range m {
		if idx > i {
			indexes = append(indexes, idx)
		}
	}
	// Shift ascending so a re-keyed entry never clobbers a pending one.
	sort.Ints(indexes)
	for _, idx := range indexes {
		m[idx-1] = m[idx]
		delete(m, idx)
	}
}

func countNonSpace(value string) int {
	count := 0
	for _, r := range value {
		if !unicode.IsSpace(r) {
			count++
		}
	}
	return count
}

// HasErrors reports whether any index carries an error.
func (m ErrorMap) HasErrors() bool {
	return len(m) > 0
}
