package service

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"gorm.io/gorm"
)

var (
	// ErrValidation marks requests rejected before any state change.
	ErrValidation = errors.New("validation error")
	// ErrNotFound marks unknown file/segment/mapping/text-unit ids.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyProcessing is returned when a process or cut run is already
	// in flight for the file; per-file operations never interleave.
	ErrAlreadyProcessing = errors.New("operation already in flight for this file")
	// ErrProcessingFailed is the generic signal re-raised to the caller when
	// a pipeline stage fails; full detail stays in the file's error_message.
	ErrProcessingFailed = errors.New("processing failed")
)

// maxErrorMessageLen bounds what gets persisted into error_message.
const maxErrorMessageLen = 500

// truncateErrorMessage bounds a stage error for the error_message column.
// ffmpeg stderr may carry arbitrary bytes; the result is always valid UTF-8
// and never cut mid-rune, since postgres rejects invalid text outright.
func truncateErrorMessage(msg string) string {
	msg = strings.ToValidUTF8(msg, "")
	if len(msg) <= maxErrorMessageLen {
		return msg
	}

	cut := maxErrorMessageLen - 3
	for cut > 0 && !utf8.RuneStart(msg[cut]) {
		cut--
	}
	return msg[:cut] + "..."
}

// wrapNotFound converts gorm's record-not-found into the service taxonomy,
// naming the entity that was missing.
func wrapNotFound(err error, entity string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, entity)
	}
	return err
}
