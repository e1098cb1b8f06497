package core

// Error Codes Reference
//
// Codes are quoted by users to support staff. Each entry lists the message,
// the suggested action and what it matches.
//
// # Import Errors (IMP001-IMP099)
//
//	IMP001 - File has no data rows
//	         Action: Export again including the header and at least one row
//	         Matches: importer.ErrTooFewLines
//
//	IMP002 - A required column is missing
//	         Action: Check the export includes the identity and item code columns
//	         Matches: importer.ErrHeaderUnresolved
//
//	IMP003 - File has too many rows
//	         Action: Split the export into smaller files
//	         Matches: importer.ErrTooManyRows
//
//	IMP004 - Unknown import mode
//	         Action: Use mode=merge or mode=replace
//	         Matches: reconcile.ErrUnknownMode
//
// # File Errors (FILE001-FILE099)
//
//	FILE001 - File too large        Matches: ErrFileTooLarge, "request body too large"
//	FILE002 - Upload form invalid   Matches: "multipart"
//	FILE003 - Unreadable encoding   Matches: importer.ErrEncoding
//	FILE004 - No file provided      Matches: ErrNoFile, "no such file"
//
// # Persistence Errors (PER001-PER099)
//
//	PER001 - Changes not saved locally   Matches: persist.ErrLocalWrite
//	PER002 - No mirror configured        Matches: persist.ErrNoMirror
//	PER003 - Registry still loading      Matches: persist.ErrNotHydrated
//	PER004 - Storage unreachable         Matches: "connection refused", "connection reset"
//	PER005 - Storage timed out           Matches: "i/o timeout"
//
// # Registry Errors (REG001-REG099)
//
//	REG001 - Member not found            Matches: ErrMemberNotFound
//	REG002 - Account not found           Matches: ErrAccountNotFound
//	REG003 - Login already registered    Matches: reconcile.ErrAlreadyClaimed
//	REG004 - Member disabled             Matches: reconcile.ErrMemberDisabled
//	REG005 - Claim details incomplete    Matches: reconcile.ErrInvalidClaim
//
// # Validation Errors (VAL001-VAL099)
//
//	VAL001 - Request fields invalid      Matches: "field validation"
//
// # Import Run Errors (UPL001-UPL099)
//
//	UPL002 - Too many imports running    Matches: ErrTooManyImports
//	UPL004 - Import cancelled            Matches: context.Canceled
//	UPL005 - Import timed out            Matches: context.DeadlineExceeded
//
// # Rate Limiting (RATE001)
//
//	RATE001 - Too many requests          Matches: "rate limit"
//
// ERR000 is the fallback; the technical error is in the logs.

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/JonMunkholm/registrysync/internal/importer"
	"github.com/JonMunkholm/registrysync/internal/persist"
	"github.com/JonMunkholm/registrysync/internal/reconcile"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

// sentinelMessages is consulted first, with errors.Is. Order matters where
// one error wraps another.
var sentinelMessages = []struct {
	target error
	msg    UserMessage
}{
	// Import structure
	{importer.ErrTooFewLines, UserMessage{
		Message: "The file has no data rows",
		Action:  "Export again including the header and at least one row",
		Code:    "IMP001",
	}},
	{importer.ErrHeaderUnresolved, UserMessage{
		Message: "A required column is missing from the file",
		Action:  "Check the export includes the identity and item code columns",
		Code:    "IMP002",
	}},
	{importer.ErrTooManyRows, UserMessage{
		Message: "The file has too many rows",
		Action:  "Split the export into smaller files",
		Code:    "IMP003",
	}},
	{reconcile.ErrUnknownMode, UserMessage{
		Message: "Unknown import mode",
		Action:  "Use mode=merge or mode=replace",
		Code:    "IMP004",
	}},

	// File
	{ErrFileTooLarge, UserMessage{
		Message: "File exceeds the maximum size limit",
		Action:  "Split the export into smaller files",
		Code:    "FILE001",
	}},
	{importer.ErrEncoding, UserMessage{
		Message: "The file could not be read as text",
		Action:  "Save the export as UTF-8 CSV and try again",
		Code:    "FILE003",
	}},
	{ErrNoFile, UserMessage{
		Message: "No file was provided",
		Action:  "Attach the export in the 'file' field",
		Code:    "FILE004",
	}},

	// Persistence
	{persist.ErrLocalWrite, UserMessage{
		Message: "The change was applied but could not be saved",
		Action:  "Check the local store and retry; the change is lost on restart",
		Code:    "PER001",
	}},
	{persist.ErrNoMirror, UserMessage{
		Message: "No remote mirror is configured",
		Action:  "Set REMOTE_MIRROR to enable syncing",
		Code:    "PER002",
	}},
	{persist.ErrNotHydrated, UserMessage{
		Message: "The registry is still loading",
		Action:  "Please try again in a few moments",
		Code:    "PER003",
	}},

	// Registry
	{ErrMemberNotFound, UserMessage{
		Message: "Member not found",
		Action:  "Check the identity number",
		Code:    "REG001",
	}},
	{ErrAccountNotFound, UserMessage{
		Message: "Account not found",
		Action:  "Check the account code",
		Code:    "REG002",
	}},
	{reconcile.ErrAlreadyClaimed, UserMessage{
		Message: "A login is already registered for this member",
		Action:  "Sign in instead, or contact the office to reset it",
		Code:    "REG003",
	}},
	{reconcile.ErrMemberDisabled, UserMessage{
		Message: "This member is disabled",
		Action:  "Contact the office",
		Code:    "REG004",
	}},
	{reconcile.ErrInvalidClaim, UserMessage{
		Message: "Identity and password are required",
		Action:  "Fill in both fields",
		Code:    "REG005",
	}},

	// Import run
	{ErrTooManyImports, UserMessage{
		Message: "Too many imports are running",
		Action:  "Please wait for current imports to finish and try again",
		Code:    "UPL002",
	}},
	{context.Canceled, UserMessage{
		Message: "The import was cancelled",
		Action:  "Start the import again",
		Code:    "UPL004",
	}},
	{context.DeadlineExceeded, UserMessage{
		Message: "The operation timed out",
		Action:  "Try a smaller file or try again later",
		Code:    "UPL005",
	}},
}

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns catches errors from outside this module (drivers, net/http,
// validator) by case-insensitive substring. The first match wins.
var errorPatterns = []errorPattern{
	{
		pattern: "request body too large",
		msg: UserMessage{
			Message: "File exceeds the maximum size limit",
			Action:  "Split the export into smaller files",
			Code:    "FILE001",
		},
	},
	{
		pattern: "multipart",
		msg: UserMessage{
			Message: "The upload form could not be read",
			Action:  "Send the file as multipart/form-data in the 'file' field",
			Code:    "FILE002",
		},
	},
	{
		pattern: "no such file",
		msg: UserMessage{
			Message: "No file was provided",
			Action:  "Check the file path",
			Code:    "FILE004",
		},
	},
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to reach storage",
			Action:  "Please try again in a few moments",
			Code:    "PER004",
		},
	},
	{
		pattern: "connection reset",
		msg: UserMessage{
			Message: "Unable to reach storage",
			Action:  "Please try again",
			Code:    "PER004",
		},
	},
	{
		pattern: "i/o timeout",
		msg: UserMessage{
			Message: "Storage timed out",
			Action:  "Please try again later",
			Code:    "PER005",
		},
	},
	{
		pattern: "field validation",
		msg: UserMessage{
			Message: "Some fields are invalid",
			Action:  "Check the request fields and try again",
			Code:    "VAL001",
		},
	},
	{
		pattern: "rate limit",
		msg: UserMessage{
			Message: "Too many requests",
			Action:  "Please wait a moment before trying again",
			Code:    "RATE001",
		},
	},
}

// defaultMessage is returned when nothing matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message. Known
// sentinels are matched through the wrap chain first, then the error text is
// searched for known patterns. Unknown errors map to ERR000.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	for _, sm := range sentinelMessages {
		if errors.Is(err, sm.target) {
			return sm.msg
		}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError renders "Message (Code: XXX). Action".
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to a specific message rather than the
// ERR000 fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError pairs a technical error with its user-facing message.
type UserError struct {
	Technical error       // Original technical error for logging
	User      UserMessage // User-friendly message for display
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError maps err. Returns nil if err is nil.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}
