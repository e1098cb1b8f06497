package core

import (
	"errors"

	"github.com/JonMunkholm/registrysync/internal/importer"
)

var (
	ErrMemberNotFound  = errors.New("member not found")
	ErrAccountNotFound = errors.New("account not found")
	ErrNoFile          = errors.New("no file provided")

	// ErrFileTooLarge is the importer's sentinel so either layer can match it.
	ErrFileTooLarge = importer.ErrFileTooLarge
)
