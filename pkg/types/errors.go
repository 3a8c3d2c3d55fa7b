package types

import "errors"

// Domain errors for index validation
var (
	ErrEmptyPath           = errors.New("source path cannot be empty")
	ErrDuplicateDependency = errors.New("duplicate dependency specifier")
	ErrDuplicatePath       = errors.New("duplicate source path")
	ErrProjectNotFound     = errors.New("project path not found")
)
