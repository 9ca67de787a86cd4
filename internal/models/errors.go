package models

import "errors"

var (
	// ErrCorruptState is returned when persisted session state cannot be decoded or does not fit the workflow.
	ErrCorruptState = errors.New("corrupt session state")
	// ErrInvalidFacetValue is returned when user input does not satisfy a facet's rule.
	ErrInvalidFacetValue = errors.New("invalid facet value")
	// ErrUnknownSelection is returned when a selection references something outside the presented results.
	ErrUnknownSelection = errors.New("unknown selection")
	// ErrEmptySelection is returned when no items were picked and zero picks are not allowed.
	ErrEmptySelection = errors.New("empty selection")
	// ErrTooManySelections is returned when more than one item is picked in single-selection mode.
	ErrTooManySelections = errors.New("too many selections")
	// ErrInvalidConfig is returned when a workflow configuration is rejected.
	ErrInvalidConfig = errors.New("invalid workflow configuration")
)
