package jobs

import "errors"

var (
	ErrPromptRequired = errors.New("prompt is required")
	ErrModelRequired  = errors.New("no model configured")
)
