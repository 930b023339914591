package models

import "time"

// Setting is an operator-tunable key/value pair, e.g. the default generation
// model applied when a create request names none.
type Setting struct {
	Key       string    `db:"key"        json:"key"`
	Value     string    `db:"value"      json:"value"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// SettingDefaultModel overrides the configured default model id when set.
const SettingDefaultModel = "default_model"
