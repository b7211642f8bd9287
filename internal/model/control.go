package model

// ControlFile is the on-disk visibility state of the navigation control. The
// survey host may rewrite it at any time; the gate observes every write and
// re-asserts hidden until its deadline.
type ControlFile struct {
	SchemaVersion int    `yaml:"schema_version"`
	FileType      string `yaml:"file_type"`
	Visible       bool   `yaml:"visible"`
	UpdatedAt     string `yaml:"updated_at"`
	UpdatedBy     string `yaml:"updated_by"`
}

const ControlFileType = "control"
