package models

// Known user setting keys.
const (
	SettingDemoNotebookID = "demo_notebook_id"
)

// UserSetting is a key/value row in user_settings.
type UserSetting struct {
	Key       string `json:"key"`
	Value     string `json:"value"`
	UpdatedAt int64  `json:"updatedAt"`
}
