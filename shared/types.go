package shared

type AgentConfig struct {
	Device   DeviceConfig   `mapstructure:"device" validate:"required"`
	Backend  BackendConfig  `mapstructure:"backend" validate:"required"`
	Sqlite   SqliteConfig   `mapstructure:"sqlite"`
	Tracking TrackingConfig `mapstructure:"tracking"`
	Listener ListenerConfig `mapstructure:"listener" validate:"required"`
	Maps     MapsConfig     `mapstructure:"maps"`
	Twilio   TwilioConfig   `mapstructure:"twilio"`
	Google   GoogleConfig   `mapstructure:"google"`
}

type DeviceConfig struct {
	// Secret is stretched into the passphrase for the local state store.
	Secret string `mapstructure:"secret" validate:"required"`
}

type BackendConfig struct {
	URL string `mapstructure:"url" validate:"required,url"`
}

type SqliteConfig struct {
	// Deprecated in favour of deriving the passphrase from device.secret,
	// but still honoured when set so older configs keep working.
	PassPhrase string `mapstructure:"passPhrase"`
}

type TrackingConfig struct {
	// ReportIntervalMinutes is the minimum gap between two location
	// reports within a journey. Defaults to 5.
	ReportIntervalMinutes int    `mapstructure:"reportIntervalMinutes" validate:"omitempty,min=1"`
	TimeZone              string `mapstructure:"timeZone"`
}

type ListenerConfig struct {
	// Port for the local push-notification webhook.
	Port int `mapstructure:"port" validate:"required"`
}

type MapsConfig struct {
	// APIKey for the geocoding/directions collaborator. Route preview is
	// skipped when empty.
	APIKey string `mapstructure:"apiKey"`
}

type TwilioConfig struct {
	AccountSid          string `mapstructure:"accountSid"`
	AuthToken           string `mapstructure:"authToken"`
	MessagingServiceSid string `mapstructure:"messagingServiceSid"`
}

type GoogleConfig struct {
	ApplicationCredentials string        `mapstructure:"applicationCredentials"`
	Storage                StorageConfig `mapstructure:"storage"`
}

type StorageConfig struct {
	// Bucket and StateBackupSchedule are only consulted when
	// EnableStateBackup is true; agent setup rejects an enabled backup
	// that is missing either.
	Bucket              string      `mapstructure:"bucket"`
	Prefix              string      `mapstructure:"prefix"`
	StateBackupSchedule string      `mapstructure:"stateBackupSchedule"`
	EnableStateBackup   interface{} `mapstructure:"enableStateBackup"`
}
