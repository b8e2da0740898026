package cache

// Settings is the locally persisted preference object. It is never stored
// remotely; the cache-version guard resets it to these defaults after a
// breaking change to the persisted shape.
type Settings struct {
	Profile       Profile       `json:"profile"`
	Notifications Notifications `json:"notifications"`
	DarkMode      bool          `json:"darkMode"`
	Language      string        `json:"language"`
	Timezone      string        `json:"timezone"`
}

type Profile struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
	Role  string `json:"role"`
}

type Notifications struct {
	NewLeads      bool `json:"newLeads"`
	TaskReminders bool `json:"taskReminders"`
	EventAlerts   bool `json:"eventAlerts"`
	NewMessages   bool `json:"newMessages"`
}

func DefaultSettings() Settings {
	return Settings{
		Profile: Profile{Role: "admin"},
		Notifications: Notifications{
			NewLeads:      true,
			TaskReminders: true,
			EventAlerts:   true,
			NewMessages:   true,
		},
		DarkMode: false,
		Language: "en",
		Timezone: "Europe/Lisbon",
	}
}
