package models

// NotificationPreferences gates which alert categories produce pushes
type NotificationPreferences struct {
	HeartRateAlerts     bool `json:"heartRateAlerts"`
	BloodPressureAlerts bool `json:"bloodPressureAlerts"`
	BloodSugarAlerts    bool `json:"bloodSugarAlerts"`
	InactivityAlerts    bool `json:"inactivityAlerts"`
	WeeklyReports       bool `json:"weeklyReports"`
}

// DefaultNotificationPreferences everything enabled
func DefaultNotificationPreferences() NotificationPreferences {
	return NotificationPreferences{
		HeartRateAlerts:     true,
		BloodPressureAlerts: true,
		BloodSugarAlerts:    true,
		InactivityAlerts:    true,
		WeeklyReports:       true,
	}
}

// AllowsMetric reports whether alerts for metric should be pushed
func (p NotificationPreferences) AllowsMetric(m Metric) bool {
	switch m {
	case MetricHeartRate:
		return p.HeartRateAlerts
	case MetricBloodPressure:
		return p.BloodPressureAlerts
	case MetricBloodSugar:
		return p.BloodSugarAlerts
	case MetricSteps:
		return p.InactivityAlerts
	}
	return false
}

// Fields document form
func (p NotificationPreferences) Fields() map[string]interface{} {
	return map[string]interface{}{
		"heartRateAlerts":     p.HeartRateAlerts,
		"bloodPressureAlerts": p.BloodPressureAlerts,
		"bloodSugarAlerts":    p.BloodSugarAlerts,
		"inactivityAlerts":    p.InactivityAlerts,
		"weeklyReports":       p.WeeklyReports,
	}
}

// PreferencesFromFields missing keys keep their default (enabled)
func PreferencesFromFields(f map[string]interface{}) NotificationPreferences {
	p := DefaultNotificationPreferences()
	if f == nil {
		return p
	}
	read := func(key string, dst *bool) {
		if v, ok := f[key]; ok {
			*dst = Bool(v)
		}
	}
	read("heartRateAlerts", &p.HeartRateAlerts)
	read("bloodPressureAlerts", &p.BloodPressureAlerts)
	read("bloodSugarAlerts", &p.BloodSugarAlerts)
	read("inactivityAlerts", &p.InactivityAlerts)
	read("weeklyReports", &p.WeeklyReports)
	return p
}

// User canonical profile stored at users/{id}
type User struct {
	ID                      string                  `json:"id"`
	Email                   string                  `json:"email"`
	DisplayName             string                  `json:"displayName"`
	IsParent                bool                    `json:"isParent"`
	IsCaregiver             bool                    `json:"isCaregiver"`
	BirthDate               string                  `json:"birthDate,omitempty"` // YYYY-MM-DD
	Gender                  string                  `json:"gender,omitempty"`
	CaregiverIDs            []string                `json:"caregiverIds"`
	ParentIDs               []string                `json:"parentIds"`
	FCMToken                string                  `json:"fcmToken,omitempty"`
	NotificationPreferences NotificationPreferences `json:"notificationPreferences"`
}

// Name display name falling back to email
func (u *User) Name() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.Email
}

// Fields document form
func (u *User) Fields() map[string]interface{} {
	caregivers := u.CaregiverIDs
	if caregivers == nil {
		caregivers = []string{}
	}
	parents := u.ParentIDs
	if parents == nil {
		parents = []string{}
	}
	return map[string]interface{}{
		"id":                      u.ID,
		"email":                   u.Email,
		"displayName":             u.DisplayName,
		"isParent":                u.IsParent,
		"isCaregiver":             u.IsCaregiver,
		"birthDate":               u.BirthDate,
		"gender":                  u.Gender,
		"caregiverIds":            caregivers,
		"parentIds":               parents,
		"fcmToken":                u.FCMToken,
		"notificationPreferences": u.NotificationPreferences.Fields(),
	}
}

// UserFromFields reverses Fields
func UserFromFields(id string, f map[string]interface{}) User {
	u := User{
		ID:           id,
		Email:        String(f["email"]),
		DisplayName:  String(f["displayName"]),
		IsParent:     Bool(f["isParent"]),
		IsCaregiver:  Bool(f["isCaregiver"]),
		BirthDate:    String(f["birthDate"]),
		Gender:       String(f["gender"]),
		CaregiverIDs: Strings(f["caregiverIds"]),
		ParentIDs:    Strings(f["parentIds"]),
		FCMToken:     String(f["fcmToken"]),
	}
	prefs, _ := f["notificationPreferences"].(map[string]interface{})
	u.NotificationPreferences = PreferencesFromFields(prefs)
	return u
}

// HasCaregiver reports whether id is linked as a caregiver
func (u *User) HasCaregiver(id string) bool {
	for _, c := range u.CaregiverIDs {
		if c == id {
			return true
		}
	}
	return false
}

// HasParent reports whether id is linked as a parent
func (u *User) HasParent(id string) bool {
	for _, p := range u.ParentIDs {
		if p == id {
			return true
		}
	}
	return false
}
