package docstore

import "strings"

// Collection names under users/{uid}
const (
	CollectionUsers      = "users"
	CollectionHealthData = "healthData"
	CollectionAlerts     = "alerts"
	CollectionReports    = "reports"
)

// UserPath users/{uid}
func UserPath(uid string) string {
	return CollectionUsers + "/" + uid
}

// HealthDataCollection users/{uid}/healthData
func HealthDataCollection(uid string) string {
	return UserPath(uid) + "/" + CollectionHealthData
}

// HealthDataPath users/{uid}/healthData/{id}
func HealthDataPath(uid, id string) string {
	return HealthDataCollection(uid) + "/" + id
}

// AlertsCollection users/{uid}/alerts
func AlertsCollection(uid string) string {
	return UserPath(uid) + "/" + CollectionAlerts
}

// AlertPath users/{uid}/alerts/{id}
func AlertPath(uid, id string) string {
	return AlertsCollection(uid) + "/" + id
}

// ReportsCollection users/{uid}/reports
func ReportsCollection(uid string) string {
	return UserPath(uid) + "/" + CollectionReports
}

// ReportPath users/{uid}/reports/{id}
func ReportPath(uid string, id string) string {
	return ReportsCollection(uid) + "/" + id
}

// ParseHealthDataPath extracts uid and reading id from
// users/{uid}/healthData/{id}; ok is false for any other path
func ParseHealthDataPath(path string) (uid, id string, ok bool) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 4 || parts[0] != CollectionUsers || parts[2] != CollectionHealthData {
		return "", "", false
	}
	if parts[1] == "" || parts[3] == "" {
		return "", "", false
	}
	return parts[1], parts[3], true
}
