package trigger

import (
	"fmt"

	"parent-wellness/internal/models"
	"parent-wellness/internal/push"
)

var alertPhrases = map[string]string{
	models.AlertTypeHighHeartRate:     "heart rate is high",
	models.AlertTypeLowHeartRate:      "heart rate is low",
	models.AlertTypeHighBloodPressure: "blood pressure is high",
	models.AlertTypeLowBloodPressure:  "blood pressure is low",
	models.AlertTypeHighBloodSugar:    "blood sugar is high",
	models.AlertTypeLowBloodSugar:     "blood sugar is low",
}

func formatValue(a *models.AlertDocument) string {
	switch models.Metric(a.MetricName) {
	case models.MetricHeartRate:
		return fmt.Sprintf("%.0f bpm", a.Value)
	case models.MetricBloodPressure:
		dia := 0.0
		if a.Secondary != nil {
			dia = *a.Secondary
		}
		return fmt.Sprintf("%.0f/%.0f mmHg", a.Value, dia)
	case models.MetricBloodSugar:
		return fmt.Sprintf("%.0f mg/dL", a.Value)
	}
	return fmt.Sprintf("%g", a.Value)
}

func alertData(a *models.AlertDocument) map[string]string {
	return map[string]string{
		"kind":    "alert",
		"alertId": a.ID,
		"userId":  a.UserID,
		"type":    a.Type,
	}
}

// OwnerAlertMessage notification for the person the reading belongs to
func OwnerAlertMessage(token string, a *models.AlertDocument) push.Message {
	return push.Message{
		Token: token,
		Title: "Health alert",
		Body:  fmt.Sprintf("Your %s: %s", alertPhrases[a.Type], formatValue(a)),
		Data:  alertData(a),
	}
}

// CaregiverAlertMessage notification for a linked caregiver
func CaregiverAlertMessage(token, parentName string, a *models.AlertDocument) push.Message {
	if parentName == "" {
		parentName = "Your parent"
	}
	return push.Message{
		Token: token,
		Title: "Health alert for " + parentName,
		Body:  fmt.Sprintf("%s's %s: %s", parentName, alertPhrases[a.Type], formatValue(a)),
		Data:  alertData(a),
	}
}

// ReportReadyMessage weekly report notification
func ReportReadyMessage(token string, r *models.WeeklyReport) push.Message {
	return push.Message{
		Token: token,
		Title: "Weekly health report",
		Body:  "Your weekly health report is ready",
		Data: map[string]string{
			"kind":     "report",
			"reportId": r.ID,
			"userId":   r.UserID,
		},
	}
}
