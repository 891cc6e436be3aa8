package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"parent-wellness/internal/docstore"
	"parent-wellness/internal/models"
)

// ProfileService user documents, alerts and reports in the cloud store
type ProfileService struct {
	store  docstore.Store
	logger *zap.Logger
}

// NewProfileService creates the service
func NewProfileService(store docstore.Store, logger *zap.Logger) *ProfileService {
	return &ProfileService{store: store, logger: logger}
}

// GetProfile loads users/{uid}
func (s *ProfileService) GetProfile(ctx context.Context, uid string) (*models.User, error) {
	snap, err := s.store.Get(ctx, docstore.UserPath(uid))
	if err != nil {
		return nil, notFound(err, "user %s", uid)
	}
	u := models.UserFromFields(snap.ID, snap.Data)
	return &u, nil
}

// SaveProfile writes the editable profile fields. Links, token and
// preferences are left as stored.
func (s *ProfileService) SaveProfile(ctx context.Context, u *models.User) error {
	if u.ID == "" {
		return fmt.Errorf("%w: user id is required", ErrInvalidArgument)
	}
	if u.Email != "" && !strings.Contains(u.Email, "@") {
		return fmt.Errorf("%w: invalid email", ErrInvalidArgument)
	}

	doc := docstore.Document{
		"id":          u.ID,
		"email":       u.Email,
		"displayName": u.DisplayName,
		"isParent":    u.IsParent,
		"isCaregiver": u.IsCaregiver,
		"birthDate":   u.BirthDate,
		"gender":      u.Gender,
	}
	if _, err := s.store.Get(ctx, docstore.UserPath(u.ID)); errors.Is(err, docstore.ErrNotFound) {
		doc["caregiverIds"] = []string{}
		doc["parentIds"] = []string{}
		doc["notificationPreferences"] = models.DefaultNotificationPreferences().Fields()
	} else if err != nil {
		return err
	}
	return s.store.Merge(ctx, docstore.UserPath(u.ID), doc)
}

// RegisterPushToken stores the device token used for notifications
func (s *ProfileService) RegisterPushToken(ctx context.Context, uid, token string) error {
	if token == "" {
		return fmt.Errorf("%w: token is required", ErrInvalidArgument)
	}
	if err := s.store.Merge(ctx, docstore.UserPath(uid), docstore.Document{"fcmToken": token}); err != nil {
		return fmt.Errorf("failed to store push token: %w", err)
	}
	s.logger.Info("Push token registered", zap.String("user_id", uid))
	return nil
}

// GetNotificationPreferences returns the stored preferences
func (s *ProfileService) GetNotificationPreferences(ctx context.Context, uid string) (models.NotificationPreferences, error) {
	u, err := s.GetProfile(ctx, uid)
	if err != nil {
		return models.NotificationPreferences{}, err
	}
	return u.NotificationPreferences, nil
}

// UpdateNotificationPreferences replaces the preferences of an existing user
func (s *ProfileService) UpdateNotificationPreferences(ctx context.Context, uid string, prefs models.NotificationPreferences) error {
	if _, err := s.GetProfile(ctx, uid); err != nil {
		return err
	}
	return s.store.Merge(ctx, docstore.UserPath(uid), docstore.Document{
		"notificationPreferences": prefs.Fields(),
	})
}

// LinkCaregiver adds caregiverID to the parent's caregivers and parentID to
// the caregiver's parents. Both user documents must exist.
func (s *ProfileService) LinkCaregiver(ctx context.Context, parentID, caregiverID string) error {
	if caregiverID == "" {
		return fmt.Errorf("%w: caregiver id is required", ErrInvalidArgument)
	}
	if parentID == caregiverID {
		return fmt.Errorf("%w: a user cannot be their own caregiver", ErrInvalidArgument)
	}

	parent, err := s.GetProfile(ctx, parentID)
	if err != nil {
		return err
	}
	caregiver, err := s.GetProfile(ctx, caregiverID)
	if err != nil {
		return err
	}

	if !parent.HasCaregiver(caregiverID) {
		ids := append(parent.CaregiverIDs, caregiverID)
		if err := s.store.Merge(ctx, docstore.UserPath(parentID), docstore.Document{
			"caregiverIds": ids,
			"isParent":     true,
		}); err != nil {
			return fmt.Errorf("failed to update parent %s: %w", parentID, err)
		}
	}
	if !caregiver.HasParent(parentID) {
		ids := append(caregiver.ParentIDs, parentID)
		if err := s.store.Merge(ctx, docstore.UserPath(caregiverID), docstore.Document{
			"parentIds":   ids,
			"isCaregiver": true,
		}); err != nil {
			return fmt.Errorf("failed to update caregiver %s: %w", caregiverID, err)
		}
	}

	s.logger.Info("Caregiver linked",
		zap.String("parent_id", parentID),
		zap.String("caregiver_id", caregiverID),
	)
	return nil
}

// ListAlerts newest first
func (s *ProfileService) ListAlerts(ctx context.Context, uid string, unreadOnly bool) ([]models.AlertDocument, error) {
	q := docstore.Query{OrderBy: "timestamp", Desc: true}
	if unreadOnly {
		q = q.Where("read", docstore.OpEq, false)
	}
	snaps, err := s.store.List(ctx, docstore.AlertsCollection(uid), q)
	if err != nil {
		return nil, err
	}
	alerts := make([]models.AlertDocument, 0, len(snaps))
	for _, snap := range snaps {
		alerts = append(alerts, models.AlertFromFields(snap.ID, snap.Data))
	}
	return alerts, nil
}

// MarkAlertRead sets read=true on an existing alert
func (s *ProfileService) MarkAlertRead(ctx context.Context, uid, alertID string) error {
	path := docstore.AlertPath(uid, alertID)
	if _, err := s.store.Get(ctx, path); err != nil {
		return notFound(err, "alert %s", alertID)
	}
	return s.store.Merge(ctx, path, docstore.Document{"read": true})
}

// ListReports newest first
func (s *ProfileService) ListReports(ctx context.Context, uid string) ([]models.WeeklyReport, error) {
	snaps, err := s.store.List(ctx, docstore.ReportsCollection(uid), docstore.Query{OrderBy: "createdAt", Desc: true})
	if err != nil {
		return nil, err
	}
	reports := make([]models.WeeklyReport, 0, len(snaps))
	for _, snap := range snaps {
		reports = append(reports, models.ReportFromFields(snap.ID, snap.Data))
	}
	return reports, nil
}

// GetReport loads one report
func (s *ProfileService) GetReport(ctx context.Context, uid, reportID string) (*models.WeeklyReport, error) {
	snap, err := s.store.Get(ctx, docstore.ReportPath(uid, reportID))
	if err != nil {
		return nil, notFound(err, "report %s", reportID)
	}
	r := models.ReportFromFields(snap.ID, snap.Data)
	return &r, nil
}

// notFound maps the store's not-found error to ErrNotFound
func notFound(err error, format string, args ...interface{}) error {
	if errors.Is(err, docstore.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
	}
	return err
}
