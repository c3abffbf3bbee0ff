package connection

import (
	"context"
	"errors"
	"fmt"

	"gee2dhis2/internal/api"
	"gee2dhis2/internal/crypto"
	"gee2dhis2/internal/gee"
	"gee2dhis2/internal/models"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// ErrProfileNotFound signals a lookup for a connection profile that does
// not exist
var ErrProfileNotFound = errors.New("connection profile not found")

// Service manages saved DHIS2 connection profiles and builds authenticated
// clients from them. Credentials are encrypted at rest.
type Service struct {
	db          *gorm.DB
	geeEndpoint string
}

// New creates a connection service. geeEndpoint is the Earth Engine API
// base URL shared by every profile.
func New(db *gorm.DB, geeEndpoint string) *Service {
	return &Service{db: db, geeEndpoint: geeEndpoint}
}

// SaveProfile encrypts the given credentials and persists the profile.
// Empty credentials keep whatever was stored before, so a profile can be
// renamed without re-entering its password.
func (s *Service) SaveProfile(profile *models.ConnectionProfile, password, geeToken string) error {
	if profile.Name == "" || profile.BaseURL == "" || profile.Username == "" {
		return fmt.Errorf("profile name, URL and username are required")
	}

	if password != "" {
		enc, err := crypto.EncryptSecret(password)
		if err != nil {
			return fmt.Errorf("failed to encrypt password: %w", err)
		}
		profile.PasswordEnc = enc
	}
	if profile.PasswordEnc == "" {
		return fmt.Errorf("profile has no password")
	}

	if geeToken != "" {
		enc, err := crypto.EncryptSecret(geeToken)
		if err != nil {
			return fmt.Errorf("failed to encrypt earth engine token: %w", err)
		}
		profile.GEETokenEnc = enc
	}

	if err := s.db.Save(profile).Error; err != nil {
		return fmt.Errorf("failed to save connection profile: %w", err)
	}

	log.Info().Str("profile", profile.Name).Msg("Connection profile saved")
	return nil
}

// GetProfile fetches a profile by id or by name
func (s *Service) GetProfile(idOrName string) (*models.ConnectionProfile, error) {
	var profile models.ConnectionProfile
	err := s.db.First(&profile, "id = ? OR name = ?", idOrName, idOrName).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrProfileNotFound, idOrName)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load connection profile: %w", err)
	}
	return &profile, nil
}

// ListProfiles returns every saved profile ordered by name
func (s *Service) ListProfiles() ([]models.ConnectionProfile, error) {
	var profiles []models.ConnectionProfile
	if err := s.db.Order("name").Find(&profiles).Error; err != nil {
		return nil, fmt.Errorf("failed to list connection profiles: %w", err)
	}
	return profiles, nil
}

// DeleteProfile removes a profile by id or name
func (s *Service) DeleteProfile(idOrName string) error {
	profile, err := s.GetProfile(idOrName)
	if err != nil {
		return err
	}
	if err := s.db.Delete(&models.ConnectionProfile{}, "id = ?", profile.ID).Error; err != nil {
		return fmt.Errorf("failed to delete connection profile: %w", err)
	}
	return nil
}

// DHIS2Client builds an authenticated DHIS2 client from the profile
func (s *Service) DHIS2Client(profile *models.ConnectionProfile) (*api.Client, error) {
	password, err := crypto.DecryptSecret(profile.PasswordEnc)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt password for %s: %w", profile.Name, err)
	}
	return api.NewClient(profile.BaseURL, profile.Username, password), nil
}

// GEEClient builds an authenticated Earth Engine client from the profile
func (s *Service) GEEClient(profile *models.ConnectionProfile) (*gee.Client, error) {
	if profile.GEETokenEnc == "" {
		return nil, fmt.Errorf("profile %s has no earth engine token", profile.Name)
	}
	token, err := crypto.DecryptSecret(profile.GEETokenEnc)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt earth engine token for %s: %w", profile.Name, err)
	}
	return gee.NewClient(s.geeEndpoint, profile.GEEProject, token), nil
}

// Test verifies the DHIS2 side of the profile by fetching the current user
func (s *Service) Test(ctx context.Context, profile *models.ConnectionProfile) error {
	client, err := s.DHIS2Client(profile)
	if err != nil {
		return err
	}
	return client.Ping(ctx)
}
