package service

import (
	"context"
	"crypto/subtle"
	"fmt"
	"strings"

	"tally-service/internal/domain"

	log "github.com/sirupsen/logrus"
)

// ProfileStore persists identity-to-role bindings.
type ProfileStore interface {
	GetByUID(ctx context.Context, uid string) (*domain.Profile, error)
	Register(ctx context.Context, profile *domain.Profile, templeName string) error
}

// RegisterRequest carries everything needed to finish a registration after
// the identity provider has authenticated the principal.
type RegisterRequest struct {
	UID      string `json:"uid"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	Role     string `json:"role"`
	TempleID string `json:"temple_id"`
	// AuthorityGrant is the operator-provisioned credential required for the
	// authority role. It is issued out of band; servants leave it empty.
	AuthorityGrant string `json:"authority_grant,omitempty"`
}

// RegistrationService creates profiles and resolves sessions for the auth
// middleware.
type RegistrationService struct {
	profiles          ProfileStore
	defaultTempleID   string
	defaultTempleName string
	authorityGrant    string
}

func NewRegistrationService(profiles ProfileStore, defaultTempleID, defaultTempleName, authorityGrant string) *RegistrationService {
	return &RegistrationService{
		profiles:          profiles,
		defaultTempleID:   defaultTempleID,
		defaultTempleName: defaultTempleName,
		authorityGrant:    authorityGrant,
	}
}

// Register validates the request and creates the profile, the temple (lazily)
// and, for servants, the zero counter in one transaction.
func (s *RegistrationService) Register(ctx context.Context, req RegisterRequest) (*domain.Profile, error) {
	if req.UID == "" {
		return nil, fmt.Errorf("uid is required")
	}
	if req.Email == "" {
		return nil, fmt.Errorf("email is required")
	}

	role := req.Role
	if role != domain.RoleServant && role != domain.RoleAuthority {
		return nil, domain.ErrInvalidRole
	}

	if role == domain.RoleAuthority {
		if s.authorityGrant == "" {
			log.Warn("Authority registration attempted but no grant credential is configured")
			return nil, domain.ErrAuthorizationDenied
		}
		if subtle.ConstantTimeCompare([]byte(req.AuthorityGrant), []byte(s.authorityGrant)) != 1 {
			return nil, domain.ErrAuthorizationDenied
		}
	}

	templeID := strings.ToUpper(strings.TrimSpace(req.TempleID))
	templeName := fmt.Sprintf("Temple ID: %s", templeID)
	if templeID == "" {
		templeID = s.defaultTempleID
		templeName = s.defaultTempleName
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = strings.SplitN(req.Email, "@", 2)[0]
	}

	profile := &domain.Profile{
		UID:      req.UID,
		Email:    req.Email,
		Name:     name,
		Role:     role,
		TempleID: templeID,
	}

	if err := s.profiles.Register(ctx, profile, templeName); err != nil {
		return nil, err
	}
	return profile, nil
}

// Lookup resolves the registered profile for an authenticated uid. The auth
// middleware uses it to build the request session.
func (s *RegistrationService) Lookup(ctx context.Context, uid string) (*domain.Profile, error) {
	if uid == "" {
		return nil, domain.ErrProfileNotFound
	}
	return s.profiles.GetByUID(ctx, uid)
}
