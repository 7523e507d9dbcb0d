package invitations

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/ItsMariusBC/TrainStats/pkg/apperr"
	"github.com/ItsMariusBC/TrainStats/pkg/db"
	"github.com/ItsMariusBC/TrainStats/pkg/log"
	"github.com/ItsMariusBC/TrainStats/pkg/models"
	"github.com/ItsMariusBC/TrainStats/pkg/utils"
)

// familyCodeExpiry is the fixed far-future expiry for family codes. They are
// revoked explicitly, not by the clock.
var familyCodeExpiry = time.Date(2099, 12, 31, 23, 59, 59, 0, time.UTC)

const (
	familyCodeMaxUses    = 100
	emailInviteExpiry    = 7 * 24 * time.Hour
	defaultInviteExpiry  = 7
	defaultInviteMaxUses = 1
)

// Service manages invitation tokens, family codes and account registration.
type Service struct {
	repo      *db.Repository
	tokens    *utils.TokenGenerator
	validator *utils.Validator
	logger    *log.Logger

	bcryptCost int

	now func() time.Time
}

func NewService(repo *db.Repository, logger *log.Logger, bcryptCost int) *Service {
	return &Service{
		repo:       repo,
		tokens:     utils.NewTokenGenerator(),
		validator:  utils.NewValidator(),
		logger:     logger,
		bcryptCost: bcryptCost,
		now:        time.Now,
	}
}

// CreateInput describes an admin-created invite. Zero values fall back to a
// single use expiring in a week.
type CreateInput struct {
	Email         *string
	Role          string
	MaxUses       int
	ExpiresInDays int
}

func (s *Service) Create(creator *models.User, in CreateInput) (*models.Invitation, error) {
	if !creator.IsAdmin() {
		return nil, apperr.ErrForbidden
	}

	role := models.RoleUser
	if in.Role != "" {
		role = models.Role(strings.ToUpper(in.Role))
		if role != models.RoleAdmin && role != models.RoleUser {
			return nil, fmt.Errorf("%w: unknown role %q", apperr.ErrInvalidInput, in.Role)
		}
	}

	maxUses := in.MaxUses
	if maxUses <= 0 {
		maxUses = defaultInviteMaxUses
	}
	expiresInDays := in.ExpiresInDays
	if expiresInDays <= 0 {
		expiresInDays = defaultInviteExpiry
	}

	var email *string
	if in.Email != nil && *in.Email != "" {
		normalized := strings.ToLower(strings.TrimSpace(*in.Email))
		if !s.validator.ValidateEmail(normalized) {
			return nil, fmt.Errorf("%w: invalid email", apperr.ErrInvalidInput)
		}
		email = &normalized
	}

	token, err := s.tokens.GenerateInviteToken()
	if err != nil {
		return nil, fmt.Errorf("generating invite token: %w", err)
	}

	invitation := &models.Invitation{
		Token:       token,
		Email:       email,
		Role:        role,
		MaxUses:     maxUses,
		UsesLeft:    maxUses,
		ExpiresAt:   s.now().Add(time.Duration(expiresInDays) * 24 * time.Hour),
		CreatedByID: creator.ID,
	}
	if err := s.repo.CreateInvitation(invitation); err != nil {
		return nil, fmt.Errorf("creating invitation: %w", err)
	}

	s.logger.LogInvitation(invitation.ID, "create", true, "")
	return invitation, nil
}

// CreateForEmail issues a long single-recipient registration token bound to
// one email address. At most one active invitation may exist per address.
func (s *Service) CreateForEmail(creator *models.User, email string) (*models.Invitation, error) {
	if !creator.IsAdmin() {
		return nil, apperr.ErrForbidden
	}

	normalized := strings.ToLower(strings.TrimSpace(email))
	if !s.validator.ValidateEmail(normalized) {
		return nil, fmt.Errorf("%w: invalid email", apperr.ErrInvalidInput)
	}

	if _, err := s.repo.GetUserByEmail(normalized); err == nil {
		return nil, fmt.Errorf("%w: account already exists for %s", apperr.ErrConflict, normalized)
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("checking account: %w", err)
	}

	if existing, err := s.repo.FindActiveInvitationByEmail(normalized, s.now()); err == nil && existing != nil {
		return nil, fmt.Errorf("%w: active invitation already exists for %s", apperr.ErrConflict, normalized)
	} else if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("checking invitations: %w", err)
	}

	token, err := s.tokens.GenerateRegistrationToken()
	if err != nil {
		return nil, fmt.Errorf("generating registration token: %w", err)
	}

	invitation := &models.Invitation{
		Token:       token,
		Email:       &normalized,
		Role:        models.RoleUser,
		MaxUses:     1,
		UsesLeft:    1,
		ExpiresAt:   s.now().Add(emailInviteExpiry),
		CreatedByID: creator.ID,
	}
	if err := s.repo.CreateInvitation(invitation); err != nil {
		return nil, fmt.Errorf("creating invitation: %w", err)
	}

	s.logger.LogInvitation(invitation.ID, "create_for_email", true, normalized)
	return invitation, nil
}

// FamilyCode returns the current active family code, minting one if none
// exists. Repeated calls return the same code.
func (s *Service) FamilyCode(creator *models.User) (*models.Invitation, error) {
	if !creator.IsAdmin() {
		return nil, apperr.ErrForbidden
	}

	existing, err := s.repo.FindActiveFamilyCode(s.now())
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("looking up family code: %w", err)
	}

	code, err := s.tokens.GenerateFamilyCode()
	if err != nil {
		return nil, fmt.Errorf("generating family code: %w", err)
	}

	invitation := &models.Invitation{
		Token:        code,
		Role:         models.RoleUser,
		MaxUses:      familyCodeMaxUses,
		UsesLeft:     familyCodeMaxUses,
		ExpiresAt:    familyCodeExpiry,
		IsFamilyCode: true,
		CreatedByID:  creator.ID,
	}
	if err := s.repo.CreateInvitation(invitation); err != nil {
		return nil, fmt.Errorf("creating family code: %w", err)
	}

	s.logger.LogInvitation(invitation.ID, "family_code_create", true, "")
	return invitation, nil
}

// SeedFamilyCode makes sure a fresh install has an active family code owned
// by the seed admin. A no-op when seeding is not configured or the admin
// account does not exist yet.
func (s *Service) SeedFamilyCode(adminEmail string) error {
	if adminEmail == "" {
		return nil
	}

	admin, err := s.repo.GetUserByEmail(adminEmail)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return fmt.Errorf("looking up seed admin: %w", err)
	}

	_, err = s.FamilyCode(admin)
	return err
}

// ResetFamilyCode revokes every active family code and mints a fresh one.
func (s *Service) ResetFamilyCode(creator *models.User) (*models.Invitation, error) {
	if !creator.IsAdmin() {
		return nil, apperr.ErrForbidden
	}
	if err := s.repo.ZeroFamilyCodes(); err != nil {
		return nil, fmt.Errorf("revoking family codes: %w", err)
	}
	return s.FamilyCode(creator)
}

// RevokeFamilyCode disables all family codes without minting a replacement.
func (s *Service) RevokeFamilyCode(creator *models.User) error {
	if !creator.IsAdmin() {
		return apperr.ErrForbidden
	}
	if err := s.repo.ZeroFamilyCodes(); err != nil {
		return fmt.Errorf("revoking family codes: %w", err)
	}
	s.logger.LogInvitation(0, "family_code_revoke", true, "")
	return nil
}

// Check validates that a token can be redeemed, optionally for a specific
// email address. It returns the invitation for pre-filling the signup form.
func (s *Service) Check(token string, email *string) (*models.Invitation, error) {
	invitation, err := s.repo.GetInvitationByToken(token)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.ErrNotFound
		}
		return nil, fmt.Errorf("loading invitation: %w", err)
	}

	if !invitation.Active(s.now()) {
		return nil, fmt.Errorf("%w: invitation expired or exhausted", apperr.ErrInvalidInput)
	}

	if invitation.Email != nil {
		if email == nil || !strings.EqualFold(*invitation.Email, strings.TrimSpace(*email)) {
			return nil, fmt.Errorf("%w: invitation is bound to another email", apperr.ErrForbidden)
		}
	}

	return invitation, nil
}

// RedeemInput carries the signup form.
type RedeemInput struct {
	Name     string
	Email    string
	Password string
}

// Redeem consumes one use of the token and creates the account inside a
// single transaction. A concurrent redeem of the last use loses with
// ErrConflict instead of overshooting the use count.
func (s *Service) Redeem(token string, in RedeemInput) (*models.User, error) {
	normalized := strings.ToLower(strings.TrimSpace(in.Email))
	if !s.validator.ValidateEmail(normalized) {
		return nil, fmt.Errorf("%w: invalid email", apperr.ErrInvalidInput)
	}
	if strings.TrimSpace(in.Name) == "" {
		return nil, fmt.Errorf("%w: name is required", apperr.ErrInvalidInput)
	}
	if len(in.Password) < 8 {
		return nil, fmt.Errorf("%w: password must be at least 8 characters", apperr.ErrInvalidInput)
	}

	invitation, err := s.Check(token, &normalized)
	if err != nil {
		return nil, err
	}

	if _, err := s.repo.GetUserByEmail(normalized); err == nil {
		return nil, fmt.Errorf("%w: account already exists for %s", apperr.ErrConflict, normalized)
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("checking account: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	user := &models.User{
		Name:         strings.TrimSpace(in.Name),
		Email:        normalized,
		Password:     string(hash),
		Role:         invitation.Role,
		InvitationID: &invitation.ID,
	}

	err = s.repo.DB().Transaction(func(tx *gorm.DB) error {
		consumed, err := s.repo.DecrementInvitationUses(tx, invitation.ID)
		if err != nil {
			return fmt.Errorf("consuming invitation: %w", err)
		}
		if !consumed {
			return fmt.Errorf("%w: invitation has no uses left", apperr.ErrConflict)
		}
		if err := tx.Create(user).Error; err != nil {
			return fmt.Errorf("creating account: %w", err)
		}
		return nil
	})
	if err != nil {
		s.logger.LogInvitation(invitation.ID, "redeem", false, normalized)
		return nil, err
	}

	s.logger.LogInvitation(invitation.ID, "redeem", true, normalized)
	return user, nil
}

// UpdateInput patches mutable invitation fields. Nil means leave unchanged.
type UpdateInput struct {
	MaxUses   *int
	UsesLeft  *int
	ExpiresAt *time.Time
}

func (s *Service) Update(actor *models.User, id uint, in UpdateInput) (*models.Invitation, error) {
	if !actor.IsAdmin() {
		return nil, apperr.ErrForbidden
	}

	if _, err := s.get(id); err != nil {
		return nil, err
	}

	fields := map[string]interface{}{}
	if in.MaxUses != nil {
		if *in.MaxUses < 0 {
			return nil, fmt.Errorf("%w: max_uses must not be negative", apperr.ErrInvalidInput)
		}
		fields["max_uses"] = *in.MaxUses
	}
	if in.UsesLeft != nil {
		if *in.UsesLeft < 0 {
			return nil, fmt.Errorf("%w: uses_left must not be negative", apperr.ErrInvalidInput)
		}
		fields["uses_left"] = *in.UsesLeft
	}
	if in.ExpiresAt != nil {
		fields["expires_at"] = *in.ExpiresAt
	}

	if len(fields) > 0 {
		if err := s.repo.UpdateInvitationFields(id, fields); err != nil {
			return nil, fmt.Errorf("updating invitation: %w", err)
		}
	}

	return s.get(id)
}

// Delete removes an unredeemed invitation. Once an account was created from
// it the invitation is part of that account's provenance and stays.
func (s *Service) Delete(actor *models.User, id uint) error {
	if !actor.IsAdmin() {
		return apperr.ErrForbidden
	}

	invitation, err := s.get(id)
	if err != nil {
		return err
	}
	if invitation.Redeemed() {
		return fmt.Errorf("%w: invitation was already used to create an account", apperr.ErrConflict)
	}

	if err := s.repo.DeleteInvitation(id); err != nil {
		return fmt.Errorf("deleting invitation: %w", err)
	}
	s.logger.LogInvitation(id, "delete", true, "")
	return nil
}

func (s *Service) List(actor *models.User, page, limit int) ([]models.Invitation, *utils.Pagination, error) {
	if !actor.IsAdmin() {
		return nil, nil, apperr.ErrForbidden
	}

	total, err := s.repo.CountInvitations()
	if err != nil {
		return nil, nil, fmt.Errorf("counting invitations: %w", err)
	}

	pagination := utils.NewPagination(page, limit, total)
	invitations, err := s.repo.ListInvitations(pagination.Limit, pagination.GetOffset())
	if err != nil {
		return nil, nil, fmt.Errorf("listing invitations: %w", err)
	}
	return invitations, pagination, nil
}

func (s *Service) get(id uint) (*models.Invitation, error) {
	invitation, err := s.repo.GetInvitationByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.ErrNotFound
		}
		return nil, fmt.Errorf("loading invitation: %w", err)
	}
	return invitation, nil
}
