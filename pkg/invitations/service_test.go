package invitations

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/ItsMariusBC/TrainStats/pkg/apperr"
	"github.com/ItsMariusBC/TrainStats/pkg/config"
	"github.com/ItsMariusBC/TrainStats/pkg/db"
	"github.com/ItsMariusBC/TrainStats/pkg/log"
	"github.com/ItsMariusBC/TrainStats/pkg/models"
)

func newTestService(t *testing.T) (*Service, *db.Repository) {
	t.Helper()

	database, err := db.New(&config.DatabaseConfig{
		Driver:          "sqlite",
		Database:        filepath.Join(t.TempDir(), "test.db"),
		MaxOpenConns:    1,
		MaxIdleConns:    1,
		ConnMaxLifetime: 300,
	})
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	require.NoError(t, database.Migrate())

	logger, err := log.New(&config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"})
	require.NoError(t, err)

	repo := db.NewRepository(database)
	return NewService(repo, logger, bcrypt.MinCost), repo
}

func createUser(t *testing.T, repo *db.Repository, email string, role models.Role) *models.User {
	t.Helper()
	user := &models.User{Email: email, Name: email, Password: "x", Role: role}
	require.NoError(t, repo.CreateUser(user))
	return user
}

func TestCreateInviteDefaults(t *testing.T) {
	svc, repo := newTestService(t)
	admin := createUser(t, repo, "admin@example.com", models.RoleAdmin)

	invitation, err := svc.Create(admin, CreateInput{})
	require.NoError(t, err)

	assert.Len(t, invitation.Token, 12)
	assert.Equal(t, models.RoleUser, invitation.Role)
	assert.Equal(t, 1, invitation.MaxUses)
	assert.Equal(t, 1, invitation.UsesLeft)
	assert.Nil(t, invitation.Email)
	assert.WithinDuration(t, time.Now().Add(7*24*time.Hour), invitation.ExpiresAt, time.Minute)
}

func TestCreateInviteGuards(t *testing.T) {
	svc, repo := newTestService(t)
	admin := createUser(t, repo, "admin@example.com", models.RoleAdmin)
	user := createUser(t, repo, "user@example.com", models.RoleUser)

	_, err := svc.Create(user, CreateInput{})
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	_, err = svc.Create(admin, CreateInput{Role: "SUPERUSER"})
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)

	bad := "not-an-email"
	_, err = svc.Create(admin, CreateInput{Email: &bad})
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
}

func TestCreateForEmail(t *testing.T) {
	svc, repo := newTestService(t)
	admin := createUser(t, repo, "admin@example.com", models.RoleAdmin)

	invitation, err := svc.CreateForEmail(admin, "Cousin@Example.com")
	require.NoError(t, err)
	assert.Len(t, invitation.Token, 64)
	require.NotNil(t, invitation.Email)
	assert.Equal(t, "cousin@example.com", *invitation.Email)
	assert.Equal(t, 1, invitation.MaxUses)

	// A second active invitation for the same address is rejected.
	_, err = svc.CreateForEmail(admin, "cousin@example.com")
	assert.ErrorIs(t, err, apperr.ErrConflict)

	// As is an invitation for an existing account.
	_, err = svc.CreateForEmail(admin, "admin@example.com")
	assert.ErrorIs(t, err, apperr.ErrConflict)
}

func TestCheckToken(t *testing.T) {
	svc, repo := newTestService(t)
	admin := createUser(t, repo, "admin@example.com", models.RoleAdmin)

	invitation, err := svc.CreateForEmail(admin, "cousin@example.com")
	require.NoError(t, err)

	_, err = svc.Check("deadbeef", nil)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	// Bound invitations require the matching email.
	_, err = svc.Check(invitation.Token, nil)
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	wrong := "stranger@example.com"
	_, err = svc.Check(invitation.Token, &wrong)
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	right := "Cousin@example.com"
	checked, err := svc.Check(invitation.Token, &right)
	require.NoError(t, err)
	assert.Equal(t, invitation.ID, checked.ID)
}

func TestCheckExpiredToken(t *testing.T) {
	svc, repo := newTestService(t)
	admin := createUser(t, repo, "admin@example.com", models.RoleAdmin)

	invitation, err := svc.Create(admin, CreateInput{})
	require.NoError(t, err)

	past := time.Now().Add(-time.Hour)
	require.NoError(t, repo.UpdateInvitationFields(invitation.ID, map[string]interface{}{"expires_at": past}))

	_, err = svc.Check(invitation.Token, nil)
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
}

func TestRedeem(t *testing.T) {
	svc, repo := newTestService(t)
	admin := createUser(t, repo, "admin@example.com", models.RoleAdmin)

	invitation, err := svc.Create(admin, CreateInput{MaxUses: 2})
	require.NoError(t, err)

	user, err := svc.Redeem(invitation.Token, RedeemInput{
		Name:     "Cousin",
		Email:    "Cousin@Example.com",
		Password: "supersecret",
	})
	require.NoError(t, err)
	assert.Equal(t, "cousin@example.com", user.Email)
	assert.Equal(t, models.RoleUser, user.Role)
	require.NotNil(t, user.InvitationID)
	assert.Equal(t, invitation.ID, *user.InvitationID)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.Password), []byte("supersecret")))

	reloaded, err := repo.GetInvitationByID(invitation.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, reloaded.UsesLeft)
	assert.True(t, reloaded.Redeemed())

	// The same email cannot register twice.
	_, err = svc.Redeem(invitation.Token, RedeemInput{
		Name:     "Cousin again",
		Email:    "cousin@example.com",
		Password: "supersecret",
	})
	assert.ErrorIs(t, err, apperr.ErrConflict)
}

func TestRedeemValidation(t *testing.T) {
	svc, repo := newTestService(t)
	admin := createUser(t, repo, "admin@example.com", models.RoleAdmin)

	invitation, err := svc.Create(admin, CreateInput{})
	require.NoError(t, err)

	_, err = svc.Redeem(invitation.Token, RedeemInput{Name: "X", Email: "bad", Password: "supersecret"})
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)

	_, err = svc.Redeem(invitation.Token, RedeemInput{Name: " ", Email: "a@b.example", Password: "supersecret"})
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)

	_, err = svc.Redeem(invitation.Token, RedeemInput{Name: "X", Email: "a@b.example", Password: "short"})
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
}

func TestRedeemExhaustsUses(t *testing.T) {
	svc, repo := newTestService(t)
	admin := createUser(t, repo, "admin@example.com", models.RoleAdmin)

	invitation, err := svc.Create(admin, CreateInput{MaxUses: 1})
	require.NoError(t, err)

	_, err = svc.Redeem(invitation.Token, RedeemInput{
		Name: "First", Email: "first@example.com", Password: "supersecret",
	})
	require.NoError(t, err)

	_, err = svc.Redeem(invitation.Token, RedeemInput{
		Name: "Second", Email: "second@example.com", Password: "supersecret",
	})
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
}

func TestDecrementIsAtomic(t *testing.T) {
	svc, repo := newTestService(t)
	admin := createUser(t, repo, "admin@example.com", models.RoleAdmin)

	invitation, err := svc.Create(admin, CreateInput{MaxUses: 1})
	require.NoError(t, err)

	gdb := repo.DB().DB
	won, err := repo.DecrementInvitationUses(gdb, invitation.ID)
	require.NoError(t, err)
	assert.True(t, won)

	// The losing side of a race gets false, never a negative count.
	won, err = repo.DecrementInvitationUses(gdb, invitation.ID)
	require.NoError(t, err)
	assert.False(t, won)

	reloaded, err := repo.GetInvitationByID(invitation.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, reloaded.UsesLeft)
}

func TestFamilyCode(t *testing.T) {
	svc, repo := newTestService(t)
	admin := createUser(t, repo, "admin@example.com", models.RoleAdmin)

	code, err := svc.FamilyCode(admin)
	require.NoError(t, err)
	assert.Len(t, code.Token, 6)
	assert.Equal(t, code.Token, strings.ToUpper(code.Token))
	assert.True(t, code.IsFamilyCode)
	assert.Equal(t, familyCodeMaxUses, code.UsesLeft)
	assert.Equal(t, 2099, code.ExpiresAt.Year())

	// Repeated calls return the same code.
	again, err := svc.FamilyCode(admin)
	require.NoError(t, err)
	assert.Equal(t, code.Token, again.Token)

	// Reset mints a fresh code and invalidates the old one.
	fresh, err := svc.ResetFamilyCode(admin)
	require.NoError(t, err)
	assert.NotEqual(t, code.Token, fresh.Token)

	old, err := repo.GetInvitationByID(code.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, old.UsesLeft)

	// Revoke leaves no active code behind.
	require.NoError(t, svc.RevokeFamilyCode(admin))
	_, err = repo.FindActiveFamilyCode(time.Now())
	assert.Error(t, err)
}

func TestDeleteRedeemedInvitationBlocked(t *testing.T) {
	svc, repo := newTestService(t)
	admin := createUser(t, repo, "admin@example.com", models.RoleAdmin)

	invitation, err := svc.Create(admin, CreateInput{})
	require.NoError(t, err)

	_, err = svc.Redeem(invitation.Token, RedeemInput{
		Name: "Cousin", Email: "cousin@example.com", Password: "supersecret",
	})
	require.NoError(t, err)

	err = svc.Delete(admin, invitation.ID)
	assert.ErrorIs(t, err, apperr.ErrConflict)

	// Unredeemed invitations delete fine.
	other, err := svc.Create(admin, CreateInput{})
	require.NoError(t, err)
	require.NoError(t, svc.Delete(admin, other.ID))
	_, err = svc.get(other.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestUpdateInvitation(t *testing.T) {
	svc, repo := newTestService(t)
	admin := createUser(t, repo, "admin@example.com", models.RoleAdmin)
	user := createUser(t, repo, "user@example.com", models.RoleUser)

	invitation, err := svc.Create(admin, CreateInput{})
	require.NoError(t, err)

	uses := 5
	updated, err := svc.Update(admin, invitation.ID, UpdateInput{MaxUses: &uses, UsesLeft: &uses})
	require.NoError(t, err)
	assert.Equal(t, 5, updated.MaxUses)
	assert.Equal(t, 5, updated.UsesLeft)

	negative := -1
	_, err = svc.Update(admin, invitation.ID, UpdateInput{UsesLeft: &negative})
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)

	_, err = svc.Update(user, invitation.ID, UpdateInput{MaxUses: &uses})
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	_, err = svc.Update(admin, 9999, UpdateInput{MaxUses: &uses})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestSeedFamilyCode(t *testing.T) {
	svc, repo := newTestService(t)

	// No seed admin configured, nothing to do.
	require.NoError(t, svc.SeedFamilyCode(""))
	require.NoError(t, svc.SeedFamilyCode("absent@example.com"))
	_, err := repo.FindActiveFamilyCode(time.Now().UTC())
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	admin := createUser(t, repo, "admin@example.com", models.RoleAdmin)
	require.NoError(t, svc.SeedFamilyCode(admin.Email))

	code, err := repo.FindActiveFamilyCode(time.Now().UTC())
	require.NoError(t, err)
	assert.True(t, code.IsFamilyCode)
	assert.Equal(t, admin.ID, code.CreatedByID)

	// Seeding again keeps the existing code.
	require.NoError(t, svc.SeedFamilyCode(admin.Email))
	again, err := repo.FindActiveFamilyCode(time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, code.Token, again.Token)
}
