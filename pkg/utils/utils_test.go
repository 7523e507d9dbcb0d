package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenGenerator(t *testing.T) {
	tg := NewTokenGenerator()

	invite, err := tg.GenerateInviteToken()
	require.NoError(t, err)
	assert.Len(t, invite, 12)

	registration, err := tg.GenerateRegistrationToken()
	require.NoError(t, err)
	assert.Len(t, registration, 64)

	code, err := tg.GenerateFamilyCode()
	require.NoError(t, err)
	assert.Len(t, code, 6)
	assert.Equal(t, strings.ToUpper(code), code)

	other, err := tg.GenerateInviteToken()
	require.NoError(t, err)
	assert.NotEqual(t, invite, other)
}

func TestTicketManagerRoundTrip(t *testing.T) {
	tm := NewTicketManager("test-secret", 5)

	ticket, err := tm.IssueTicket(42, "ADMIN")
	require.NoError(t, err)

	claims, err := tm.ValidateTicket(ticket)
	require.NoError(t, err)
	assert.Equal(t, uint(42), claims.UserID)
	assert.Equal(t, "ADMIN", claims.Role)
	assert.Equal(t, "trainstats", claims.Issuer)
}

func TestTicketManagerRejectsForgedTickets(t *testing.T) {
	tm := NewTicketManager("test-secret", 5)
	forged := NewTicketManager("other-secret", 5)

	ticket, err := forged.IssueTicket(1, "USER")
	require.NoError(t, err)

	_, err = tm.ValidateTicket(ticket)
	assert.Error(t, err)

	_, err = tm.ValidateTicket("not.a.jwt")
	assert.Error(t, err)
}

func TestTicketManagerRejectsExpiredTickets(t *testing.T) {
	tm := NewTicketManager("test-secret", -1)

	ticket, err := tm.IssueTicket(1, "USER")
	require.NoError(t, err)

	_, err = tm.ValidateTicket(ticket)
	assert.Error(t, err)
}

func TestValidateEmail(t *testing.T) {
	v := NewValidator()

	assert.True(t, v.ValidateEmail("cousin@example.com"))
	assert.True(t, v.ValidateEmail("first.last+tag@sub.example.org"))
	assert.False(t, v.ValidateEmail("missing-at.example.com"))
	assert.False(t, v.ValidateEmail("no-domain@"))
	assert.False(t, v.ValidateEmail(""))
}

func TestSanitizeInput(t *testing.T) {
	v := NewValidator()

	assert.Equal(t, "hello", v.SanitizeInput("  hello  "))
	assert.Equal(t, "hello", v.SanitizeInput("he\x00llo"))
	assert.Equal(t, "ab", v.SanitizeInput("a\x1fb"))
}

func TestPagination(t *testing.T) {
	p := NewPagination(2, 10, 35)
	assert.Equal(t, 4, p.TotalPages)
	assert.Equal(t, 10, p.GetOffset())
	assert.True(t, p.HasNextPage())
	assert.True(t, p.HasPrevPage())

	p = NewPagination(0, 0, 0)
	assert.Equal(t, 1, p.Page)
	assert.Equal(t, 10, p.Limit)
	assert.Equal(t, 1, p.TotalPages)
	assert.False(t, p.HasNextPage())
}
