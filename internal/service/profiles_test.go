package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/cleaning-portal/internal/model"
	"github.com/mmeshcher/cleaning-portal/internal/repository"
)

func TestRegister(t *testing.T) {
	env := newTestEnv(t)
	id := model.Identity{UserID: uuid.New(), Email: " Sam@Example.com "}

	p, err := env.svc.Register(context.Background(), id, ProfileInput{FirstName: "Sam", LastName: "Lee"})
	require.NoError(t, err)
	assert.Equal(t, model.AccountStatusPending, p.AccountStatus)
	assert.Equal(t, model.RoleCustomer, p.Role)
	assert.Equal(t, "sam@example.com", p.Email)
	assert.Equal(t, model.CommunicationEmail, p.CommunicationPreference)

	feed := env.repo.feed(model.FeedAdmin)
	require.Len(t, feed, 1)
	assert.Equal(t, model.NotificationRegistrationPending, feed[0].Type)
	require.Len(t, env.notifier.business, 1)

	_, err = env.svc.Register(context.Background(), id, ProfileInput{FirstName: "Sam"})
	assert.ErrorIs(t, err, repository.ErrProfileExists)
}

func TestProfileInput_SMSNeedsPhone(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.UpdateSettings(context.Background(), env.customer, ProfileInput{
		FirstName:               "Jane",
		CommunicationPreference: model.CommunicationSMS,
	})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "phone", verr.Field)

	p, err := env.svc.UpdateSettings(context.Background(), env.customer, ProfileInput{
		FirstName:               "Jane",
		LastName:                "Roe",
		Phone:                   "+15550100",
		CommunicationPreference: model.CommunicationBoth,
	})
	require.NoError(t, err)
	assert.Equal(t, "Jane Roe", p.FullName())
	assert.Equal(t, model.CommunicationBoth, env.repo.profiles[env.customer.ID].CommunicationPreference)
}

func TestSetAccountStatus(t *testing.T) {
	env := newTestEnv(t)
	pending := model.Profile{
		ID:            uuid.New(),
		Email:         "new@example.com",
		FirstName:     "New",
		Role:          model.RoleCustomer,
		AccountStatus: model.AccountStatusPending,
	}
	env.repo.profiles[pending.ID] = pending

	p, err := env.svc.SetAccountStatus(context.Background(), pending.ID, model.AccountStatusActive)
	require.NoError(t, err)
	assert.Equal(t, model.AccountStatusActive, p.AccountStatus)
	require.Len(t, env.notifier.customer, 1)
	assert.Equal(t, "new@example.com", env.notifier.customer[0].To)

	_, err = env.svc.SetAccountStatus(context.Background(), pending.ID, model.AccountStatusPending)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = env.svc.SetAccountStatus(context.Background(), env.admin.ID, model.AccountStatusSuspended)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	p, err = env.svc.SetAccountStatus(context.Background(), pending.ID, model.AccountStatusSuspended)
	require.NoError(t, err)
	assert.Equal(t, model.AccountStatusSuspended, p.AccountStatus)
	assert.Len(t, env.notifier.customer, 1)
}

func TestInviteCustomer(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.InviteCustomer(context.Background(), InviteInput{Email: "x@example.com"})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "user_id", verr.Field)

	p, err := env.svc.InviteCustomer(context.Background(), InviteInput{
		UserID:       uuid.New(),
		Email:        "Invitee@Example.com",
		ProfileInput: ProfileInput{FirstName: "Ivy"},
	})
	require.NoError(t, err)
	assert.Equal(t, model.AccountStatusActive, p.AccountStatus)
	require.Len(t, env.notifier.emails, 1)
	assert.Equal(t, "invitee@example.com", env.notifier.emails[0].To)
}

func TestAddresses(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.AddAddress(context.Background(), env.customer, AddressInput{Street: "5 Oak"})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "city", verr.Field)

	second, err := env.svc.AddAddress(context.Background(), env.customer, AddressInput{
		Street: "5 Oak", City: "Springfield", State: "nj", ZIP: "07081",
	})
	require.NoError(t, err)
	assert.False(t, second.IsPrimary)
	assert.Equal(t, "NJ", second.State)

	updated, err := env.svc.UpdateAddress(context.Background(), env.customer, second.ID, AddressInput{
		Street: "7 Oak", City: "Springfield", State: "NJ", ZIP: "07081", IsPrimary: true,
	})
	require.NoError(t, err)
	assert.True(t, updated.IsPrimary)
	assert.False(t, env.repo.addresses[env.address.ID].IsPrimary)
	assert.Equal(t, "7 Oak", env.repo.addresses[second.ID].Street)

	stranger := &model.Profile{ID: uuid.New(), Role: model.RoleCustomer}
	_, err = env.svc.UpdateAddress(context.Background(), stranger, second.ID, AddressInput{
		Street: "1 Elm", City: "Springfield", State: "NJ", ZIP: "07081",
	})
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.ErrorIs(t, env.svc.DeleteAddress(context.Background(), stranger, second.ID), repository.ErrNotFound)

	require.NoError(t, env.svc.DeleteAddress(context.Background(), env.customer, env.address.ID))
	list, err := env.svc.ListAddresses(context.Background(), env.customer)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, second.ID, list[0].ID)
}
