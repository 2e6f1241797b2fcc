package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/cleaning-portal/internal/model"
)

// ProfileInput описывает контактные данные клиента.
type ProfileInput struct {
	FirstName               string
	LastName                string
	Phone                   string
	CommunicationPreference model.CommunicationPreference
}

// InviteInput описывает клиента, приглашённого администратором.
// UserID выдаётся провайдером аутентификации при создании приглашения.
type InviteInput struct {
	UserID uuid.UUID
	Email  string
	ProfileInput
}

// AddressInput описывает адрес обслуживания.
type AddressInput struct {
	Label        string
	Street       string
	Unit         string
	City         string
	State        string
	ZIP          string
	Instructions string
	IsPrimary    bool
}

func (in *ProfileInput) normalize() error {
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	in.Phone = strings.TrimSpace(in.Phone)
	if in.CommunicationPreference == "" {
		in.CommunicationPreference = model.CommunicationEmail
	}
	if !in.CommunicationPreference.Valid() {
		return invalid("communication_preference", "unknown communication preference")
	}
	if in.CommunicationPreference.WantsSMS() && in.Phone == "" {
		return invalid("phone", "phone is required for SMS notifications")
	}
	return nil
}

// Me возвращает профиль подтверждённого пользователя.
func (s *Service) Me(ctx context.Context, id model.Identity) (*model.Profile, error) {
	return s.repo.GetProfile(ctx, id.UserID)
}

// Register создаёт профиль клиента в статусе pending, ожидающий одобрения администратором.
func (s *Service) Register(ctx context.Context, id model.Identity, in ProfileInput) (*model.Profile, error) {
	if err := in.normalize(); err != nil {
		return nil, err
	}
	if in.FirstName == "" {
		return nil, invalid("first_name", "first name is required")
	}

	p := &model.Profile{
		ID:                      id.UserID,
		Email:                   strings.ToLower(strings.TrimSpace(id.Email)),
		FirstName:               in.FirstName,
		LastName:                in.LastName,
		Phone:                   in.Phone,
		Role:                    model.RoleCustomer,
		AccountStatus:           model.AccountStatusPending,
		CommunicationPreference: in.CommunicationPreference,
	}
	if err := s.repo.CreateProfile(ctx, p); err != nil {
		return nil, err
	}
	s.logger.Info("customer registered", zap.String("profileID", p.ID.String()))

	msg := fmt.Sprintf("%s (%s) registered and is waiting for approval", p.FullName(), p.Email)
	s.notifyAdmins(ctx, model.NotificationRegistrationPending, "New registration", msg,
		"/admin/customers/"+p.ID.String())
	s.emailBusiness(ctx, "New customer registration", msg)
	return p, nil
}

// UpdateSettings сохраняет контактные данные и канал связи клиента.
func (s *Service) UpdateSettings(ctx context.Context, actor *model.Profile, in ProfileInput) (*model.Profile, error) {
	if err := in.normalize(); err != nil {
		return nil, err
	}
	p := *actor
	p.FirstName = in.FirstName
	p.LastName = in.LastName
	p.Phone = in.Phone
	p.CommunicationPreference = in.CommunicationPreference
	if err := s.repo.UpdateProfileSettings(ctx, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// ListCustomers возвращает клиентов, при необходимости по статусу учётной записи.
func (s *Service) ListCustomers(ctx context.Context, status *model.AccountStatus) ([]model.Profile, error) {
	if status != nil && !status.Valid() {
		return nil, invalid("status", "unknown account status")
	}
	return s.repo.ListProfiles(ctx, status)
}

// GetCustomer возвращает профиль клиента с его адресами.
func (s *Service) GetCustomer(ctx context.Context, id uuid.UUID) (*model.Profile, []model.ServiceAddress, error) {
	p, err := s.repo.GetProfile(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	addrs, err := s.repo.ListAddresses(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return p, addrs, nil
}

// SetAccountStatus меняет статус учётной записи клиента по таблице переходов.
func (s *Service) SetAccountStatus(ctx context.Context, id uuid.UUID, next model.AccountStatus) (*model.Profile, error) {
	if !next.Valid() {
		return nil, invalid("status", "unknown account status")
	}
	p, err := s.repo.GetProfile(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.IsAdmin() || !p.AccountStatus.CanTransitionTo(next) {
		return nil, ErrInvalidTransition
	}
	if err := s.repo.SetAccountStatus(ctx, id, next); err != nil {
		return nil, err
	}
	prev := p.AccountStatus
	p.AccountStatus = next
	s.logger.Info("account status changed", zap.String("profileID", id.String()),
		zap.String("from", string(prev)), zap.String("to", string(next)))

	if prev == model.AccountStatusPending && next == model.AccountStatusActive {
		s.notifyCustomer(ctx, id, model.NotificationAccountUpdate, "Welcome!",
			"Your account has been approved. You can now request service and view invoices.", "/portal/dashboard", true)
	}
	return p, nil
}

// InviteCustomer создаёт активный профиль клиента от имени администратора.
func (s *Service) InviteCustomer(ctx context.Context, in InviteInput) (*model.Profile, error) {
	if in.UserID == uuid.Nil {
		return nil, invalid("user_id", "user id is required")
	}
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if email == "" {
		return nil, invalid("email", "email is required")
	}
	if err := in.normalize(); err != nil {
		return nil, err
	}

	p := &model.Profile{
		ID:                      in.UserID,
		Email:                   email,
		FirstName:               in.FirstName,
		LastName:                in.LastName,
		Phone:                   in.Phone,
		Role:                    model.RoleCustomer,
		AccountStatus:           model.AccountStatusActive,
		CommunicationPreference: in.CommunicationPreference,
	}
	if err := s.repo.CreateProfile(ctx, p); err != nil {
		return nil, err
	}

	if s.notifier != nil {
		body := "You have been invited to the customer portal. Sign in with this email address to view appointments and invoices."
		if err := s.notifier.SendEmail(ctx, p.FullName(), p.Email, "Your customer portal account", body); err != nil {
			s.logger.Warn("send invitation", zap.Error(err), zap.String("profileID", p.ID.String()))
		}
	}
	return p, nil
}

// ListAddresses возвращает адреса клиента, основной первым.
func (s *Service) ListAddresses(ctx context.Context, actor *model.Profile) ([]model.ServiceAddress, error) {
	return s.repo.ListAddresses(ctx, actor.ID)
}

func (in *AddressInput) validate() error {
	in.Street = strings.TrimSpace(in.Street)
	in.City = strings.TrimSpace(in.City)
	in.State = strings.ToUpper(strings.TrimSpace(in.State))
	in.ZIP = strings.TrimSpace(in.ZIP)
	switch {
	case in.Street == "":
		return invalid("street", "street is required")
	case in.City == "":
		return invalid("city", "city is required")
	case in.State == "":
		return invalid("state", "state is required")
	case in.ZIP == "":
		return invalid("zip", "zip is required")
	}
	return nil
}

// AddAddress добавляет адрес клиента. Первый адрес становится основным.
func (s *Service) AddAddress(ctx context.Context, actor *model.Profile, in AddressInput) (*model.ServiceAddress, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	a := &model.ServiceAddress{
		ProfileID:    actor.ID,
		Label:        strings.TrimSpace(in.Label),
		Street:       in.Street,
		Unit:         strings.TrimSpace(in.Unit),
		City:         in.City,
		State:        in.State,
		ZIP:          in.ZIP,
		Instructions: strings.TrimSpace(in.Instructions),
		IsPrimary:    in.IsPrimary,
	}
	if err := s.repo.AddAddress(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// UpdateAddress сохраняет поля адреса. Флаг основного адреса меняется только через SetPrimaryAddress.
func (s *Service) UpdateAddress(ctx context.Context, actor *model.Profile, id uuid.UUID, in AddressInput) (*model.ServiceAddress, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	a, err := s.repo.GetAddress(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := ownedBy(actor, a.ProfileID); err != nil {
		return nil, err
	}
	a.Label = strings.TrimSpace(in.Label)
	a.Street = in.Street
	a.Unit = strings.TrimSpace(in.Unit)
	a.City = in.City
	a.State = in.State
	a.ZIP = in.ZIP
	a.Instructions = strings.TrimSpace(in.Instructions)
	if err := s.repo.UpdateAddress(ctx, a); err != nil {
		return nil, err
	}
	if in.IsPrimary && !a.IsPrimary {
		if err := s.repo.SetPrimaryAddress(ctx, a.ProfileID, a.ID); err != nil {
			return nil, err
		}
		a.IsPrimary = true
	}
	return a, nil
}

// SetPrimaryAddress делает адрес клиента основным.
func (s *Service) SetPrimaryAddress(ctx context.Context, actor *model.Profile, id uuid.UUID) error {
	return s.repo.SetPrimaryAddress(ctx, actor.ID, id)
}

// DeleteAddress удаляет адрес клиента.
func (s *Service) DeleteAddress(ctx context.Context, actor *model.Profile, id uuid.UUID) error {
	return s.repo.DeleteAddress(ctx, actor.ID, id)
}
