// Package model содержит доменные сущности портала клининговой службы.
package model

import (
	"time"

	"github.com/google/uuid"
)

// DateLayout задаёт формат дат визитов, принимаемый и возвращаемый API.
const DateLayout = "2006-01-02"

// ClockLayout задаёт формат времени начала и конца визита.
const ClockLayout = "15:04"

// Profile представляет пользователя портала. Профили не удаляются физически.
type Profile struct {
	ID                      uuid.UUID
	Email                   string
	FirstName               string
	LastName                string
	Phone                   string
	Role                    Role
	AccountStatus           AccountStatus
	CommunicationPreference CommunicationPreference
	StripeCustomerID        *string
	CreatedAt               time.Time
	UpdatedAt               time.Time
	DeletedAt               *time.Time
}

// FullName возвращает имя клиента для отображения.
func (p *Profile) FullName() string {
	switch {
	case p.FirstName != "" && p.LastName != "":
		return p.FirstName + " " + p.LastName
	case p.FirstName != "":
		return p.FirstName
	default:
		return p.Email
	}
}

// IsAdmin сообщает, что профиль принадлежит администратору.
func (p *Profile) IsAdmin() bool {
	return p.Role == RoleAdmin
}

// ServiceAddress описывает адрес обслуживания клиента.
type ServiceAddress struct {
	ID           uuid.UUID
	ProfileID    uuid.UUID
	Label        string
	Street       string
	Unit         string
	City         string
	State        string
	ZIP          string
	Instructions string
	IsPrimary    bool
	CreatedAt    time.Time
}

// OneLine возвращает адрес одной строкой.
func (a *ServiceAddress) OneLine() string {
	line := a.Street
	if a.Unit != "" {
		line += " " + a.Unit
	}
	return line + ", " + a.City + ", " + a.State + " " + a.ZIP
}

// Appointment описывает визит к клиенту.
type Appointment struct {
	ID                 uuid.UUID
	ProfileID          uuid.UUID
	AddressID          uuid.UUID
	ServiceRequestID   *uuid.UUID
	ParentRecurringID  *uuid.UUID
	ServiceType        ServiceType
	Status             AppointmentStatus
	ScheduledDate      time.Time
	ScheduledTimeStart string
	ScheduledTimeEnd   string
	Notes              string
	CancellationReason *CancellationReason
	CancellationNote   string
	CancelledAt        *time.Time
	CompletedAt        *time.Time
	RowVersion         int64
	CreatedAt          time.Time
	UpdatedAt          time.Time

	// Address заполняется при выборке с присоединением адреса.
	Address *ServiceAddress
	// CustomerName заполняется в выборках для администраторов.
	CustomerName string
}

// StartsAt возвращает момент начала визита в указанной временной зоне.
func (a *Appointment) StartsAt(loc *time.Location) (time.Time, error) {
	return combine(a.ScheduledDate, a.ScheduledTimeStart, loc)
}

// EndsAt возвращает момент окончания визита в указанной временной зоне.
func (a *Appointment) EndsAt(loc *time.Location) (time.Time, error) {
	return combine(a.ScheduledDate, a.ScheduledTimeEnd, loc)
}

func combine(date time.Time, clock string, loc *time.Location) (time.Time, error) {
	t, err := time.Parse(ClockLayout, clock)
	if err != nil {
		return time.Time{}, err
	}
	y, m, d := date.Date()
	return time.Date(y, m, d, t.Hour(), t.Minute(), 0, 0, loc), nil
}

// LineItem описывает строку счёта. Суммы хранятся в центах.
type LineItem struct {
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity"`
	RateCents   int64   `json:"rate_cents"`
	AmountCents int64   `json:"amount_cents"`
}

// Invoice описывает счёт клиента.
type Invoice struct {
	ID                 uuid.UUID
	Number             string
	ProfileID          uuid.UUID
	AppointmentID      *uuid.UUID
	Status             InvoiceStatus
	PaymentState       PaymentState
	AmountCents        int64
	TaxRate            float64
	TaxAmountCents     int64
	TotalCents         int64
	LineItems          []LineItem
	PaymentMethod      *PaymentMethodKind
	ProcessorInvoiceID *string
	PaymentIntentID    *string
	Notes              string
	DueDate            time.Time
	PaidDate           *time.Time
	SentAt             *time.Time
	RowVersion         int64
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// AwaitingManualVerification сообщает, что клиент заявил о переводе, но администратор его ещё не подтвердил.
func (i *Invoice) AwaitingManualVerification() bool {
	return i.PaymentState == PaymentStatePendingManualVerification
}

// ServiceRequest описывает заявку клиента на обслуживание.
type ServiceRequest struct {
	ID              uuid.UUID
	ProfileID       uuid.UUID
	AddressID       uuid.UUID
	ServiceType     ServiceType
	Frequency       Frequency
	PreferredDate   time.Time
	PreferredWindow TimeWindow
	Notes           string
	Status          ServiceRequestStatus
	AdminNote       string
	ReviewedAt      *time.Time
	CreatedAt       time.Time

	CustomerName string
}

// Notification описывает запись ленты уведомлений. ProfileID пуст для ленты администраторов.
type Notification struct {
	ID        uuid.UUID
	ProfileID *uuid.UUID
	Type      NotificationType
	Title     string
	Message   string
	Link      string
	Read      bool
	ReadAt    *time.Time
	CreatedAt time.Time
}

// PaymentMethod описывает сохранённую карту. Реквизиты карты не хранятся.
type PaymentMethod struct {
	ID                uuid.UUID
	ProfileID         uuid.UUID
	ProcessorMethodID string
	Brand             string
	Last4             string
	ExpMonth          int
	ExpYear           int
	IsDefault         bool
	CreatedAt         time.Time
}

// Credit описывает начисленный клиенту кредит на будущие услуги.
type Credit struct {
	ID          uuid.UUID
	ProfileID   uuid.UUID
	AmountCents int64
	Reason      string
	CreatedAt   time.Time
}

// Booking описывает заявку, оставленную через публичную форму бронирования.
type Booking struct {
	ID              uuid.UUID
	Name            string
	Email           string
	Phone           string
	Street          string
	City            string
	State           string
	ZIP             string
	ServiceType     ServiceType
	Frequency       Frequency
	PreferredDate   time.Time
	PreferredWindow TimeWindow
	Bedrooms        int
	Bathrooms       int
	Notes           string
	CreatedAt       time.Time
}

// GiftCertificate описывает подарочный сертификат.
type GiftCertificate struct {
	ID              uuid.UUID
	Code            string
	PurchaserName   string
	PurchaserEmail  string
	RecipientName   string
	RecipientEmail  string
	Message         string
	AmountCents     int64
	Status          GiftCertificateStatus
	PaymentIntentID *string
	PaidAt          *time.Time
	CreatedAt       time.Time
}

// Identity описывает пользователя, подтверждённого внешним провайдером аутентификации.
type Identity struct {
	UserID uuid.UUID
	Email  string
}
