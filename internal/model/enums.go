package model

import "time"

// Role описывает роль пользователя портала.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleAdmin    Role = "admin"
)

// Valid сообщает, относится ли значение к известным ролям.
func (r Role) Valid() bool {
	switch r {
	case RoleCustomer, RoleAdmin:
		return true
	}
	return false
}

// AccountStatus описывает состояние учётной записи.
type AccountStatus string

const (
	AccountStatusPending   AccountStatus = "pending"
	AccountStatusActive    AccountStatus = "active"
	AccountStatusSuspended AccountStatus = "suspended"
	AccountStatusDeleted   AccountStatus = "deleted"
)

// Valid сообщает, относится ли значение к известным статусам учётной записи.
func (s AccountStatus) Valid() bool {
	switch s {
	case AccountStatusPending, AccountStatusActive, AccountStatusSuspended, AccountStatusDeleted:
		return true
	}
	return false
}

// CanTransitionTo проверяет допустимость смены статуса учётной записи администратором.
func (s AccountStatus) CanTransitionTo(next AccountStatus) bool {
	switch s {
	case AccountStatusPending:
		return next == AccountStatusActive || next == AccountStatusDeleted
	case AccountStatusActive:
		return next == AccountStatusSuspended || next == AccountStatusDeleted
	case AccountStatusSuspended:
		return next == AccountStatusActive || next == AccountStatusDeleted
	case AccountStatusDeleted:
		return false
	}
	return false
}

// CommunicationPreference описывает предпочтительный канал связи с клиентом.
type CommunicationPreference string

const (
	CommunicationEmail CommunicationPreference = "email"
	CommunicationSMS   CommunicationPreference = "sms"
	CommunicationBoth  CommunicationPreference = "both"
)

// Valid сообщает, относится ли значение к известным каналам связи.
func (p CommunicationPreference) Valid() bool {
	switch p {
	case CommunicationEmail, CommunicationSMS, CommunicationBoth:
		return true
	}
	return false
}

// WantsEmail сообщает, принимает ли клиент уведомления по почте.
func (p CommunicationPreference) WantsEmail() bool {
	switch p {
	case CommunicationEmail, CommunicationBoth:
		return true
	case CommunicationSMS:
		return false
	}
	return true
}

// WantsSMS сообщает, принимает ли клиент SMS-уведомления.
func (p CommunicationPreference) WantsSMS() bool {
	switch p {
	case CommunicationSMS, CommunicationBoth:
		return true
	case CommunicationEmail:
		return false
	}
	return false
}

// AppointmentStatus описывает статус визита.
type AppointmentStatus string

const (
	AppointmentStatusPending      AppointmentStatus = "pending"
	AppointmentStatusConfirmed    AppointmentStatus = "confirmed"
	AppointmentStatusEnRoute      AppointmentStatus = "en_route"
	AppointmentStatusCompleted    AppointmentStatus = "completed"
	AppointmentStatusNotCompleted AppointmentStatus = "not_completed"
	AppointmentStatusCancelled    AppointmentStatus = "cancelled"
)

// Valid сообщает, относится ли значение к известным статусам визита.
func (s AppointmentStatus) Valid() bool {
	switch s {
	case AppointmentStatusPending, AppointmentStatusConfirmed, AppointmentStatusEnRoute,
		AppointmentStatusCompleted, AppointmentStatusNotCompleted, AppointmentStatusCancelled:
		return true
	}
	return false
}

// Label возвращает отображаемое название статуса.
func (s AppointmentStatus) Label() string {
	switch s {
	case AppointmentStatusPending:
		return "Pending"
	case AppointmentStatusConfirmed:
		return "Confirmed"
	case AppointmentStatusEnRoute:
		return "En Route"
	case AppointmentStatusCompleted:
		return "Completed"
	case AppointmentStatusNotCompleted:
		return "Not Completed"
	case AppointmentStatusCancelled:
		return "Cancelled"
	}
	return string(s)
}

// BadgeColor возвращает цвет бейджа статуса в интерфейсе портала.
func (s AppointmentStatus) BadgeColor() string {
	switch s {
	case AppointmentStatusPending:
		return "yellow"
	case AppointmentStatusConfirmed:
		return "blue"
	case AppointmentStatusEnRoute:
		return "purple"
	case AppointmentStatusCompleted:
		return "green"
	case AppointmentStatusNotCompleted:
		return "orange"
	case AppointmentStatusCancelled:
		return "red"
	}
	return "gray"
}

// Terminal сообщает, что визит больше не меняет статус.
func (s AppointmentStatus) Terminal() bool {
	switch s {
	case AppointmentStatusCompleted, AppointmentStatusNotCompleted, AppointmentStatusCancelled:
		return true
	case AppointmentStatusPending, AppointmentStatusConfirmed, AppointmentStatusEnRoute:
		return false
	}
	return true
}

// CanTransitionTo проверяет допустимость перехода визита в статус next.
func (s AppointmentStatus) CanTransitionTo(next AppointmentStatus) bool {
	switch s {
	case AppointmentStatusPending:
		return next == AppointmentStatusConfirmed || next == AppointmentStatusCancelled
	case AppointmentStatusConfirmed:
		switch next {
		case AppointmentStatusConfirmed, AppointmentStatusEnRoute, AppointmentStatusCompleted,
			AppointmentStatusNotCompleted, AppointmentStatusCancelled:
			return true
		}
		return false
	case AppointmentStatusEnRoute:
		switch next {
		case AppointmentStatusCompleted, AppointmentStatusNotCompleted, AppointmentStatusCancelled:
			return true
		}
		return false
	case AppointmentStatusCompleted, AppointmentStatusNotCompleted, AppointmentStatusCancelled:
		return false
	}
	return false
}

// Reschedulable сообщает, можно ли перенести визит в этом статусе.
func (s AppointmentStatus) Reschedulable() bool {
	switch s {
	case AppointmentStatusPending, AppointmentStatusConfirmed:
		return true
	case AppointmentStatusEnRoute, AppointmentStatusCompleted, AppointmentStatusNotCompleted, AppointmentStatusCancelled:
		return false
	}
	return false
}

// ServiceType описывает вид уборки.
type ServiceType string

const (
	ServiceTypeStandard         ServiceType = "standard_cleaning"
	ServiceTypeDeep             ServiceType = "deep_cleaning"
	ServiceTypeMoveInOut        ServiceType = "move_in_out"
	ServiceTypePostConstruction ServiceType = "post_construction"
	ServiceTypeCommercial       ServiceType = "commercial"
	ServiceTypeVacationRental   ServiceType = "vacation_rental"
)

// Valid сообщает, относится ли значение к известным видам уборки.
func (t ServiceType) Valid() bool {
	switch t {
	case ServiceTypeStandard, ServiceTypeDeep, ServiceTypeMoveInOut,
		ServiceTypePostConstruction, ServiceTypeCommercial, ServiceTypeVacationRental:
		return true
	}
	return false
}

// Label возвращает отображаемое название вида уборки.
func (t ServiceType) Label() string {
	switch t {
	case ServiceTypeStandard:
		return "Standard Cleaning"
	case ServiceTypeDeep:
		return "Deep Cleaning"
	case ServiceTypeMoveInOut:
		return "Move In/Out Cleaning"
	case ServiceTypePostConstruction:
		return "Post-Construction Cleaning"
	case ServiceTypeCommercial:
		return "Commercial Cleaning"
	case ServiceTypeVacationRental:
		return "Vacation Rental Turnover"
	}
	return string(t)
}

// TimeWindow описывает фиксированное окно времени визита.
type TimeWindow string

const (
	TimeWindowMorning   TimeWindow = "morning"
	TimeWindowAfternoon TimeWindow = "afternoon"
	TimeWindowEvening   TimeWindow = "evening"
)

// Valid сообщает, относится ли значение к известным окнам времени.
func (w TimeWindow) Valid() bool {
	switch w {
	case TimeWindowMorning, TimeWindowAfternoon, TimeWindowEvening:
		return true
	}
	return false
}

// Bounds возвращает начало и конец окна в формате "15:04".
func (w TimeWindow) Bounds() (start, end string) {
	switch w {
	case TimeWindowMorning:
		return "08:00", "12:00"
	case TimeWindowAfternoon:
		return "12:00", "15:00"
	case TimeWindowEvening:
		return "15:00", "17:45"
	}
	return "", ""
}

// Label возвращает отображаемое название окна.
func (w TimeWindow) Label() string {
	switch w {
	case TimeWindowMorning:
		return "Morning (8:00 AM - 12:00 PM)"
	case TimeWindowAfternoon:
		return "Afternoon (12:00 PM - 3:00 PM)"
	case TimeWindowEvening:
		return "Evening (3:00 PM - 5:45 PM)"
	}
	return string(w)
}

// TimeWindowFromStart определяет окно по времени начала визита.
func TimeWindowFromStart(start string) (TimeWindow, bool) {
	for _, w := range []TimeWindow{TimeWindowMorning, TimeWindowAfternoon, TimeWindowEvening} {
		if s, _ := w.Bounds(); s == start {
			return w, true
		}
	}
	return "", false
}

// CancellationReason описывает причину отмены визита клиентом.
type CancellationReason string

const (
	CancellationScheduleConflict     CancellationReason = "schedule_conflict"
	CancellationNoLongerNeeded       CancellationReason = "no_longer_needed"
	CancellationChoseAnotherProvider CancellationReason = "chose_another_provider"
	CancellationBudget               CancellationReason = "budget"
	CancellationMoving               CancellationReason = "moving"
	CancellationOther                CancellationReason = "other"
)

// Valid сообщает, относится ли значение к известным причинам отмены.
func (r CancellationReason) Valid() bool {
	switch r {
	case CancellationScheduleConflict, CancellationNoLongerNeeded, CancellationChoseAnotherProvider,
		CancellationBudget, CancellationMoving, CancellationOther:
		return true
	}
	return false
}

// Label возвращает отображаемый текст причины отмены.
func (r CancellationReason) Label() string {
	switch r {
	case CancellationScheduleConflict:
		return "Schedule conflict"
	case CancellationNoLongerNeeded:
		return "No longer need the service"
	case CancellationChoseAnotherProvider:
		return "Chose another provider"
	case CancellationBudget:
		return "Budget constraints"
	case CancellationMoving:
		return "Moving"
	case CancellationOther:
		return "Other"
	}
	return string(r)
}

// InvoiceStatus описывает статус счёта.
type InvoiceStatus string

const (
	InvoiceStatusDraft     InvoiceStatus = "draft"
	InvoiceStatusSent      InvoiceStatus = "sent"
	InvoiceStatusPaid      InvoiceStatus = "paid"
	InvoiceStatusOverdue   InvoiceStatus = "overdue"
	InvoiceStatusCancelled InvoiceStatus = "cancelled"
)

// Valid сообщает, относится ли значение к известным статусам счёта.
func (s InvoiceStatus) Valid() bool {
	switch s {
	case InvoiceStatusDraft, InvoiceStatusSent, InvoiceStatusPaid, InvoiceStatusOverdue, InvoiceStatusCancelled:
		return true
	}
	return false
}

// Label возвращает отображаемое название статуса счёта.
func (s InvoiceStatus) Label() string {
	switch s {
	case InvoiceStatusDraft:
		return "Draft"
	case InvoiceStatusSent:
		return "Sent"
	case InvoiceStatusPaid:
		return "Paid"
	case InvoiceStatusOverdue:
		return "Overdue"
	case InvoiceStatusCancelled:
		return "Cancelled"
	}
	return string(s)
}

// BadgeColor возвращает цвет бейджа статуса счёта.
func (s InvoiceStatus) BadgeColor() string {
	switch s {
	case InvoiceStatusDraft:
		return "gray"
	case InvoiceStatusSent:
		return "blue"
	case InvoiceStatusPaid:
		return "green"
	case InvoiceStatusOverdue:
		return "red"
	case InvoiceStatusCancelled:
		return "gray"
	}
	return "gray"
}

// Payable сообщает, можно ли оплатить счёт в этом статусе.
func (s InvoiceStatus) Payable() bool {
	switch s {
	case InvoiceStatusSent, InvoiceStatusOverdue:
		return true
	case InvoiceStatusDraft, InvoiceStatusPaid, InvoiceStatusCancelled:
		return false
	}
	return false
}

// CanTransitionTo проверяет допустимость перехода счёта в статус next.
func (s InvoiceStatus) CanTransitionTo(next InvoiceStatus) bool {
	switch s {
	case InvoiceStatusDraft:
		return next == InvoiceStatusSent || next == InvoiceStatusCancelled
	case InvoiceStatusSent:
		return next == InvoiceStatusPaid || next == InvoiceStatusOverdue || next == InvoiceStatusCancelled
	case InvoiceStatusOverdue:
		return next == InvoiceStatusPaid || next == InvoiceStatusCancelled
	case InvoiceStatusPaid, InvoiceStatusCancelled:
		return false
	}
	return false
}

// PaymentState явно описывает состояние оплаты счёта, включая ожидание ручной проверки перевода.
type PaymentState string

const (
	PaymentStateUnpaid                    PaymentState = "unpaid"
	PaymentStatePendingManualVerification PaymentState = "pending_manual_verification"
	PaymentStatePaid                      PaymentState = "paid"
)

// Valid сообщает, относится ли значение к известным состояниям оплаты.
func (s PaymentState) Valid() bool {
	switch s {
	case PaymentStateUnpaid, PaymentStatePendingManualVerification, PaymentStatePaid:
		return true
	}
	return false
}

// PaymentMethodKind описывает способ оплаты счёта.
type PaymentMethodKind string

const (
	PaymentMethodStripe PaymentMethodKind = "stripe"
	PaymentMethodZelle  PaymentMethodKind = "zelle"
	PaymentMethodCash   PaymentMethodKind = "cash"
	PaymentMethodCheck  PaymentMethodKind = "check"
)

// Valid сообщает, относится ли значение к известным способам оплаты.
func (k PaymentMethodKind) Valid() bool {
	switch k {
	case PaymentMethodStripe, PaymentMethodZelle, PaymentMethodCash, PaymentMethodCheck:
		return true
	}
	return false
}

// Offline сообщает, что оплата проходит вне платёжного процессора и подтверждается администратором.
func (k PaymentMethodKind) Offline() bool {
	switch k {
	case PaymentMethodCash, PaymentMethodCheck, PaymentMethodZelle:
		return true
	case PaymentMethodStripe:
		return false
	}
	return false
}

// ServiceRequestStatus описывает статус заявки на обслуживание.
type ServiceRequestStatus string

const (
	ServiceRequestPending   ServiceRequestStatus = "pending"
	ServiceRequestApproved  ServiceRequestStatus = "approved"
	ServiceRequestDeclined  ServiceRequestStatus = "declined"
	ServiceRequestCompleted ServiceRequestStatus = "completed"
)

// Valid сообщает, относится ли значение к известным статусам заявки.
func (s ServiceRequestStatus) Valid() bool {
	switch s {
	case ServiceRequestPending, ServiceRequestApproved, ServiceRequestDeclined, ServiceRequestCompleted:
		return true
	}
	return false
}

// CanTransitionTo проверяет допустимость перехода заявки в статус next.
func (s ServiceRequestStatus) CanTransitionTo(next ServiceRequestStatus) bool {
	switch s {
	case ServiceRequestPending:
		return next == ServiceRequestApproved || next == ServiceRequestDeclined
	case ServiceRequestApproved:
		return next == ServiceRequestCompleted
	case ServiceRequestDeclined, ServiceRequestCompleted:
		return false
	}
	return false
}

// Frequency описывает периодичность запрошенного обслуживания.
type Frequency string

const (
	FrequencyOneTime  Frequency = "one_time"
	FrequencyWeekly   Frequency = "weekly"
	FrequencyBiweekly Frequency = "biweekly"
	FrequencyMonthly  Frequency = "monthly"
)

// Valid сообщает, относится ли значение к известным периодичностям.
func (f Frequency) Valid() bool {
	switch f {
	case FrequencyOneTime, FrequencyWeekly, FrequencyBiweekly, FrequencyMonthly:
		return true
	}
	return false
}

// Occurrence возвращает дату k-го визита серии, начатой в first. Для разового
// обслуживания ok = false при k > 0. Месячный шаг отсчитывается от first и
// прижимается к последнему дню месяца, поэтому 31 января даёт 28 февраля и 31 марта.
func (f Frequency) Occurrence(first time.Time, k int) (time.Time, bool) {
	if k == 0 {
		return first, true
	}
	switch f {
	case FrequencyWeekly:
		return first.AddDate(0, 0, 7*k), true
	case FrequencyBiweekly:
		return first.AddDate(0, 0, 14*k), true
	case FrequencyMonthly:
		return AddMonthsClamped(first, k), true
	case FrequencyOneTime:
		return time.Time{}, false
	}
	return time.Time{}, false
}

// AddMonthsClamped сдвигает d на n месяцев без переноса в следующий месяц.
func AddMonthsClamped(d time.Time, n int) time.Time {
	y, m, day := d.Date()
	target := time.Date(y, m+time.Month(n), 1, d.Hour(), d.Minute(), d.Second(), d.Nanosecond(), d.Location())
	if last := target.AddDate(0, 1, -1).Day(); day > last {
		day = last
	}
	return target.AddDate(0, 0, day-1)
}

// NotificationType описывает событие, породившее уведомление.
type NotificationType string

const (
	NotificationPaymentReceived         NotificationType = "payment_received"
	NotificationPaymentFailed           NotificationType = "payment_failed"
	NotificationManualPaymentSubmitted  NotificationType = "manual_payment_submitted"
	NotificationManualPaymentVerified   NotificationType = "manual_payment_verified"
	NotificationManualPaymentRejected   NotificationType = "manual_payment_rejected"
	NotificationInvoiceSent             NotificationType = "invoice_sent"
	NotificationInvoiceOverdue          NotificationType = "invoice_overdue"
	NotificationAppointmentScheduled    NotificationType = "appointment_scheduled"
	NotificationAppointmentRescheduled  NotificationType = "appointment_rescheduled"
	NotificationAppointmentCancelled    NotificationType = "appointment_cancelled"
	NotificationAppointmentStatus       NotificationType = "appointment_status"
	NotificationServiceRequestSubmitted NotificationType = "service_request_submitted"
	NotificationServiceRequestApproved  NotificationType = "service_request_approved"
	NotificationServiceRequestDeclined  NotificationType = "service_request_declined"
	NotificationRegistrationPending     NotificationType = "registration_pending"
	NotificationAccountUpdate           NotificationType = "account_update"
	NotificationGiftCertificatePaid     NotificationType = "gift_certificate_paid"
	NotificationSystem                  NotificationType = "system"
)

// NotificationCategory группирует типы уведомлений для фильтров ленты клиента.
type NotificationCategory string

const (
	CategoryPayments NotificationCategory = "payments"
	CategoryInvoices NotificationCategory = "invoices"
	CategorySystem   NotificationCategory = "system"
)

// Category возвращает категорию фильтра для типа уведомления.
func (t NotificationType) Category() NotificationCategory {
	switch t {
	case NotificationPaymentReceived, NotificationPaymentFailed, NotificationManualPaymentSubmitted,
		NotificationManualPaymentVerified, NotificationManualPaymentRejected, NotificationGiftCertificatePaid:
		return CategoryPayments
	case NotificationInvoiceSent, NotificationInvoiceOverdue:
		return CategoryInvoices
	case NotificationAppointmentScheduled, NotificationAppointmentRescheduled, NotificationAppointmentCancelled,
		NotificationAppointmentStatus, NotificationServiceRequestSubmitted, NotificationServiceRequestApproved,
		NotificationServiceRequestDeclined, NotificationRegistrationPending, NotificationAccountUpdate,
		NotificationSystem:
		return CategorySystem
	}
	return CategorySystem
}

// NotificationTypesIn возвращает все типы уведомлений категории c.
func NotificationTypesIn(c NotificationCategory) []NotificationType {
	all := []NotificationType{
		NotificationPaymentReceived, NotificationPaymentFailed, NotificationManualPaymentSubmitted,
		NotificationManualPaymentVerified, NotificationManualPaymentRejected, NotificationInvoiceSent,
		NotificationInvoiceOverdue, NotificationAppointmentScheduled, NotificationAppointmentRescheduled,
		NotificationAppointmentCancelled, NotificationAppointmentStatus, NotificationServiceRequestSubmitted,
		NotificationServiceRequestApproved, NotificationServiceRequestDeclined, NotificationRegistrationPending,
		NotificationAccountUpdate, NotificationGiftCertificatePaid, NotificationSystem,
	}
	var res []NotificationType
	for _, t := range all {
		if t.Category() == c {
			res = append(res, t)
		}
	}
	return res
}

// NotificationFilter описывает фильтр ленты уведомлений клиента.
type NotificationFilter string

const (
	FilterAll      NotificationFilter = "all"
	FilterUnread   NotificationFilter = "unread"
	FilterPayments NotificationFilter = "payments"
	FilterInvoices NotificationFilter = "invoices"
	FilterSystem   NotificationFilter = "system"
)

// Valid сообщает, относится ли значение к известным фильтрам.
func (f NotificationFilter) Valid() bool {
	switch f {
	case FilterAll, FilterUnread, FilterPayments, FilterInvoices, FilterSystem:
		return true
	}
	return false
}

// Category возвращает категорию, соответствующую фильтру, если фильтр категориальный.
func (f NotificationFilter) Category() (NotificationCategory, bool) {
	switch f {
	case FilterPayments:
		return CategoryPayments, true
	case FilterInvoices:
		return CategoryInvoices, true
	case FilterSystem:
		return CategorySystem, true
	case FilterAll, FilterUnread:
		return "", false
	}
	return "", false
}

// Feed различает ленту клиента и общую ленту администраторов.
type Feed string

const (
	FeedCustomer Feed = "customer"
	FeedAdmin    Feed = "admin"
)

// PageSize возвращает фиксированный размер страницы ленты.
func (f Feed) PageSize() int {
	switch f {
	case FeedCustomer:
		return 20
	case FeedAdmin:
		return 10
	}
	return 20
}

// GiftCertificateStatus описывает статус подарочного сертификата.
type GiftCertificateStatus string

const (
	GiftCertificatePending   GiftCertificateStatus = "pending"
	GiftCertificatePaid      GiftCertificateStatus = "paid"
	GiftCertificateRedeemed  GiftCertificateStatus = "redeemed"
	GiftCertificateCancelled GiftCertificateStatus = "cancelled"
)
