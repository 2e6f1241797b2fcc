package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	custommiddleware "github.com/mmeshcher/cleaning-portal/internal/middleware"
	"github.com/mmeshcher/cleaning-portal/internal/model"
)

// SetupRouter настраивает HTTP-маршруты и middleware портала.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(custommiddleware.Logger(h.logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.New(cors.Options{
		AllowedOrigins:   h.opts.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}).Handler)
	r.Use(custommiddleware.GzipMiddleware)

	r.Get("/healthz", h.Healthz)

	r.Route("/api", func(r chi.Router) {
		r.Post("/bookings", h.CreateBooking)
		r.Get("/bookings/confirmation", h.BookingConfirmation)
		r.Post("/applications", h.SubmitApplication)
		r.Post("/gift-certificates", h.PurchaseGiftCertificate)
		r.Post("/stripe/webhook", h.StripeWebhook)

		r.Group(func(r chi.Router) {
			r.Use(h.auth.Middleware)

			// регистрация доступна до создания профиля
			r.Post("/portal/register", h.Register)

			r.Group(func(r chi.Router) {
				r.Use(h.authz.Middleware)
				r.Route("/portal", h.portalRoutes)
				r.Route("/admin", h.adminRoutes)
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeErr(w, http.StatusNotFound, "not_found", "We could not find what you were looking for.", "")
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeErr(w, http.StatusMethodNotAllowed, "method_not_allowed", http.StatusText(http.StatusMethodNotAllowed), "")
	})

	return r
}

func (h *Handler) portalRoutes(r chi.Router) {
	r.Get("/me", h.GetMe)
	r.Put("/me", h.UpdateSettings)
	r.Get("/dashboard", h.GetDashboard)

	r.Get("/addresses", h.ListAddresses)
	r.Post("/addresses", h.AddAddress)
	r.Put("/addresses/{id}", h.UpdateAddress)
	r.Delete("/addresses/{id}", h.DeleteAddress)
	r.Post("/addresses/{id}/primary", h.SetPrimaryAddress)

	r.Get("/appointments", h.ListAppointments)
	r.Get("/appointments/{id}", h.GetAppointment)
	r.Post("/appointments/{id}/reschedule", h.Reschedule)
	r.Post("/appointments/{id}/cancel", h.Cancel)

	r.Get("/requests", h.ListServiceRequests)
	r.Post("/requests", h.RequestService)

	r.Get("/invoices", h.ListInvoices)
	r.Get("/invoices/{id}", h.GetInvoice)
	r.Post("/invoices/{id}/pay", h.PayInvoice)
	r.Post("/invoices/{id}/pay/confirm", h.ConfirmPayment)
	r.Get("/invoices/{id}/manual-payment", h.GetManualInstructions)
	r.Post("/invoices/{id}/manual-payment", h.ClaimManualPayment)

	r.Get("/payment-methods", h.ListPaymentMethods)
	r.Post("/payment-methods/{id}/default", h.SetDefaultPaymentMethod)
	r.Delete("/payment-methods/{id}", h.DeletePaymentMethod)

	h.notificationRoutes(r, model.FeedCustomer)
}

func (h *Handler) adminRoutes(r chi.Router) {
	r.Get("/dashboard", h.GetAdminDashboard)

	r.Get("/customers", h.ListCustomers)
	r.Post("/customers", h.InviteCustomer)
	r.Get("/customers/{id}", h.GetCustomer)
	r.Put("/customers/{id}/status", h.SetAccountStatus)

	r.Get("/appointments", h.AdminListAppointments)
	r.Post("/appointments", h.CreateAppointment)
	r.Get("/appointments/{id}", h.GetAppointment)
	r.Put("/appointments/{id}/status", h.UpdateAppointmentStatus)
	r.Post("/appointments/{id}/reschedule", h.Reschedule)
	r.Post("/appointments/{id}/cancel", h.Cancel)
	r.Post("/appointments/{id}/invoice", h.CreateInvoiceFromAppointment)

	r.Get("/requests", h.AdminListServiceRequests)
	r.Post("/requests/{id}/approve", h.ApproveServiceRequest)
	r.Post("/requests/{id}/decline", h.DeclineServiceRequest)

	r.Get("/invoices", h.AdminListInvoices)
	r.Post("/invoices", h.CreateInvoice)
	r.Get("/invoices/{id}", h.GetInvoice)
	r.Post("/invoices/{id}/send", h.SendInvoice)
	r.Post("/invoices/{id}/verify-payment", h.VerifyManualPayment)
	r.Post("/invoices/{id}/reject-payment", h.RejectManualPayment)
	r.Post("/invoices/{id}/offline-payment", h.RecordOfflinePayment)
	r.Post("/invoices/{id}/cancel", h.CancelInvoice)

	h.notificationRoutes(r, model.FeedAdmin)
	if h.opts.AdminFeed != nil {
		r.Get("/notifications/ws", h.opts.AdminFeed.ServeHTTP)
	}
}

func (h *Handler) notificationRoutes(r chi.Router, feed model.Feed) {
	r.Get("/notifications", h.ListNotifications(feed))
	r.Get("/notifications/unread-count", h.UnreadCount(feed))
	r.Post("/notifications/read-all", h.MarkAllNotificationsRead(feed))
	r.Post("/notifications/{id}/read", h.SetNotificationRead(feed, true))
	r.Post("/notifications/{id}/unread", h.SetNotificationRead(feed, false))
}
