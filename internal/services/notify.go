package services

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"

	"github.com/google/uuid"

	"github.com/example/storefront/internal/models"
)

// EnquiryNotifications fans a new enquiry out to the admin chat and a
// confirmation email to the customer.
type EnquiryNotifications struct {
	telegram *TelegramService
	mailer   Mailer
}

// NewEnquiryNotifications constructs EnquiryNotifications. Either sink may be nil.
func NewEnquiryNotifications(telegram *TelegramService, mailer Mailer) *EnquiryNotifications {
	return &EnquiryNotifications{telegram: telegram, mailer: mailer}
}

// EnquiryCreated implements EnquiryNotifier.
func (n *EnquiryNotifications) EnquiryCreated(ctx context.Context, user *models.User, enquiry *models.Enquiry, products map[uuid.UUID]*models.Product) error {
	var errs []error

	if n.telegram != nil {
		if err := n.telegram.NotifyNewEnquiry(ctx, user, enquiry, products); err != nil {
			errs = append(errs, fmt.Errorf("telegram: %w", err))
		}
	}

	if n.mailer != nil && enquiry.ContactEmail != "" {
		msg := EmailMessage{
			To:      enquiry.ContactEmail,
			Subject: "We received your enquiry",
			HTML:    enquiryEmailHTML(enquiry, products),
		}
		if err := n.mailer.Send(ctx, msg); err != nil && !errors.Is(err, ErrNotConfigured) {
			errs = append(errs, fmt.Errorf("email: %w", err))
		}
	}

	return errors.Join(errs...)
}

func enquiryEmailHTML(enquiry *models.Enquiry, products map[uuid.UUID]*models.Product) string {
	var b strings.Builder
	b.WriteString("<p>Thank you for your enquiry. Our team will contact you shortly.</p><ul>")
	for _, item := range enquiry.Items {
		title := item.ProductID.String()
		if p, ok := products[item.ProductID]; ok {
			title = p.Title
		}
		b.WriteString(fmt.Sprintf("<li>%s &times; %d</li>", html.EscapeString(title), item.Quantity))
	}
	b.WriteString("</ul>")
	b.WriteString(fmt.Sprintf("<p>Reference: %s</p>", enquiry.ID))
	return b.String()
}
