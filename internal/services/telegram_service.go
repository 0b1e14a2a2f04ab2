package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/example/storefront/internal/models"
)

const telegramAPIBase = "https://api.telegram.org"

// TelegramService handles sending notifications to Telegram.
type TelegramService struct {
	botToken    string
	adminChatID string
	baseURL     string
	client      *http.Client
}

// NewTelegramService creates a new TelegramService.
func NewTelegramService(botToken, adminChatID string) *TelegramService {
	return &TelegramService{
		botToken:    botToken,
		adminChatID: adminChatID,
		baseURL:     telegramAPIBase,
		client:      &http.Client{Timeout: 15 * time.Second},
	}
}

type telegramMessage struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

// SendMessage sends a message to specified chat.
func (s *TelegramService) SendMessage(ctx context.Context, chatID, text string) error {
	if s.botToken == "" {
		log.Println("[Telegram] Bot token not configured")
		return nil
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", s.baseURL, s.botToken)

	body, err := json.Marshal(telegramMessage{
		ChatID:    chatID,
		Text:      text,
		ParseMode: "HTML",
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		log.Printf("[Telegram] Failed to send message: %v", err)
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Printf("[Telegram] Unexpected status: %d", resp.StatusCode)
		return fmt.Errorf("telegram returned status %d", resp.StatusCode)
	}

	return nil
}

// SendToAdmin sends a message to the admin chat.
func (s *TelegramService) SendToAdmin(ctx context.Context, text string) error {
	if s.adminChatID == "" {
		log.Println("[Telegram] Admin chat ID not configured")
		return nil
	}
	return s.SendMessage(ctx, s.adminChatID, text)
}

// FormatPrice formats price with two decimals and thousand separators.
func FormatPrice(amount float64) string {
	str := fmt.Sprintf("%.2f", amount)
	whole, frac, _ := strings.Cut(str, ".")

	negative := strings.HasPrefix(whole, "-")
	whole = strings.TrimPrefix(whole, "-")

	var result strings.Builder
	if negative {
		result.WriteByte('-')
	}
	length := len(whole)
	for i, digit := range whole {
		if i > 0 && (length-i)%3 == 0 {
			result.WriteString(",")
		}
		result.WriteRune(digit)
	}

	return result.String() + "." + frac
}

// NotifyNewEnquiry tells the admin chat about a freshly raised enquiry.
func (s *TelegramService) NotifyNewEnquiry(ctx context.Context, user *models.User, enquiry *models.Enquiry, products map[uuid.UUID]*models.Product) error {
	if s.adminChatID == "" {
		return nil
	}

	var items strings.Builder
	for i, item := range enquiry.Items {
		title := item.ProductID.String()
		price := ""
		if p, ok := products[item.ProductID]; ok {
			title = p.Title
			if first := p.FirstVariant(); first != nil {
				price = " @ " + FormatPrice(first.EffectivePrice())
			}
		}
		items.WriteString(fmt.Sprintf("%d. <b>%s</b> x %d%s\n", i+1, title, item.Quantity, price))
	}

	name := strings.TrimSpace(user.DisplayName)
	if name == "" {
		name = strings.TrimSpace(user.FirstName + " " + user.LastName)
	}

	message := fmt.Sprintf(`<b>New enquiry</b>
<b>ID:</b> %s
<b>Customer:</b> %s
<b>Email:</b> %s
<b>Phone:</b> %s
<b>Items:</b>
%s<b>Notes:</b> %s`,
		enquiry.ID,
		name,
		enquiry.ContactEmail,
		enquiry.ContactPhone,
		items.String(),
		enquiry.Notes,
	)

	return s.SendToAdmin(ctx, strings.TrimSpace(message))
}
