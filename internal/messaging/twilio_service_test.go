package messaging

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/BTreeMap/SearchPipe/internal/models"
	"github.com/BTreeMap/SearchPipe/internal/twiliowhatsapp"
)

func TestTwilioService_ImplementsService(t *testing.T) {
	var _ Service = (*TwilioService)(nil)
}

func TestTwilioService_SendMessage(t *testing.T) {
	mock := twiliowhatsapp.NewMockClient()
	svc := NewTwilioService(mock)

	if err := svc.SendMessage(context.Background(), "whatsapp:+15551234567", "hi"); err != nil {
		t.Fatalf("SendMessage returned error: %v", err)
	}
	sent := mock.Sent()
	if len(sent) != 1 || sent[0].To != "+15551234567" || sent[0].Body != "hi" {
		t.Fatalf("unexpected sent messages: %+v", sent)
	}
	receipt := <-svc.Receipts()
	if receipt.Status != models.MessageStatusSent || receipt.To != "15551234567" {
		t.Errorf("unexpected receipt: %+v", receipt)
	}
}

func TestTwilioService_SendMessage_FailureReceipt(t *testing.T) {
	mock := twiliowhatsapp.NewMockClient()
	mock.Err = errors.New("rejected")
	svc := NewTwilioService(mock)

	if err := svc.SendMessage(context.Background(), "+15551234567", "hi"); err == nil {
		t.Fatal("expected send error")
	}
	receipt := <-svc.Receipts()
	if receipt.Status != models.MessageStatusFailed {
		t.Errorf("expected failed receipt, got %+v", receipt)
	}
}

func TestTwilioService_Stop(t *testing.T) {
	svc := NewTwilioService(twiliowhatsapp.NewMockClient())
	if err := svc.Stop(); err != nil {
		t.Fatalf("Stop returned error: %v", err)
	}
	if _, ok := <-svc.Responses(); ok {
		t.Error("expected responses channel closed")
	}
	if err := svc.SendMessage(context.Background(), "+15551234567", "hi"); !errors.Is(err, ErrServiceStopped) {
		t.Errorf("expected ErrServiceStopped, got %v", err)
	}
}

func postWebhook(svc *TwilioService, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/twilio/webhook", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	svc.TwilioWebhookHandler(rec, req)
	return rec
}

func TestTwilioWebhookHandler(t *testing.T) {
	svc := NewTwilioService(twiliowhatsapp.NewMockClient())

	rec := postWebhook(svc, url.Values{
		"From":       {"whatsapp:+15551234567"},
		"Body":       {"software engineer"},
		"MessageSid": {"SM123"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	resp := <-svc.Responses()
	if resp.From != "whatsapp:+15551234567" || resp.Body != "software engineer" || resp.MessageID != "SM123" {
		t.Errorf("unexpected response: %+v", resp)
	}

	rec = postWebhook(svc, url.Values{"From": {"whatsapp:+15551234567"}})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for missing body, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/twilio/webhook", nil)
	rr := httptest.NewRecorder()
	svc.TwilioWebhookHandler(rr, req)
	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405 for GET, got %d", rr.Code)
	}

	_ = svc.Stop()
	rec = postWebhook(svc, url.Values{"From": {"+15551234567"}, "Body": {"late"}})
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 after Stop, got %d", rec.Code)
	}
}
