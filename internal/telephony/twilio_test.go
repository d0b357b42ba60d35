package telephony

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSendSMSSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/2010-04-01/Accounts/AC123/Messages.json" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "AC123" || pass != "token" {
			t.Errorf("missing basic auth")
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		if r.PostForm.Get("To") != "+15551234567" {
			t.Errorf("unexpected To %s", r.PostForm.Get("To"))
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"sid":"SM900","status":"queued"}`))
	}))
	defer srv.Close()

	g := NewTwilioGateway("AC123", "token", nil).WithBaseURL(srv.URL)
	sid, err := g.SendSMS(context.Background(), "+15550001111", "+15551234567", "hello")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if sid != "SM900" {
		t.Fatalf("expected SM900, got %s", sid)
	}
}

func TestSendSMSPermanentFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":21211,"message":"Invalid 'To' Phone Number","status":400}`))
	}))
	defer srv.Close()

	g := NewTwilioGateway("AC123", "token", nil).WithBaseURL(srv.URL)
	_, err := g.SendSMS(context.Background(), "+15550001111", "bogus", "hello")
	if err == nil {
		t.Fatal("expected error")
	}
	if !IsPermanent(err) {
		t.Fatalf("400 should be permanent, got %v", err)
	}
}

func TestSendSMSRateLimitIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"code":20429,"message":"Too Many Requests","status":429}`))
	}))
	defer srv.Close()

	g := NewTwilioGateway("AC123", "token", nil).WithBaseURL(srv.URL)
	_, err := g.SendSMS(context.Background(), "+15550001111", "+15551234567", "hello")
	if err == nil {
		t.Fatal("expected error")
	}
	if IsPermanent(err) {
		t.Fatalf("429 must be retryable, got %v", err)
	}
}

func TestLookupLineType(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/PhoneNumbers/+15551234567" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("Fields") != "line_type_intelligence" {
			t.Errorf("missing Fields param")
		}
		_, _ = w.Write([]byte(`{"line_type_intelligence":{"type":"landline"}}`))
	}))
	defer srv.Close()

	g := NewTwilioGateway("AC123", "token", nil).WithLookupBaseURL(srv.URL)
	lt, err := g.LookupLineType(context.Background(), "+15551234567")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if lt != LineTypeLandline {
		t.Fatalf("expected landline, got %s", lt)
	}
}

func TestLookupLineTypeUnknownCarrier(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"line_type_intelligence":{"type":""}}`))
	}))
	defer srv.Close()

	g := NewTwilioGateway("AC123", "token", nil).WithLookupBaseURL(srv.URL)
	lt, err := g.LookupLineType(context.Background(), "+15551234567")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if lt != LineTypeUnknown {
		t.Fatalf("expected unknown, got %s", lt)
	}
}

func TestLookupLineTypeErrorFallsBackToUnknown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"code":20404,"message":"not found","status":404}`))
	}))
	defer srv.Close()

	g := NewTwilioGateway("AC123", "token", nil).WithLookupBaseURL(srv.URL)
	lt, err := g.LookupLineType(context.Background(), "+15551234567")
	if err == nil {
		t.Fatal("expected error")
	}
	if lt != LineTypeUnknown {
		t.Fatalf("errors must report unknown, got %s", lt)
	}
}

func TestSendSMSValidation(t *testing.T) {
	g := NewTwilioGateway("", "", nil)
	if _, err := g.SendSMS(context.Background(), "+1555", "+1666", "x"); err == nil {
		t.Fatal("missing credentials should error")
	}
	g = NewTwilioGateway("AC123", "token", nil)
	if _, err := g.SendSMS(context.Background(), "+1555", "+1666", "  "); err == nil {
		t.Fatal("blank body should error")
	}
}
