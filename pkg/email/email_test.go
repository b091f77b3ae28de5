package email

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEmailService_RequiresKey(t *testing.T) {
	_, err := NewEmailService("", "x@example.com")
	assert.Error(t, err)
}

func TestSendEnrollmentConfirmedEmail(t *testing.T) {
	var got EmailData
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer re_test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"id":"email_1"}`))
	}))
	defer srv.Close()

	svc, err := NewEmailService("re_test", "LiveMentor <noreply@livementor.app>", WithEndpoint(srv.URL, srv.Client()))
	require.NoError(t, err)

	err = svc.SendEnrollmentConfirmedEmail(context.Background(), "ada@example.com", EnrollmentConfirmedData{
		StudentName:  "Ada",
		CourseTitle:  "Go Backend Mentorship",
		Amount:       "$199.00",
		EnrollmentID: "enr_1",
		EnrolledAt:   time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	assert.Equal(t, "ada@example.com", got.To)
	assert.Equal(t, "You're enrolled in Go Backend Mentorship", got.Subject)
	assert.Contains(t, got.Html, "$199.00")
	assert.Contains(t, got.Html, "March 2, 2026")
}

func TestSendEmail_ProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"message":"invalid from"}`))
	}))
	defer srv.Close()

	svc, err := NewEmailService("re_test", "bad", WithEndpoint(srv.URL, nil))
	require.NoError(t, err)

	err = svc.SendPaymentFailedEmail(context.Background(), "ada@example.com", PaymentFailedData{StudentName: "Ada"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "422")
}

func TestAllTemplatesRender(t *testing.T) {
	svc, err := NewEmailService("re_test", "x")
	require.NoError(t, err)
	trialEnd := time.Now().Add(72 * time.Hour)

	cases := map[string]interface{}{
		"welcome.html":                WelcomeEmailData{Name: "Ada"},
		"enrollment_confirmed.html":   EnrollmentConfirmedData{StudentName: "Ada"},
		"subscription_started.html":   SubscriptionStartedData{StudentName: "Ada", TrialEnd: &trialEnd},
		"subscription_cancelled.html": SubscriptionCancelledData{AtPeriodEnd: true, EndsAt: trialEnd},
		"payment_failed.html":         PaymentFailedData{InvoiceURL: "https://pay.example.com/in_1"},
		"trial_ending.html":           TrialEndingData{TrialEnd: trialEnd},
	}
	for name, data := range cases {
		var sb strings.Builder
		assert.NoError(t, svc.templates.ExecuteTemplate(&sb, name, data), name)
		assert.NotEmpty(t, sb.String(), name)
	}
}
