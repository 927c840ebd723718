package inference

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/dmehra2102/prod-golang-projects/epicheck/internal/config"
)

func newTestGateway(t *testing.T, handler http.HandlerFunc, maxFailures int) *Gateway {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewGateway(config.InferenceConfig{
		WorkerURL:          srv.URL,
		APIKey:             "test-key",
		Timeout:            200 * time.Millisecond,
		BreakerMaxFailures: maxFailures,
		BreakerOpenTimeout: time.Minute,
	}, zap.NewNop())
}

func TestPredict_Success(t *testing.T) {
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/predict" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("X-AI-KEY"); got != "test-key" {
			t.Errorf("expected api key header, got %q", got)
		}
		var req predictRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ImagePath != "cases/abc/img.jpg" {
			t.Errorf("unexpected body %+v (err %v)", req, err)
		}
		_, _ = w.Write([]byte(`{"primary_label":"melanoma","confidence":0.91,"secondary_labels":{"nevus":0.06}}`))
	}, 5)

	res, err := g.Predict(context.Background(), "cases/abc/img.jpg")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.PrimaryLabel != "melanoma" || res.Confidence != 0.91 {
		t.Errorf("unexpected result %+v", res)
	}
	if res.SecondaryLabels["nevus"] != 0.06 {
		t.Errorf("expected secondary label nevus, got %v", res.SecondaryLabels)
	}
}

func TestPredict_RejectsInvalidOutput(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"empty label", `{"primary_label":"  ","confidence":0.5}`},
		{"confidence above one", `{"primary_label":"eczema","confidence":1.2}`},
		{"negative confidence", `{"primary_label":"eczema","confidence":-0.1}`},
		{"bad secondary", `{"primary_label":"eczema","confidence":0.4,"secondary_labels":{"acne":3}}`},
		{"not json", `<html>oops</html>`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			}, 5)

			_, err := g.Predict(context.Background(), "img.jpg")
			if !errors.Is(err, ErrInvalidOutput) {
				t.Errorf("expected ErrInvalidOutput, got %v", err)
			}
		})
	}
}

func TestPredict_UnavailableOnServerErrorAndTimeout(t *testing.T) {
	t.Run("status 500", func(t *testing.T) {
		g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "model crashed", http.StatusInternalServerError)
		}, 5)

		if _, err := g.Predict(context.Background(), "img.jpg"); !errors.Is(err, ErrUnavailable) {
			t.Errorf("expected ErrUnavailable, got %v", err)
		}
	})

	t.Run("timeout", func(t *testing.T) {
		g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-time.After(2 * time.Second):
			case <-r.Context().Done():
			}
		}, 5)

		if _, err := g.Predict(context.Background(), "img.jpg"); !errors.Is(err, ErrUnavailable) {
			t.Errorf("expected ErrUnavailable, got %v", err)
		}
	})
}

func TestPredict_BreakerOpensAfterConsecutiveFailures(t *testing.T) {
	var calls atomic.Int32
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}, 2)

	for range 2 {
		if _, err := g.Predict(context.Background(), "img.jpg"); !errors.Is(err, ErrUnavailable) {
			t.Fatalf("expected ErrUnavailable, got %v", err)
		}
	}

	_, err := g.Predict(context.Background(), "img.jpg")
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable from open breaker, got %v", err)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("expected worker to be called twice, got %d", got)
	}
}

func TestPredict_NotConfigured(t *testing.T) {
	g := NewGateway(config.InferenceConfig{Timeout: time.Second}, zap.NewNop())

	if _, err := g.Predict(context.Background(), "img.jpg"); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("expected ErrNotConfigured, got %v", err)
	}
}
