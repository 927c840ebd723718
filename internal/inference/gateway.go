// Package inference is the client for the AI worker that classifies case
// images. Calls go through a circuit breaker so a dead worker fails fast
// instead of pinning request goroutines for the full timeout.
package inference

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/dmehra2102/prod-golang-projects/epicheck/internal/config"
)

var (
	ErrUnavailable   = errors.New("ai worker unavailable")
	ErrInvalidOutput = errors.New("ai worker returned invalid output")
	ErrNotConfigured = errors.New("ai worker not configured")
)

const maxResponseBytes = 1 << 20

type Result struct {
	PrimaryLabel    string             `json:"primary_label"`
	Confidence      float64            `json:"confidence"`
	SecondaryLabels map[string]float64 `json:"secondary_labels"`
	ModelVersion    string             `json:"model_version"`
}

type predictRequest struct {
	ImagePath string `json:"image_path"`
}

type Gateway struct {
	baseURL string
	apiKey  string
	timeout time.Duration
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[*Result]
	log     *zap.Logger
}

type Option func(*Gateway)

// WithTLS sends requests over a transport using tlsCfg, for workers behind
// a private CA or requiring client certificates.
func WithTLS(tlsCfg *tls.Config) Option {
	return func(g *Gateway) {
		t := http.DefaultTransport.(*http.Transport).Clone()
		t.TLSClientConfig = tlsCfg
		g.client = &http.Client{Transport: t}
	}
}

func NewGateway(cfg config.InferenceConfig, log *zap.Logger, opts ...Option) *Gateway {
	log = log.Named("inference")
	maxFailures := uint32(max(cfg.BreakerMaxFailures, 1))

	g := &Gateway{
		baseURL: strings.TrimRight(cfg.WorkerURL, "/"),
		apiKey:  cfg.APIKey,
		timeout: cfg.Timeout,
		client:  &http.Client{},
		breaker: gobreaker.NewCircuitBreaker[*Result](gobreaker.Settings{
			Name:        "ai-worker",
			MaxRequests: 1,
			Timeout:     cfg.BreakerOpenTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= maxFailures
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Warn("circuit breaker state changed",
					zap.String("breaker", name),
					zap.String("from", from.String()),
					zap.String("to", to.String()),
				)
			},
		}),
		log: log,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Predict classifies the image at imagePath. Transport errors, timeouts,
// non-200 responses and an open breaker return ErrUnavailable; a response
// that fails validation returns ErrInvalidOutput.
func (g *Gateway) Predict(ctx context.Context, imagePath string) (*Result, error) {
	if g.baseURL == "" || g.apiKey == "" {
		return nil, ErrNotConfigured
	}

	res, err := g.breaker.Execute(func() (*Result, error) {
		return g.call(ctx, imagePath)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
		return nil, err
	}
	return res, nil
}

func (g *Gateway) call(ctx context.Context, imagePath string) (*Result, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	body, err := json.Marshal(predictRequest{ImagePath: imagePath})
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/predict", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-AI-KEY", g.apiKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: status %d: %s", ErrUnavailable, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var out Result
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %w", ErrInvalidOutput, err)
	}

	if err := Validate(&out); err != nil {
		g.log.Warn("rejected ai worker output",
			zap.String("image_path", imagePath),
			zap.Error(err),
		)
		return nil, err
	}
	return &out, nil
}

// Validate checks a worker result before anything is stored: a non-empty
// label and finite confidences within [0,1]. The label is trimmed in place.
func Validate(r *Result) error {
	if r == nil {
		return fmt.Errorf("%w: empty result", ErrInvalidOutput)
	}
	r.PrimaryLabel = strings.TrimSpace(r.PrimaryLabel)
	if r.PrimaryLabel == "" {
		return fmt.Errorf("%w: empty primary label", ErrInvalidOutput)
	}
	if !validConfidence(r.Confidence) {
		return fmt.Errorf("%w: confidence %v outside [0,1]", ErrInvalidOutput, r.Confidence)
	}
	for label, c := range r.SecondaryLabels {
		if !validConfidence(c) {
			return fmt.Errorf("%w: secondary label %q confidence %v outside [0,1]", ErrInvalidOutput, label, c)
		}
	}
	return nil
}

func validConfidence(c float64) bool {
	return !math.IsNaN(c) && !math.IsInf(c, 0) && c >= 0 && c <= 1
}
