// Package bark sends iOS push notifications through a Bark server.
package bark

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const defaultServer = "https://api.day.app"

// ErrDisabled is returned by Push when no device key is configured.
var ErrDisabled = errors.New("bark key not configured")

type Config struct {
	Key       string
	ServerURL string
	Title     string
	// Cooldown is the minimum gap between two alerts for the same subject.
	Cooldown time.Duration
}

// Service pushes alerts, throttled per subject.
type Service struct {
	cfg        Config
	log        *zap.Logger
	httpClient *http.Client
	now        func() time.Time

	mu         sync.Mutex
	lastPushAt map[string]time.Time
}

func New(cfg Config, log *zap.Logger) *Service {
	if cfg.ServerURL == "" {
		cfg.ServerURL = defaultServer
	}
	cfg.ServerURL = strings.TrimRight(cfg.ServerURL, "/")
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 10 * time.Minute
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		cfg:        cfg,
		log:        log.Named("Bark"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		now:        time.Now,
		lastPushAt: make(map[string]time.Time),
	}
}

type pushPayload struct {
	DeviceKey string `json:"device_key"`
	Title     string `json:"title"`
	Body      string `json:"body"`
	Group     string `json:"group,omitempty"`
}

// Push sends a notification immediately.
func (s *Service) Push(ctx context.Context, title, body string) error {
	if s.cfg.Key == "" {
		return ErrDisabled
	}
	if s.cfg.Title != "" {
		title = fmt.Sprintf("[%s] %s", s.cfg.Title, title)
	}
	b, err := json.Marshal(pushPayload{DeviceKey: s.cfg.Key, Title: title, Body: body, Group: s.cfg.Title})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.ServerURL+"/push", bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("bark: unexpected status %d", resp.StatusCode)
	}
	return nil
}

// Blacklisted alerts that ip was blocked, at most once per cooldown per ip.
func (s *Service) Blacklisted(ctx context.Context, ip string) {
	if s.cfg.Key == "" {
		return
	}
	now := s.now()
	s.mu.Lock()
	if last, ok := s.lastPushAt[ip]; ok && now.Sub(last) < s.cfg.Cooldown {
		s.mu.Unlock()
		return
	}
	s.lastPushAt[ip] = now
	s.mu.Unlock()

	if err := s.Push(ctx, "IP blacklisted", "Too many requests from "+ip); err != nil {
		s.log.Warn("push failed", zap.String("ip", ip), zap.Error(err))
	}
}
