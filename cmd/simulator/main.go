package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-maintenance/internal/models"
)

// Simulator advances the operating hours of hourly-maintained equipment
// through the API, the way a logbook entry on board would.
type Simulator struct {
	APIURL       string
	Token        string
	HoursPerTick float64
	Client       *http.Client
	Rand         *rand.Rand

	// fractional hours not yet reported, per equipment
	pending map[string]float64
}

// NewSimulator creates a simulator against apiURL
func NewSimulator(apiURL, token string, hoursPerTick float64) *Simulator {
	return &Simulator{
		APIURL:       apiURL,
		Token:        token,
		HoursPerTick: hoursPerTick,
		Client:       &http.Client{Timeout: 10 * time.Second},
		Rand:         rand.New(rand.NewSource(time.Now().UnixNano())),
		pending:      make(map[string]float64),
	}
}

func (s *Simulator) do(ctx context.Context, method, url string, body interface{}) (*http.Response, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.Token != "" {
		req.Header.Set("Authorization", "Bearer "+s.Token)
	}
	return s.Client.Do(req)
}

// FetchEquipment lists the equipment visible to the simulator's token
func (s *Simulator) FetchEquipment(ctx context.Context) ([]models.Equipment, error) {
	resp, err := s.do(ctx, http.MethodGet, s.APIURL+"/equipment", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list equipment: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("equipment listing failed with status: %d", resp.StatusCode)
	}
	var list []models.Equipment
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("failed to decode equipment: %w", err)
	}
	return list, nil
}

// SendHours reports new cumulative operating hours for one equipment
func (s *Simulator) SendHours(ctx context.Context, id string, hours int64) error {
	resp, err := s.do(ctx, http.MethodPatch, s.APIURL+"/equipment/"+id+"/hours", map[string]int64{"working_hours": hours})
	if err != nil {
		return fmt.Errorf("failed to send hours: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("hours update failed with status: %d", resp.StatusCode)
	}
	return nil
}

// advance returns the hours to report for e this tick, or false when the
// accumulated run time has not reached a whole hour yet.
func (s *Simulator) advance(e models.Equipment) (int64, bool) {
	// +-25% noise on the nominal run time
	run := s.HoursPerTick * (0.75 + s.Rand.Float64()*0.5)
	acc := s.pending[string(e.ID)] + run
	whole := int64(acc)
	s.pending[string(e.ID)] = acc - float64(whole)
	if whole == 0 {
		return 0, false
	}
	return e.WorkingHours.Int() + whole, true
}

// Tick runs one simulation step and returns the number of updates sent
func (s *Simulator) Tick(ctx context.Context) (int, error) {
	list, err := s.FetchEquipment(ctx)
	if err != nil {
		return 0, err
	}
	sent := 0
	for _, e := range list {
		if !e.MaintenanceType.HasHourly() {
			continue
		}
		hours, ok := s.advance(e)
		if !ok {
			continue
		}
		if err := s.SendHours(ctx, string(e.ID), hours); err != nil {
			log.WithError(err).WithField("equipment_id", e.ID).Error("Failed to update hours")
			continue
		}
		log.WithFields(log.Fields{"equipment_id": e.ID, "working_hours": hours}).Info("Updated hours")
		sent++
	}
	return sent, nil
}

// Run ticks until ctx is cancelled
func (s *Simulator) Run(ctx context.Context, interval time.Duration) {
	tick := time.NewTicker(interval)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			if _, err := s.Tick(ctx); err != nil {
				log.WithError(err).Warn("Simulation tick failed")
			}
		}
	}
}

func envFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			return f
		}
	}
	return def
}

func main() {
	apiURL := os.Getenv("API_BASE_URL")
	if apiURL == "" {
		apiURL = "http://localhost:8080/api"
	}

	interval := 2 * time.Second
	if v := os.Getenv("SIM_TICK_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 1 {
			interval = time.Duration(n) * time.Second
		}
	}
	hoursPerTick := envFloat("SIM_HOURS_PER_TICK", 8)

	sim := NewSimulator(apiURL, os.Getenv("SIM_AUTH_TOKEN"), hoursPerTick)

	log.WithFields(log.Fields{
		"api_url":        apiURL,
		"interval":       interval,
		"hours_per_tick": hoursPerTick,
	}).Info("Starting operating hours simulation")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if _, err := sim.FetchEquipment(ctx); err != nil {
		log.WithError(err).Fatal("API not reachable. Ensure SIM_AUTH_TOKEN is valid and API_BASE_URL is correct")
	}
	sim.Run(ctx, interval)
	log.Info("Simulation stopped")
}
