package herdsim

import (
	"time"

	"github.com/okian/herdwatch/internal/domain/model"
)

// Config holds configuration for a herd simulation run.
type Config struct {
	BaseURL    string        // Base URL of the service
	Animals    int           // Number of animals to register
	Rounds     int           // Number of random-walk rounds
	Workers    int           // Number of concurrent workers
	Timeout    time.Duration // HTTP request timeout
	Center     model.Point   // Centre of the pasture
	HalfSide   float64       // Half the side of the square fence, in degrees
	Step       float64       // Largest move per round, in degrees
	Seed       uint64        // Random-walk seed; zero picks one from the clock
	Settle     time.Duration // How long to wait for the fix queue to drain
	OutputFile string        // Output file for the final herd positions
	LogFile    string        // Log file for simulation output
	Verbose    bool          // Enable verbose logging
}

// Animal is one simulated herd member.
type Animal struct {
	ID       string      `json:"id"`
	Name     string      `json:"name"`
	Position model.Point `json:"position"`
	Battery  int         `json:"battery"`
}

// Fix is the body posted to /positions.
type Fix struct {
	FixID    string  `json:"fix_id"`
	EntityID string  `json:"entity_id"`
	Lat      float64 `json:"lat"`
	Lon      float64 `json:"lon"`
	Battery  int     `json:"battery"`
	TS       string  `json:"ts"`
}

// AckResponse represents the response from fix submission.
type AckResponse struct {
	FixID     string `json:"fix_id"`
	Accepted  bool   `json:"accepted"`
	Duplicate bool   `json:"duplicate"`
}

// Stats holds simulation statistics.
type Stats struct {
	AnimalsRegistered int
	FixesSubmitted    int
	FixesAccepted     int
	FixesDuplicate    int
	FixesRejected     int
	FixesFailed       int
	ExpectedOutside   int
	ReportedOutside   int
	StatusMismatches  int
	PassAlerts        int
	StartTime         time.Time
	EndTime           time.Time
	Duration          time.Duration
}
