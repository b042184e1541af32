package repository

import "time"

// Settings selects and configures a backend for Open.
type Settings struct {
	Driver      string // memory, sqlite or postgres
	SQLitePath  string
	PostgresDSN string
	Clock       func() time.Time
}

func (s Settings) now() time.Time {
	if s.Clock != nil {
		return s.Clock()
	}
	return time.Now()
}
