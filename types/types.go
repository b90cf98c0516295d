package types

import "time"

// Session is the mutable progress of one participant through the riddle
// sequence. It is owned by a Store; callers work on copies.
type Session struct {
	ID               string      `json:"id"`
	CurrentRiddle    int         `json:"currentRiddle"`
	CompletedRiddles []int       `json:"completedRiddles"`
	Attempts         map[int]int `json:"attempts"`
	StartTime        time.Time   `json:"startTime"`
	Completed        bool        `json:"completed"`
	CompletedAt      time.Time   `json:"completedAt"`
	LastActivity     time.Time   `json:"lastActivity"`
}

// NewSession returns a session positioned on the first riddle.
func NewSession(id string, now time.Time) Session {
	return Session{
		ID:               id,
		CurrentRiddle:    1,
		CompletedRiddles: []int{},
		Attempts:         make(map[int]int),
		StartTime:        now,
		LastActivity:     now,
	}
}

// Clone returns a deep copy so the slice and map are not shared.
func (s Session) Clone() Session {
	out := s
	out.CompletedRiddles = append([]int{}, s.CompletedRiddles...)
	out.Attempts = make(map[int]int, len(s.Attempts))
	for k, v := range s.Attempts {
		out.Attempts[k] = v
	}
	return out
}

// AttemptsUsed returns the attempt count recorded for a riddle, 0 if none.
func (s Session) AttemptsUsed(riddle int) int {
	return s.Attempts[riddle]
}

// Riddle is one stage of the challenge. Key is never serialized.
type Riddle struct {
	Number int     `json:"number" yaml:"number"`
	Text   string  `json:"text" yaml:"text"`
	Lat    float64 `json:"-" yaml:"lat"`
	Lng    float64 `json:"-" yaml:"lng"`
	Key    string  `json:"-" yaml:"key"`
}

type RedisConfig struct {
	Addr     string        `yaml:"addr" env:"REDIS_ADDR"`
	Password string        `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int           `yaml:"db" env:"REDIS_DB"`
	Prefix   string        `yaml:"prefix" env:"REDIS_PREFIX"`
	TTL      time.Duration `yaml:"ttl" env:"REDIS_TTL"`
}
