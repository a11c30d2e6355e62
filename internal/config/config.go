package config

import (
	"os"
	"strconv"
)

type Config struct {
	Port             string
	ReadyQuorum      int
	CountdownSeconds int
	MinSpeed         float64
	MaxSpeed         float64
	TickRate         int
	TrackFile        string
}

func FromEnv() Config {
	c := Config{}
	c.Port = getenv("PORT", "8080")
	c.ReadyQuorum = getenvInt("READY_QUORUM", 3)
	c.CountdownSeconds = getenvInt("COUNTDOWN_SECONDS", 3)
	c.MinSpeed = getenvFloat("MIN_SPEED", 0.025)
	c.MaxSpeed = getenvFloat("MAX_SPEED", 0.045)
	c.TickRate = getenvInt("TICK_RATE", 60)
	c.TrackFile = os.Getenv("TRACK_FILE")
	return c
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getenvFloat(k string, def float64) float64 {
	if v := os.Getenv(k); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
