package config

import "time"

type Config struct {
	StreamBufferSize  int
	StreamSendTimeout time.Duration
	HistoryLimit      int
	RetryBackoff      time.Duration
}

func NewConfig() *Config {
	return &Config{
		StreamBufferSize:  32,
		StreamSendTimeout: 15 * time.Second,
		HistoryLimit:      20,
		RetryBackoff:      500 * time.Millisecond,
	}
}
