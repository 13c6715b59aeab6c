package main

import "time"

type Config struct {
	Host                    string        `env:"HOST,default=localhost"`
	Port                    int           `env:"PORT,default=8080"`
	LogLevel                string        `env:"LOG_LEVEL,default=INFO"`
	BadgerFilepath          string        `env:"BADGER_FILEPATH,required=true"`
	JWTSecret               string        `env:"JWT_SECRET,required=true"`
	AuthTokenDuration       time.Duration `env:"AUTH_TOKEN_DURATION,default=24h"`
	ConnectionBufferSize    int           `env:"CONNECTION_BUFFER_SIZE,default=64"`
	WriteTimeout            time.Duration `env:"WRITE_TIMEOUT,default=5s"`
	PingInterval            time.Duration `env:"PING_INTERVAL,default=30s"`
	DeliveryTimeout         time.Duration `env:"DELIVERY_TIMEOUT,default=2s"`
	RestartInterval         time.Duration `env:"RESTART_INTERVAL,default=1s"`
	HeartbeatInterval       time.Duration `env:"HEARTBEAT_INTERVAL,default=15s"`
	InboundEventsPerSecond  float64       `env:"INBOUND_EVENTS_PER_SECOND,default=20"`
	InboundBurst            int           `env:"INBOUND_BURST,default=40"`
	HTTPRequestsPerSecond   float64       `env:"HTTP_REQUESTS_PER_SECOND,default=10"`
	HTTPBurst               int           `env:"HTTP_BURST,default=20"`
	JoinRequiresParticipant bool          `env:"JOIN_REQUIRES_PARTICIPANT,default=true"`
	LimitMessages           *int          `env:"LIMIT_MESSAGES"`
	AllowedOrigins          string        `env:"ALLOWED_ORIGINS,default=*"`
	DebugPort               int           `env:"DEBUG_PORT,default=8081"`
	CensoredWords           string        `env:"CENSORED_WORDS"`
	CensorChar              string        `env:"CENSOR_CHAR,default=*"`
	UserLookupURL           string        `env:"USER_LOOKUP_URL"`
	UserLookupToken         string        `env:"USER_LOOKUP_TOKEN"`
	UserLookupTimeout       time.Duration `env:"USER_LOOKUP_TIMEOUT,default=2s"`
}
