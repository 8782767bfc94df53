package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"

	pkgconfig "github.com/choiseongjun/chat-with-stream/pkg/config"
	"github.com/choiseongjun/chat-with-stream/pkg/database"
	"github.com/choiseongjun/chat-with-stream/pkg/log"
	"github.com/choiseongjun/chat-with-stream/pkg/pubsub"
)

// Store drivers.
const (
	StoreGorm      = "gorm"
	StoreCassandra = "cassandra"
)

// Cache drivers.
const (
	CacheRedis  = "redis"
	CacheMemory = "memory"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	WebSocket WebSocketConfig `mapstructure:"websocket"`
	PubSub    pubsub.Config   `mapstructure:"pubsub"`
	Store     StoreConfig     `mapstructure:"store"`
	Cache     CacheConfig     `mapstructure:"cache"`
	CORS      CORSConfig      `mapstructure:"cors"`
	Log       log.Config      `mapstructure:"log"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type WebSocketConfig struct {
	Path             string        `mapstructure:"path"`
	PingInterval     time.Duration `mapstructure:"ping_interval"`
	PongWait         time.Duration `mapstructure:"pong_wait"`
	WriteWait        time.Duration `mapstructure:"write_wait"`
	MaxMessageSize   int64         `mapstructure:"max_message_size"`
	IdleTimeout      time.Duration `mapstructure:"idle_timeout"`
	OutboundCapacity int           `mapstructure:"outbound_capacity"`
	RetryAttempts    int           `mapstructure:"retry_attempts"`
	RetryBackoff     time.Duration `mapstructure:"retry_backoff"`
}

type StoreConfig struct {
	Driver    string          `mapstructure:"driver"`
	Database  database.Config `mapstructure:"database"`
	Cassandra CassandraConfig `mapstructure:"cassandra"`
}

type CassandraConfig struct {
	Hosts          []string      `mapstructure:"hosts"`
	Keyspace       string        `mapstructure:"keyspace"`
	Consistency    string        `mapstructure:"consistency"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	Timeout        time.Duration `mapstructure:"timeout"`
}

type CacheConfig struct {
	Driver    string             `mapstructure:"driver"`
	Prefix    string             `mapstructure:"prefix"`
	Retention int                `mapstructure:"retention"`
	Redis     pubsub.RedisConfig `mapstructure:"redis"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

var defaults = map[string]any{
	"server.host":             "0.0.0.0",
	"server.port":             8080,
	"server.shutdown_timeout": "30s",

	"websocket.path":              "/ws/chat",
	"websocket.ping_interval":     "25s",
	"websocket.pong_wait":         "60s",
	"websocket.write_wait":        "10s",
	"websocket.max_message_size":  65536,
	"websocket.idle_timeout":      "30s",
	"websocket.outbound_capacity": 256,
	"websocket.retry_attempts":    3,
	"websocket.retry_backoff":     "1s",

	"pubsub.driver":              pubsub.DriverRedis,
	"pubsub.channel":             pubsub.ChannelChat,
	"pubsub.redis.address":       "localhost:6379",
	"pubsub.redis.db":            0,
	"pubsub.redis.pool_size":     10,
	"pubsub.redis.read_timeout":  "3s",
	"pubsub.redis.write_timeout": "3s",
	"pubsub.kafka.brokers":       "localhost:9092",
	"pubsub.kafka.group_id":      "chat-relay",
	"pubsub.kafka.partitions":    4,
	"pubsub.kafka.topics":        []string{pubsub.TopicForChannel(pubsub.ChannelChat)},

	"store.driver":                     StoreGorm,
	"store.database.driver":            "postgres",
	"store.database.host":              "localhost",
	"store.database.port":              5432,
	"store.database.user":              "chat",
	"store.database.dbname":            "chat",
	"store.database.sslmode":           "disable",
	"store.database.timezone":          "UTC",
	"store.database.file_path":         "chat.db",
	"store.database.max_idle_conns":    5,
	"store.database.max_open_conns":    20,
	"store.database.conn_max_lifetime": 30,
	"store.database.log_level":         "warn",
	"store.cassandra.hosts":            []string{"localhost:9042"},
	"store.cassandra.keyspace":         "chat",
	"store.cassandra.consistency":      "LOCAL_QUORUM",
	"store.cassandra.connect_timeout":  "10s",
	"store.cassandra.timeout":          "5s",

	"cache.driver":              CacheRedis,
	"cache.prefix":              "chat:room:",
	"cache.retention":           100,
	"cache.redis.address":       "localhost:6379",
	"cache.redis.db":            0,
	"cache.redis.pool_size":     10,
	"cache.redis.read_timeout":  "3s",
	"cache.redis.write_timeout": "3s",

	"cors.allowed_origins": []string{"http://localhost:*", "http://127.0.0.1:*"},

	"log.level":        "info",
	"log.pretty":       false,
	"log.service_name": "chat-relay",
}

var envBindings = map[string]string{
	"server.port":               "PORT",
	"pubsub.driver":             "PUBSUB_DRIVER",
	"pubsub.redis.address":      "REDIS_ADDRESS",
	"pubsub.redis.password":     "REDIS_PASSWORD",
	"pubsub.kafka.brokers":      "KAFKA_BROKERS",
	"pubsub.kafka.group_id":     "KAFKA_GROUP_ID",
	"store.driver":              "STORE_DRIVER",
	"store.database.driver":     "DB_DRIVER",
	"store.database.host":       "DB_HOST",
	"store.database.port":       "DB_PORT",
	"store.database.user":       "DB_USER",
	"store.database.password":   "DB_PASSWORD",
	"store.database.dbname":     "DB_NAME",
	"store.cassandra.hosts":     "CASSANDRA_HOSTS",
	"store.cassandra.keyspace":  "CASSANDRA_KEYSPACE",
	"cache.driver":              "CACHE_DRIVER",
	"cache.redis.address":       "CACHE_REDIS_ADDRESS",
	"cache.redis.password":      "CACHE_REDIS_PASSWORD",
	"log.level":                 "LOG_LEVEL",
}

// Load reads ./config/config.yaml (optional) and the environment.
func Load() (*Config, error) {
	return LoadFrom("./config", "config")
}

// LoadFrom is Load with an explicit config directory and file name.
func LoadFrom(configPath, configName string) (*Config, error) {
	v, err := pkgconfig.Load(configPath, configName)
	if err != nil {
		return nil, err
	}

	pkgconfig.SetDefaults(v, defaults)
	if err := pkgconfig.BindEnvs(v, envBindings); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Parse durations
	cfg.Server.ShutdownTimeout = pkgconfig.Duration(v, "server.shutdown_timeout", 30*time.Second)
	cfg.WebSocket.PingInterval = pkgconfig.Duration(v, "websocket.ping_interval", 25*time.Second)
	cfg.WebSocket.PongWait = pkgconfig.Duration(v, "websocket.pong_wait", 60*time.Second)
	cfg.WebSocket.WriteWait = pkgconfig.Duration(v, "websocket.write_wait", 10*time.Second)
	cfg.WebSocket.IdleTimeout = pkgconfig.Duration(v, "websocket.idle_timeout", 30*time.Second)
	cfg.WebSocket.RetryBackoff = pkgconfig.Duration(v, "websocket.retry_backoff", time.Second)
	cfg.Store.Cassandra.ConnectTimeout = pkgconfig.Duration(v, "store.cassandra.connect_timeout", 10*time.Second)
	cfg.Store.Cassandra.Timeout = pkgconfig.Duration(v, "store.cassandra.timeout", 5*time.Second)

	// Comma-separated lists from the environment, e.g. CASSANDRA_HOSTS=host1:9042,host2:9042
	cfg.Store.Cassandra.Hosts = splitList(v, "store.cassandra.hosts")
	cfg.CORS.AllowedOrigins = splitList(v, "cors.allowed_origins")
	cfg.PubSub.Kafka.Topics = splitList(v, "pubsub.kafka.topics")

	return &cfg, nil
}

func splitList(v *viper.Viper, key string) []string {
	var out []string
	for _, item := range v.GetStringSlice(key) {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
