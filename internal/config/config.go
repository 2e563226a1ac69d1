package config

import (
	"fmt"
	"log"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/wayfarer-labs/wayfarer/internal/domain"
)

type Config struct {
	Port  string `envconfig:"PORT" default:"8080"`
	Debug bool   `envconfig:"DEBUG" default:"false"`

	// Postgres holds the vector index and the persistent embedding cache.
	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`

	OpenAIAPIKey string `envconfig:"OPENAI_API_KEY"`
	EmbedModel   string `envconfig:"EMBED_MODEL" default:"text-embedding-3-large"`
	ChatModel    string `envconfig:"CHAT_MODEL" default:"gpt-4o-mini"`

	EmbeddingDimensions int `envconfig:"EMBEDDING_DIMENSIONS" default:"3072"`
	SemanticTopK        int `envconfig:"SEMANTIC_TOP_K" default:"5"`
	MaxBundleSize       int `envconfig:"MAX_BUNDLE_SIZE" default:"12"`
	GraphDepthLimit     int `envconfig:"GRAPH_DEPTH_LIMIT" default:"2"`
	GraphFactLimit      int `envconfig:"GRAPH_FACT_LIMIT" default:"20"`

	Neo4jURI      string `envconfig:"NEO4J_URI"`
	Neo4jUser     string `envconfig:"NEO4J_USER"`
	Neo4jPassword string `envconfig:"NEO4J_PASSWORD"`
	Neo4jDatabase string `envconfig:"NEO4J_DATABASE" default:"neo4j"`

	// Optional S3-compatible source for the dataset loader.
	S3Endpoint  string `envconfig:"S3_ENDPOINT"`
	S3AccessKey string `envconfig:"S3_ACCESS_KEY_ID"`
	S3SecretKey string `envconfig:"S3_SECRET_ACCESS_KEY"`
	S3Bucket    string `envconfig:"S3_BUCKET" default:"wayfarer-datasets"`
	S3Region    string `envconfig:"S3_REGION" default:"us-east-1"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("WAYFARER", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	return &cfg, nil
}

func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	return cfg
}

// Validate checks the credentials the pipeline cannot run without.
// Missing endpoints are fatal at startup, not at first request.
func (c *Config) Validate() error {
	if c.OpenAIAPIKey == "" {
		return domain.ErrMissingOpenAIKey
	}
	if c.DatabaseURL == "" {
		return domain.ErrMissingDatabase
	}
	if c.Neo4jURI == "" {
		return domain.ErrMissingGraphURI
	}
	if c.EmbeddingDimensions <= 0 {
		return domain.NewDomainError(domain.ErrCodeConfiguration, "embedding dimensions must be positive")
	}
	return nil
}

func (c *Config) HasS3() bool {
	return c.S3Endpoint != "" && c.S3AccessKey != "" && c.S3SecretKey != ""
}

func (c *Config) HasNeo4j() bool {
	return c.Neo4jURI != ""
}
