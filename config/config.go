package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config enthält alle Konfigurationsparameter aus Umgebungsvariablen.
type Config struct {
	DBHost     string `envconfig:"DB_HOST" required:"true"`
	DBPort     int    `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" required:"true"`
	DBPassword string `envconfig:"DB_PASSWORD" required:"true"`
	DBName     string `envconfig:"DB_NAME" required:"true"`

	HTTPPort     string `envconfig:"HTTP_PORT" default:"4242"`
	APISecretKey string `envconfig:"API_SECRET_KEY"`

	// Feed-Konfiguration: ein Worker pro Mensa, Einträge als "feedname:locationId"
	FeedBaseURL   string `envconfig:"FEED_BASE_URL" default:"https://www.max-manager.de/daten-extern/sw-erlangen-nuernberg/xml"`
	FeedLocations string `envconfig:"FEED_LOCATIONS" default:"mensa-sued:1"`

	ScrapeDelaySeconds int `envconfig:"SCRAPE_DELAY_SECONDS" default:"1800"`
	RetentionDays      int `envconfig:"RETENTION_DAYS" default:"7"`

	// Fuzzy-Matching für unbekannte Gerichte
	FuzzyThreshold  int `envconfig:"FUZZY_THRESHOLD" default:"50"`
	FuzzyCandidates int `envconfig:"FUZZY_CANDIDATES" default:"3"`

	MappingRefreshSchedule string `envconfig:"MAPPING_REFRESH_SCHEDULE" default:"@every 6h"`

	// Review-Kanal (optional)
	DiscordWebhookURL string `envconfig:"DISCORD_WEBHOOK_URL"`

	// Roh-Kopien der Feed-Antworten nach S3 (optional)
	RawCopyEnabled  bool   `envconfig:"RAWCOPY_ENABLED" default:"false"`
	RawCopyS3Key    string `envconfig:"RAWCOPY_S3_KEY"`
	RawCopyS3Secret string `envconfig:"RAWCOPY_S3_SECRET"`
	RawCopyS3URL    string `envconfig:"RAWCOPY_S3_URL"`
	RawCopyS3Region string `envconfig:"RAWCOPY_S3_REGION"`
	RawCopyS3Bucket string `envconfig:"RAWCOPY_S3_BUCKET"`
}

// FeedLocation ist ein konfigurierter Feed-Endpunkt samt externer Location-ID.
type FeedLocation struct {
	FeedName   string
	ExternalID int
}

// DSN gibt den Data Source Name für die PostgreSQL-Verbindung zurück.
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort)
}

// ScrapeDelay gibt die Wartezeit zwischen zwei Pulls zurück.
func (c *Config) ScrapeDelay() time.Duration {
	return time.Duration(c.ScrapeDelaySeconds) * time.Second
}

// ParseFeedLocations zerlegt FEED_LOCATIONS ("mensa-sued:1,mensa-nord:2").
func (c *Config) ParseFeedLocations() ([]FeedLocation, error) {
	var locations []FeedLocation
	for _, entry := range strings.Split(c.FeedLocations, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		name, idPart, found := strings.Cut(entry, ":")
		if !found {
			return nil, fmt.Errorf("invalid feed location entry %q, expected name:id", entry)
		}
		id, err := strconv.Atoi(idPart)
		if err != nil {
			return nil, fmt.Errorf("invalid location id in %q: %w", entry, err)
		}
		locations = append(locations, FeedLocation{FeedName: name, ExternalID: id})
	}
	if len(locations) == 0 {
		return nil, fmt.Errorf("no feed locations configured")
	}
	return locations, nil
}

// Load lädt die Konfiguration aus den Umgebungsvariablen.
func Load() (*Config, error) {
	_ = godotenv.Load()
	var c Config
	err := envconfig.Process("", &c)
	return &c, err
}
