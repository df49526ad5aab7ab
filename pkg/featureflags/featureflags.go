// Package featureflags fetches and caches feature flags from AWS AppConfig.
//
// Local development can drop a feature-flags.json file (flat map of flag
// name to boolean) at the configured path to bypass AppConfig entirely. In
// remote environments the file should be absent so AppConfig stays the
// single source of truth.
//
// The service enforces a 45-second refresh window and keeps serving the
// last good payload when a refresh fails; flag lookups never return an
// error.
package featureflags

import (
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/appconfigdata"
	"github.com/aws/aws-sdk-go/service/appconfigdata/appconfigdataiface"
	homedir "github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

const (
	DefaultTTL       = 45 * time.Second
	DefaultRegion    = "ap-south-1"
	DefaultLocalPath = "feature-flags.json"

	EnvApplicationID = "KORE_FEATURE_FLAGS_APPLICATION_ID"
	EnvEnvironmentID = "KORE_FEATURE_FLAGS_ENVIRONMENT_ID"
	EnvProfileID     = "KORE_FEATURE_FLAGS_PROFILE_ID"
)

type Config struct {
	// Region of the AppConfig deployment. Defaults to DefaultRegion.
	Region string

	// AppConfig identifiers. All three are required for remote operation;
	// with any of them missing, flags resolve to their defaults unless the
	// local override file exists.
	ApplicationID string
	EnvironmentID string
	ProfileID     string

	// LocalPath is the override file checked before AppConfig. A leading
	// "~" is expanded. Defaults to DefaultLocalPath in the working
	// directory.
	LocalPath string

	// TTL between refreshes. Defaults to DefaultTTL.
	TTL time.Duration
}

// Service resolves feature flags. Safe for concurrent use; one shared
// instance per process is the intended pattern.
type Service struct {
	log    logrus.FieldLogger
	cfg    Config
	client appconfigdataiface.AppConfigDataAPI

	mu          sync.Mutex
	token       string
	cache       map[string]interface{}
	lastRefresh time.Time
}

func New(logger logrus.FieldLogger, cfg Config) (*Service, error) {
	if logger == nil {
		logger = logrus.New()
	}
	if cfg.Region == "" {
		cfg.Region = DefaultRegion
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.LocalPath == "" {
		cfg.LocalPath = DefaultLocalPath
	}
	localPath, err := homedir.Expand(cfg.LocalPath)
	if err != nil {
		return nil, errors.Wrap(err, "Failed to expand local flags path")
	}
	cfg.LocalPath = localPath

	sess, err := session.NewSession(aws.NewConfig().WithRegion(cfg.Region))
	if err != nil {
		return nil, errors.Wrap(err, "Failed to create AWS session")
	}

	return &Service{
		log:    logger.WithField("module", "featureflags"),
		cfg:    cfg,
		client: appconfigdata.New(sess),
		cache:  map[string]interface{}{},
	}, nil
}

// NewFromConfig builds a Service from a viper sub-tree with the keys
// "region", "application_id", "environment_id", "profile_id",
// "local_path" and "ttl". The identifiers fall back to the
// KORE_FEATURE_FLAGS_* environment variables.
func NewFromConfig(logger logrus.FieldLogger, v *viper.Viper) (*Service, error) {
	if v == nil {
		v = viper.New()
	}
	v.SetDefault("region", DefaultRegion)
	v.SetDefault("local_path", DefaultLocalPath)
	v.SetDefault("ttl", DefaultTTL)
	v.BindEnv("application_id", EnvApplicationID)
	v.BindEnv("environment_id", EnvEnvironmentID)
	v.BindEnv("profile_id", EnvProfileID)

	return New(logger, Config{
		Region:        v.GetString("region"),
		ApplicationID: v.GetString("application_id"),
		EnvironmentID: v.GetString("environment_id"),
		ProfileID:     v.GetString("profile_id"),
		LocalPath:     v.GetString("local_path"),
		TTL:           v.GetDuration("ttl"),
	})
}

// IsOn reports whether the named flag is enabled. Unknown flags are off.
func (s *Service) IsOn(name string) bool {
	return s.IsOnDefault(name, false)
}

// IsOnDefault is IsOn with an explicit fallback for missing or
// non-boolean flags.
func (s *Service) IsOnDefault(name string, fallback bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.refreshLocked()

	value, ok := s.cache[name]
	if !ok {
		return fallback
	}
	enabled, ok := value.(bool)
	if !ok {
		s.log.WithField("flag", name).
			Warnf("feature flag holds non-boolean value %v, using fallback", value)
		return fallback
	}
	return enabled
}

// refreshLocked reloads the cache when the TTL has expired. Failures keep
// the previous payload. The refresh timestamp advances even on failure so
// a broken source is not hammered on every lookup.
func (s *Service) refreshLocked() {
	if !s.lastRefresh.IsZero() && time.Since(s.lastRefresh) < s.cfg.TTL {
		return
	}
	defer func() { s.lastRefresh = time.Now() }()

	if _, err := os.Stat(s.cfg.LocalPath); err == nil {
		s.loadLocal()
		return
	}
	s.loadAppConfig()
}

func (s *Service) loadLocal() {
	raw, err := os.ReadFile(s.cfg.LocalPath)
	if err != nil {
		s.log.WithField("path", s.cfg.LocalPath).
			Warnf("failed to read local flags file: %v", err)
		return
	}
	fresh := map[string]interface{}{}
	if err := json.Unmarshal(raw, &fresh); err != nil {
		s.log.WithField("path", s.cfg.LocalPath).
			Warnf("failed to parse local flags file: %v", err)
		return
	}
	s.cache = fresh
	s.log.WithField("path", s.cfg.LocalPath).Debug("loaded feature flags from local file")
}

func (s *Service) loadAppConfig() {
	if s.cfg.ApplicationID == "" || s.cfg.EnvironmentID == "" || s.cfg.ProfileID == "" {
		s.log.Warn("AppConfig identifiers not configured, feature flags unavailable")
		return
	}

	if s.token == "" {
		out, err := s.client.StartConfigurationSession(&appconfigdata.StartConfigurationSessionInput{
			ApplicationIdentifier:          aws.String(s.cfg.ApplicationID),
			EnvironmentIdentifier:          aws.String(s.cfg.EnvironmentID),
			ConfigurationProfileIdentifier: aws.String(s.cfg.ProfileID),
		})
		if err != nil {
			s.log.Warnf("failed to start AppConfig session: %v", err)
			return
		}
		s.token = aws.StringValue(out.InitialConfigurationToken)
		if s.token == "" {
			s.log.Warn("AppConfig returned an empty configuration token")
			return
		}
	}

	out, err := s.client.GetLatestConfiguration(&appconfigdata.GetLatestConfigurationInput{
		ConfigurationToken: aws.String(s.token),
	})
	if err != nil {
		// The token may have expired; restart the session next time.
		s.token = ""
		s.log.Warnf("failed to fetch feature flags: %v", err)
		return
	}
	if next := aws.StringValue(out.NextPollConfigurationToken); next != "" {
		s.token = next
	}

	// An empty body means the configuration is unchanged since last poll.
	if len(out.Configuration) == 0 {
		return
	}
	fresh := map[string]interface{}{}
	if err := json.Unmarshal(out.Configuration, &fresh); err != nil {
		s.log.Warnf("failed to parse feature flag payload: %v", err)
		return
	}
	s.cache = fresh
	s.log.WithField("flags", len(fresh)).Debug("refreshed feature flags from AppConfig")
}
