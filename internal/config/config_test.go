package config_test

import (
	"os"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/example/happyfinder/internal/config"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://hf:hf@localhost:5432/hf?sslmode=disable")
	t.Setenv("GOOGLE_API_KEY", "gkey")
	t.Setenv("FOURSQUARE_CLIENT_ID", "primary-id")
	t.Setenv("FOURSQUARE_CLIENT_SECRET", "primary-secret")
}

func TestFromEnv(t *testing.T) {
	setRequired(t)
	t.Setenv("POLL_BACKOFF", "30s")

	Convey("Config loads from the environment with defaults", t, func() {
		cfg, err := config.FromEnv()
		So(err, ShouldBeNil)
		So(cfg.GoogleAPIKey, ShouldEqual, "gkey")
		So(cfg.PollBackoff, ShouldEqual, 30*time.Second)
		So(cfg.Redis.Addr, ShouldEqual, "localhost:6379")
		So(cfg.RetryAttempts, ShouldEqual, 3)
	})
}

func TestFromEnvMissingRequired(t *testing.T) {
	setRequired(t)
	t.Setenv("DATABASE_URL", "") // register restore
	os.Unsetenv("DATABASE_URL")

	Convey("A missing required variable fails the load", t, func() {
		_, err := config.FromEnv()
		So(err, ShouldNotBeNil)
	})
}

func TestFoursquareCredentials(t *testing.T) {
	setRequired(t)

	Convey("With only the primary pair, rotation has one bucket", t, func() {
		cfg, err := config.FromEnv()
		So(err, ShouldBeNil)
		pairs := cfg.FoursquareCredentials()
		So(pairs, ShouldHaveLength, 1)
		So(pairs[0][0], ShouldEqual, "primary-id")
	})
}

func TestFoursquareCredentialsSecondaryFirst(t *testing.T) {
	setRequired(t)
	t.Setenv("SECONDARY_FOURSQUARE_CLIENT_ID", "secondary-id")
	t.Setenv("SECONDARY_FOURSQUARE_SECRET", "secondary-secret")

	Convey("The secondary pair leads the rotation when configured", t, func() {
		cfg, err := config.FromEnv()
		So(err, ShouldBeNil)
		pairs := cfg.FoursquareCredentials()
		So(pairs, ShouldHaveLength, 2)
		So(pairs[0][0], ShouldEqual, "secondary-id")
		So(pairs[1][0], ShouldEqual, "primary-id")
	})
}
