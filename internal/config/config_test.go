package config

import (
	"net/url"
	"testing"
	"time"

	"github.com/alecthomas/assert/v2"
	"github.com/alecthomas/kong"
	"golang.org/x/text/language"
)

func parse(t *testing.T, args ...string) Config {
	t.Helper()
	var cli struct {
		Config Config `embed:""`
	}
	parser, err := kong.New(&cli, kong.Vars(Vars()))
	assert.NoError(t, err)
	_, err = parser.Parse(args)
	assert.NoError(t, err)
	return cli.Config
}

func TestDefaults(t *testing.T) {
	cfg := parse(t)
	assert.Equal(t, DefaultEndpoint, cfg.Endpoint.String())
	assert.Equal(t, "csrftoken", cfg.CSRFCookie)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.Equal(t, 2, cfg.Retries)
	assert.Equal(t, 50, cfg.PageSize)
	assert.Equal(t, 500*time.Millisecond, cfg.Debounce)
	assert.Equal(t, language.English, cfg.Language())
	assert.NoError(t, cfg.Validate())
}

func TestFlagsAndEnv(t *testing.T) {
	t.Setenv("STOREFRONT_LOCALE", "hu")
	cfg := parse(t, "--endpoint=https://shop.example.com/graphql/", "--retries=0", "--page-size=20")
	assert.Equal(t, "shop.example.com", cfg.Endpoint.Host)
	assert.Equal(t, 0, cfg.Retries)
	assert.Equal(t, 20, cfg.ListPageSize())
	assert.Equal(t, language.Hungarian, cfg.Language())

	sess, err := cfg.Session()
	assert.NoError(t, err)
	assert.Equal(t, "https://shop.example.com/graphql/", sess.Endpoint().String())
	assert.Equal(t, "csrftoken", sess.CSRFCookie())
}

func TestValidate(t *testing.T) {
	ftp, err := url.Parse("ftp://example.com/")
	assert.NoError(t, err)
	for _, test := range []struct {
		name string
		cfg  Config
		err  string
	}{
		{"Scheme", Config{Endpoint: ftp, PageSize: 1}, "endpoint must be an http or https URL"},
		{"Retries", Config{Endpoint: mustParse(t, DefaultEndpoint), Retries: -1, PageSize: 1}, "retries must not be negative, got -1"},
		{"PageSize", Config{Endpoint: mustParse(t, DefaultEndpoint)}, "page size must be positive, got 0"},
	} {
		t.Run(test.name, func(t *testing.T) {
			assert.EqualError(t, test.cfg.Validate(), test.err)
		})
	}
}

func mustParse(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	assert.NoError(t, err)
	return u
}
