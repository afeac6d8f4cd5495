package s3

import (
	"net/url"
	"os"
	"path"
	"strings"

	"github.com/secstore/secstore/internal/errors"
)

// Config contains all configuration necessary to connect to an s3 compatible
// server.
type Config struct {
	Endpoint string
	UseHTTP  bool
	KeyID    string
	Secret   string
	Bucket   string
	Prefix   string
	Region   string

	StorageClass string
}

// ParseConfig parses the string s and extracts the s3 config. The two
// supported configuration formats are s3://host/bucketname/prefix and
// s3:host/bucketname/prefix. The host can also be a valid s3 region name.
func ParseConfig(s string) (Config, error) {
	switch {
	case strings.HasPrefix(s, "s3:http"):
		// assume that a URL has been specified, parse it and use the path as
		// the prefix
		u, err := url.Parse(s[3:])
		if err != nil {
			return Config{}, errors.Wrap(err, "url.Parse")
		}

		if u.Path == "" {
			return Config{}, errors.New("s3: bucket name not found")
		}

		bucket, prefix, _ := strings.Cut(u.Path[1:], "/")
		return createConfig(u.Host, bucket, prefix, u.Scheme == "http")
	case strings.HasPrefix(s, "s3://"):
		s = s[5:]
	case strings.HasPrefix(s, "s3:"):
		s = s[3:]
	default:
		return Config{}, errors.New("s3: invalid format")
	}

	// use the first entry of the path as the endpoint and the
	// remainder as bucket name and prefix
	endpoint, rest, _ := strings.Cut(s, "/")
	bucket, prefix, _ := strings.Cut(rest, "/")
	return createConfig(endpoint, bucket, prefix, false)
}

func createConfig(endpoint, bucket, prefix string, useHTTP bool) (Config, error) {
	if endpoint == "" {
		return Config{}, errors.New("s3: invalid format, host/region or bucket name not found")
	}

	if bucket == "" {
		return Config{}, errors.New("s3: bucket name not found")
	}

	prefix = path.Clean(prefix)
	if prefix == "." || prefix == "/" {
		prefix = ""
	}

	return Config{
		Endpoint: endpoint,
		UseHTTP:  useHTTP,
		Bucket:   bucket,
		Prefix:   prefix,
	}, nil
}

// ApplyEnvironment saves values from the environment to the config.
func (cfg *Config) ApplyEnvironment() {
	if cfg.KeyID == "" {
		cfg.KeyID = os.Getenv("AWS_ACCESS_KEY_ID")
	}

	if cfg.Secret == "" {
		cfg.Secret = os.Getenv("AWS_SECRET_ACCESS_KEY")
	}

	if cfg.Region == "" {
		cfg.Region = os.Getenv("AWS_DEFAULT_REGION")
	}
}
