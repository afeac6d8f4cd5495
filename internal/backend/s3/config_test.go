package s3

import "testing"

var configTests = []struct {
	s   string
	cfg Config
}{
	{"s3://eu-central-1/bucketname", Config{
		Endpoint: "eu-central-1",
		Bucket:   "bucketname",
		Prefix:   "",
	}},
	{"s3://eu-central-1/bucketname/prefix/directory", Config{
		Endpoint: "eu-central-1",
		Bucket:   "bucketname",
		Prefix:   "prefix/directory",
	}},
	{"s3:eu-central-1/foobar", Config{
		Endpoint: "eu-central-1",
		Bucket:   "foobar",
		Prefix:   "",
	}},
	{"s3:eu-central-1/foobar/prefix", Config{
		Endpoint: "eu-central-1",
		Bucket:   "foobar",
		Prefix:   "prefix",
	}},
	{"s3:https://hostname:9999/foobar", Config{
		Endpoint: "hostname:9999",
		Bucket:   "foobar",
		Prefix:   "",
	}},
	{"s3:http://hostname:9999/foobar/prefix", Config{
		Endpoint: "hostname:9999",
		Bucket:   "foobar",
		Prefix:   "prefix",
		UseHTTP:  true,
	}},
}

func TestParseConfig(t *testing.T) {
	for i, test := range configTests {
		cfg, err := ParseConfig(test.s)
		if err != nil {
			t.Errorf("test %d: %s failed: %v", i, test.s, err)
			continue
		}

		if cfg != test.cfg {
			t.Errorf("test %d:\ninput:\n  %s\n wrong config, want:\n  %v\ngot:\n  %v",
				i, test.s, test.cfg, cfg)
			continue
		}
	}
}

func TestParseConfigInvalid(t *testing.T) {
	for _, s := range []string{"s3://", "s3:", "local:/srv/repo", "s3:eu-central-1"} {
		_, err := ParseConfig(s)
		if err == nil {
			t.Errorf("expected error for invalid location %q, got nil", s)
		}
	}
}
