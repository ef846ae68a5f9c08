package clickhouse

import "time"

// Options describe how to reach the server. Zero values fall back to the
// defaults set by NewClient.
type Options struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string

	// HTTP switches the DSN from the native protocol to HTTP.
	HTTP bool

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration

	DialTimeout time.Duration
	ReadTimeout time.Duration
	MaxExecTime time.Duration

	AsyncInsert  bool
	WaitForAsync bool
}

type Option func(*Options)

// WithAddr sets the server host and, when positive, the port.
func WithAddr(host string, port int) Option {
	return func(o *Options) {
		o.Host = host
		if port > 0 {
			o.Port = port
		}
	}
}

// WithAuth selects the database and credentials. An empty database keeps the
// default.
func WithAuth(database, user, password string) Option {
	return func(o *Options) {
		if database != "" {
			o.Database = database
		}
		if user != "" {
			o.User = user
		}
		o.Password = password
	}
}

func WithPool(maxOpen, maxIdle int) Option {
	return func(o *Options) {
		o.MaxOpenConns = maxOpen
		o.MaxIdleConns = maxIdle
	}
}

func WithHTTP(on bool) Option {
	return func(o *Options) { o.HTTP = on }
}

// WithTimeouts sets the dial and read timeouts; zero keeps a default.
func WithTimeouts(dial, read time.Duration) Option {
	return func(o *Options) {
		if dial > 0 {
			o.DialTimeout = dial
		}
		if read > 0 {
			o.ReadTimeout = read
		}
	}
}

// WithAsyncInsert turns on server-side insert batching, optionally waiting
// for the flush before an insert returns.
func WithAsyncInsert(enabled, wait bool) Option {
	return func(o *Options) {
		o.AsyncInsert = enabled
		o.WaitForAsync = enabled && wait
	}
}

func WithMaxExecutionTime(d time.Duration) Option {
	return func(o *Options) { o.MaxExecTime = d }
}
