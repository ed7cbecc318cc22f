package datalib

import (
	"log/slog"
	"net/http"

	"github.com/jonboulle/clockwork"

	"github.com/DHI/gwc-datalib/pkg/auth"
	"github.com/DHI/gwc-datalib/pkg/dataset/azureblob"
	"github.com/DHI/gwc-datalib/pkg/storage"
)

// Options configures the client beyond what config.Config carries.
type Options struct {
	// Clock drives token and link expiry (optional, real time by default).
	Clock clockwork.Clock

	// Prompter asks for missing credentials (optional, a terminal prompt when
	// stdin is a terminal by default).
	Prompter auth.Prompter

	// ObjectStore serves S3 datasets (optional, created from config.S3 when
	// it is enabled).
	ObjectStore storage.Provider

	// BlobDownloader replaces the Azure SDK downloader (optional).
	BlobDownloader azureblob.Downloader

	// Transport overrides the HTTP round tripper of the catalog and
	// Dataverse clients (optional).
	Transport http.RoundTripper

	// Logger receives request tracing (optional, slog.Default by default).
	Logger *slog.Logger

	// UserAgent is sent with every API request.
	UserAgent string
}

// Option is a functional option for configuring the client.
type Option func(*Options)

// WithClock sets the clock.
func WithClock(clock clockwork.Clock) Option {
	return func(o *Options) {
		o.Clock = clock
	}
}

// WithPrompter sets the interactive credential source.
func WithPrompter(p auth.Prompter) Option {
	return func(o *Options) {
		o.Prompter = p
	}
}

// WithObjectStore sets the object store used by S3 datasets. The client does
// not close a store it was given.
func WithObjectStore(store storage.Provider) Option {
	return func(o *Options) {
		o.ObjectStore = store
	}
}

// WithBlobDownloader replaces the Azure SDK downloader.
func WithBlobDownloader(d azureblob.Downloader) Option {
	return func(o *Options) {
		o.BlobDownloader = d
	}
}

// WithTransport sets the HTTP round tripper.
func WithTransport(rt http.RoundTripper) Option {
	return func(o *Options) {
		o.Transport = rt
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(o *Options) {
		o.UserAgent = ua
	}
}
