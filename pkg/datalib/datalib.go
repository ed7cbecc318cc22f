// Package datalib is the entry point of the library. A Client authenticates
// against Auth0, queries the metadata catalog and binds datasets to their
// storage backend.
package datalib

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/jonboulle/clockwork"

	"github.com/DHI/gwc-datalib/pkg/auth"
	"github.com/DHI/gwc-datalib/pkg/catalog"
	"github.com/DHI/gwc-datalib/pkg/config"
	"github.com/DHI/gwc-datalib/pkg/dataset"
	"github.com/DHI/gwc-datalib/pkg/dataset/dataverse"
	apihttp "github.com/DHI/gwc-datalib/pkg/http"
	"github.com/DHI/gwc-datalib/pkg/registry"
	"github.com/DHI/gwc-datalib/pkg/storage"
	s3storage "github.com/DHI/gwc-datalib/pkg/storage/s3"
)

// terminalPrompter supplies the default credential prompt. It yields nil when
// stdin is not a terminal.
var terminalPrompter = auth.NewTerminalPrompter

// Client is the library facade.
type Client struct {
	config *config.Config
	logger *slog.Logger

	store    *auth.Store
	api      *apihttp.Client
	catalog  *catalog.Client
	registry *registry.Registry
	loader   *registry.Loader

	objects     storage.Provider
	ownsObjects bool
}

// New validates cfg and wires the credential store, the catalog transport
// and the backend registry. No network call is made.
func New(cfg *config.Config, opts ...Option) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: config is required", config.ErrConfiguration)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	options := &Options{}
	for _, opt := range opts {
		opt(options)
	}
	if options.Clock == nil {
		options.Clock = clockwork.NewRealClock()
	}
	if options.Logger == nil {
		options.Logger = slog.Default()
	}
	if options.Prompter == nil {
		options.Prompter = terminalPrompter()
	}

	c := &Client{
		config: cfg,
		logger: options.Logger,
	}

	c.store = c.newStore(options)

	transport := apihttp.Config{
		BaseURL:   cfg.API.Endpoint,
		Timeout:   cfg.API.Timeout,
		UserAgent: options.UserAgent,
		Transport: options.Transport,
	}
	c.api = apihttp.New(transport, c.store).WithLogger(options.Logger)
	c.catalog = catalog.New(c.api)

	if err := c.initObjectStore(options); err != nil {
		return nil, err
	}

	c.registry = registry.NewRegistry()
	dvTransport := transport
	dvTransport.BaseURL = ""
	registry.RegisterBuiltinFactories(c.registry, registry.Dependencies{
		API: c.api,
		Dataverse: dataverse.Config{
			ServerURL: cfg.Dataverse.URL,
			APIToken:  cfg.Dataverse.APIToken,
			Transport: dvTransport,
		},
		ObjectStore:    c.objects,
		PresignTTL:     cfg.S3.PresignTTL,
		BlobDownloader: options.BlobDownloader,
		Clock:          options.Clock,
	})
	c.loader = registry.NewLoader(c.catalog, c.registry)

	c.logger.Debug("datalib client ready",
		"api_endpoint", cfg.API.Endpoint,
		"backends", c.registry.Kinds(),
		"object_store", c.objects != nil)
	return c, nil
}

func (c *Client) newStore(options *Options) *auth.Store {
	a := c.config.Auth
	storeOpts := []auth.Option{
		auth.WithClock(options.Clock),
		auth.WithLogger(options.Logger),
	}
	if options.Prompter != nil {
		storeOpts = append(storeOpts, auth.WithPrompter(options.Prompter))
	}
	if options.Transport != nil {
		storeOpts = append(storeOpts, auth.WithRestClient(apihttp.NewRestClient(apihttp.Config{
			Timeout:   c.config.API.Timeout,
			UserAgent: options.UserAgent,
			Transport: options.Transport,
		})))
	}
	return auth.NewStore(auth.Config{
		Domain:       a.Domain,
		ClientID:     a.ClientID,
		ClientSecret: a.ClientSecret,
		Audience:     a.Audience,
		Scope:        a.Scope,
		Username:     a.Username,
		Password:     a.Password,
		DefaultTTL:   a.DefaultTTL,
		Timeout:      c.config.API.Timeout,
	}, storeOpts...)
}

func (c *Client) initObjectStore(options *Options) error {
	if options.ObjectStore != nil {
		c.objects = options.ObjectStore
		return nil
	}
	s3cfg := c.config.S3
	if !s3cfg.Enabled() {
		return nil
	}
	store, err := s3storage.NewFromConfig(context.Background(), s3storage.Config{
		Region:          s3cfg.Region,
		Endpoint:        s3cfg.Endpoint,
		AccessKeyID:     s3cfg.AccessKeyID,
		SecretAccessKey: s3cfg.SecretAccessKey,
		SessionToken:    s3cfg.SessionToken,
		UsePathStyle:    s3cfg.UsePathStyle,
		Timeout:         c.config.API.Timeout,
		ConnectionName:  "datalib",
	})
	if err != nil {
		return fmt.Errorf("%w: %w", config.ErrConfiguration, err)
	}
	c.objects = store
	c.ownsObjects = true
	return nil
}

// Search returns datasets matching params.
func (c *Client) Search(ctx context.Context, params catalog.SearchParams) ([]catalog.Metadata, error) {
	return c.catalog.Search(ctx, params)
}

// UserDatasets returns the datasets owned by the authenticated user.
func (c *Client) UserDatasets(ctx context.Context) ([]catalog.Metadata, error) {
	return c.catalog.UserDatasets(ctx)
}

// Dataset returns the metadata of one dataset.
func (c *Client) Dataset(ctx context.Context, name string) (catalog.Metadata, error) {
	return c.catalog.Get(ctx, name)
}

// CreateDataset registers a new dataset document.
func (c *Client) CreateDataset(ctx context.Context, doc catalog.Metadata) (catalog.Metadata, error) {
	return c.catalog.Create(ctx, doc)
}

// Load resolves name through the catalog and binds its storage adapter.
func (c *Client) Load(ctx context.Context, name string) (dataset.Adapter, error) {
	return c.loader.Load(ctx, name)
}

// Bind binds an adapter to metadata already at hand.
func (c *Client) Bind(ctx context.Context, meta catalog.Metadata) (dataset.Adapter, error) {
	return c.loader.FromMetadata(ctx, meta)
}

// Backends returns the supported storage_service kinds.
func (c *Client) Backends() []string {
	return c.registry.Kinds()
}

// Supports reports whether datasets stored under kind can be loaded.
func (c *Client) Supports(kind string) bool {
	return c.registry.Supports(kind)
}

// Credential returns the cached access token, if one was obtained.
func (c *Client) Credential() (auth.Credential, bool) {
	return c.store.Credential()
}

// Authenticate obtains a token now instead of on the first request.
func (c *Client) Authenticate(ctx context.Context) (auth.Credential, error) {
	if _, err := c.store.Token(ctx); err != nil {
		return auth.Credential{}, err
	}
	cred, _ := c.store.Credential()
	return cred, nil
}

// Config returns the client configuration.
func (c *Client) Config() *config.Config {
	return c.config
}

// closeResource closes a resource and appends any error.
func closeResource(errs *[]error, closer io.Closer) {
	if closer == nil {
		return
	}
	if err := closer.Close(); err != nil {
		*errs = append(*errs, err)
	}
}

// Close releases the object store if the client created it.
func (c *Client) Close() error {
	var errs []error
	if c.ownsObjects {
		closeResource(&errs, c.objects)
	}
	if len(errs) > 0 {
		return fmt.Errorf("errors closing client: %v", errs)
	}
	return nil
}
