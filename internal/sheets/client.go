package sheets

import (
	"context"
	"errors"
	"sync"

	"upwork_sheet_sync/internal/destination"
	"upwork_sheet_sync/internal/syncerr"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

var _ destination.Spreadsheet = (*Client)(nil)

// Client is a rate-limited Google Sheets destination.
type Client struct {
	config  ClientConfig
	limiter *rate.Limiter

	mu      sync.Mutex
	service *sheets.Service
}

func NewClient(ctx context.Context, config ClientConfig) (*Client, error) {
	config = config.withDefaults()
	c := &Client{
		config:  config,
		limiter: rate.NewLimiter(rate.Limit(config.RateLimit), config.RateBurst),
	}
	if err := c.connect(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// connect builds a fresh service, which re-reads the credentials.
func (c *Client) connect(ctx context.Context) error {
	opts := append([]option.ClientOption{}, c.config.Options...)
	if c.config.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(c.config.CredentialsFile))
	}

	service, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return syncerr.Wrap(syncerr.KindAuthFailure, "create sheets service", err)
	}

	c.mu.Lock()
	c.service = service
	c.mu.Unlock()
	return nil
}

func (c *Client) svc() *sheets.Service {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.service
}

// do waits for the rate limiter, runs call and classifies its failure.
func (c *Client) do(ctx context.Context, op string, call func(*sheets.Service) error) error {
	if err := c.limiter.Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		return syncerr.Classify(op, err)
	}
	return classify(op, call(c.svc()))
}

// write is do with one credential refresh when the destination answers
// 401 or 403.
func (c *Client) write(ctx context.Context, op string, call func(*sheets.Service) error) error {
	err := c.do(ctx, op, call)
	if !syncerr.Is(err, syncerr.KindAuthFailure) {
		return err
	}

	log.Warn().
		Str("operation", op).
		Int("status_code", syncerr.StatusCode(err)).
		Msg("Write rejected, re-acquiring credentials")

	if cerr := c.connect(ctx); cerr != nil {
		return cerr
	}
	return c.do(ctx, op, call)
}

func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return syncerr.FromStatus(op, apiErr.Code, err)
	}
	return syncerr.Classify(op, err)
}
