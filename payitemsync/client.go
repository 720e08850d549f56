package payitemsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"bitbucket.org/mmdatafocus/payroll_backend/config"
	"bitbucket.org/mmdatafocus/payroll_backend/models"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("bitbucket.org/mmdatafocus/payroll_backend/payitemsync")

var errPartnerNotConfigured = errors.New("partner url or api key is not configured")

// Client pages through the partner pay item feed of one business at a time.
type Client struct {
	baseURL   string
	apiKey    string
	apiKeyHdr string
	maxPages  int
	http      *http.Client
	logger    logrus.FieldLogger
	validate  *validator.Validate
}

func NewClient(cfg config.PartnerConfig, logger logrus.FieldLogger) *Client {
	if logger == nil {
		logger = config.GetLogger()
	}
	return &Client{
		baseURL:   cfg.BaseURL,
		apiKey:    cfg.APIKey,
		apiKeyHdr: cfg.KeyHeader,
		maxPages:  cfg.MaxPages,
		http:      &http.Client{Timeout: cfg.Timeout},
		logger:    logger,
		validate:  validator.New(),
	}
}

// Collect returns every record of every page for business, in page order.
// It stops at the first page flagged isLastPage and fails on the first bad page; nothing partial is returned.
func (c *Client) Collect(ctx context.Context, business *models.Business) ([]PayItemRecord, error) {
	ctx, span := tracer.Start(ctx, "payitemsync.Collect", trace.WithAttributes(
		attribute.String("business.external_id", business.ExternalId),
	))
	defer span.End()

	records, pages, err := c.collect(ctx, business)
	span.SetAttributes(attribute.Int("feed.pages", pages), attribute.Int("feed.records", len(records)))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return records, nil
}

func (c *Client) collect(ctx context.Context, business *models.Business) ([]PayItemRecord, int, error) {
	if c.baseURL == "" || c.apiKey == "" {
		return nil, 0, &FeedError{Kind: ErrTransport, BusinessExternalId: business.ExternalId, Err: errPartnerNotConfigured}
	}

	var records []PayItemRecord
	for page := 1; ; page++ {
		if c.maxPages > 0 && page > c.maxPages {
			return nil, page - 1, &FeedError{
				Kind:               ErrPageLimitExceeded,
				BusinessExternalId: business.ExternalId,
				Page:               page,
				Err:                fmt.Errorf("no last page within %d pages", c.maxPages),
			}
		}
		parsed, err := c.getPage(ctx, business, page)
		if err != nil {
			return nil, page, err
		}
		records = append(records, parsed.PayItems...)
		if *parsed.IsLastPage {
			return records, page, nil
		}
	}
}

func (c *Client) scopedURL(business *models.Business, page int) string {
	params := url.Values{}
	params.Set("page", strconv.Itoa(page))
	return c.baseURL + business.ExternalId + "?" + params.Encode()
}

func (c *Client) getPage(ctx context.Context, business *models.Business, page int) (feedPage, error) {
	feedErr := func(kind error, status int, err error) error {
		return &FeedError{Kind: kind, BusinessExternalId: business.ExternalId, Page: page, StatusCode: status, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.scopedURL(business, page), nil)
	if err != nil {
		return feedPage{}, feedErr(ErrTransport, 0, err)
	}
	req.Header.Set(c.apiKeyHdr, c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return feedPage{}, feedErr(ErrTransport, 0, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return feedPage{}, feedErr(ErrTransport, resp.StatusCode, err)
	}

	log := c.logger.WithFields(logrus.Fields{
		"business_external_id": business.ExternalId,
		"page":                 page,
		"status":               resp.StatusCode,
	})
	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized:
		log.Warn("Unauthorized response from Sync Job for " + business.ExternalId)
		return feedPage{}, feedErr(ErrAuthentication, resp.StatusCode, nil)
	case http.StatusNotFound:
		log.WithField("severity", "critical").Error("Not Found response from Sync Job for " + business.ExternalId)
		return feedPage{}, feedErr(ErrNotFound, resp.StatusCode, nil)
	default:
		return feedPage{}, feedErr(ErrTransport, resp.StatusCode, errors.New(truncate(strings.TrimSpace(string(body)), 512)))
	}

	var parsed feedPage
	if err := json.Unmarshal(body, &parsed); err != nil {
		return feedPage{}, feedErr(ErrMalformedResponse, resp.StatusCode, err)
	}
	if parsed.IsLastPage == nil {
		return feedPage{}, feedErr(ErrMalformedResponse, resp.StatusCode, errors.New("isLastPage is missing"))
	}
	if err := c.validate.Struct(parsed); err != nil {
		return feedPage{}, feedErr(ErrMalformedResponse, resp.StatusCode, err)
	}
	return parsed, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
