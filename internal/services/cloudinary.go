package services

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/example/marketplace/internal/apperr"
)

const productImageFolder = "product-images"

// CloudinaryClient stores product images on the media CDN.
type CloudinaryClient struct {
	baseURL   string
	cloudName string
	apiKey    string
	apiSecret string
	http      *http.Client
	log       *zap.Logger
	now       func() time.Time
}

// NewCloudinaryClient constructs CloudinaryClient. baseURL may be empty.
func NewCloudinaryClient(baseURL, cloudName, apiKey, apiSecret string, timeout time.Duration, log *zap.Logger) *CloudinaryClient {
	if baseURL == "" {
		baseURL = "https://api.cloudinary.com"
	}
	return &CloudinaryClient{
		baseURL:   strings.TrimRight(baseURL, "/"),
		cloudName: cloudName,
		apiKey:    apiKey,
		apiSecret: apiSecret,
		http:      newHTTPClient(timeout),
		log:       log,
		now:       time.Now,
	}
}

func (c *CloudinaryClient) configured() bool {
	return c.cloudName != "" && c.apiKey != "" && c.apiSecret != ""
}

// sign implements the CDN's parameter signature: sorted k=v pairs joined by
// '&', suffixed with the secret, SHA-1 hex encoded.
func (c *CloudinaryClient) sign(params url.Values) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+params.Get(k))
	}
	sum := sha1.Sum([]byte(strings.Join(pairs, "&") + c.apiSecret))
	return hex.EncodeToString(sum[:])
}

func (c *CloudinaryClient) call(ctx context.Context, action string, params url.Values) (*Response, error) {
	params.Set("timestamp", strconv.FormatInt(c.now().Unix(), 10))
	signature := c.sign(params)
	params.Set("signature", signature)
	params.Set("api_key", c.apiKey)

	return doRequest(ctx, c.http, "Cloudinary "+action, RequestOpts{
		Method: http.MethodPost,
		URL:    c.baseURL + "/v1_1/" + url.PathEscape(c.cloudName) + "/image/" + action,
		Form:   params,
	})
}

// Upload stores file (a URL or data URI) under publicID and returns its secure URL.
// Without credentials, remote URLs are kept as is and inline data is dropped.
func (c *CloudinaryClient) Upload(ctx context.Context, publicID, file string) (string, error) {
	if file == "" {
		return "", nil
	}
	if !c.configured() {
		c.log.Warn("media storage not configured, skipping upload", zap.String("public_id", publicID))
		if strings.HasPrefix(file, "http://") || strings.HasPrefix(file, "https://") {
			return file, nil
		}
		return "", nil
	}

	resp, err := c.call(ctx, "upload", url.Values{
		"file":      {file},
		"public_id": {publicID},
		"folder":    {productImageFolder},
		"type":      {"authenticated"},
	})
	if err != nil {
		c.log.Error("image upload failed", zap.String("public_id", publicID), zap.Error(err))
		return "", apperr.Wrap(apperr.ErrUpstream, err, "image upload failed")
	}

	var body struct {
		SecureURL string `json:"secure_url"`
		Error     struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(resp.Body, &body); err != nil || !resp.OK() || body.SecureURL == "" {
		c.log.Warn("image upload rejected", zap.Int("status", resp.Status), zap.String("message", body.Error.Message))
		return "", apperr.New(apperr.ErrUpstream, "image upload failed")
	}
	return body.SecureURL, nil
}

// Destroy removes the image stored under publicID.
func (c *CloudinaryClient) Destroy(ctx context.Context, publicID string) error {
	if !c.configured() {
		return nil
	}

	resp, err := c.call(ctx, "destroy", url.Values{
		"public_id": {productImageFolder + "/" + publicID},
		"type":      {"authenticated"},
	})
	if err != nil {
		return apperr.Wrap(apperr.ErrUpstream, err, "image removal failed")
	}
	if !resp.OK() {
		return apperr.New(apperr.ErrUpstream, "image removal failed")
	}
	return nil
}
