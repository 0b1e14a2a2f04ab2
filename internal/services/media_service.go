package services

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

const cloudinaryAPIBase = "https://api.cloudinary.com/v1_1"

// UploadedImage is a hosted image and the handle used to delete it.
type UploadedImage struct {
	URL      string `json:"secure_url"`
	PublicID string `json:"public_id"`
}

// MediaStore hosts product images.
type MediaStore interface {
	Enabled() bool
	Upload(ctx context.Context, filename string, data []byte) (UploadedImage, error)
	// DeleteBatch removes hosted images on a best-effort basis.
	DeleteBatch(ctx context.Context, publicIDs []string)
}

// CloudinaryStore talks to the Cloudinary upload API with signed requests.
type CloudinaryStore struct {
	cloudName string
	apiKey    string
	apiSecret string
	baseURL   string
	folder    string
	client    *http.Client
	now       func() time.Time
}

// NewCloudinaryStore constructs a CloudinaryStore.
func NewCloudinaryStore(cloudName, apiKey, apiSecret string) *CloudinaryStore {
	return &CloudinaryStore{
		cloudName: cloudName,
		apiKey:    apiKey,
		apiSecret: apiSecret,
		baseURL:   cloudinaryAPIBase,
		folder:    "products",
		client:    &http.Client{Timeout: 30 * time.Second},
		now:       time.Now,
	}
}

// Enabled reports whether credentials are configured.
func (s *CloudinaryStore) Enabled() bool {
	return s.cloudName != "" && s.apiKey != "" && s.apiSecret != ""
}

// sign implements Cloudinary's request signature: sorted params joined with
// '&', the API secret appended, SHA-1 hex encoded.
func (s *CloudinaryStore) sign(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+params[k])
	}
	sum := sha1.Sum([]byte(strings.Join(parts, "&") + s.apiSecret))
	return hex.EncodeToString(sum[:])
}

// Upload sends one image and returns its hosted URL.
func (s *CloudinaryStore) Upload(ctx context.Context, filename string, data []byte) (UploadedImage, error) {
	if !s.Enabled() {
		return UploadedImage{}, ErrNotConfigured
	}

	params := map[string]string{
		"folder":    s.folder,
		"timestamp": strconv.FormatInt(s.now().Unix(), 10),
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	for k, v := range params {
		_ = writer.WriteField(k, v)
	}
	_ = writer.WriteField("api_key", s.apiKey)
	_ = writer.WriteField("signature", s.sign(params))
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return UploadedImage{}, err
	}
	if _, err := part.Write(data); err != nil {
		return UploadedImage{}, err
	}
	if err := writer.Close(); err != nil {
		return UploadedImage{}, err
	}

	endpoint := fmt.Sprintf("%s/%s/image/upload", s.baseURL, s.cloudName)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return UploadedImage{}, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := s.client.Do(req)
	if err != nil {
		return UploadedImage{}, fmt.Errorf("%w: cloudinary upload: %v", ErrProviderFailed, err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return UploadedImage{}, fmt.Errorf("%w: cloudinary upload status %d: %s", ErrProviderFailed, resp.StatusCode, string(respBody))
	}

	var uploaded UploadedImage
	if err := json.Unmarshal(respBody, &uploaded); err != nil {
		return UploadedImage{}, fmt.Errorf("cloudinary upload unmarshal: %w", err)
	}
	return uploaded, nil
}

// DeleteBatch destroys each image, logging failures instead of returning them.
func (s *CloudinaryStore) DeleteBatch(ctx context.Context, publicIDs []string) {
	if !s.Enabled() {
		return
	}
	for _, id := range publicIDs {
		if id == "" {
			continue
		}
		if err := s.destroy(ctx, id); err != nil {
			log.Printf("[Media] delete %s failed: %v", id, err)
		}
	}
}

func (s *CloudinaryStore) destroy(ctx context.Context, publicID string) error {
	params := map[string]string{
		"public_id": publicID,
		"timestamp": strconv.FormatInt(s.now().Unix(), 10),
	}
	form := url.Values{}
	for k, v := range params {
		form.Set(k, v)
	}
	form.Set("api_key", s.apiKey)
	form.Set("signature", s.sign(params))

	endpoint := fmt.Sprintf("%s/%s/image/destroy", s.baseURL, s.cloudName)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}
