// Package filestore uploads course material files to remote storage.
package filestore

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ErrNotConfigured is returned when uploads are attempted without storage credentials.
var ErrNotConfigured = errors.New("filestore: not configured")

// Stored describes an uploaded file.
type Stored struct {
	URL      string
	PublicID string
	Bytes    int64
	Format   string
}

// Uploader stores a file and returns where it can be fetched.
type Uploader interface {
	Upload(ctx context.Context, filename string, r io.Reader) (Stored, error)
}

// Disabled rejects every upload.
type Disabled struct{}

// Upload implements Uploader.
func (Disabled) Upload(context.Context, string, io.Reader) (Stored, error) {
	return Stored{}, ErrNotConfigured
}

// Cloudinary uploads files through the Cloudinary REST API with signed requests.
type Cloudinary struct {
	CloudName string
	APIKey    string
	APISecret string
	Folder    string
	BaseURL   string
	HTTP      *http.Client
	Now       func() time.Time
}

// NewCloudinary creates a Cloudinary uploader.
func NewCloudinary(cloudName, apiKey, apiSecret, folder string) *Cloudinary {
	return &Cloudinary{
		CloudName: cloudName,
		APIKey:    apiKey,
		APISecret: apiSecret,
		Folder:    folder,
		BaseURL:   "https://api.cloudinary.com/v1_1",
		HTTP:      &http.Client{Timeout: 30 * time.Second},
		Now:       time.Now,
	}
}

type uploadResponse struct {
	PublicID  string `json:"public_id"`
	SecureURL string `json:"secure_url"`
	URL       string `json:"url"`
	Format    string `json:"format"`
	Bytes     int64  `json:"bytes"`
}

// Upload sends the file with resource type auto so documents and video are accepted alongside images.
func (c *Cloudinary) Upload(ctx context.Context, filename string, r io.Reader) (Stored, error) {
	params := map[string]string{
		"timestamp": strconv.FormatInt(c.Now().Unix(), 10),
		"api_key":   c.APIKey,
	}
	if c.Folder != "" {
		params["folder"] = c.Folder
	}
	params["signature"] = c.sign(params)

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range params {
		_ = w.WriteField(k, v)
	}
	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		return Stored{}, fmt.Errorf("filestore: create form file failed: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return Stored{}, fmt.Errorf("filestore: write file failed: %w", err)
	}
	if err := w.Close(); err != nil {
		return Stored{}, fmt.Errorf("filestore: close form failed: %w", err)
	}

	url := fmt.Sprintf("%s/%s/auto/upload", strings.TrimRight(c.BaseURL, "/"), c.CloudName)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return Stored{}, fmt.Errorf("filestore: create request failed: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return Stored{}, fmt.Errorf("filestore: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		return Stored{}, fmt.Errorf("filestore: upload failed (%d): %s", resp.StatusCode, string(body))
	}
	var out uploadResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return Stored{}, fmt.Errorf("filestore: decode response failed: %w", err)
	}
	link := out.SecureURL
	if link == "" {
		link = out.URL
	}
	return Stored{URL: link, PublicID: out.PublicID, Bytes: out.Bytes, Format: out.Format}, nil
}

// sign computes the request signature. api_key, file and resource_type are not signed.
func (c *Cloudinary) sign(params map[string]string) string {
	exclude := map[string]bool{"api_key": true, "file": true, "resource_type": true}
	pairs := make([]string, 0, len(params))
	for k, v := range params {
		if !exclude[k] && v != "" {
			pairs = append(pairs, k+"="+v)
		}
	}
	sort.Strings(pairs)
	h := sha1.New()
	h.Write([]byte(strings.Join(pairs, "&") + c.APISecret))
	return fmt.Sprintf("%x", h.Sum(nil))
}
