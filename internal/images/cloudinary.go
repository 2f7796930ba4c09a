package images

import (
	"context"
	"fmt"
	"io"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
)

// cloudinaryAPI is the slice of the Cloudinary upload API we use.
type cloudinaryAPI interface {
	Upload(ctx context.Context, file interface{}, params uploader.UploadParams) (*uploader.UploadResult, error)
}

// Cloudinary uploads images to a Cloudinary account.
type Cloudinary struct {
	api    cloudinaryAPI
	folder string
	max    int64
}

// NewCloudinary connects with account credentials.
func NewCloudinary(cloudName, apiKey, apiSecret, folder string, maxBytes int64) (*Cloudinary, error) {
	cld, err := cloudinary.NewFromParams(cloudName, apiKey, apiSecret)
	if err != nil {
		return nil, fmt.Errorf("cloudinary: %w", err)
	}
	return &Cloudinary{api: &cld.Upload, folder: folder, max: maxBytes}, nil
}

func (c *Cloudinary) Name() string { return "cloudinary" }

// Save uploads the image and returns its secure URL.
func (c *Cloudinary) Save(ctx context.Context, filename string, r io.Reader) (string, error) {
	_, body, err := Sniff(Limit(r, c.max))
	if err != nil {
		return "", err
	}

	res, err := c.api.Upload(ctx, body, uploader.UploadParams{Folder: c.folder})
	if err != nil {
		return "", fmt.Errorf("cloudinary upload %s: %w", filename, err)
	}
	if res.Error.Message != "" {
		return "", fmt.Errorf("cloudinary upload %s: %s", filename, res.Error.Message)
	}
	if res.SecureURL == "" {
		return "", fmt.Errorf("cloudinary upload %s: empty url", filename)
	}
	return res.SecureURL, nil
}
