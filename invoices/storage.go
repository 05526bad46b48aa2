package invoices

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
)

const invoiceFolder = "powerca_invoices"

type Archive interface {
	Upload(ctx context.Context, fileName string, pdf []byte) (string, error)
}

// CloudinaryArchive keeps invoice PDFs as raw Cloudinary assets.
type CloudinaryArchive struct {
	cld *cloudinary.Cloudinary
}

func NewCloudinaryArchive(cloudinaryURL string) (*CloudinaryArchive, error) {
	cld, err := cloudinary.NewFromURL(cloudinaryURL)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Cloudinary: %w", err)
	}
	return &CloudinaryArchive{cld: cld}, nil
}

func (a *CloudinaryArchive) Upload(ctx context.Context, fileName string, pdf []byte) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	uploadParams := uploader.UploadParams{
		PublicID:     strings.TrimSuffix(fileName, ".pdf"),
		Folder:       invoiceFolder,
		ResourceType: "raw",
	}

	uploadResult, err := a.cld.Upload.Upload(ctx, bytes.NewReader(pdf), uploadParams)
	if err != nil {
		return "", err
	}
	return uploadResult.SecureURL, nil
}
