package services

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"time"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
)

// FileUploader stores a file and returns its public URL.
type FileUploader interface {
	Upload(ctx context.Context, file io.Reader, folder, publicID, resourceType string) (string, error)
}

type CloudinaryUploader struct {
	cld    *cloudinary.Cloudinary
	secret string
}

func NewCloudinaryUploader(cloudinaryURL string) (*CloudinaryUploader, error) {
	cld, err := cloudinary.NewFromURL(cloudinaryURL)
	if err != nil {
		return nil, err
	}
	parsedURL, err := url.Parse(cloudinaryURL)
	if err != nil {
		return nil, err
	}
	secret, _ := parsedURL.User.Password()
	return &CloudinaryUploader{cld: cld, secret: secret}, nil
}

func (u *CloudinaryUploader) Upload(ctx context.Context, file io.Reader, folder, publicID, resourceType string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if resourceType == "" {
		resourceType = "auto"
	}
	result, err := u.cld.Upload.Upload(ctx, file, uploader.UploadParams{
		PublicID:     publicID,
		Folder:       folder,
		ResourceType: resourceType,
	})
	if err != nil {
		return "", err
	}
	if result.Error.Message != "" {
		return "", fmt.Errorf("cloudinary: %s", result.Error.Message)
	}
	return result.SecureURL, nil
}

type UploadSignature struct {
	Signature string `json:"signature"`
	Timestamp int64  `json:"timestamp"`
	APIKey    string `json:"api_key"`
	Folder    string `json:"folder"`
}

// Sign lets a browser upload straight into folder.
func (u *CloudinaryUploader) Sign(folder string) (*UploadSignature, error) {
	paramsToSign, err := api.StructToParams(uploader.UploadParams{Folder: folder})
	if err != nil {
		return nil, err
	}
	timestamp := time.Now().Unix()
	paramsToSign.Set("timestamp", strconv.FormatInt(timestamp, 10))

	signature, err := api.SignParameters(paramsToSign, u.secret)
	if err != nil {
		return nil, err
	}
	return &UploadSignature{
		Signature: signature,
		Timestamp: timestamp,
		APIKey:    u.cld.Config.Cloud.APIKey,
		Folder:    folder,
	}, nil
}
