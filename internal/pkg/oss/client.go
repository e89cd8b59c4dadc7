package oss

import (
	"bytes"
	"fmt"
	"time"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"

	"github.com/qs3c/license_go_server/config"
)

type Client struct {
	client     *oss.Client
	bucket     *oss.Bucket
	bucketName string
}

func NewClient(cfg *config.OSSConfig) (*Client, error) {
	client, err := oss.New(cfg.Endpoint, cfg.AccessKeyID, cfg.AccessKeySecret)
	if err != nil {
		return nil, fmt.Errorf("failed to create OSS client: %w", err)
	}

	bucket, err := client.Bucket(cfg.BucketName)
	if err != nil {
		return nil, fmt.Errorf("failed to get bucket: %w", err)
	}

	return &Client{
		client:     client,
		bucket:     bucket,
		bucketName: cfg.BucketName,
	}, nil
}

// ArchiveWebhookPayload 归档支付回调原始报文，供审计追溯
func (c *Client) ArchiveWebhookPayload(eventID string, payload []byte) (string, error) {
	objectKey := fmt.Sprintf("webhooks/%s/%d.json", time.Now().UTC().Format("2006-01"), time.Now().Unix())
	if eventID != "" {
		objectKey = fmt.Sprintf("webhooks/%s/%s.json", time.Now().UTC().Format("2006-01"), eventID)
	}

	err := c.bucket.PutObject(objectKey, bytes.NewReader(payload), oss.ContentType("application/json"))
	if err != nil {
		return "", fmt.Errorf("failed to archive payload: %w", err)
	}

	return objectKey, nil
}

// Delete 删除归档对象
func (c *Client) Delete(objectKey string) error {
	if err := c.bucket.DeleteObject(objectKey); err != nil {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}
