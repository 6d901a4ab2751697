// Package gstorage backs the encrypted state db up to a cloud bucket so a
// replaced device can pick its emergency configuration back up.
package gstorage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

var ErrObjectNotExist = storage.ErrObjectNotExist

type GStorage struct {
	storageClient *storage.Client
	bucket        string
	prefix        string
}

func NewGStorage(credentialsFilePath, bucket, prefix string) (*GStorage, error) {
	var client *storage.Client
	var err error

	if credentialsFilePath != "" {
		client, err = storage.NewClient(context.Background(), option.WithCredentialsFile(credentialsFilePath))
	} else {
		client, err = storage.NewClient(context.Background())
	}

	if err != nil {
		return nil, fmt.Errorf("NewGStorage: %v", err)
	}

	return &GStorage{storageClient: client, bucket: bucket, prefix: prefix}, nil
}

// UploadStateSnapshot copies the state db file into the bucket under the
// configured prefix, overwriting the previous snapshot.
func (gs *GStorage) UploadStateSnapshot(filePath string) error {
	f, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("os.Open: %v", err)
	}
	defer f.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*50)
	defer cancel()

	object := gs.objectName(filepath.Base(filePath))
	wc := gs.storageClient.Bucket(gs.bucket).Object(object).NewWriter(ctx)
	if _, err = io.Copy(wc, f); err != nil {
		return fmt.Errorf("io.Copy: %v", err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("Writer.Close: %v", err)
	}

	return nil
}

// DownloadStateSnapshot restores the latest snapshot to destFilePath.
// Returns ErrObjectNotExist when no snapshot has ever been uploaded.
func (gs *GStorage) DownloadStateSnapshot(fileName, destFilePath string) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*50)
	defer cancel()

	rc, err := gs.storageClient.Bucket(gs.bucket).Object(gs.objectName(fileName)).NewReader(ctx)
	if err == storage.ErrObjectNotExist {
		return err
	}
	if err != nil {
		return fmt.Errorf("Object(%q).NewReader: %v", fileName, err)
	}
	defer rc.Close()

	f, err := os.Create(destFilePath)
	if err != nil {
		return fmt.Errorf("os.Create: %v", err)
	}

	if _, err := io.Copy(f, rc); err != nil {
		f.Close()
		return fmt.Errorf("io.Copy: %v", err)
	}

	return f.Close()
}

func (gs *GStorage) objectName(fileName string) string {
	if gs.prefix == "" {
		return fileName
	}

	return path.Join(gs.prefix, fileName)
}
