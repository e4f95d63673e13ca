package gcp

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"
)

// IntakeObject is a master PDF dropped into the intake bucket as
// <YYYY-MM-DD>/<file name>.pdf.
type IntakeObject struct {
	SaleDate string
	FileName string
}

// ParseIntakeObject reads the sale date from the first path segment of name.
func ParseIntakeObject(name string) (IntakeObject, error) {
	dir, file := path.Split(name)
	dir = strings.Trim(dir, "/")
	if dir == "" || strings.Contains(dir, "/") {
		return IntakeObject{}, fmt.Errorf("object %q is not under a single sale date folder", name)
	}
	if _, err := time.Parse("2006-01-02", dir); err != nil {
		return IntakeObject{}, fmt.Errorf("object %q: folder %q is not a YYYY-MM-DD date", name, dir)
	}
	if file == "" {
		return IntakeObject{}, fmt.Errorf("object %q has no file name", name)
	}
	return IntakeObject{SaleDate: dir, FileName: file}, nil
}

// ReadObject downloads gs://bucket/object.
func ReadObject(ctx context.Context, client *storage.Client, bucket, object string) ([]byte, error) {
	r, err := client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get GCS object reader for %s: %w", GCSURI(bucket, object), err)
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read GCS object %s: %w", GCSURI(bucket, object), err)
	}
	return data, nil
}
