// Copyright 2026 The corevault Authors
// This file is part of the corevault library.
//
// The corevault library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The corevault library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the corevault library. If not, see <http://www.gnu.org/licenses/>.

// Package backup archives Raft snapshots to S3-compatible object
// storage, implementing internal/raftwrap's SnapshotUploader.
package backup

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
)

// S3Uploader archives snapshot bytes under bucket/prefix/<index>.snap.
type S3Uploader struct {
	uploader *s3manager.Uploader
	bucket   string
	prefix   string
}

// NewS3Uploader builds an uploader against region, reusing the SDK's
// standard session/service-client construction (the same family the
// corpus's devp2p DNS tooling uses for its own AWS-backed service, here
// substituting s3manager for off-box snapshot archival).
func NewS3Uploader(bucket, region, prefix string) (*S3Uploader, error) {
	sess, err := session.NewSession(&aws.Config{Region: aws.String(region)})
	if err != nil {
		return nil, err
	}
	return &S3Uploader{
		uploader: s3manager.NewUploader(sess),
		bucket:   bucket,
		prefix:   prefix,
	}, nil
}

// Upload implements raftwrap.SnapshotUploader.
func (u *S3Uploader) Upload(ctx context.Context, index uint64, data []byte) error {
	key := fmt.Sprintf("%s/%020d.snap", u.prefix, index)
	_, err := u.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket: aws.String(u.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	return err
}
