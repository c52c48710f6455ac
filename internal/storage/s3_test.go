package storage

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	input   *s3.PutObjectInput
	body    string
	putErr  error
	expires time.Duration
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.input = in
	raw, _ := io.ReadAll(in.Body)
	f.body = string(raw)
	return &s3.PutObjectOutput{}, f.putErr
}

func (f *fakeS3) PresignGetObject(_ context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	opts := &s3.PresignOptions{}
	for _, fn := range optFns {
		fn(opts)
	}
	f.expires = opts.Expires
	return &v4.PresignedHTTPRequest{URL: "https://signed.example/" + *in.Key + "?X-Amz-Signature=abc"}, nil
}

var userID = uuid.MustParse("0b0a2c1e-3a1f-4a9b-9c55-7b2f0f8c4d21")

func newStore(fake *fakeS3, cfg Config) *ProofStore {
	cfg.Bucket = "proofs"
	return &ProofStore{
		client:  fake,
		presign: fake,
		cfg:     cfg,
		now:     func() time.Time { return time.UnixMilli(1767225600000) },
	}
}

func TestUploadPublicURL(t *testing.T) {
	fake := &fakeS3{}
	s := newStore(fake, Config{PublicBaseURL: "https://cdn.example.com/payment-proofs/"})

	link, err := s.Upload(context.Background(), userID, "receipt.png", strings.NewReader("png"), 3)
	require.NoError(t, err)

	wantKey := userID.String() + "/1767225600000_receipt.png"
	assert.Equal(t, "https://cdn.example.com/payment-proofs/"+wantKey, link)
	assert.Equal(t, "proofs", *fake.input.Bucket)
	assert.Equal(t, wantKey, *fake.input.Key)
	assert.Equal(t, "image/png", *fake.input.ContentType)
	assert.Equal(t, int64(3), *fake.input.ContentLength)
	assert.Equal(t, "png", fake.body)
}

func TestUploadPresigned(t *testing.T) {
	fake := &fakeS3{}
	s := newStore(fake, Config{PresignTTL: time.Hour})

	link, err := s.Upload(context.Background(), userID, "scan.pdf", strings.NewReader("%PDF"), 4)
	require.NoError(t, err)
	assert.Contains(t, link, "X-Amz-Signature")
	assert.Equal(t, time.Hour, fake.expires)
}

func TestUploadError(t *testing.T) {
	boom := errors.New("access denied")
	s := newStore(&fakeS3{putErr: boom}, Config{PublicBaseURL: "https://cdn.example.com"})

	_, err := s.Upload(context.Background(), userID, "a.png", strings.NewReader(""), 0)
	assert.ErrorIs(t, err, boom)
}

func TestObjectKeySanitizesName(t *testing.T) {
	s := newStore(&fakeS3{}, Config{})

	tests := map[string]string{
		"../../etc/passwd":      "1767225600000_passwd",
		`C:\Users\me\photo.jpg`: "1767225600000_photo.jpg",
		"my receipt #1.png":     "1767225600000_my_receipt__1.png",
		"":                      "1767225600000_proof",
	}
	for in, want := range tests {
		assert.Equal(t, userID.String()+"/"+want, s.objectKey(userID, in), "filename %q", in)
	}
}
