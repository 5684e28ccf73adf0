package sink

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tanq16/polyfetch/internal/utils"
)

func TestLocalSink_Write(t *testing.T) {
	root := filepath.Join(t.TempDir(), "chair")
	s, err := NewLocalSink(root)
	require.NoError(t, err)
	assert.Equal(t, root, s.Location())

	ctx := context.Background()
	require.NoError(t, s.Write(ctx, "chair.obj", []byte("v 0 0 0")))
	require.NoError(t, s.Write(ctx, "tex/wood.png", []byte{0x89, 'P', 'N', 'G'}))
	require.NoError(t, s.Close())

	data, err := os.ReadFile(filepath.Join(root, "chair.obj"))
	require.NoError(t, err)
	assert.Equal(t, "v 0 0 0", string(data))

	data, err = os.ReadFile(filepath.Join(root, "tex", "wood.png"))
	require.NoError(t, err)
	assert.Len(t, data, 4)

	_, err = os.Stat(filepath.Join(root, utils.TempDirName))
	assert.True(t, os.IsNotExist(err))
}

func TestLocalSink_RejectsEscapingNames(t *testing.T) {
	s, err := NewLocalSink(t.TempDir())
	require.NoError(t, err)

	for _, name := range []string{"../evil", "/etc/passwd", "", "a/../../b", "..\\x"} {
		assert.Error(t, s.Write(context.Background(), name, nil), name)
	}
}

func TestLocalSink_CancelledContext(t *testing.T) {
	s, err := NewLocalSink(t.TempDir())
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.Write(ctx, "a.obj", nil), context.Canceled)
}

func TestOpen_Local(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(context.Background(), dir, "")
	require.NoError(t, err)
	_, ok := s.(*LocalSink)
	assert.True(t, ok)
}

func TestParseS3URL(t *testing.T) {
	bucket, prefix, err := parseS3URL("s3://models/poly/chair")
	require.NoError(t, err)
	assert.Equal(t, "models", bucket)
	assert.Equal(t, "poly/chair", prefix)

	bucket, prefix, err = parseS3URL("s3://models")
	require.NoError(t, err)
	assert.Equal(t, "models", bucket)
	assert.Empty(t, prefix)

	_, _, err = parseS3URL("s3://")
	assert.Error(t, err)
}

type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
	err     error
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)] = data
	f.types[aws.ToString(in.Key)] = aws.ToString(in.ContentType)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) UploadPart(context.Context, *s3.UploadPartInput, ...func(*s3.Options)) (*s3.UploadPartOutput, error) {
	return nil, errors.New("multipart not expected")
}

func (f *fakeS3) CreateMultipartUpload(context.Context, *s3.CreateMultipartUploadInput, ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error) {
	return nil, errors.New("multipart not expected")
}

func (f *fakeS3) CompleteMultipartUpload(context.Context, *s3.CompleteMultipartUploadInput, ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error) {
	return nil, errors.New("multipart not expected")
}

func (f *fakeS3) AbortMultipartUpload(context.Context, *s3.AbortMultipartUploadInput, ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error) {
	return &s3.AbortMultipartUploadOutput{}, nil
}

func TestS3Sink_Write(t *testing.T) {
	fake := &fakeS3{objects: map[string][]byte{}, types: map[string]string{}}
	s := newS3SinkWithClient(fake, "models", "/poly/chair/")
	assert.Equal(t, "s3://models/poly/chair", s.Location())

	require.NoError(t, s.Write(context.Background(), "tex/wood.png", []byte("png")))
	assert.Equal(t, []byte("png"), fake.objects["models/poly/chair/tex/wood.png"])
	assert.Equal(t, "image/png", fake.types["poly/chair/tex/wood.png"])

	assert.Error(t, s.Write(context.Background(), "../up", nil))
}

func TestS3Sink_UploadError(t *testing.T) {
	fake := &fakeS3{err: errors.New("access denied")}
	s := newS3SinkWithClient(fake, "models", "")
	assert.Equal(t, "s3://models", s.Location())

	err := s.Write(context.Background(), "a.obj", []byte("x"))
	assert.ErrorContains(t, err, "error uploading s3://models/a.obj")
}
