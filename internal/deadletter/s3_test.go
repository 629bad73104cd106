package deadletter

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePutter struct {
	inputs []*s3.PutObjectInput
	bodies [][]byte
	err    error
}

func (f *fakePutter) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	body, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	f.inputs = append(f.inputs, params)
	f.bodies = append(f.bodies, body)
	return &s3.PutObjectOutput{}, nil
}

func TestS3Archive_Key(t *testing.T) {
	a := NewS3ArchiveWithClient(&fakePutter{}, "bucket", "deadletters/", "pod-1")
	ts := time.Date(2025, 11, 30, 14, 30, 22, 123456789, time.UTC)
	assert.Equal(t, "deadletters/2025/11/30/pod-1-20251130-143022-123456789.jsonl", a.Key(ts))
}

func TestS3Archive_AddWritesJSONLines(t *testing.T) {
	putter := &fakePutter{}
	a := NewS3ArchiveWithClient(putter, "bucket", "dl/", "pod-1")
	a.now = func() time.Time { return time.Date(2025, 1, 2, 3, 4, 5, 6, time.UTC) }

	items := []Item{
		NewItem("create", "a", map[string]string{"k": "v"}, "bad type"),
		NewItem("update", "b", nil, "not found"),
	}
	require.NoError(t, a.Add(context.Background(), items...))

	require.Len(t, putter.inputs, 1)
	assert.Equal(t, "bucket", aws.ToString(putter.inputs[0].Bucket))
	assert.Equal(t, "dl/2025/01/02/pod-1-20250102-030405-6.jsonl", aws.ToString(putter.inputs[0].Key))
	assert.Equal(t, "application/x-ndjson", aws.ToString(putter.inputs[0].ContentType))

	scanner := bufio.NewScanner(bytes.NewReader(putter.bodies[0]))
	var got []Item
	for scanner.Scan() {
		var item Item
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &item))
		got = append(got, item)
	}
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].CorrelationID)
	assert.Equal(t, "not found", got[1].Error)
}

func TestS3Archive_EmptyAndErrors(t *testing.T) {
	putter := &fakePutter{}
	a := NewS3ArchiveWithClient(putter, "bucket", "", "pod")
	require.NoError(t, a.Add(context.Background()))
	assert.Empty(t, putter.inputs)

	putter.err = errors.New("access denied")
	err := a.Add(context.Background(), NewItem("create", "a", nil, "x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access denied")
}
