// Package archive stores run transcripts of authoritative CODE grading in object storage.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"

	"quizsys/internal/common/storage"
	"quizsys/internal/grading/model"
	appErr "quizsys/pkg/errors"
)

const contentType = "application/zstd"

// maxTranscriptBytes bounds the decompressed size accepted on read.
const maxTranscriptBytes = 64 << 20

// Archiver writes and reads zstd-compressed JSON transcripts.
type Archiver struct {
	store  storage.ObjectStorage
	bucket string
}

func NewArchiver(store storage.ObjectStorage, bucket string) *Archiver {
	return &Archiver{store: store, bucket: bucket}
}

// ObjectKey returns where the transcript of questionSubmissionID lives.
func ObjectKey(questionSubmissionID int64) string {
	return fmt.Sprintf("transcripts/%d.json.zst", questionSubmissionID)
}

func (a *Archiver) Store(ctx context.Context, transcript model.Transcript) error {
	raw, err := json.Marshal(transcript)
	if err != nil {
		return appErr.Wrapf(err, appErr.TranscriptArchiveFailed, "encode transcript failed")
	}
	var buf bytes.Buffer
	enc, err := zstd.NewWriter(&buf)
	if err != nil {
		return appErr.Wrapf(err, appErr.TranscriptArchiveFailed, "create zstd writer failed")
	}
	if _, err := enc.Write(raw); err != nil {
		_ = enc.Close()
		return appErr.Wrapf(err, appErr.TranscriptArchiveFailed, "compress transcript failed")
	}
	if err := enc.Close(); err != nil {
		return appErr.Wrapf(err, appErr.TranscriptArchiveFailed, "compress transcript failed")
	}
	size := int64(buf.Len())
	if err := a.store.PutObject(ctx, a.bucket, ObjectKey(transcript.QuestionSubmissionID), &buf, size, contentType); err != nil {
		return appErr.Wrapf(err, appErr.TranscriptArchiveFailed, "upload transcript failed")
	}
	return nil
}

func (a *Archiver) Load(ctx context.Context, questionSubmissionID int64) (model.Transcript, error) {
	obj, err := a.store.GetObject(ctx, a.bucket, ObjectKey(questionSubmissionID))
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return model.Transcript{}, appErr.Newf(appErr.TranscriptNotFound, "no transcript for question submission %d", questionSubmissionID)
		}
		return model.Transcript{}, appErr.Wrapf(err, appErr.TranscriptArchiveFailed, "download transcript failed")
	}
	defer obj.Close()

	dec, err := zstd.NewReader(obj)
	if err != nil {
		return model.Transcript{}, appErr.Wrapf(err, appErr.TranscriptArchiveFailed, "create zstd reader failed")
	}
	defer dec.Close()

	raw, err := io.ReadAll(io.LimitReader(dec, maxTranscriptBytes))
	if err != nil {
		return model.Transcript{}, appErr.Wrapf(err, appErr.TranscriptArchiveFailed, "decompress transcript failed")
	}
	var transcript model.Transcript
	if err := json.Unmarshal(raw, &transcript); err != nil {
		return model.Transcript{}, appErr.Wrapf(err, appErr.TranscriptArchiveFailed, "decode transcript failed")
	}
	return transcript, nil
}
