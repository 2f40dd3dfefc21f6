package services

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/cellscope/internal/common"
	"github.com/dmitrijs2005/cellscope/internal/server/models"
	"github.com/dmitrijs2005/cellscope/internal/server/storage"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withObjectKey(t *testing.T, key string) {
	t.Helper()
	orig := newObjectKey
	newObjectKey = func(string) string { return key }
	t.Cleanup(func() { newObjectKey = orig })
}

func TestExtension(t *testing.T) {
	assert.Equal(t, "png", extension("cells.PNG"))
	assert.Equal(t, "gz", extension("archive.tar.gz"))
	assert.Equal(t, "jpg", extension("noext"))
	assert.Equal(t, "", extension("trailing."))
}

func TestNewObjectKey(t *testing.T) {
	key := newObjectKey("a.TIFF")
	assert.True(t, strings.HasPrefix(key, "images/"))
	assert.True(t, strings.HasSuffix(key, ".tiff"))
	_, err := uuid.Parse(strings.TrimSuffix(strings.TrimPrefix(key, "images/"), ".tiff"))
	assert.NoError(t, err)
}

func TestRequestUpload_Success(t *testing.T) {
	withObjectKey(t, "images/fixed.png")

	rm := newFakeRepoManager()
	rm.f.folder = &models.Folder{ID: 1}
	exp := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	st := &fakeStore{url: "http://s3/put", expires: exp}
	s := NewImageService(nil, rm, st)

	ticket, err := s.RequestUpload(context.Background(), uuid.New(), 1,
		UploadRequest{Filename: "cells.png", ContentType: "image/png", FileSize: 1024})
	require.NoError(t, err)
	assert.Equal(t, &UploadTicket{UploadToken: "images/fixed.png", PresignedURL: "http://s3/put", ExpiresAt: exp}, ticket)
	assert.Equal(t, "images/fixed.png", st.putKey)
	assert.Equal(t, "image/png", st.putType)
}

func TestRequestUpload_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		req     UploadRequest
		message string
	}{
		{"content type", UploadRequest{Filename: "a.gif", ContentType: "image/gif", FileSize: 10},
			"Invalid content type. Allowed: image/jpeg, image/png, image/tiff"},
		{"too large", UploadRequest{Filename: "a.png", ContentType: "image/png", FileSize: MaxUploadSize + 1},
			"File too large. Maximum size: 50MB"},
		{"zero size", UploadRequest{Filename: "a.png", ContentType: "image/png", FileSize: 0},
			"file_size must be greater than 0"},
		{"no filename", UploadRequest{ContentType: "image/png", FileSize: 10},
			"filename must not be blank"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rm := newFakeRepoManager()
			rm.f.folder = &models.Folder{ID: 1}
			st := &fakeStore{}
			s := NewImageService(nil, rm, st)

			_, err := s.RequestUpload(context.Background(), uuid.New(), 1, tt.req)
			require.ErrorIs(t, err, common.ErrorValidation)
			assert.Equal(t, tt.message, err.Error())
			assert.Empty(t, st.putKey)
		})
	}
}

func TestRequestUpload_MaxSizeAccepted(t *testing.T) {
	rm := newFakeRepoManager()
	rm.f.folder = &models.Folder{ID: 1}
	s := NewImageService(nil, rm, &fakeStore{})

	_, err := s.RequestUpload(context.Background(), uuid.New(), 1,
		UploadRequest{Filename: "a.jpg", ContentType: "image/jpeg", FileSize: MaxUploadSize})
	require.NoError(t, err)
}

func TestRequestUpload_ForeignFolder(t *testing.T) {
	s := NewImageService(nil, newFakeRepoManager(), &fakeStore{})

	_, err := s.RequestUpload(context.Background(), uuid.New(), 9,
		UploadRequest{Filename: "a.png", ContentType: "image/png", FileSize: 1})
	require.ErrorIs(t, err, common.ErrorNotFound)
	assert.Equal(t, "Folder not found", err.Error())
}

func TestConfirmUpload(t *testing.T) {
	rm := newFakeRepoManager()
	rm.f.folder = &models.Folder{ID: 2}
	s := NewImageService(nil, rm, &fakeStore{})

	t.Run("bad token", func(t *testing.T) {
		_, err := s.ConfirmUpload(context.Background(), uuid.New(), 2, ConfirmUploadRequest{
			UploadToken:   "other/x.png",
			UploadRequest: UploadRequest{Filename: "a.png", ContentType: "image/png", FileSize: 1},
		})
		require.ErrorIs(t, err, common.ErrorValidation)
		assert.Equal(t, "upload_token must start with images/", err.Error())
	})

	t.Run("ok", func(t *testing.T) {
		img, err := s.ConfirmUpload(context.Background(), uuid.New(), 2, ConfirmUploadRequest{
			UploadToken:   "images/x.png",
			UploadRequest: UploadRequest{Filename: "a.png", ContentType: "image/png", FileSize: 42},
		})
		require.NoError(t, err)
		assert.Equal(t, int32(2), img.FolderID)
		assert.Equal(t, "images/x.png", img.FilePath)
		assert.Equal(t, "a.png", img.OriginalFilename)
		assert.Equal(t, int32(42), img.FileSize)
		assert.Nil(t, img.Metadata)
	})
}

func TestImageService_GetWithHistory(t *testing.T) {
	rm := newFakeRepoManager()
	rm.i.image = &models.Image{ID: 5, FilePath: "images/a.png"}
	rm.j.history = []models.JobWithResult{{Job: models.Job{ID: 1}}}
	s := NewImageService(nil, rm, &fakeStore{})

	d, err := s.Get(context.Background(), uuid.New(), 5)
	require.NoError(t, err)
	assert.Equal(t, int64(5), d.ID)
	assert.Len(t, d.History, 1)
}

func TestImageService_RenameTrims(t *testing.T) {
	s := NewImageService(nil, newFakeRepoManager(), &fakeStore{})

	img, err := s.Rename(context.Background(), uuid.New(), 5, RenameImageRequest{NewFilename: "  b.png "})
	require.NoError(t, err)
	assert.Equal(t, "b.png", img.OriginalFilename)

	_, err = s.Rename(context.Background(), uuid.New(), 5, RenameImageRequest{NewFilename: "   "})
	require.ErrorIs(t, err, common.ErrorValidation)
}

func TestImageService_DeleteNotFound(t *testing.T) {
	rm := newFakeRepoManager()
	rm.i.err = common.ErrorNotFound
	s := NewImageService(nil, rm, &fakeStore{})

	err := s.Delete(context.Background(), uuid.New(), 5)
	require.ErrorIs(t, err, common.ErrorNotFound)
	assert.Equal(t, "Image not found", err.Error())
}

func TestImageService_OpenFile(t *testing.T) {
	rm := newFakeRepoManager()
	rm.i.image = &models.Image{ID: 5, FilePath: "images/a.png", MimeType: "image/png"}
	st := &fakeStore{obj: &storage.Object{Body: io.NopCloser(strings.NewReader("png")), ContentLength: 3}}
	s := NewImageService(nil, rm, st)

	img, obj, err := s.OpenFile(context.Background(), uuid.New(), 5)
	require.NoError(t, err)
	assert.Equal(t, "image/png", img.MimeType)
	assert.Equal(t, "images/a.png", st.getKey)
	b, _ := io.ReadAll(obj.Body)
	assert.Equal(t, "png", string(b))

	st.err = common.ErrorNotFound
	_, _, err = s.OpenFile(context.Background(), uuid.New(), 5)
	require.ErrorIs(t, err, common.ErrorNotFound)

	st.err = errors.New("network")
	_, _, err = s.OpenFile(context.Background(), uuid.New(), 5)
	require.Error(t, err)
	assert.NotErrorIs(t, err, common.ErrorNotFound)
}

func TestImageService_DownloadURL(t *testing.T) {
	rm := newFakeRepoManager()
	rm.i.image = &models.Image{ID: 5, FilePath: "images/a.png"}
	exp := time.Now().Add(time.Hour)
	st := &fakeStore{url: "http://s3/get", expires: exp}
	s := NewImageService(nil, rm, st)

	url, gotExp, err := s.DownloadURL(context.Background(), uuid.New(), 5)
	require.NoError(t, err)
	assert.Equal(t, "http://s3/get", url)
	assert.Equal(t, exp, gotExp)
	assert.Equal(t, "images/a.png", st.getKey)
}

var (
	pngBytes  = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01")
	jpegBytes = []byte("\xff\xd8\xff\xe0\x00\x10JFIF\x00\x01")
	tiffBytes = []byte("II*\x00\x08\x00\x00\x00")
)

func TestUpload_Success(t *testing.T) {
	withObjectKey(t, "images/fixed.png")

	rm := newFakeRepoManager()
	rm.f.folder = &models.Folder{ID: 1}
	st := &fakeStore{}
	s := NewImageService(nil, rm, st)

	img, err := s.Upload(context.Background(), uuid.New(), 1,
		UploadFile{Filename: "cells.png", ContentType: "image/png", Data: pngBytes})
	require.NoError(t, err)

	assert.Equal(t, int64(10), img.ID)
	assert.Equal(t, "images/fixed.png", img.FilePath)
	assert.Equal(t, "cells.png", img.OriginalFilename)
	assert.Equal(t, "image/png", img.MimeType)
	assert.Equal(t, int32(len(pngBytes)), img.FileSize)
	assert.Equal(t, pngBytes, st.stored["images/fixed.png"])
	assert.Equal(t, "image/png", st.putType)
	assert.Empty(t, st.deleted)
}

func TestUpload_AcceptsAllowedFormats(t *testing.T) {
	tests := []struct {
		contentType string
		data        []byte
	}{
		{"image/png", pngBytes},
		{"image/jpeg", jpegBytes},
		{"image/tiff", tiffBytes},
	}

	for _, tt := range tests {
		t.Run(tt.contentType, func(t *testing.T) {
			rm := newFakeRepoManager()
			rm.f.folder = &models.Folder{ID: 1}
			s := NewImageService(nil, rm, &fakeStore{})

			_, err := s.Upload(context.Background(), uuid.New(), 1,
				UploadFile{Filename: "a", ContentType: tt.contentType, Data: tt.data})
			assert.NoError(t, err)
		})
	}
}

func TestUpload_DefaultFilename(t *testing.T) {
	rm := newFakeRepoManager()
	rm.f.folder = &models.Folder{ID: 1}
	st := &fakeStore{}
	s := NewImageService(nil, rm, st)

	img, err := s.Upload(context.Background(), uuid.New(), 1, UploadFile{ContentType: "image/jpeg", Data: jpegBytes})
	require.NoError(t, err)
	assert.Equal(t, "unknown.jpg", img.OriginalFilename)
	assert.True(t, strings.HasSuffix(st.putKey, ".jpg"))
}

func TestUpload_Rejections(t *testing.T) {
	big := make([]byte, MaxUploadSize+1)
	copy(big, pngBytes)

	tests := []struct {
		name    string
		file    UploadFile
		message string
	}{
		{"content type", UploadFile{Filename: "a.gif", ContentType: "image/gif", Data: []byte("GIF89a")},
			"Invalid content type. Allowed: image/jpeg, image/png, image/tiff"},
		{"too large", UploadFile{Filename: "a.png", ContentType: "image/png", Data: big},
			"File too large. Maximum size: 50MB"},
		{"not an image", UploadFile{Filename: "a.png", ContentType: "image/png", Data: []byte("hello world")},
			"File content does not match an allowed image type"},
		{"empty", UploadFile{Filename: "a.png", ContentType: "image/png"},
			"File content does not match an allowed image type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rm := newFakeRepoManager()
			rm.f.folder = &models.Folder{ID: 1}
			st := &fakeStore{}
			s := NewImageService(nil, rm, st)

			_, err := s.Upload(context.Background(), uuid.New(), 1, tt.file)
			require.ErrorIs(t, err, common.ErrorValidation)
			assert.Equal(t, tt.message, err.Error())
			assert.Empty(t, st.putKey)
			assert.Nil(t, rm.i.created)
		})
	}
}

func TestUpload_ForeignFolder(t *testing.T) {
	rm := newFakeRepoManager()
	st := &fakeStore{}
	s := NewImageService(nil, rm, st)

	_, err := s.Upload(context.Background(), uuid.New(), 1,
		UploadFile{Filename: "a.png", ContentType: "image/png", Data: pngBytes})
	require.ErrorIs(t, err, common.ErrorNotFound)
	assert.Equal(t, "Folder not found", err.Error())
	assert.Empty(t, st.putKey)
}

func TestUpload_StoreFailureSkipsInsert(t *testing.T) {
	rm := newFakeRepoManager()
	rm.f.folder = &models.Folder{ID: 1}
	st := &fakeStore{storeErr: errors.New("s3 down")}
	s := NewImageService(nil, rm, st)

	_, err := s.Upload(context.Background(), uuid.New(), 1,
		UploadFile{Filename: "a.png", ContentType: "image/png", Data: pngBytes})
	require.Error(t, err)
	assert.Nil(t, rm.i.created)
	assert.Empty(t, st.deleted)
}

func TestUpload_InsertFailureRemovesObject(t *testing.T) {
	withObjectKey(t, "images/fixed.png")

	rm := newFakeRepoManager()
	rm.f.folder = &models.Folder{ID: 1}
	rm.i.err = errors.New("insert failed")
	st := &fakeStore{}
	s := NewImageService(nil, rm, st)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := s.Upload(ctx, uuid.New(), 1,
		UploadFile{Filename: "a.png", ContentType: "image/png", Data: pngBytes})
	require.Error(t, err)
	assert.NotErrorIs(t, err, common.ErrorNotFound)

	assert.Equal(t, []string{"images/fixed.png"}, st.deleted)
	assert.NotContains(t, st.stored, "images/fixed.png")

	cancel()
	require.Len(t, st.deleteCtxs, 1)
	assert.NoError(t, st.deleteCtxs[0].Err())
}
