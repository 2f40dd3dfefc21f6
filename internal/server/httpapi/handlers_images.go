package httpapi

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/dmitrijs2005/cellscope/internal/common"
	"github.com/dmitrijs2005/cellscope/internal/server/services"
)

// multipartOverhead is the allowance for form framing on top of the file.
const multipartOverhead = 1 << 20

var errFileTooLarge = common.NewValidationError("File too large. Maximum size: 50MB")

// readUploadFile returns the first "file" part of a multipart body. The part
// is read up to one byte past the size limit so the service can reject it.
func readUploadFile(r *http.Request) (services.UploadFile, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return services.UploadFile{}, common.NewValidationError("Expected a multipart/form-data body")
	}

	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return services.UploadFile{}, multipartError(err)
		}
		if part.FormName() != "file" {
			part.Close()
			continue
		}

		data, err := io.ReadAll(io.LimitReader(part, services.MaxUploadSize+1))
		part.Close()
		if err != nil {
			return services.UploadFile{}, multipartError(err)
		}

		contentType := part.Header.Get("Content-Type")
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		return services.UploadFile{Filename: part.FileName(), ContentType: contentType, Data: data}, nil
	}

	return services.UploadFile{}, common.NewValidationError("No file provided")
}

func multipartError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return errFileTooLarge
	}
	return common.NewValidationError("Invalid multipart body")
}

func (s *Server) listImages(w http.ResponseWriter, r *http.Request) {
	id, err := identity(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	folderID, err := pathInt32(r, "folderID")
	if err != nil {
		s.fail(w, r, err)
		return
	}

	list, err := s.services.Images.ListByFolder(r.Context(), id.UserID, folderID)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	resp := imageListResponse{Images: make([]imageResponse, 0, len(list))}
	for i := range list {
		resp.Images = append(resp.Images, newImageResponse(&list[i]))
	}
	resp.Total = int64(len(resp.Images))

	writeData(w, http.StatusOK, resp)
}

func (s *Server) requestUpload(w http.ResponseWriter, r *http.Request) {
	id, err := identity(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	folderID, err := pathInt32(r, "folderID")
	if err != nil {
		s.fail(w, r, err)
		return
	}

	var req services.UploadRequest
	if err := decodeJSON(r, &req, false); err != nil {
		s.fail(w, r, err)
		return
	}

	ticket, err := s.services.Images.RequestUpload(r.Context(), id.UserID, folderID, req)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	writeData(w, http.StatusOK, requestUploadResponse{
		UploadToken:  ticket.UploadToken,
		PresignedURL: ticket.PresignedURL,
		ExpiresAt:    formatTime(ticket.ExpiresAt),
	})
}

func (s *Server) confirmUpload(w http.ResponseWriter, r *http.Request) {
	id, err := identity(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	folderID, err := pathInt32(r, "folderID")
	if err != nil {
		s.fail(w, r, err)
		return
	}

	var req services.ConfirmUploadRequest
	if err := decodeJSON(r, &req, false); err != nil {
		s.fail(w, r, err)
		return
	}

	img, err := s.services.Images.ConfirmUpload(r.Context(), id.UserID, folderID, req)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	s.logger.Info(r.Context(), "image uploaded", "image_id", img.ID, "folder_id", folderID)
	writeData(w, http.StatusCreated, newImageResponse(img))
}

// uploadImage takes the file through the server instead of a presigned URL.
func (s *Server) uploadImage(w http.ResponseWriter, r *http.Request) {
	id, err := identity(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	folderID, err := pathInt32(r, "folderID")
	if err != nil {
		s.fail(w, r, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, services.MaxUploadSize+multipartOverhead)

	f, err := readUploadFile(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	img, err := s.services.Images.Upload(r.Context(), id.UserID, folderID, f)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	s.logger.Info(r.Context(), "image uploaded", "image_id", img.ID, "folder_id", folderID)
	writeData(w, http.StatusCreated, newImageResponse(img))
}

func (s *Server) getImage(w http.ResponseWriter, r *http.Request) {
	id, err := identity(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	imageID, err := pathInt64(r, "imageID")
	if err != nil {
		s.fail(w, r, err)
		return
	}

	d, err := s.services.Images.Get(r.Context(), id.UserID, imageID)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	writeData(w, http.StatusOK, newImageDetailResponse(d))
}

func (s *Server) renameImage(w http.ResponseWriter, r *http.Request) {
	id, err := identity(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	imageID, err := pathInt64(r, "imageID")
	if err != nil {
		s.fail(w, r, err)
		return
	}

	var req services.RenameImageRequest
	if err := decodeJSON(r, &req, false); err != nil {
		s.fail(w, r, err)
		return
	}

	img, err := s.services.Images.Rename(r.Context(), id.UserID, imageID, req)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	writeData(w, http.StatusOK, newImageResponse(img))
}

func (s *Server) deleteImage(w http.ResponseWriter, r *http.Request) {
	id, err := identity(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	imageID, err := pathInt64(r, "imageID")
	if err != nil {
		s.fail(w, r, err)
		return
	}

	if err := s.services.Images.Delete(r.Context(), id.UserID, imageID); err != nil {
		s.fail(w, r, err)
		return
	}

	writeData(w, http.StatusOK, messageResponse{Message: "Image deleted successfully"})
}

// imageFile streams the stored object with the image's recorded mime type.
func (s *Server) imageFile(w http.ResponseWriter, r *http.Request) {
	id, err := identity(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	imageID, err := pathInt64(r, "imageID")
	if err != nil {
		s.fail(w, r, err)
		return
	}

	img, obj, err := s.services.Images.OpenFile(r.Context(), id.UserID, imageID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	defer obj.Body.Close()

	w.Header().Set("Content-Type", img.MimeType)
	if obj.ContentLength > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(obj.ContentLength, 10))
	}
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, obj.Body); err != nil {
		s.logger.Warn(r.Context(), "image stream interrupted", "image_id", imageID, "error", err)
	}
}

func (s *Server) downloadURL(w http.ResponseWriter, r *http.Request) {
	id, err := identity(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	imageID, err := pathInt64(r, "imageID")
	if err != nil {
		s.fail(w, r, err)
		return
	}

	url, expiresAt, err := s.services.Images.DownloadURL(r.Context(), id.UserID, imageID)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	writeData(w, http.StatusOK, downloadURLResponse{URL: url, ExpiresAt: formatTime(expiresAt)})
}
