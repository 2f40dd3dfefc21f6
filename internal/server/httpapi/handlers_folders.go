package httpapi

import (
	"net/http"
	"strconv"

	"github.com/dmitrijs2005/cellscope/internal/common"
	"github.com/dmitrijs2005/cellscope/internal/server/services"
	"github.com/go-chi/chi/v5"
)

func pathInt32(r *http.Request, name string) (int32, error) {
	v, err := strconv.ParseInt(chi.URLParam(r, name), 10, 32)
	if err != nil {
		return 0, common.NewValidationError("Invalid " + name)
	}
	return int32(v), nil
}

func pathInt64(r *http.Request, name string) (int64, error) {
	v, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil {
		return 0, common.NewValidationError("Invalid " + name)
	}
	return v, nil
}

func (s *Server) listFolders(w http.ResponseWriter, r *http.Request) {
	id, err := identity(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	list, err := s.services.Folders.List(r.Context(), id.UserID)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	resp := folderListResponse{Folders: make([]folderResponse, 0, len(list))}
	for i := range list {
		resp.Folders = append(resp.Folders, newFolderResponse(&list[i].Folder, list[i].ImageCount))
	}
	resp.Total = int64(len(resp.Folders))

	writeData(w, http.StatusOK, resp)
}

func (s *Server) createFolder(w http.ResponseWriter, r *http.Request) {
	id, err := identity(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	var req services.FolderRequest
	if err := decodeJSON(r, &req, false); err != nil {
		s.fail(w, r, err)
		return
	}

	f, err := s.services.Folders.Create(r.Context(), id.UserID, req)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	writeData(w, http.StatusCreated, newFolderResponse(f, 0))
}

func (s *Server) renameFolder(w http.ResponseWriter, r *http.Request) {
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

	var req services.FolderRequest
	if err := decodeJSON(r, &req, false); err != nil {
		s.fail(w, r, err)
		return
	}

	f, err := s.services.Folders.Rename(r.Context(), id.UserID, folderID, req)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	writeData(w, http.StatusOK, newFolderResponse(f, 0))
}

func (s *Server) deleteFolder(w http.ResponseWriter, r *http.Request) {
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

	n, err := s.services.Folders.Delete(r.Context(), id.UserID, folderID)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	writeData(w, http.StatusOK, deleteFolderResponse{Message: "Folder deleted successfully", DeletedImagesCount: n})
}
