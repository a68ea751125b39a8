package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/phasehumans/campus-portal-api/internal/apperr"
	"github.com/phasehumans/campus-portal-api/internal/auth"
	"github.com/phasehumans/campus-portal-api/internal/material"
	"github.com/phasehumans/campus-portal-api/internal/model"
)

const maxUploadBytes = 50 << 20

type materialRequest struct {
	Title       string `json:"title" form:"title" binding:"required,max=200"`
	Description string `json:"description" form:"description"`
	Type        string `json:"type" form:"type" binding:"omitempty,oneof=pdf doc docx ppt pptx video image link other"`
	FileName    string `json:"fileName" form:"fileName" binding:"max=255"`
	FileSize    int64  `json:"fileSize" form:"fileSize" binding:"min=0"`
	FileURL     string `json:"fileUrl" form:"-"`
	DueDate     string `json:"dueDate" form:"dueDate"`
	IsDraft     bool   `json:"isDraft" form:"isDraft"`
}

func (r materialRequest) input(courseID string) (material.CreateInput, error) {
	in := material.CreateInput{
		CourseID:    courseID,
		Title:       r.Title,
		Description: r.Description,
		Type:        r.Type,
		FileName:    r.FileName,
		FileSize:    r.FileSize,
		FileURL:     r.FileURL,
		IsDraft:     r.IsDraft,
	}
	if r.DueDate != "" {
		d, err := parseDate("dueDate", r.DueDate)
		if err != nil {
			return material.CreateInput{}, err
		}
		in.DueDate = &d
	}
	return in, nil
}

// createMaterial accepts a JSON body with a link, or a multipart form carrying the file.
func (a *api) createMaterial(c *gin.Context) {
	var req materialRequest
	p := auth.PrincipalFrom(c)
	if strings.HasPrefix(c.ContentType(), "multipart/form-data") {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadBytes)
		if err := validationError(c.ShouldBind(&req)); err != nil {
			writeError(c, err)
			return
		}
		fh, err := c.FormFile("file")
		if err != nil {
			writeError(c, apperr.Invalid("file", "required"))
			return
		}
		in, err := req.input(c.Param("id"))
		if err != nil {
			writeError(c, err)
			return
		}
		if in.FileSize == 0 {
			in.FileSize = fh.Size
		}
		f, err := fh.Open()
		if err != nil {
			writeError(c, apperr.Invalid("file", "unreadable"))
			return
		}
		defer f.Close()
		m, err := a.Materials.Upload(c.Request.Context(), p, in, fh.Filename, f)
		if err != nil {
			writeError(c, err)
			return
		}
		respond(c, http.StatusCreated, "material uploaded successfully", m)
		return
	}

	if err := bindJSON(c, &req); err != nil {
		writeError(c, err)
		return
	}
	in, err := req.input(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	m, err := a.Materials.Create(c.Request.Context(), p, in)
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusCreated, "material created successfully", m)
}

func (a *api) listMaterials(c *gin.Context) {
	items, pg, err := a.Materials.List(c.Request.Context(), auth.PrincipalFrom(c), c.Param("id"), c.Query("type"), page(c))
	if err != nil {
		writeError(c, err)
		return
	}
	respondPage(c, "materials retrieved successfully", items, pg)
}

func (a *api) getMaterial(c *gin.Context) {
	m, err := a.Materials.Get(c.Request.Context(), auth.PrincipalFrom(c), c.Param("id"), c.Param("materialId"))
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, "material retrieved successfully", m)
}

// downloadMaterial counts the download and redirects to the stored file.
func (a *api) downloadMaterial(c *gin.Context) {
	m, err := a.Materials.Download(c.Request.Context(), auth.PrincipalFrom(c), c.Param("id"), c.Param("materialId"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.Header("X-Download-Count", strconv.Itoa(m.DownloadCount))
	c.Redirect(http.StatusFound, m.FileURL)
}

type materialPatchRequest struct {
	Title       *string `json:"title" binding:"omitempty,max=200"`
	Description *string `json:"description"`
	Type        *string `json:"type" binding:"omitempty,oneof=pdf doc docx ppt pptx video image link other"`
	DueDate     *string `json:"dueDate"`
	IsPublished *bool   `json:"isPublished"`
}

func (a *api) updateMaterial(c *gin.Context) {
	var req materialPatchRequest
	if err := bindJSON(c, &req); err != nil {
		writeError(c, err)
		return
	}
	patch := model.MaterialPatch{
		Title:       req.Title,
		Description: req.Description,
		Type:        req.Type,
		IsPublished: req.IsPublished,
	}
	if req.DueDate != nil {
		d, err := parseDate("dueDate", *req.DueDate)
		if err != nil {
			writeError(c, err)
			return
		}
		patch.DueDate = &d
	}
	m, err := a.Materials.Update(c.Request.Context(), auth.PrincipalFrom(c), c.Param("id"), c.Param("materialId"), patch)
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, "material updated successfully", m)
}

func (a *api) deleteMaterial(c *gin.Context) {
	if err := a.Materials.Delete(c.Request.Context(), auth.PrincipalFrom(c), c.Param("id"), c.Param("materialId")); err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, "material deleted successfully", nil)
}
